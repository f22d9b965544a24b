package util

import (
	"errors"
	"fmt"
)

// 拒绝类错误：调用方重试没有意义
var (
	ErrSignatureInvalid    = errors.New("payment signature invalid")
	ErrCourseNotFound      = errors.New("course not found")
	ErrStudentNotFound     = errors.New("student not found")
	ErrQuizNotFound        = errors.New("quiz not found")
	ErrNotEnrolled         = errors.New("student not enrolled in course")
	ErrIncomplete          = errors.New("not all course quizzes attempted")
	ErrIneligible          = errors.New("average below pass threshold")
	ErrPaymentMismatch     = errors.New("payment does not match order")
	ErrPaymentReused       = errors.New("payment already used for another enrollment")
	ErrAttemptExists       = errors.New("quiz already attempted")
	ErrFreeCourse          = errors.New("course is free, no payment order needed")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrEnrollmentNotFound  = errors.New("enrollment not found")
	ErrCertificateNotFound = errors.New("certificate not found")
	ErrAlreadyEnrolled     = errors.New("student already enrolled in course")
	ErrInvalidInput        = errors.New("invalid input")
	ErrGatewayRejected     = errors.New("payment gateway rejected the request")
)

// ErrPaymentPending 网关上的支付尚未完成，稍后重放即可，配合 Transient 使用
var ErrPaymentPending = errors.New("payment not settled yet")

// ErrStorageTransient 基础设施故障，所有写入幂等，可以安全重试
var ErrStorageTransient = errors.New("storage temporarily unavailable")

var rejections = []error{
	ErrSignatureInvalid,
	ErrCourseNotFound,
	ErrStudentNotFound,
	ErrQuizNotFound,
	ErrNotEnrolled,
	ErrIncomplete,
	ErrIneligible,
	ErrPaymentMismatch,
	ErrPaymentReused,
	ErrAttemptExists,
	ErrFreeCourse,
	ErrPermissionDenied,
	ErrEnrollmentNotFound,
	ErrCertificateNotFound,
	ErrAlreadyEnrolled,
	ErrInvalidInput,
	ErrGatewayRejected,
}

type transientError struct {
	err error
}

func (e *transientError) Error() string {
	return fmt.Sprintf("%s: %v", ErrStorageTransient, e.err)
}

func (e *transientError) Unwrap() []error {
	return []error{ErrStorageTransient, e.err}
}

// Transient 把底层错误标记为可重试
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrStorageTransient) {
		return err
	}
	return &transientError{err: err}
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrStorageTransient)
}

func IsRejected(err error) bool {
	for _, r := range rejections {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}

// EligibilityError 携带计算出的平均分，返回给前端展示
type EligibilityError struct {
	Reason    error
	Average   float64
	Required  int
	Attempted int
}

func (e *EligibilityError) Error() string {
	if errors.Is(e.Reason, ErrIncomplete) {
		return fmt.Sprintf("%s (%d of %d)", e.Reason, e.Attempted, e.Required)
	}
	return fmt.Sprintf("%s (average %.2f)", e.Reason, e.Average)
}

func (e *EligibilityError) Unwrap() error {
	return e.Reason
}
