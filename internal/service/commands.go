package service

import (
	"errors"
	"fmt"

	"coursemart_backend/internal/util"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// PaymentCallback 支付成功回调，前端 verify 与网关 webhook 共用
type PaymentCallback struct {
	OrderID   string `json:"orderId" validate:"required,max=64"`
	PaymentID string `json:"paymentId" validate:"required,max=64"`
	Signature string `json:"signature" validate:"required,max=128"`
	CourseID  string `json:"courseId" validate:"required,max=36"`
	StudentID string `json:"studentId" validate:"required,max=36"`
}

// Validate 签名相关字段缺失视为签名无效，其余字段缺失为参数错误
func (cb *PaymentCallback) Validate() error {
	err := validate.Struct(cb)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			switch fe.Field() {
			case "OrderID", "PaymentID", "Signature":
				return fmt.Errorf("%w: %s %s", util.ErrSignatureInvalid, fe.Field(), fe.Tag())
			}
		}
	}
	return invalidInput(err)
}

type CreateOrderCommand struct {
	CourseID  string `json:"courseId" validate:"required,max=36"`
	StudentID string `json:"studentId" validate:"required,max=36"`
}

func (c *CreateOrderCommand) Validate() error {
	return invalidInput(validate.Struct(c))
}

// ProgressUpdate 单个视频的观看进度
type ProgressUpdate struct {
	StudentID      string  `json:"-" validate:"required"`
	CourseID       string  `json:"-" validate:"required"`
	VideoID        string  `json:"videoId" validate:"required,max=64"`
	WatchedSeconds int     `json:"watchedSeconds" validate:"gte=0"`
	Completed      bool    `json:"completed"`
	Notes          *string `json:"notes" validate:"omitempty,max=2000"`
}

func (p *ProgressUpdate) Validate() error {
	return invalidInput(validate.Struct(p))
}

type QuizSubmission struct {
	QuizID    uint              `json:"-" validate:"required"`
	StudentID string            `json:"studentId" validate:"required,max=36"`
	Answers   map[string]string `json:"answers" validate:"required"`
}

func (q *QuizSubmission) Validate() error {
	return invalidInput(validate.Struct(q))
}

func invalidInput(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%w: %s failed on %s", util.ErrInvalidInput, fe.Field(), fe.Tag())
	}
	return fmt.Errorf("%w: %v", util.ErrInvalidInput, err)
}
