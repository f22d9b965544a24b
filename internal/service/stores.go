package service

import (
	"context"

	"coursemart_backend/internal/model"
)

// 服务层依赖的存储接口，由 repository 包中的实现满足

type StudentStore interface {
	FindByID(ctx context.Context, id string) (*model.Student, error)
}

type CourseStore interface {
	FindByID(ctx context.Context, id string) (*model.Course, error)
}

type EnrollmentStore interface {
	FindByStudentCourse(ctx context.Context, studentID, courseID string) (*model.Enrollment, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*model.Enrollment, error)
	FindByID(ctx context.Context, id uint) (*model.Enrollment, error)
	CreateWithRoster(ctx context.Context, e *model.Enrollment) error
	UpdateProgress(ctx context.Context, studentID, courseID string, mutate func(*model.Enrollment) error) (*model.Enrollment, error)
}

type QuizStore interface {
	FindByID(ctx context.Context, id uint) (*model.Quiz, error)
	ListByCourse(ctx context.Context, courseID string) ([]model.Quiz, error)
	ListAttempts(ctx context.Context, studentID, courseID string) ([]model.QuizAttempt, error)
	CreateAttempt(ctx context.Context, attempt *model.QuizAttempt) error
}

type CertificateStore interface {
	FindByStudentCourse(ctx context.Context, studentID, courseID string) (*model.Certificate, error)
	Create(ctx context.Context, cert *model.Certificate) error
	ListByStudent(ctx context.Context, studentID string) ([]model.Certificate, error)
}

type PaymentEventStore interface {
	Create(ctx context.Context, ev *model.PaymentEvent) error
	MarkStatus(ctx context.Context, id uint, status model.PaymentEventStatus, errMsg string) error
	ListRetryable(ctx context.Context, maxTries, limit int) ([]model.PaymentEvent, error)
}
