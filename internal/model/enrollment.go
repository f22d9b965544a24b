package model

import (
	"time"

	"gorm.io/datatypes"
)

type PaymentStatus string

const (
	PaymentCaptured   PaymentStatus = "captured"
	PaymentAuthorized PaymentStatus = "authorized"
)

// PaymentDetails 支付归属信息，内嵌在报名记录中
type PaymentDetails struct {
	PaymentID string        `gorm:"column:payment_id;size:64;not null;uniqueIndex:uq_enrollment_payment" json:"paymentId"`
	OrderID   string        `gorm:"column:order_id;size:64;not null;index" json:"orderId"`
	Signature string        `gorm:"column:payment_signature;size:128;not null" json:"signature"`
	Amount    int64         `gorm:"column:payment_amount;not null" json:"amount"`
	Currency  string        `gorm:"column:payment_currency;size:3" json:"currency"`
	Method    string        `gorm:"column:payment_method;size:32" json:"method"`
	Status    PaymentStatus `gorm:"column:payment_status;size:32" json:"status"`
}

// VideoWatch 单个视频的观看状态
type VideoWatch struct {
	WatchedSeconds int       `json:"watchedSeconds"`
	Completed      bool      `json:"completed"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type WatchState map[string]VideoWatch

// swagger:model Enrollment
type Enrollment struct {
	LedgerModel
	StudentID      string                         `gorm:"type:varchar(36);not null;uniqueIndex:uq_enrollment_student_course" json:"studentId"`
	CourseID       string                         `gorm:"type:varchar(36);not null;uniqueIndex:uq_enrollment_student_course;index" json:"courseId"`
	PaymentDetails PaymentDetails                 `gorm:"embedded" json:"paymentDetails"`
	Progress       float64                        `gorm:"not null;default:0" json:"progress"`
	WatchState     datatypes.JSONType[WatchState] `json:"watchState"`
	Notes          string                         `gorm:"type:text" json:"notes"`
	EnrolledAt     time.Time                      `gorm:"not null" json:"enrolledAt"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}
