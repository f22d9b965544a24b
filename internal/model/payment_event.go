package model

import (
	"time"

	"gorm.io/datatypes"
)

type PaymentEventStatus string

const (
	PaymentEventReceived  PaymentEventStatus = "received"
	PaymentEventProcessed PaymentEventStatus = "processed"
	PaymentEventRejected  PaymentEventStatus = "rejected"
	PaymentEventFailed    PaymentEventStatus = "failed"
)

// PaymentEvent 支付网关回调日志，每次投递一行，便于审计和补偿重放
type PaymentEvent struct {
	LedgerModel
	Provider    string             `gorm:"size:32;not null" json:"provider"`
	PaymentID   string             `gorm:"size:64;index" json:"paymentId"`
	OrderID     string             `gorm:"size:64;index" json:"orderId"`
	Payload     datatypes.JSON     `json:"payload"`
	Status      PaymentEventStatus `gorm:"size:16;not null;index;default:'received'" json:"status"`
	Error       string             `gorm:"column:error_message;type:text" json:"error,omitempty"`
	TryCount    int                `gorm:"not null;default:0" json:"tryCount"`
	ProcessedAt *time.Time         `json:"processedAt,omitempty"`
}

func (PaymentEvent) TableName() string {
	return "payment_events"
}
