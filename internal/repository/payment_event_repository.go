package repository

import (
	"context"
	"coursemart_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type PaymentEventRepository struct {
	DB *gorm.DB
}

func NewPaymentEventRepository(db *gorm.DB) *PaymentEventRepository {
	return &PaymentEventRepository{DB: db}
}

func (r *PaymentEventRepository) Create(ctx context.Context, ev *model.PaymentEvent) error {
	return r.DB.WithContext(ctx).Create(ev).Error
}

// MarkStatus 记录一次处理结果，同时累加处理次数
func (r *PaymentEventRepository) MarkStatus(ctx context.Context, id uint, status model.PaymentEventStatus, errMsg string) error {
	now := time.Now()
	return r.DB.WithContext(ctx).Model(&model.PaymentEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        status,
			"error_message": errMsg,
			"try_count":     gorm.Expr("try_count + 1"),
			"processed_at":  &now,
			"updated_at":    now,
		}).Error
}

// ListRetryable 返回暂时性失败且未超过最大重试次数的回调
func (r *PaymentEventRepository) ListRetryable(ctx context.Context, maxTries, limit int) ([]model.PaymentEvent, error) {
	var evs []model.PaymentEvent
	err := r.DB.WithContext(ctx).
		Where("status = ? AND try_count < ?", model.PaymentEventFailed, maxTries).
		Order("id asc").
		Limit(limit).
		Find(&evs).Error
	return evs, err
}

func (r *PaymentEventRepository) FindByID(ctx context.Context, id uint) (*model.PaymentEvent, error) {
	var ev model.PaymentEvent
	if err := r.DB.WithContext(ctx).First(&ev, id).Error; err != nil {
		return nil, err
	}
	return &ev, nil
}
