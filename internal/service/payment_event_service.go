package service

import (
	"context"
	"encoding/json"
	"fmt"

	"coursemart_backend/internal/config"
	"coursemart_backend/internal/model"
	"coursemart_backend/internal/util"
	"coursemart_backend/pkg/logger"
	"coursemart_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// EnrollmentCommitter 报名提交入口，webhook、verify 与补偿任务共用
type EnrollmentCommitter interface {
	Commit(ctx context.Context, cb *PaymentCallback) (*model.Enrollment, bool, error)
}

// PaymentEventService 记录每一次网关回调并驱动报名提交，失败的回调由定时任务重放
type PaymentEventService struct {
	Events    PaymentEventStore
	Committer EnrollmentCommitter
	Provider  string
	Cfg       *config.ReconcileConfig
}

func NewPaymentEventService(events PaymentEventStore, committer EnrollmentCommitter, provider string, cfg *config.ReconcileConfig) *PaymentEventService {
	return &PaymentEventService{Events: events, Committer: committer, Provider: provider, Cfg: cfg}
}

// HandleWebhook 先落日志再提交，日志写入失败不阻塞报名
func (s *PaymentEventService) HandleWebhook(ctx context.Context, payload []byte, cb *PaymentCallback) (*model.Enrollment, bool, error) {
	ev := &model.PaymentEvent{
		Provider:  s.Provider,
		PaymentID: cb.PaymentID,
		OrderID:   cb.OrderID,
		Payload:   datatypes.JSON(payload),
		Status:    model.PaymentEventReceived,
	}
	if err := s.Events.Create(ctx, ev); err != nil {
		logger.Log.Error("Failed to record payment event",
			zap.String("paymentId", cb.PaymentID),
			zap.Error(err))
		ev = nil
	}

	e, created, err := s.Committer.Commit(ctx, cb)
	if ev != nil {
		s.record(ctx, ev.ID, err)
	}
	return e, created, err
}

func (s *PaymentEventService) record(ctx context.Context, id uint, commitErr error) {
	status, msg := model.PaymentEventProcessed, ""
	switch {
	case commitErr == nil:
	case util.IsRejected(commitErr):
		status, msg = model.PaymentEventRejected, commitErr.Error()
	default:
		status, msg = model.PaymentEventFailed, commitErr.Error()
	}

	monitoring.WebhookEvents.WithLabelValues(string(status)).Inc()
	if err := s.Events.MarkStatus(context.WithoutCancel(ctx), id, status, msg); err != nil {
		logger.Log.Error("Failed to update payment event",
			zap.Uint("eventId", id),
			zap.String("status", string(status)),
			zap.Error(err))
	}
}

// RetryFailed 重放暂时性失败的回调，返回本轮处理成功的数量
func (s *PaymentEventService) RetryFailed(ctx context.Context) (int, error) {
	events, err := s.Events.ListRetryable(ctx, s.Cfg.MaxTries, s.Cfg.BatchSize)
	if err != nil {
		return 0, util.Transient(err)
	}

	processed := 0
	for _, ev := range events {
		var cb PaymentCallback
		if err := json.Unmarshal(ev.Payload, &cb); err != nil {
			s.record(ctx, ev.ID, fmt.Errorf("%w: stored payload unreadable: %v", util.ErrInvalidInput, err))
			continue
		}

		_, _, err := s.Committer.Commit(ctx, &cb)
		s.record(ctx, ev.ID, err)
		if err == nil {
			processed++
		} else {
			logger.Log.Warn("Payment event replay failed",
				zap.Uint("eventId", ev.ID),
				zap.Int("tryCount", ev.TryCount+1),
				zap.Error(err))
		}
	}
	return processed, nil
}
