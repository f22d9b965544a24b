package service

import (
	"context"
	"time"

	"coursemart_backend/internal/config"
	"coursemart_backend/pkg/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ReconcileService 定时重放失败的支付回调
type ReconcileService struct {
	Events *PaymentEventService
	Cfg    *config.ReconcileConfig
	cron   *cron.Cron
}

func NewReconcileService(events *PaymentEventService, cfg *config.ReconcileConfig) *ReconcileService {
	return &ReconcileService{
		Events: events,
		Cfg:    cfg,
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

func (s *ReconcileService) Start() error {
	if !s.Cfg.Enabled {
		logger.Log.Info("Payment reconciliation disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.Cfg.Schedule, s.RunOnce); err != nil {
		return err
	}
	s.cron.Start()
	logger.Log.Info("Payment reconciliation scheduled", zap.String("schedule", s.Cfg.Schedule))
	return nil
}

// Stop 等待正在执行的任务结束
func (s *ReconcileService) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *ReconcileService) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := s.Events.RetryFailed(ctx)
	if err != nil {
		logger.Log.Error("Payment reconciliation failed", zap.Error(err))
		return
	}
	if n > 0 {
		logger.Log.Info("Payment events reconciled", zap.Int("processed", n))
	}
}
