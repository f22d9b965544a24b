package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"coursemart_backend/internal/model"
	"coursemart_backend/internal/repository"
	"coursemart_backend/internal/util"
	"coursemart_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ProcessedCache 记录已经落库的支付 -> 报名 ID，只是快速路径，命中后仍以数据库为准
type ProcessedCache interface {
	Get(ctx context.Context, paymentID string) (uint, bool)
	Set(ctx context.Context, paymentID string, enrollmentID uint)
}

type noopProcessedCache struct{}

func (noopProcessedCache) Get(context.Context, string) (uint, bool) { return 0, false }
func (noopProcessedCache) Set(context.Context, string, uint)        {}

func NewNoopProcessedCache() ProcessedCache {
	return noopProcessedCache{}
}

type RedisProcessedCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisProcessedCache(client *redis.Client, ttl time.Duration) *RedisProcessedCache {
	return &RedisProcessedCache{client: client, ttl: ttl}
}

func processedKey(paymentID string) string {
	return "payment:processed:" + paymentID
}

func (c *RedisProcessedCache) Get(ctx context.Context, paymentID string) (uint, bool) {
	val, err := c.client.Get(ctx, processedKey(paymentID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Log.Warn("Processed cache lookup failed", zap.String("paymentId", paymentID), zap.Error(err))
		}
		return 0, false
	}
	id, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

func (c *RedisProcessedCache) Set(ctx context.Context, paymentID string, enrollmentID uint) {
	if err := c.client.Set(ctx, processedKey(paymentID), strconv.FormatUint(uint64(enrollmentID), 10), c.ttl).Err(); err != nil {
		logger.Log.Warn("Processed cache write failed", zap.String("paymentId", paymentID), zap.Error(err))
	}
}

// IdempotencyGuard 判断一个回调对应的报名是否已经存在
type IdempotencyGuard struct {
	Enrollments EnrollmentStore
	Cache       ProcessedCache
}

func NewIdempotencyGuard(enrollments EnrollmentStore, cache ProcessedCache) *IdempotencyGuard {
	if cache == nil {
		cache = NewNoopProcessedCache()
	}
	return &IdempotencyGuard{Enrollments: enrollments, Cache: cache}
}

// Existing 返回已存在的报名；不存在时返回 (nil, nil)。
// 同一支付已经绑定到其他 (学生, 课程) 时返回 ErrPaymentReused
func (g *IdempotencyGuard) Existing(ctx context.Context, cb *PaymentCallback) (*model.Enrollment, error) {
	if id, ok := g.Cache.Get(ctx, cb.PaymentID); ok {
		if e, err := g.Enrollments.FindByID(ctx, id); err == nil {
			return g.match(e, cb)
		}
	}

	e, err := g.Enrollments.FindByStudentCourse(ctx, cb.StudentID, cb.CourseID)
	if err == nil {
		g.Cache.Set(ctx, e.PaymentDetails.PaymentID, e.ID)
		return e, nil
	}
	if !repository.IsNotFound(err) {
		return nil, util.Transient(err)
	}

	e, err = g.Enrollments.FindByPaymentID(ctx, cb.PaymentID)
	if err == nil {
		return g.match(e, cb)
	}
	if !repository.IsNotFound(err) {
		return nil, util.Transient(err)
	}
	return nil, nil
}

func (g *IdempotencyGuard) match(e *model.Enrollment, cb *PaymentCallback) (*model.Enrollment, error) {
	if e.StudentID != cb.StudentID || e.CourseID != cb.CourseID {
		return nil, fmt.Errorf("%w: payment %s", util.ErrPaymentReused, cb.PaymentID)
	}
	return e, nil
}

// Remember 记录已处理的支付
func (g *IdempotencyGuard) Remember(ctx context.Context, e *model.Enrollment) {
	g.Cache.Set(ctx, e.PaymentDetails.PaymentID, e.ID)
}
