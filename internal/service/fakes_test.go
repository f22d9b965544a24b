package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"coursemart_backend/internal/config"
	"coursemart_backend/internal/model"
	"coursemart_backend/internal/repository"
	"coursemart_backend/internal/testutil"

	"gorm.io/gorm"
)

const testWebhookSecret = "whsec_test_secret"

type fakeGateway struct {
	fetchFn    func(ctx context.Context, paymentID string) (*GatewayPayment, error)
	createFn   func(ctx context.Context, req CreateOrderRequest) (*GatewayOrder, error)
	fetchCalls int32
}

func (g *fakeGateway) FetchPayment(ctx context.Context, paymentID string) (*GatewayPayment, error) {
	atomic.AddInt32(&g.fetchCalls, 1)
	return g.fetchFn(ctx, paymentID)
}

func (g *fakeGateway) CreateOrder(ctx context.Context, req CreateOrderRequest) (*GatewayOrder, error) {
	return g.createFn(ctx, req)
}

// capturedGateway 对任何支付都返回已扣款，订单号与金额由调用方指定
func capturedGateway(orderID string, amount int64) *fakeGateway {
	return &fakeGateway{
		fetchFn: func(_ context.Context, paymentID string) (*GatewayPayment, error) {
			return &GatewayPayment{ID: paymentID, OrderID: orderID, Amount: amount, Currency: "INR", Method: "upi", Status: "captured"}, nil
		},
		createFn: func(_ context.Context, req CreateOrderRequest) (*GatewayOrder, error) {
			return &GatewayOrder{ID: orderID, Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt, Status: "created"}, nil
		},
	}
}

// memoryCache 进程内的 ProcessedCache
type memoryCache struct {
	mu   sync.Mutex
	data map[string]uint
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string]uint{}}
}

func (c *memoryCache) Get(_ context.Context, paymentID string) (uint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.data[paymentID]
	return id, ok
}

func (c *memoryCache) Set(_ context.Context, paymentID string, enrollmentID uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[paymentID] = enrollmentID
}

func testConfig() *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{TxTimeout: 5 * time.Second},
		Storage:  config.StorageConfig{UploadTimeout: 5 * time.Second},
		Payment:  config.PaymentConfig{KeyID: "rzp_test", WebhookSecret: testWebhookSecret},
		Certificate: config.CertificateConfig{
			PassThreshold: 75,
			IDPrefix:      "CM",
			IssuerName:    "CourseMart Academy",
		},
		Reconcile: config.ReconcileConfig{MaxTries: 3, BatchSize: 10},
	}
}

type enrollmentFixture struct {
	db      *gorm.DB
	svc     *EnrollmentService
	gateway *fakeGateway
	cache   *memoryCache
	student *model.Student
	course  *model.Course
}

func newEnrollmentFixture(t *testing.T) *enrollmentFixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	student := testutil.SeedStudent(t, db, "ravi")
	course := testutil.SeedCourse(t, db, "Go Basics", 49900)

	gateway := capturedGateway("order_1", 49900)
	cache := newMemoryCache()
	enrollments := repository.NewEnrollmentRepository(db)

	svc := NewEnrollmentService(
		testConfig(),
		repository.NewStudentRepository(db),
		repository.NewCourseRepository(db),
		enrollments,
		NewIdempotencyGuard(enrollments, cache),
		NewSignatureVerifier(testWebhookSecret),
		gateway,
	)
	return &enrollmentFixture{db: db, svc: svc, gateway: gateway, cache: cache, student: student, course: course}
}

func (f *enrollmentFixture) callback(orderID, paymentID string) *PaymentCallback {
	return &PaymentCallback{
		OrderID:   orderID,
		PaymentID: paymentID,
		Signature: NewSignatureVerifier(testWebhookSecret).Sign(orderID, paymentID),
		CourseID:  f.course.ID,
		StudentID: f.student.ID,
	}
}

func countRows(t *testing.T, db *gorm.DB, m interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	if err := db.Model(m).Where(query, args...).Count(&n).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return n
}
