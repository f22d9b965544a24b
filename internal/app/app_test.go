package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"coursemart_backend/internal/config"
	"coursemart_backend/internal/model"
	"coursemart_backend/internal/service"
	"coursemart_backend/internal/testutil"
	"coursemart_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	testJWTSecret     = "test-jwt-secret-with-at-least-32-chars"
	testWebhookSecret = "whsec_app_test"
	coursePrice       = int64(49900)
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// fakeGateway 模拟支付网关：任何 pay_ 开头的支付都视为对 orders 中订单的已扣款
type fakeGateway struct {
	mu       sync.Mutex
	orders   map[string]string // paymentID -> orderID
	statuses map[string]string
	fetches  int32
}

func newFakeGateway(t *testing.T) (*fakeGateway, *httptest.Server) {
	gw := &fakeGateway{orders: map[string]string{}, statuses: map[string]string{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/payments/"):
			atomic.AddInt32(&gw.fetches, 1)
			id := strings.TrimPrefix(r.URL.Path, "/payments/")
			gw.mu.Lock()
			orderID, ok := gw.orders[id]
			status := gw.statuses[id]
			gw.mu.Unlock()
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"payment not found"}}`))
				return
			}
			json.NewEncoder(w).Encode(service.GatewayPayment{
				ID: id, OrderID: orderID, Amount: coursePrice, Currency: "INR", Method: "upi", Status: status,
			})
		case r.Method == http.MethodPost && r.URL.Path == "/orders":
			var req service.CreateOrderRequest
			json.NewDecoder(r.Body).Decode(&req)
			json.NewEncoder(w).Encode(service.GatewayOrder{
				ID: "order_" + req.Receipt, Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt, Status: "created",
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return gw, srv
}

func (g *fakeGateway) capture(paymentID, orderID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orders[paymentID] = orderID
	g.statuses[paymentID] = "captured"
}

// pending 网关已知该支付但尚未扣款
func (g *fakeGateway) pending(paymentID, orderID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orders[paymentID] = orderID
	g.statuses[paymentID] = "created"
}

type testEnv struct {
	app     *App
	db      *gorm.DB
	gateway *fakeGateway
	cfg     *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewTestDB(t)
	gw, srv := newFakeGateway(t)

	uploads := filepath.Join(t.TempDir(), "uploads")
	cfg := &config.Config{
		Server: config.ServerConfig{Port: "0", Mode: gin.TestMode},
		Database: config.DatabaseConfig{
			Driver:    "sqlite",
			TxTimeout: 5 * time.Second,
		},
		JWT: config.JWTConfig{Secret: testJWTSecret, ExpireTime: time.Hour},
		Storage: config.StorageConfig{
			Type:          util.StorageLocal,
			LocalPath:     uploads,
			PublicBaseURL: "http://localhost/uploads",
			UploadTimeout: 5 * time.Second,
		},
		Payment: config.PaymentConfig{
			Provider:      "razorpay",
			BaseURL:       srv.URL,
			KeyID:         "rzp_test",
			KeySecret:     "secret",
			WebhookSecret: testWebhookSecret,
			Timeout:       2 * time.Second,
		},
		Certificate: config.CertificateConfig{PassThreshold: 75, IDPrefix: "CM", IssuerName: "CourseMart Academy"},
		Reconcile:   config.ReconcileConfig{Enabled: false, Schedule: "@every 5m", MaxTries: 3, BatchSize: 10},
	}

	return &testEnv{app: newApp(cfg, db, nil, nil), db: db, gateway: gw, cfg: cfg}
}

func (e *testEnv) token(t *testing.T, userID string, role model.UserRole) string {
	t.Helper()
	tok, err := util.GenerateJWT(userID, role, userID+"@example.com", testJWTSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.app.Router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func (e *testEnv) callback(orderID, paymentID, courseID, studentID string) service.PaymentCallback {
	sig := service.NewSignatureVerifier(testWebhookSecret).Sign(orderID, paymentID)
	return service.PaymentCallback{
		OrderID:   orderID,
		PaymentID: paymentID,
		Signature: sig,
		CourseID:  courseID,
		StudentID: studentID,
	}
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

// submitScore 通过接口提交答卷，20 题中答对 correct 题
func (e *testEnv) submitScore(t *testing.T, token, studentID string, quiz *model.Quiz, correct int) {
	t.Helper()
	answers := map[string]string{}
	for i, q := range quiz.Questions {
		answer := "wrong"
		if i < correct {
			answer = q.CorrectAnswer
		}
		answers[fmt.Sprint(q.ID)] = answer
	}
	w, _ := e.do(t, http.MethodPost, fmt.Sprintf("/api/quizzes/%d/attempts", quiz.ID), token,
		gin.H{"studentId": studentID, "answers": answers})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func twentyAnswers() []string {
	answers := make([]string, 20)
	for i := range answers {
		answers[i] = "a"
	}
	return answers
}

func TestPurchaseToCertificateFlow(t *testing.T) {
	env := newTestEnv(t)
	student := testutil.SeedStudent(t, env.db, "grace")
	course := testutil.SeedCourse(t, env.db, "Distributed Systems", coursePrice)
	quiz1 := testutil.SeedQuiz(t, env.db, course.ID, "Consensus", twentyAnswers()...)
	quiz2 := testutil.SeedQuiz(t, env.db, course.ID, "Replication", twentyAnswers()...)
	token := env.token(t, student.ID, model.RoleStudent)

	env.gateway.capture("pay_flow_1", "order_flow_1")
	cb := env.callback("order_flow_1", "pay_flow_1", course.ID, student.ID)

	// 网关重复投递同一回调，间隔 50ms
	codes := make([]int, 2)
	ids := make([]uint, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			time.Sleep(time.Duration(i) * 50 * time.Millisecond)
			w, env2 := env.do(t, http.MethodPost, "/api/payments/webhook", "", cb)
			codes[i] = w.Code
			var e model.Enrollment
			if w.Code < 300 && json.Unmarshal(env2.Data, &e) == nil {
				ids[i] = e.ID
			}
		}(i)
	}
	wg.Wait()

	assert.ElementsMatch(t, []int{http.StatusCreated, http.StatusOK}, codes)
	assert.NotZero(t, ids[0])
	assert.Equal(t, ids[0], ids[1])

	var enrollments, roster int64
	env.db.Model(&model.Enrollment{}).Where("student_id = ? AND course_id = ?", student.ID, course.ID).Count(&enrollments)
	env.db.Model(&model.CourseRoster{}).Where("student_id = ? AND course_id = ?", student.ID, course.ID).Count(&roster)
	assert.EqualValues(t, 1, enrollments)
	assert.EqualValues(t, 1, roster)

	var events []model.PaymentEvent
	require.NoError(t, env.db.Find(&events).Error)
	assert.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, model.PaymentEventProcessed, ev.Status)
	}

	env.submitScore(t, token, student.ID, quiz1, 18)
	env.submitScore(t, token, student.ID, quiz2, 17)

	issuePath := fmt.Sprintf("/api/certificates/issue/%s/%s", course.ID, student.ID)
	w, body := env.do(t, http.MethodPost, issuePath, token, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := decode[model.Certificate](t, body.Data)
	assert.Equal(t, 87.5, first.Marks)
	assert.True(t, strings.HasPrefix(first.CertificateID, "CM-"))
	assert.NotEmpty(t, first.CertificateURL)

	w, body = env.do(t, http.MethodPost, issuePath, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	second := decode[model.Certificate](t, body.Data)
	assert.Equal(t, first.CertificateID, second.CertificateID)
	assert.Equal(t, first.CertificateURL, second.CertificateURL)

	w, body = env.do(t, http.MethodGet, fmt.Sprintf("/api/certificates/%s/%s", course.ID, student.ID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, first.CertificateID, decode[model.Certificate](t, body.Data).CertificateID)

	w, body = env.do(t, http.MethodGet, fmt.Sprintf("/api/students/%s/certificates", student.ID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]model.Certificate](t, body.Data), 1)
}

func TestVerifyStatusCodes(t *testing.T) {
	env := newTestEnv(t)
	student := testutil.SeedStudent(t, env.db, "linus")
	course := testutil.SeedCourse(t, env.db, "Kernels", coursePrice)
	token := env.token(t, student.ID, model.RoleStudent)

	env.gateway.capture("pay_v_1", "order_v_1")

	bad := env.callback("order_v_1", "pay_v_1", course.ID, student.ID)
	bad.Signature = strings.Repeat("0", len(bad.Signature))
	w, _ := env.do(t, http.MethodPost, "/api/payments/verify", token, bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	missing := env.callback("order_v_1", "pay_v_1", course.ID, student.ID)
	missing.OrderID = ""
	w, _ = env.do(t, http.MethodPost, "/api/payments/verify", token, missing)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/payments/verify", token,
		env.callback("order_v_1", "pay_v_1", model.GenerateUUID(), student.ID))
	assert.Equal(t, http.StatusNotFound, w.Code)

	// 网关上不存在的支付
	w, _ = env.do(t, http.MethodPost, "/api/payments/verify", token,
		env.callback("order_v_2", "pay_unknown", course.ID, student.ID))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	good := env.callback("order_v_1", "pay_v_1", course.ID, student.ID)
	w, _ = env.do(t, http.MethodPost, "/api/payments/verify", token, good)
	assert.Equal(t, http.StatusCreated, w.Code)
	w, _ = env.do(t, http.MethodPost, "/api/payments/verify", token, good)
	assert.Equal(t, http.StatusOK, w.Code)

	// 其他学生不能替别人确认支付
	other := env.token(t, model.GenerateUUID(), model.RoleStudent)
	w, body := env.do(t, http.MethodPost, "/api/payments/verify", other, good)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, util.ErrPermissionDenied.Error(), body.Message)

	w, _ = env.do(t, http.MethodPost, "/api/payments/verify", "", good)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookRejectsTamperedSignature(t *testing.T) {
	env := newTestEnv(t)
	student := testutil.SeedStudent(t, env.db, "barbara")
	course := testutil.SeedCourse(t, env.db, "Abstractions", coursePrice)
	env.gateway.capture("pay_w_1", "order_w_1")

	cb := env.callback("order_w_1", "pay_w_1", course.ID, student.ID)
	last := "0"
	if strings.HasSuffix(cb.Signature, "0") {
		last = "1"
	}
	cb.Signature = cb.Signature[:len(cb.Signature)-1] + last

	w, _ := env.do(t, http.MethodPost, "/api/payments/webhook", "", cb)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.EqualValues(t, 0, atomic.LoadInt32(&env.gateway.fetches))

	var ev model.PaymentEvent
	require.NoError(t, env.db.First(&ev).Error)
	assert.Equal(t, model.PaymentEventRejected, ev.Status)

	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	env.app.Router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIssueStatusCodes(t *testing.T) {
	env := newTestEnv(t)
	student := testutil.SeedStudent(t, env.db, "edsger")
	course := testutil.SeedCourse(t, env.db, "Structured Programming", coursePrice)
	quiz1 := testutil.SeedQuiz(t, env.db, course.ID, "Goto", twentyAnswers()...)
	quiz2 := testutil.SeedQuiz(t, env.db, course.ID, "Semaphores", twentyAnswers()...)
	admin := env.token(t, "admin-1", model.RoleAdmin)
	token := env.token(t, student.ID, model.RoleStudent)

	w, _ := env.do(t, http.MethodPost, fmt.Sprintf("/api/certificates/issue/%s/%s", model.GenerateUUID(), student.ID), admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = env.do(t, http.MethodPost, fmt.Sprintf("/api/certificates/issue/%s/%s", course.ID, model.GenerateUUID()), admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	testutil.SeedEnrollment(t, env.db, student.ID, course.ID)
	issuePath := fmt.Sprintf("/api/certificates/issue/%s/%s", course.ID, student.ID)

	env.submitScore(t, token, student.ID, quiz1, 10)
	w, body := env.do(t, http.MethodPost, issuePath, token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	incomplete := decode[map[string]interface{}](t, body.Data)
	assert.EqualValues(t, 1, incomplete["attempted"])
	assert.EqualValues(t, 2, incomplete["required"])
	assert.NotContains(t, incomplete, "average")

	env.submitScore(t, token, student.ID, quiz2, 10)
	w, body = env.do(t, http.MethodPost, issuePath, token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	ineligible := decode[map[string]interface{}](t, body.Data)
	assert.EqualValues(t, 50, ineligible["average"])

	w, body = env.do(t, http.MethodGet, fmt.Sprintf("/api/certificates/eligibility/%s/%s", course.ID, student.ID), token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	elig := decode[map[string]interface{}](t, body.Data)
	assert.Equal(t, "ineligible", elig["status"])

	w, _ = env.do(t, http.MethodGet, fmt.Sprintf("/api/certificates/%s/%s", course.ID, student.ID), token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// 他人不能为该学生申请证书
	w, _ = env.do(t, http.MethodPost, issuePath, env.token(t, model.GenerateUUID(), model.RoleStudent), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

type slowRenderer struct {
	inner service.CertificateRenderer
}

func (r slowRenderer) Render(d *service.CertificateData) ([]byte, error) {
	time.Sleep(300 * time.Millisecond)
	return r.inner.Render(d)
}

func TestConcurrentIssueReturnsOneCreated(t *testing.T) {
	env := newTestEnv(t)
	env.app.services.certificate.Renderer = slowRenderer{inner: service.NewPNGCertificateRenderer()}
	student := testutil.SeedStudent(t, env.db, "katherine")
	course := testutil.SeedCourse(t, env.db, "Orbital Mechanics", coursePrice)
	quiz := testutil.SeedQuiz(t, env.db, course.ID, "Trajectories", "a")
	testutil.SeedEnrollment(t, env.db, student.ID, course.ID)
	testutil.SeedAttempt(t, env.db, student.ID, quiz, 95)
	token := env.token(t, student.ID, model.RoleStudent)

	issuePath := fmt.Sprintf("/api/certificates/issue/%s/%s", course.ID, student.ID)
	codes := make([]int, 2)
	var wg sync.WaitGroup
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			time.Sleep(time.Duration(i) * 20 * time.Millisecond)
			w, _ := env.do(t, http.MethodPost, issuePath, token, nil)
			codes[i] = w.Code
		}(i)
	}
	wg.Wait()

	assert.ElementsMatch(t, []int{http.StatusCreated, http.StatusOK}, codes)
}

func TestEnrollmentProgressRoutes(t *testing.T) {
	env := newTestEnv(t)
	student := testutil.SeedStudent(t, env.db, "margaret")
	course := testutil.SeedCourse(t, env.db, "Apollo Guidance", coursePrice)
	token := env.token(t, student.ID, model.RoleStudent)

	path := fmt.Sprintf("/api/enrollments/%s/%s", course.ID, student.ID)
	w, _ := env.do(t, http.MethodGet, path, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	testutil.SeedEnrollment(t, env.db, student.ID, course.ID)

	w, _ = env.do(t, http.MethodPut, path+"/progress", token, gin.H{"videoId": "v1", "watchedSeconds": 120, "completed": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, body := env.do(t, http.MethodGet, path, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	e := decode[model.Enrollment](t, body.Data)
	assert.True(t, e.WatchState.Data()["v1"].Completed)
}

func TestCreateOrderRoute(t *testing.T) {
	env := newTestEnv(t)
	student := testutil.SeedStudent(t, env.db, "alan")
	course := testutil.SeedCourse(t, env.db, "Computability", coursePrice)
	token := env.token(t, student.ID, model.RoleStudent)

	w, body := env.do(t, http.MethodPost, "/api/payments/orders", token, gin.H{"courseId": course.ID, "studentId": student.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	order := decode[service.OrderResult](t, body.Data)
	assert.Equal(t, coursePrice, order.Amount)
	assert.NotEmpty(t, order.OrderID)
}

func TestEarlyWebhookIsReplayedByAdminReconcile(t *testing.T) {
	env := newTestEnv(t)
	student := testutil.SeedStudent(t, env.db, "hedy")
	course := testutil.SeedCourse(t, env.db, "Frequency Hopping", coursePrice)
	env.gateway.pending("pay_early_1", "order_early_1")

	cb := env.callback("order_early_1", "pay_early_1", course.ID, student.ID)
	w, _ := env.do(t, http.MethodPost, "/api/payments/webhook", "", cb)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var ev model.PaymentEvent
	require.NoError(t, env.db.First(&ev).Error)
	assert.Equal(t, model.PaymentEventFailed, ev.Status)

	env.gateway.capture("pay_early_1", "order_early_1")

	// 只有管理员可以手动触发补偿
	w, _ = env.do(t, http.MethodPost, "/api/admin/payments/reconcile", env.token(t, student.ID, model.RoleStudent), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = env.do(t, http.MethodPost, "/api/admin/payments/reconcile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, body := env.do(t, http.MethodPost, "/api/admin/payments/reconcile", env.token(t, "admin-1", model.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, decode[map[string]interface{}](t, body.Data)["processed"])

	require.NoError(t, env.db.First(&ev, ev.ID).Error)
	assert.Equal(t, model.PaymentEventProcessed, ev.Status)

	var enrollments int64
	env.db.Model(&model.Enrollment{}).Where("student_id = ? AND course_id = ?", student.ID, course.ID).Count(&enrollments)
	assert.EqualValues(t, 1, enrollments)
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestConfigCallbacksRun(t *testing.T) {
	env := newTestEnv(t)
	var got string
	env.app.RegisterConfigCallback(func(cfg *config.Config) { got = cfg.Server.Mode })

	for _, cb := range env.app.configCallbacks {
		cb(&config.Config{Server: config.ServerConfig{Mode: "release"}})
	}
	assert.Equal(t, "release", got)
}
