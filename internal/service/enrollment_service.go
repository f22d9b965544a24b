package service

import (
	"context"
	"fmt"
	"time"

	"coursemart_backend/internal/config"
	"coursemart_backend/internal/model"
	"coursemart_backend/internal/repository"
	"coursemart_backend/internal/util"
	"coursemart_backend/pkg/logger"
	"coursemart_backend/pkg/monitoring"
	"coursemart_backend/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type EnrollmentService struct {
	Students    StudentStore
	Courses     CourseStore
	Enrollments EnrollmentStore
	Guard       *IdempotencyGuard
	Verifier    *SignatureVerifier
	Gateway     PaymentGateway
	Cfg         *config.Config
}

func NewEnrollmentService(cfg *config.Config, students StudentStore, courses CourseStore, enrollments EnrollmentStore,
	guard *IdempotencyGuard, verifier *SignatureVerifier, gateway PaymentGateway) *EnrollmentService {
	return &EnrollmentService{
		Students:    students,
		Courses:     courses,
		Enrollments: enrollments,
		Guard:       guard,
		Verifier:    verifier,
		Gateway:     gateway,
		Cfg:         cfg,
	}
}

// OrderResult 前端发起支付所需的信息
type OrderResult struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	KeyID    string `json:"keyId"`
	CourseID string `json:"courseId"`
}

func (s *EnrollmentService) loadCourseAndStudent(ctx context.Context, courseID, studentID string) (*model.Course, *model.Student, error) {
	course, err := s.Courses.FindByID(ctx, courseID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil, util.ErrCourseNotFound
		}
		return nil, nil, util.Transient(err)
	}

	student, err := s.Students.FindByID(ctx, studentID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil, util.ErrStudentNotFound
		}
		return nil, nil, util.Transient(err)
	}
	return course, student, nil
}

// CreateOrder 在支付网关创建订单，课程必须收费且学生尚未报名
func (s *EnrollmentService) CreateOrder(ctx context.Context, cmd *CreateOrderCommand) (*OrderResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	course, _, err := s.loadCourseAndStudent(ctx, cmd.CourseID, cmd.StudentID)
	if err != nil {
		return nil, err
	}
	if course.Price <= 0 {
		return nil, util.ErrFreeCourse
	}

	_, err = s.Enrollments.FindByStudentCourse(ctx, cmd.StudentID, cmd.CourseID)
	if err == nil {
		return nil, util.ErrAlreadyEnrolled
	}
	if !repository.IsNotFound(err) {
		return nil, util.Transient(err)
	}

	order, err := s.Gateway.CreateOrder(ctx, CreateOrderRequest{
		Amount:   course.Price,
		Currency: course.Currency,
		Receipt:  fmt.Sprintf("rcpt_%s_%d", util.LastN(cmd.StudentID, 8), time.Now().Unix()),
		Notes: map[string]string{
			"courseId":  cmd.CourseID,
			"studentId": cmd.StudentID,
		},
	})
	if err != nil {
		return nil, err
	}

	return &OrderResult{
		OrderID:  order.ID,
		Amount:   order.Amount,
		Currency: order.Currency,
		KeyID:    s.Cfg.Payment.KeyID,
		CourseID: course.ID,
	}, nil
}

// Commit 处理一次支付回调，返回报名记录以及是否为本次新建。
// 重复回调、并发回调都收敛为同一条报名记录
func (s *EnrollmentService) Commit(ctx context.Context, cb *PaymentCallback) (enrollment *model.Enrollment, created bool, err error) {
	ctx, span := tracing.StartSpan(ctx, "enrollment.commit",
		attribute.String("payment.id", cb.PaymentID),
		attribute.String("course.id", cb.CourseID),
	)
	defer func() { tracing.EndSpan(span, err) }()

	if err = cb.Validate(); err != nil {
		if util.IsRejected(err) {
			monitoring.SignatureRejections.Inc()
		}
		return nil, false, err
	}
	if !s.Verifier.Verify(cb.OrderID, cb.PaymentID, cb.Signature) {
		monitoring.SignatureRejections.Inc()
		logger.Log.Warn("Payment signature rejected",
			zap.String("orderId", cb.OrderID),
			zap.String("paymentId", cb.PaymentID))
		return nil, false, util.ErrSignatureInvalid
	}

	// 签名通过后与请求生命周期解绑，客户端断开不影响提交
	ctx = context.WithoutCancel(ctx)

	course, _, err := s.loadCourseAndStudent(ctx, cb.CourseID, cb.StudentID)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.Guard.Existing(ctx, cb)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		monitoring.EnrollmentCommits.WithLabelValues("duplicate").Inc()
		return existing, false, nil
	}

	payment, err := s.Gateway.FetchPayment(ctx, cb.PaymentID)
	if err != nil {
		return nil, false, err
	}
	if err = checkPayment(payment, cb.OrderID, course.Price); err != nil {
		logger.Log.Warn("Payment does not match order",
			zap.String("paymentId", cb.PaymentID),
			zap.Error(err))
		return nil, false, err
	}

	e := &model.Enrollment{
		StudentID: cb.StudentID,
		CourseID:  cb.CourseID,
		PaymentDetails: model.PaymentDetails{
			PaymentID: cb.PaymentID,
			OrderID:   cb.OrderID,
			Signature: cb.Signature,
			Amount:    payment.Amount,
			Currency:  payment.Currency,
			Method:    payment.Method,
			Status:    model.PaymentStatus(payment.Status),
		},
		WatchState: datatypes.NewJSONType(model.WatchState{}),
		EnrolledAt: time.Now(),
	}

	txCtx, cancel := context.WithTimeout(ctx, boundedTimeout(s.Cfg.Database.TxTimeout, 10*time.Second))
	defer cancel()

	if err = s.Enrollments.CreateWithRoster(txCtx, e); err != nil {
		if !repository.IsDuplicateKey(err) {
			logger.Log.Error("Failed to commit enrollment",
				zap.String("paymentId", cb.PaymentID),
				zap.Error(err))
			return nil, false, util.Transient(err)
		}

		// 并发回调抢先写入，读取胜出的记录
		winner, gerr := s.Guard.Existing(ctx, cb)
		if gerr != nil {
			return nil, false, gerr
		}
		if winner == nil {
			return nil, false, util.Transient(fmt.Errorf("duplicate enrollment for payment %s but no winner found: %w", cb.PaymentID, err))
		}
		monitoring.EnrollmentCommits.WithLabelValues("duplicate").Inc()
		return winner, false, nil
	}

	s.Guard.Remember(ctx, e)
	monitoring.EnrollmentCommits.WithLabelValues("created").Inc()
	logger.Log.Info("Enrollment committed",
		zap.Uint("enrollmentId", e.ID),
		zap.String("studentId", e.StudentID),
		zap.String("courseId", e.CourseID),
		zap.String("paymentId", cb.PaymentID))
	return e, true, nil
}

func (s *EnrollmentService) GetEnrollment(ctx context.Context, studentID, courseID string) (*model.Enrollment, error) {
	e, err := s.Enrollments.FindByStudentCourse(ctx, studentID, courseID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrEnrollmentNotFound
		}
		return nil, util.Transient(err)
	}
	return e, nil
}

// SaveProgress 记录视频观看状态并重新计算课程进度
func (s *EnrollmentService) SaveProgress(ctx context.Context, upd *ProgressUpdate) (*model.Enrollment, error) {
	if err := upd.Validate(); err != nil {
		return nil, err
	}

	course, err := s.Courses.FindByID(ctx, upd.CourseID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrCourseNotFound
		}
		return nil, util.Transient(err)
	}

	e, err := s.Enrollments.UpdateProgress(ctx, upd.StudentID, upd.CourseID, func(e *model.Enrollment) error {
		state := e.WatchState.Data()
		if state == nil {
			state = model.WatchState{}
		}

		w := state[upd.VideoID]
		if upd.WatchedSeconds > w.WatchedSeconds {
			w.WatchedSeconds = upd.WatchedSeconds
		}
		// 完成状态不可回退
		w.Completed = w.Completed || upd.Completed
		w.UpdatedAt = time.Now()
		state[upd.VideoID] = w

		e.WatchState = datatypes.NewJSONType(state)
		e.Progress = courseProgress(state, course.TotalVideos)
		if upd.Notes != nil {
			e.Notes = *upd.Notes
		}
		return nil
	})
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrEnrollmentNotFound
		}
		return nil, util.Transient(err)
	}
	return e, nil
}

func courseProgress(state model.WatchState, totalVideos int) float64 {
	if totalVideos <= 0 {
		return 0
	}
	completed := 0
	for _, w := range state {
		if w.Completed {
			completed++
		}
	}
	p := util.Round2(float64(completed) / float64(totalVideos) * 100)
	if p > 100 {
		p = 100
	}
	return p
}

func boundedTimeout(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
