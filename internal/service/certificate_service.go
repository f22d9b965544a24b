package service

import (
	"context"
	"fmt"
	"strings"
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
	"golang.org/x/sync/singleflight"
)

const certificatePrefix = "certificates"

type CertificateService struct {
	Students     StudentStore
	Courses      CourseStore
	Enrollments  EnrollmentStore
	Certificates CertificateStore
	Eligibility  *EligibilityService
	Store        ContentStore
	Renderer     CertificateRenderer
	Notifier     CertificateNotifier
	Cfg          *config.Config

	group singleflight.Group
	now   func() time.Time
}

func NewCertificateService(cfg *config.Config, students StudentStore, courses CourseStore, enrollments EnrollmentStore,
	certificates CertificateStore, eligibility *EligibilityService, store ContentStore,
	renderer CertificateRenderer, notifier CertificateNotifier) *CertificateService {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &CertificateService{
		Students:     students,
		Courses:      courses,
		Enrollments:  enrollments,
		Certificates: certificates,
		Eligibility:  eligibility,
		Store:        store,
		Renderer:     renderer,
		Notifier:     notifier,
		Cfg:          cfg,
		now:          time.Now,
	}
}

type issueResult struct {
	cert    *model.Certificate
	created bool
}

// Issue 为学生签发课程证书，返回证书以及是否为本次新建。
// 同一 (学生, 课程) 永远只有一张证书，重复调用返回同一张
func (s *CertificateService) Issue(ctx context.Context, studentID, courseID string) (*model.Certificate, bool, error) {
	// 同进程内的并发请求合并为一次执行，正确性仍由唯一索引保证。
	// 只有真正执行签发的调用方拿到 created，其余共享结果的调用方视为已存在
	ran := false
	v, err, _ := s.group.Do(studentID+"/"+courseID, func() (interface{}, error) {
		ran = true
		cert, created, err := s.issue(context.WithoutCancel(ctx), studentID, courseID)
		if err != nil {
			return nil, err
		}
		return &issueResult{cert: cert, created: created}, nil
	})
	if err != nil {
		return nil, false, err
	}
	r := v.(*issueResult)
	return r.cert, r.created && ran, nil
}

func (s *CertificateService) loadParties(ctx context.Context, studentID, courseID string) (*model.Student, *model.Course, error) {
	student, err := s.Students.FindByID(ctx, studentID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil, util.ErrStudentNotFound
		}
		return nil, nil, util.Transient(err)
	}

	course, err := s.Courses.FindByID(ctx, courseID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil, util.ErrCourseNotFound
		}
		return nil, nil, util.Transient(err)
	}
	return student, course, nil
}

func (s *CertificateService) issue(ctx context.Context, studentID, courseID string) (cert *model.Certificate, created bool, err error) {
	ctx, span := tracing.StartSpan(ctx, "certificate.issue",
		attribute.String("student.id", studentID),
		attribute.String("course.id", courseID),
	)
	defer func() { tracing.EndSpan(span, err) }()

	student, course, err := s.loadParties(ctx, studentID, courseID)
	if err != nil {
		return nil, false, err
	}

	if _, err = s.Enrollments.FindByStudentCourse(ctx, studentID, courseID); err != nil {
		if repository.IsNotFound(err) {
			return nil, false, util.ErrNotEnrolled
		}
		return nil, false, util.Transient(err)
	}

	existing, err := s.Certificates.FindByStudentCourse(ctx, studentID, courseID)
	if err == nil {
		monitoring.CertificateIssues.WithLabelValues("existing").Inc()
		return existing, false, nil
	}
	if !repository.IsNotFound(err) {
		return nil, false, util.Transient(err)
	}

	elig, err := s.Eligibility.Evaluate(ctx, studentID, courseID)
	if err != nil {
		return nil, false, err
	}
	if err = elig.Err(); err != nil {
		return nil, false, err
	}

	issuedAt := s.now()
	certID := fmt.Sprintf("%s-%d-%s", s.Cfg.Certificate.IDPrefix, issuedAt.UnixMilli(), strings.ToUpper(util.LastN(studentID, 4)))

	artifact, err := s.Renderer.Render(&CertificateData{
		CertificateID:  certID,
		StudentName:    student.Name,
		CourseTitle:    course.Title,
		InstructorName: course.InstructorName,
		IssuerName:     s.Cfg.Certificate.IssuerName,
		Marks:          elig.Average,
		IssuedAt:       issuedAt,
	})
	if err != nil {
		return nil, false, err
	}

	uploadCtx, cancel := context.WithTimeout(ctx, boundedTimeout(s.Cfg.Storage.UploadTimeout, 30*time.Second))
	started := time.Now()
	obj, err := s.Store.Put(uploadCtx, certificatePrefix, artifact, ".png", util.MimePNG)
	cancel()
	monitoring.ArtifactUploadDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		logger.Log.Error("Failed to upload certificate artifact",
			zap.String("certificateId", certID),
			zap.Error(err))
		return nil, false, util.Transient(err)
	}

	cert = &model.Certificate{
		StudentID:      studentID,
		CourseID:       courseID,
		CertificateID:  certID,
		Marks:          elig.Average,
		CertificateURL: obj.URL,
		ContentDigest:  obj.Digest,
		IssuedAt:       issuedAt,
	}
	if err = s.Certificates.Create(ctx, cert); err != nil {
		if !repository.IsDuplicateKey(err) {
			// 已上传的文件成为孤儿，重试时会生成新的证书
			logger.Log.Error("Failed to insert certificate",
				zap.String("certificateId", certID),
				zap.String("key", obj.Key),
				zap.Error(err))
			return nil, false, util.Transient(err)
		}
		return s.resolveRace(ctx, studentID, courseID, obj)
	}

	monitoring.CertificateIssues.WithLabelValues("created").Inc()
	logger.Log.Info("Certificate issued",
		zap.String("certificateId", cert.CertificateID),
		zap.String("studentId", studentID),
		zap.String("courseId", courseID),
		zap.Float64("marks", cert.Marks))

	s.notify(ctx, student, course, cert)
	return cert, true, nil
}

// resolveRace 并发签发落败：读取胜出的证书，丢弃本次上传的文件
func (s *CertificateService) resolveRace(ctx context.Context, studentID, courseID string, obj *StoredObject) (*model.Certificate, bool, error) {
	winner, err := s.Certificates.FindByStudentCourse(ctx, studentID, courseID)
	if err != nil {
		return nil, false, util.Transient(err)
	}

	// 内容相同的文件与胜者共用同一个 key，不能删除
	if winner.CertificateURL != obj.URL {
		if derr := s.Store.Delete(ctx, obj.Key); derr != nil {
			logger.Log.Warn("Failed to discard losing certificate artifact",
				zap.String("key", obj.Key),
				zap.Error(derr))
		}
	}

	monitoring.CertificateIssues.WithLabelValues("race").Inc()
	return winner, false, nil
}

func (s *CertificateService) notify(ctx context.Context, student *model.Student, course *model.Course, cert *model.Certificate) {
	go func() {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := s.Notifier.CertificateIssued(nctx, student, course, cert); err != nil {
			logger.Log.Warn("Failed to send certificate notification",
				zap.String("certificateId", cert.CertificateID),
				zap.Error(err))
		}
	}()
}

// CheckEligibility 只读查询资格，与签发使用同一及格线
func (s *CertificateService) CheckEligibility(ctx context.Context, studentID, courseID string) (*Eligibility, error) {
	if _, _, err := s.loadParties(ctx, studentID, courseID); err != nil {
		return nil, err
	}
	return s.Eligibility.Evaluate(ctx, studentID, courseID)
}

func (s *CertificateService) Get(ctx context.Context, studentID, courseID string) (*model.Certificate, error) {
	cert, err := s.Certificates.FindByStudentCourse(ctx, studentID, courseID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrCertificateNotFound
		}
		return nil, util.Transient(err)
	}
	return cert, nil
}

func (s *CertificateService) ListByStudent(ctx context.Context, studentID string) ([]model.Certificate, error) {
	if _, err := s.Students.FindByID(ctx, studentID); err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrStudentNotFound
		}
		return nil, util.Transient(err)
	}

	certs, err := s.Certificates.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, util.Transient(err)
	}
	return certs, nil
}
