package repository

import (
	"context"
	"coursemart_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EnrollmentRepository struct {
	DB *gorm.DB
}

func NewEnrollmentRepository(db *gorm.DB) *EnrollmentRepository {
	return &EnrollmentRepository{DB: db}
}

func (r *EnrollmentRepository) FindByID(ctx context.Context, id uint) (*model.Enrollment, error) {
	var e model.Enrollment
	if err := r.DB.WithContext(ctx).First(&e, id).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EnrollmentRepository) FindByStudentCourse(ctx context.Context, studentID, courseID string) (*model.Enrollment, error) {
	var e model.Enrollment
	err := r.DB.WithContext(ctx).
		Where("student_id = ? AND course_id = ?", studentID, courseID).
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EnrollmentRepository) FindByPaymentID(ctx context.Context, paymentID string) (*model.Enrollment, error) {
	var e model.Enrollment
	if err := r.DB.WithContext(ctx).Where("payment_id = ?", paymentID).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateWithRoster 在同一事务中写入报名记录并把学生加入课程花名册。
// 报名表上的 (student_id, course_id) 与 payment_id 唯一索引是并发重复回调的最终防线，
// 冲突时整个事务回滚并原样返回错误
func (r *EnrollmentRepository) CreateWithRoster(ctx context.Context, e *model.Enrollment) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(e).Error; err != nil {
			return err
		}

		roster := &model.CourseRoster{
			CourseID:  e.CourseID,
			StudentID: e.StudentID,
			AddedAt:   e.EnrolledAt,
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(roster).Error
	})
}

// UpdateProgress 行锁读取报名记录，交给 mutate 修改后保存
func (r *EnrollmentRepository) UpdateProgress(ctx context.Context, studentID, courseID string, mutate func(*model.Enrollment) error) (*model.Enrollment, error) {
	var e model.Enrollment
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("student_id = ? AND course_id = ?", studentID, courseID).
			First(&e).Error; err != nil {
			return err
		}

		if err := mutate(&e); err != nil {
			return err
		}

		return tx.Model(&e).Updates(map[string]interface{}{
			"progress":    e.Progress,
			"watch_state": e.WatchState,
			"notes":       e.Notes,
			"updated_at":  time.Now(),
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EnrollmentRepository) CountByStudentCourse(ctx context.Context, studentID, courseID string) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Enrollment{}).
		Where("student_id = ? AND course_id = ?", studentID, courseID).
		Count(&count).Error
	return count, err
}
