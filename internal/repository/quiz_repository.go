package repository

import (
	"context"
	"coursemart_backend/internal/model"

	"gorm.io/gorm"
)

type QuizRepository struct {
	DB *gorm.DB
}

func NewQuizRepository(db *gorm.DB) *QuizRepository {
	return &QuizRepository{DB: db}
}

func (r *QuizRepository) FindByID(ctx context.Context, id uint) (*model.Quiz, error) {
	var q model.Quiz
	err := r.DB.WithContext(ctx).Preload("Questions", func(db *gorm.DB) *gorm.DB {
		return db.Order("id asc")
	}).First(&q, id).Error
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *QuizRepository) ListByCourse(ctx context.Context, courseID string) ([]model.Quiz, error) {
	var qs []model.Quiz
	err := r.DB.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("sort_order asc, id asc").
		Find(&qs).Error
	return qs, err
}

func (r *QuizRepository) ListAttempts(ctx context.Context, studentID, courseID string) ([]model.QuizAttempt, error) {
	var as []model.QuizAttempt
	err := r.DB.WithContext(ctx).
		Where("student_id = ? AND course_id = ?", studentID, courseID).
		Find(&as).Error
	return as, err
}

func (r *QuizRepository) CreateAttempt(ctx context.Context, attempt *model.QuizAttempt) error {
	return r.DB.WithContext(ctx).Create(attempt).Error
}
