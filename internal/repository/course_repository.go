package repository

import (
	"context"
	"coursemart_backend/internal/model"

	"gorm.io/gorm"
)

type CourseRepository struct {
	DB *gorm.DB
}

func NewCourseRepository(db *gorm.DB) *CourseRepository {
	return &CourseRepository{DB: db}
}

func (r *CourseRepository) FindByID(ctx context.Context, id string) (*model.Course, error) {
	var c model.Course
	if err := r.DB.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CourseRepository) RosterCount(ctx context.Context, courseID string, studentID string) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.CourseRoster{}).
		Where("course_id = ? AND student_id = ?", courseID, studentID).
		Count(&count).Error
	return count, err
}
