package repository

import (
	"context"
	"coursemart_backend/internal/model"

	"gorm.io/gorm"
)

type CertificateRepository struct {
	DB *gorm.DB
}

func NewCertificateRepository(db *gorm.DB) *CertificateRepository {
	return &CertificateRepository{DB: db}
}

func (r *CertificateRepository) FindByStudentCourse(ctx context.Context, studentID, courseID string) (*model.Certificate, error) {
	var c model.Certificate
	err := r.DB.WithContext(ctx).
		Where("student_id = ? AND course_id = ?", studentID, courseID).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create 仅插入，证书一旦写入不再修改
func (r *CertificateRepository) Create(ctx context.Context, cert *model.Certificate) error {
	return r.DB.WithContext(ctx).Create(cert).Error
}

func (r *CertificateRepository) ListByStudent(ctx context.Context, studentID string) ([]model.Certificate, error) {
	var cs []model.Certificate
	err := r.DB.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("issued_at desc").
		Find(&cs).Error
	return cs, err
}
