package model

import "time"

// swagger:model Certificate
type Certificate struct {
	LedgerModel
	StudentID      string    `gorm:"type:varchar(36);not null;uniqueIndex:uq_certificate_student_course" json:"studentId"`
	CourseID       string    `gorm:"type:varchar(36);not null;uniqueIndex:uq_certificate_student_course" json:"courseId"`
	CertificateID  string    `gorm:"size:64;not null;index" json:"certificateId"`
	Marks          float64   `gorm:"not null" json:"marks"`
	CertificateURL string    `gorm:"size:512;not null" json:"certificateUrl"`
	ContentDigest  string    `gorm:"size:64;not null" json:"contentDigest"`
	IssuedAt       time.Time `gorm:"not null" json:"issuedAt"`
}

func (Certificate) TableName() string {
	return "certificates"
}
