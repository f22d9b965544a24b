package model

import "time"

// swagger:model Course
type Course struct {
	UUIDBase
	Title          string `gorm:"size:200;not null" json:"title"`
	InstructorName string `gorm:"size:100" json:"instructorName"`
	// 价格，以最小货币单位计（分/派士）
	Price       int64  `gorm:"not null;default:0" json:"price"`
	Currency    string `gorm:"size:3;not null;default:'INR'" json:"currency"`
	TotalVideos int    `gorm:"not null;default:0" json:"totalVideos"`
	Published   bool   `gorm:"default:true" json:"published"`
}

func (Course) TableName() string {
	return "courses"
}

// CourseRoster 课程花名册，一行代表一个已报名学生
type CourseRoster struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CourseID  string    `gorm:"type:varchar(36);not null;uniqueIndex:uq_roster_course_student" json:"courseId"`
	StudentID string    `gorm:"type:varchar(36);not null;uniqueIndex:uq_roster_course_student" json:"studentId"`
	AddedAt   time.Time `json:"addedAt"`
}

func (CourseRoster) TableName() string {
	return "course_rosters"
}
