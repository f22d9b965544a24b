package model

import (
	"time"

	"gorm.io/datatypes"
)

// swagger:model Quiz
type Quiz struct {
	BaseModel
	CourseID  string         `gorm:"type:varchar(36);not null;index" json:"courseId"`
	Title     string         `gorm:"size:200;not null" json:"title"`
	Order     int            `gorm:"column:sort_order;default:0" json:"order"`
	Questions []QuizQuestion `gorm:"foreignKey:QuizID" json:"questions,omitempty"`
}

func (Quiz) TableName() string {
	return "quizzes"
}

type QuizQuestion struct {
	BaseModel
	QuizID        uint           `gorm:"not null;index" json:"quizId"`
	Content       string         `gorm:"type:text;not null" json:"content"`
	Options       datatypes.JSON `json:"options"`
	CorrectAnswer string         `gorm:"size:255;not null" json:"-"`
}

func (QuizQuestion) TableName() string {
	return "quiz_questions"
}

// QuizAttempt 每个学生每个测验只有一次作答，提交后不可修改
type QuizAttempt struct {
	LedgerModel
	StudentID   string                                `gorm:"type:varchar(36);not null;uniqueIndex:uq_attempt_student_quiz;index:idx_attempt_student_course" json:"studentId"`
	QuizID      uint                                  `gorm:"not null;uniqueIndex:uq_attempt_student_quiz" json:"quizId"`
	CourseID    string                                `gorm:"type:varchar(36);not null;index:idx_attempt_student_course" json:"courseId"`
	Answers     datatypes.JSONType[map[string]string] `json:"answers"`
	Score       float64                               `gorm:"not null" json:"score"`
	SubmittedAt time.Time                             `gorm:"not null" json:"submittedAt"`
}

func (QuizAttempt) TableName() string {
	return "quiz_attempts"
}
