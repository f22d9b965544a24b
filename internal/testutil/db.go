// Package testutil 提供测试用的数据库与种子数据
package testutil

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"coursemart_backend/internal/config"
	"coursemart_backend/internal/model"
	"coursemart_backend/pkg/database"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NewTestDB 在临时目录中创建一个已迁移的 SQLite 数据库
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.InitDB(&config.DatabaseConfig{
		Driver:    "sqlite",
		Path:      filepath.Join(t.TempDir(), "coursemart.db"),
		LogLevel:  "silent",
		TxTimeout: 5 * time.Second,
	}, true)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func SeedStudent(t *testing.T, db *gorm.DB, name string) *model.Student {
	t.Helper()
	s := &model.Student{Name: name, Email: name + "-" + model.GenerateUUID()[:8] + "@example.com"}
	if err := db.Create(s).Error; err != nil {
		t.Fatalf("failed to seed student: %v", err)
	}
	return s
}

func SeedCourse(t *testing.T, db *gorm.DB, title string, price int64) *model.Course {
	t.Helper()
	c := &model.Course{
		Title:          title,
		InstructorName: "Ada Lovelace",
		Price:          price,
		Currency:       "INR",
		TotalVideos:    4,
		Published:      true,
	}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("failed to seed course: %v", err)
	}
	return c
}

// SeedQuiz 创建一个测验，answers 为每道题的正确答案
func SeedQuiz(t *testing.T, db *gorm.DB, courseID string, title string, answers ...string) *model.Quiz {
	t.Helper()
	q := &model.Quiz{CourseID: courseID, Title: title}
	for i, a := range answers {
		q.Questions = append(q.Questions, model.QuizQuestion{
			Content:       fmt.Sprintf("%s question %d", title, i+1),
			Options:       datatypes.JSON(`["a","b","c","d"]`),
			CorrectAnswer: a,
		})
	}
	if err := db.Create(q).Error; err != nil {
		t.Fatalf("failed to seed quiz: %v", err)
	}
	return q
}

// SeedAttempt 直接写入一条作答记录，跳过评分
func SeedAttempt(t *testing.T, db *gorm.DB, studentID string, quiz *model.Quiz, score float64) *model.QuizAttempt {
	t.Helper()
	a := &model.QuizAttempt{
		StudentID:   studentID,
		QuizID:      quiz.ID,
		CourseID:    quiz.CourseID,
		Answers:     datatypes.NewJSONType(map[string]string{}),
		Score:       score,
		SubmittedAt: time.Now(),
	}
	if err := db.Create(a).Error; err != nil {
		t.Fatalf("failed to seed attempt: %v", err)
	}
	return a
}

// SeedEnrollment 直接写入报名记录和花名册
func SeedEnrollment(t *testing.T, db *gorm.DB, studentID, courseID string) *model.Enrollment {
	t.Helper()
	e := &model.Enrollment{
		StudentID: studentID,
		CourseID:  courseID,
		PaymentDetails: model.PaymentDetails{
			PaymentID: "pay_" + model.GenerateUUID()[:12],
			OrderID:   "order_" + model.GenerateUUID()[:12],
			Signature: "seed",
			Amount:    0,
			Currency:  "INR",
			Method:    "seed",
			Status:    model.PaymentCaptured,
		},
		WatchState: datatypes.NewJSONType(model.WatchState{}),
		EnrolledAt: time.Now(),
	}
	if err := db.Create(e).Error; err != nil {
		t.Fatalf("failed to seed enrollment: %v", err)
	}
	if err := db.Create(&model.CourseRoster{CourseID: courseID, StudentID: studentID, AddedAt: time.Now()}).Error; err != nil {
		t.Fatalf("failed to seed roster: %v", err)
	}
	return e
}
