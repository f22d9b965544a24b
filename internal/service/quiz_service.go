package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"coursemart_backend/internal/model"
	"coursemart_backend/internal/repository"
	"coursemart_backend/internal/util"
	"coursemart_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type QuizService struct {
	Quizzes     QuizStore
	Enrollments EnrollmentStore
}

func NewQuizService(quizzes QuizStore, enrollments EnrollmentStore) *QuizService {
	return &QuizService{Quizzes: quizzes, Enrollments: enrollments}
}

// SubmitAttempt 评分并保存作答，每个学生每个测验只能提交一次
func (s *QuizService) SubmitAttempt(ctx context.Context, sub *QuizSubmission) (*model.QuizAttempt, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	quiz, err := s.Quizzes.FindByID(ctx, sub.QuizID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrQuizNotFound
		}
		return nil, util.Transient(err)
	}

	if _, err := s.Enrollments.FindByStudentCourse(ctx, sub.StudentID, quiz.CourseID); err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrNotEnrolled
		}
		return nil, util.Transient(err)
	}

	attempt := &model.QuizAttempt{
		StudentID:   sub.StudentID,
		QuizID:      quiz.ID,
		CourseID:    quiz.CourseID,
		Answers:     datatypes.NewJSONType(sub.Answers),
		Score:       gradeQuiz(quiz.Questions, sub.Answers),
		SubmittedAt: time.Now(),
	}
	if err := s.Quizzes.CreateAttempt(ctx, attempt); err != nil {
		if repository.IsDuplicateKey(err) {
			return nil, util.ErrAttemptExists
		}
		return nil, util.Transient(err)
	}

	logger.Log.Info("Quiz attempt recorded",
		zap.Uint("quizId", quiz.ID),
		zap.String("studentId", sub.StudentID),
		zap.Float64("score", attempt.Score))
	return attempt, nil
}

// gradeQuiz 答案按问题 ID 匹配，忽略首尾空白和大小写
func gradeQuiz(questions []model.QuizQuestion, answers map[string]string) float64 {
	if len(questions) == 0 {
		return 0
	}
	correct := 0
	for _, q := range questions {
		got, ok := answers[strconv.FormatUint(uint64(q.ID), 10)]
		if ok && strings.EqualFold(strings.TrimSpace(got), strings.TrimSpace(q.CorrectAnswer)) {
			correct++
		}
	}
	return util.Round2(float64(correct) / float64(len(questions)) * 100)
}
