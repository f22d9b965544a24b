package service

import (
	"context"

	"coursemart_backend/internal/util"
)

type EligibilityStatus string

const (
	EligibilityEligible   EligibilityStatus = "eligible"
	EligibilityIneligible EligibilityStatus = "ineligible"
	EligibilityIncomplete EligibilityStatus = "incomplete"
)

// Eligibility 证书资格评估结果
type Eligibility struct {
	Status    EligibilityStatus `json:"status"`
	Average   float64           `json:"average"`
	Attempted int               `json:"attempted"`
	Required  int               `json:"required"`
	Threshold float64           `json:"threshold"`
}

// Err 不满足资格时返回 *util.EligibilityError
func (e *Eligibility) Err() error {
	switch e.Status {
	case EligibilityIncomplete:
		return &util.EligibilityError{Reason: util.ErrIncomplete, Attempted: e.Attempted, Required: e.Required}
	case EligibilityIneligible:
		return &util.EligibilityError{Reason: util.ErrIneligible, Average: e.Average, Attempted: e.Attempted, Required: e.Required}
	}
	return nil
}

// EligibilityService 只读：根据课程测验与学生作答计算平均分
type EligibilityService struct {
	Quizzes   QuizStore
	Threshold float64
}

func NewEligibilityService(quizzes QuizStore, threshold float64) *EligibilityService {
	return &EligibilityService{Quizzes: quizzes, Threshold: threshold}
}

func (s *EligibilityService) Evaluate(ctx context.Context, studentID, courseID string) (*Eligibility, error) {
	quizzes, err := s.Quizzes.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, util.Transient(err)
	}
	if len(quizzes) == 0 {
		return &Eligibility{Status: EligibilityEligible, Average: 100, Threshold: s.Threshold}, nil
	}

	attempts, err := s.Quizzes.ListAttempts(ctx, studentID, courseID)
	if err != nil {
		return nil, util.Transient(err)
	}

	scores := make(map[uint]float64, len(attempts))
	for _, a := range attempts {
		scores[a.QuizID] = a.Score
	}

	var sum float64
	attempted := 0
	for _, q := range quizzes {
		if score, ok := scores[q.ID]; ok {
			sum += score
			attempted++
		}
	}

	result := &Eligibility{
		Attempted: attempted,
		Required:  len(quizzes),
		Threshold: s.Threshold,
	}
	if attempted < len(quizzes) {
		result.Status = EligibilityIncomplete
		return result, nil
	}

	// 用未取整的平均分判断及格，取整只用于展示和存储
	average := sum / float64(len(quizzes))
	result.Average = util.Round2(average)
	if average >= s.Threshold {
		result.Status = EligibilityEligible
	} else {
		result.Status = EligibilityIneligible
	}
	return result, nil
}
