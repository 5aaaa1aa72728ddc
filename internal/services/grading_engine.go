package services

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/opencourse/exam-service/internal/models"
)

type gradingEngine struct{}

// NewGradingEngine returns the auto-grading scorer. It is pure: no storage
// or clock access beyond stamping the grading time.
func NewGradingEngine() GradingEngine {
	return &gradingEngine{}
}

// Grade scores the submitted answers against the exam's questions.
//
// Only multiple-choice questions are auto-graded: the submitted value must
// equal the text of the option flagged correct. Every other question type
// records the answer and scores zero. Answers referencing unknown question
// ids are dropped.
func (g *gradingEngine) Grade(exam *models.Exam, questions []*models.Question, answers []AnswerRequest) (*SubmissionGradingResult, []models.Answer, error) {
	byID := make(map[uint]*models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	result := &SubmissionGradingResult{
		TotalScore: exam.TotalPoints,
		GradedAt:   time.Now().UTC(),
	}
	graded := make([]models.Answer, 0, len(answers))

	for _, ans := range answers {
		question, ok := byID[ans.QuestionID]
		if !ok {
			continue
		}

		correct := false
		points := 0
		if question.AutoGradeable() {
			if want, hasCorrect := question.CorrectOptionText(); hasCorrect {
				correct = answerText(ans.Answer) == want
			}
			if correct {
				points = question.Points
			}
		}

		graded = append(graded, models.Answer{
			QuestionID:   ans.QuestionID,
			Value:        datatypes.JSON(ans.Answer),
			IsCorrect:    correct,
			PointsEarned: points,
		})
		result.Questions = append(result.Questions, GradingResult{
			QuestionID:   ans.QuestionID,
			IsCorrect:    correct,
			PointsEarned: points,
			MaxPoints:    question.Points,
		})
		result.Score += points
	}

	// Guard against division by zero on degenerate point totals.
	if exam.TotalPoints > 0 {
		pct := float64(result.Score) / float64(exam.TotalPoints) * 100
		result.Percentage = math.Round(pct*100) / 100
	}
	result.Passed = result.Percentage >= float64(exam.PassingScore)

	return result, graded, nil
}

// answerText extracts the comparable string form of a submitted answer. A
// JSON string unwraps to its value; anything else compares as raw JSON.
func answerText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
