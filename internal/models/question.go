package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	ShortAnswer    QuestionType = "short_answer"
	Essay          QuestionType = "essay"
)

type DifficultyLevel string

const (
	DifficultyEasy   DifficultyLevel = "easy"
	DifficultyMedium DifficultyLevel = "medium"
	DifficultyHard   DifficultyLevel = "hard"
)

// Question belongs to exactly one exam; ordering is by Position.
type Question struct {
	ID     uint         `json:"id" gorm:"primaryKey"`
	ExamID uint         `json:"exam_id" gorm:"not null;index"`
	Type   QuestionType `json:"type" gorm:"not null;index"`
	Text   string       `json:"text" gorm:"type:text;not null" validate:"required"`

	// Options holds []Option for multiple-choice questions, null otherwise.
	Options datatypes.JSON `json:"options,omitempty" gorm:"type:jsonb"`

	Points     int             `json:"points" gorm:"not null;default:1" validate:"min=1,max=100"`
	Position   int             `json:"position" gorm:"not null;default:0"`
	Difficulty DifficultyLevel `json:"difficulty" gorm:"default:medium;index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Question) TableName() string {
	return "questions"
}

type Option struct {
	Text      string `json:"text" validate:"required"`
	IsCorrect bool   `json:"is_correct"`
}

// DecodedOptions unmarshals the jsonb option list. Non-MCQ questions yield
// an empty slice.
func (q *Question) DecodedOptions() ([]Option, error) {
	if len(q.Options) == 0 {
		return nil, nil
	}
	var opts []Option
	if err := json.Unmarshal(q.Options, &opts); err != nil {
		return nil, err
	}
	return opts, nil
}

// CorrectOptionText returns the text of the option flagged correct, and
// whether one exists. Only meaningful for multiple-choice questions.
func (q *Question) CorrectOptionText() (string, bool) {
	opts, err := q.DecodedOptions()
	if err != nil {
		return "", false
	}
	for _, opt := range opts {
		if opt.IsCorrect {
			return opt.Text, true
		}
	}
	return "", false
}

// AutoGradeable reports whether the grading engine can score this question
// type. Only multiple-choice answers are auto-graded; every other type
// records the answer and scores zero.
func (q *Question) AutoGradeable() bool {
	return q.Type == MultipleChoice
}
