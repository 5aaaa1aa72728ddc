package validator

import (
	"encoding/json"
	"time"

	"github.com/opencourse/exam-service/internal/models"
)

// ExamCreateRequest represents the request structure for creating exams
type ExamCreateRequest struct {
	Title            string            `json:"title" validate:"required,exam_title"`
	Description      *string           `json:"description" validate:"omitempty,exam_description"`
	CourseID         uint              `json:"course_id" validate:"required"`
	TargetOrgID      *string           `json:"target_org_id"`
	Duration         int               `json:"duration" validate:"required,exam_duration"`
	TotalPoints      *int              `json:"total_points" validate:"omitempty,min=1"`
	PassingScore     *int              `json:"passing_score" validate:"omitempty,passing_score"`
	MaxAttempts      *int              `json:"max_attempts" validate:"omitempty,max_attempts"`
	ScheduledAt      time.Time         `json:"scheduled_at" validate:"required"`
	Deadline         *time.Time        `json:"deadline"`
	ShuffleQuestions bool              `json:"shuffle_questions"`
	Mode             models.ExamMode   `json:"mode" validate:"omitempty,exam_mode"`
	Questions        []QuestionRequest `json:"questions" validate:"omitempty,dive"`

	// SlotID pins the exam to a specific authority slot instead of matching
	// one by the scheduled time.
	SlotID *uint `json:"slot_id"`
}

// ExamUpdateRequest represents the request structure for updating exams
type ExamUpdateRequest struct {
	Title            *string            `json:"title" validate:"omitempty,exam_title"`
	Description      *string            `json:"description" validate:"omitempty,exam_description"`
	TargetOrgID      *string            `json:"target_org_id"`
	Duration         *int               `json:"duration" validate:"omitempty,exam_duration"`
	TotalPoints      *int               `json:"total_points" validate:"omitempty,min=1"`
	PassingScore     *int               `json:"passing_score" validate:"omitempty,passing_score"`
	MaxAttempts      *int               `json:"max_attempts" validate:"omitempty,max_attempts"`
	ScheduledAt      *time.Time         `json:"scheduled_at"`
	Deadline         *time.Time         `json:"deadline"`
	ShuffleQuestions *bool              `json:"shuffle_questions"`
	Mode             *models.ExamMode   `json:"mode" validate:"omitempty,exam_mode"`

	// IsPublished only transitions false to true; publishing through an
	// update triggers the same fan-out as the publish endpoint.
	IsPublished *bool `json:"is_published"`

	// SlotID rebinds the exam to a specific authority slot.
	SlotID *uint `json:"slot_id"`

	Questions *[]QuestionRequest `json:"questions" validate:"omitempty,dive"`
}

// QuestionRequest represents a question within an exam create/update request
type QuestionRequest struct {
	Type       models.QuestionType    `json:"type" validate:"required,question_type"`
	Text       string                 `json:"text" validate:"required,min=1,max=2000"`
	Options    []models.Option        `json:"options" validate:"omitempty,dive"`
	Points     int                    `json:"points" validate:"required,points_range"`
	Position   int                    `json:"position" validate:"omitempty,min=0"`
	Difficulty models.DifficultyLevel `json:"difficulty" validate:"omitempty,difficulty_level"`
}

// AnswerRequest is a single answer in submission order
type AnswerRequest struct {
	QuestionID uint            `json:"question_id" validate:"required"`
	Answer     json.RawMessage `json:"answer" validate:"required"`
}

// SubmitRequest represents the request structure for submitting an exam.
// Answers keep client order; position is implied by index.
type SubmitRequest struct {
	Answers   []AnswerRequest `json:"answers" validate:"dive"`
	TimeSpent *int            `json:"time_spent" validate:"omitempty,min=0"`
}
