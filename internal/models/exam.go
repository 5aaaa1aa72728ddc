package models

import (
	"time"

	"gorm.io/gorm"
)

type ExamMode string

const (
	ModeDigital    ExamMode = "digital"
	ModePaperBased ExamMode = "paper_based"
)

const (
	// DefaultTotalPoints is used when an exam is created without questions
	// and without an explicit point total.
	DefaultTotalPoints = 100

	DefaultPassingScore = 70
	DefaultMaxAttempts  = 1
)

// Exam is a gradable assessment instance bound to a course. Exams created by
// an authority actor double as reservable slots that subordinate
// organizations bind their own exam instances to.
type Exam struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	Title       string  `json:"title" gorm:"not null;size:200;index" validate:"required,min=1,max=200"`
	Description *string `json:"description" gorm:"type:text" validate:"omitempty,max=1000"`

	CourseID uint `json:"course_id" gorm:"not null;index"`

	// TargetOrgID is nil when the exam is open to any organization.
	TargetOrgID *string `json:"target_org_id" gorm:"size:255;index"`

	Duration     int        `json:"duration" gorm:"not null" validate:"required,min=5,max=300"` // minutes
	TotalPoints  int        `json:"total_points" gorm:"not null;default:100"`
	PassingScore int        `json:"passing_score" gorm:"not null;default:70" validate:"min=0,max=100"`
	MaxAttempts  int        `json:"max_attempts" gorm:"not null;default:1" validate:"min=1,max=10"`
	ScheduledAt  time.Time  `json:"scheduled_at" gorm:"not null;index"`
	Deadline     *time.Time `json:"deadline"`

	IsPublished      bool     `json:"is_published" gorm:"not null;default:false;index"`
	ShuffleQuestions bool     `json:"shuffle_questions" gorm:"not null;default:false"`
	Mode             ExamMode `json:"mode" gorm:"not null;default:digital" validate:"omitempty,oneof=digital paper_based"`

	// Metadata
	CreatedBy   string         `json:"created_by" gorm:"not null;index;size:255"`
	CreatorRole UserRole       `json:"creator_role" gorm:"not null;size:32"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Questions []Question `json:"questions" gorm:"foreignKey:ExamID;constraint:OnDelete:CASCADE"`
}

func (Exam) TableName() string {
	return "exams"
}

// OpenToAnyOrganization reports whether any subordinate organization may
// bind to this exam when it acts as a slot.
func (e *Exam) OpenToAnyOrganization() bool {
	return e.TargetOrgID == nil
}

// Targets reports whether the exam is reserved for the given organization.
// Open exams target every organization.
func (e *Exam) Targets(orgID string) bool {
	return e.TargetOrgID == nil || *e.TargetOrgID == orgID
}

// AuthoredByAuthority reports whether the exam was created by a
// central-authority actor, i.e. whether it can serve as a slot.
func (e *Exam) AuthoredByAuthority() bool {
	return e.CreatorRole == RoleAuthority || e.CreatorRole == RoleAdmin
}

// SumQuestionPoints returns the point total across all questions.
func (e *Exam) SumQuestionPoints() int {
	total := 0
	for _, q := range e.Questions {
		total += q.Points
	}
	return total
}
