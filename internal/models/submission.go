package models

import (
	"time"

	"gorm.io/datatypes"
)

type SubmissionStatus string

const (
	SubmissionInProgress SubmissionStatus = "in_progress"
	SubmissionSubmitted  SubmissionStatus = "submitted"
	SubmissionGraded     SubmissionStatus = "graded"
	SubmissionExpired    SubmissionStatus = "expired"
)

// Terminal reports whether the submission can no longer change.
func (s SubmissionStatus) Terminal() bool {
	return s == SubmissionSubmitted || s == SubmissionGraded || s == SubmissionExpired
}

// Submission is one student's attempt record against an exam.
//
// Invariants enforced at the storage layer:
//   - at most one submission per (exam, student) pair may be in_progress,
//     via a partial unique index on (exam_id, student_id) where
//     status = 'in_progress';
//   - AttemptNumber values per pair form a contiguous 1-based sequence,
//     assigned under a row lock inside the start transaction.
type Submission struct {
	ID            uint             `json:"id" gorm:"primaryKey"`
	ExamID        uint             `json:"exam_id" gorm:"not null;index:idx_exam_student"`
	StudentID     string           `json:"student_id" gorm:"not null;size:255;index:idx_exam_student"`
	AttemptNumber int              `json:"attempt_number" gorm:"not null"`
	Status        SubmissionStatus `json:"status" gorm:"not null;default:in_progress;index"`

	// Timing
	StartedAt   time.Time  `json:"started_at" gorm:"not null"`
	SubmittedAt *time.Time `json:"submitted_at"`
	TimeSpent   int        `json:"time_spent"` // minutes, rounded

	// Scoring
	Score      int     `json:"score"`
	Percentage float64 `json:"percentage"`
	Passed     bool    `json:"passed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Exam    Exam     `json:"-" gorm:"foreignKey:ExamID"`
	Answers []Answer `json:"answers" gorm:"foreignKey:SubmissionID;constraint:OnDelete:CASCADE"`
}

func (Submission) TableName() string {
	return "submissions"
}

// Deadline returns the instant the submission's working window closes: start
// time plus exam duration, capped by the exam deadline when one exists.
func (s *Submission) WindowEnd(exam *Exam) time.Time {
	end := s.StartedAt.Add(time.Duration(exam.Duration) * time.Minute)
	if exam.Deadline != nil && exam.Deadline.Before(end) {
		end = *exam.Deadline
	}
	return end
}

// Answer is one graded (or recorded) response inside a submission.
type Answer struct {
	ID           uint `json:"id" gorm:"primaryKey"`
	SubmissionID uint `json:"submission_id" gorm:"not null;index"`
	QuestionID   uint `json:"question_id" gorm:"not null;index"`

	// Value is the raw submitted answer; a JSON string for MCQ/true-false/
	// short-answer, free text for essays.
	Value datatypes.JSON `json:"value" gorm:"type:jsonb"`

	IsCorrect    bool `json:"is_correct"`
	PointsEarned int  `json:"points_earned"`

	CreatedAt time.Time `json:"created_at"`
}

func (Answer) TableName() string {
	return "submission_answers"
}
