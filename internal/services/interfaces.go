package services

import (
	"context"
	"time"

	"github.com/opencourse/exam-service/internal/models"
	"github.com/opencourse/exam-service/internal/repositories"
	"github.com/opencourse/exam-service/internal/validator"
)

// ===== REQUEST/RESPONSE DTOs =====

// Use business validator types
type CreateExamRequest = validator.ExamCreateRequest
type UpdateExamRequest = validator.ExamUpdateRequest
type QuestionRequest = validator.QuestionRequest
type SubmitRequest = validator.SubmitRequest
type AnswerRequest = validator.AnswerRequest

type ExamResponse struct {
	*models.Exam
	CanEdit   bool `json:"can_edit"`
	CanDelete bool `json:"can_delete"`
	CanTake   bool `json:"can_take"`
}

type ExamListResponse struct {
	Exams []*ExamResponse `json:"exams"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Size  int             `json:"size"`
}

// ExamAvailability is a student's view of one exam.
type ExamAvailability struct {
	Exam   *models.Exam              `json:"exam"`
	Status models.AvailabilityStatus `json:"status"`
}

type SubmissionResponse struct {
	*models.Submission
	CanSubmit bool `json:"can_submit"`
	Resumed   bool `json:"resumed,omitempty"`

	// RemainingSeconds is only meaningful while the submission is active.
	RemainingSeconds int `json:"remaining_seconds,omitempty"`
}

type SubmissionListResponse struct {
	Submissions []*SubmissionResponse `json:"submissions"`
	Total       int64                 `json:"total"`
	Page        int                   `json:"page"`
	Size        int                   `json:"size"`
}

// GradingResult is the outcome of grading one answer.
type GradingResult struct {
	QuestionID   uint `json:"question_id"`
	IsCorrect    bool `json:"is_correct"`
	PointsEarned int  `json:"points_earned"`
	MaxPoints    int  `json:"max_points"`
}

// SubmissionGradingResult is the outcome of grading a full submission.
type SubmissionGradingResult struct {
	Score      int             `json:"score"`
	TotalScore int             `json:"total_score"`
	Percentage float64         `json:"percentage"`
	Passed     bool            `json:"passed"`
	Questions  []GradingResult `json:"questions"`
	GradedAt   time.Time       `json:"graded_at"`
}

// NotificationRequest carries an operator-initiated broadcast.
type NotificationRequest struct {
	Kind     models.NotificationKind     `json:"kind" validate:"required"`
	Title    string                      `json:"title" validate:"required,max=200"`
	Message  string                      `json:"message" validate:"required,max=2000"`
	Priority models.NotificationPriority `json:"priority"`
}

// ===== SERVICE INTERFACES =====

type ExamService interface {
	// Core CRUD operations
	Create(ctx context.Context, req *CreateExamRequest, actor *models.User) (*ExamResponse, error)
	GetByID(ctx context.Context, id uint, actor *models.User) (*ExamResponse, error)
	Update(ctx context.Context, id uint, req *UpdateExamRequest, actor *models.User) (*ExamResponse, error)
	Delete(ctx context.Context, id uint, actor *models.User) error

	// List operations
	List(ctx context.Context, filters repositories.ExamFilters, actor *models.User) (*ExamListResponse, error)
	ListByCourse(ctx context.Context, courseID uint) ([]*models.Exam, error)
	ListForStudent(ctx context.Context, studentID string) ([]*ExamAvailability, error)

	// Publish flips the one-way visibility switch and fans out the
	// scheduling notification to enrolled students.
	Publish(ctx context.Context, id uint, actor *models.User) (*ExamResponse, error)
}

// SlotAuthorizer decides whether an actor may schedule an exam at a given
// time for a given course.
type SlotAuthorizer interface {
	// Authorize returns nil when the actor may create or move an exam to
	// the requested time; organization actors additionally get the matched
	// authority slot back.
	Authorize(ctx context.Context, repo repositories.Repository, actor *models.User, courseID uint, scheduledAt time.Time, slotID *uint) (*models.Exam, error)
}

type SubmissionService interface {
	// Start opens a submission for the student, resuming an existing
	// active one idempotently.
	Start(ctx context.Context, examID uint, studentID string) (*SubmissionResponse, error)

	// Submit finalizes the student's active submission and grades it.
	Submit(ctx context.Context, examID uint, studentID string, req *SubmitRequest) (*SubmissionResponse, error)

	// Get operations
	GetByID(ctx context.Context, id uint, actor *models.User) (*SubmissionResponse, error)

	// List operations
	ListByExam(ctx context.Context, examID uint, filters repositories.SubmissionFilters, actor *models.User) (*SubmissionListResponse, error)
	ListMine(ctx context.Context, examID uint, studentID string) ([]*SubmissionResponse, error)
}

// GradingEngine grades submissions. Pure: no storage access.
type GradingEngine interface {
	Grade(exam *models.Exam, questions []*models.Question, answers []AnswerRequest) (*SubmissionGradingResult, []models.Answer, error)
}

// AvailabilityResolver computes a student's availability status for an
// exam. Pure and total: every input combination yields a status.
type AvailabilityResolver interface {
	Resolve(exam *models.Exam, latest *models.Submission, attemptCount int, now time.Time) models.AvailabilityStatus
}

type NotificationEventService interface {
	NotifyExamScheduled(ctx context.Context, exam *models.Exam, studentIDs []string) error
	NotifyExamResult(ctx context.Context, exam *models.Exam, submission *models.Submission) error
	SendBulkNotification(ctx context.Context, userIDs []string, notification *NotificationRequest) error
}

// ExportService renders exam results as downloadable workbooks.
type ExportService interface {
	ExportResults(ctx context.Context, examID uint, actor *models.User) ([]byte, string, error)
}

// ===== SERVICE MANAGER =====

type ServiceManager interface {
	Exam() ExamService
	Submission() SubmissionService
	Notification() NotificationEventService
	Export() ExportService

	// Health and lifecycle
	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
