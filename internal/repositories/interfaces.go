package repositories

import (
	"context"
	"time"

	"github.com/opencourse/exam-service/internal/models"
)

// ===== FILTERS =====

type ExamFilters struct {
	CourseID      *uint      `json:"course_id"`
	CreatedBy     *string    `json:"created_by"`
	IsPublished   *bool      `json:"is_published"`
	ScheduledFrom *time.Time `json:"scheduled_from"`
	ScheduledTo   *time.Time `json:"scheduled_to"`

	// VisibleTo restricts the result set to what an organization actor may
	// see. Applied inside the query so counts stay consistent with pages.
	VisibleTo *ExamVisibility `json:"-"`

	Limit     int    `json:"limit"`
	Offset    int    `json:"offset"`
	SortBy    string `json:"sort_by"`    // "scheduled_at", "created_at", "title"
	SortOrder string `json:"sort_order"` // "asc", "desc"
}

// ExamVisibility names an organization actor for visibility filtering: it
// matches published exams, exams the actor created, exams whose target
// organization is the actor's (or open), and exams on courses the actor
// instructs.
type ExamVisibility struct {
	ActorID string
	OrgID   string
}

type SubmissionFilters struct {
	Status    *models.SubmissionStatus `json:"status"`
	StudentID *string                  `json:"student_id"`
	ExamID    *uint                    `json:"exam_id"`
	Limit     int                      `json:"limit"`
	Offset    int                      `json:"offset"`
}

// ===== EXAM DOMAIN =====

type ExamRepository interface {
	Create(ctx context.Context, exam *models.Exam) error
	GetByID(ctx context.Context, id uint) (*models.Exam, error)
	GetByIDWithQuestions(ctx context.Context, id uint) (*models.Exam, error)
	Update(ctx context.Context, exam *models.Exam) error
	Delete(ctx context.Context, id uint) error

	List(ctx context.Context, filters ExamFilters) ([]*models.Exam, int64, error)
	ListByCourse(ctx context.Context, courseID uint, publishedOnly bool) ([]*models.Exam, error)
	ListByCourses(ctx context.Context, courseIDs []uint, publishedOnly bool) ([]*models.Exam, error)

	// ListAuthoritySlots returns exams authored by an authority actor for
	// the course, the candidate slot set for organization binding.
	ListAuthoritySlots(ctx context.Context, courseID uint) ([]*models.Exam, error)

	// ReplaceQuestions swaps the exam's question set atomically.
	ReplaceQuestions(ctx context.Context, examID uint, questions []models.Question) error
}

type QuestionRepository interface {
	GetByExam(ctx context.Context, examID uint) ([]*models.Question, error)
}

// ===== SUBMISSION DOMAIN =====

type SubmissionRepository interface {
	// Create inserts a new submission. Inserting a second in_progress row
	// for the same (exam, student) pair violates the partial unique index
	// and surfaces as ErrDuplicate.
	Create(ctx context.Context, submission *models.Submission) error

	GetByID(ctx context.Context, id uint) (*models.Submission, error)
	GetActive(ctx context.Context, examID uint, studentID string) (*models.Submission, error)
	GetLatest(ctx context.Context, examID uint, studentID string) (*models.Submission, error)

	// CountByExamAndStudent counts all attempts for the pair. forUpdate
	// takes a row-level lock so the count stays stable for the duration of
	// the surrounding transaction.
	CountByExamAndStudent(ctx context.Context, examID uint, studentID string, forUpdate bool) (int, error)

	// MarkSubmitted transitions an in_progress submission to its terminal
	// state with its grades in one conditional update; returns ErrNotFound
	// when the submission is no longer in_progress (lost submit race).
	MarkSubmitted(ctx context.Context, submission *models.Submission, answers []models.Answer) error

	// MarkExpired transitions an overdue in_progress submission to expired;
	// returns ErrNotFound when someone else got there first.
	MarkExpired(ctx context.Context, id uint) error

	ListByStudent(ctx context.Context, examID uint, studentID string) ([]*models.Submission, error)
	ListByExam(ctx context.Context, examID uint, filters SubmissionFilters) ([]*models.Submission, int64, error)
	Delete(ctx context.Context, id uint) error
}

// ===== READ-ONLY COLLABORATORS =====

type CourseRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Course, error)
	ListByInstructor(ctx context.Context, instructorID string) ([]*models.Course, error)
}

type EnrollmentRepository interface {
	// ActiveStudents returns student ids with an active enrollment in the
	// course, the fan-out audience for publish notifications.
	ActiveStudents(ctx context.Context, courseID uint) ([]string, error)
	ActiveCourses(ctx context.Context, studentID string) ([]uint, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.User, error)
}
