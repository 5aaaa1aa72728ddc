package repositories

import "context"

// Repository aggregates every sub-repository the services depend on.
type Repository interface {
	// Exam domain
	Exam() ExamRepository
	Question() QuestionRepository

	// Submission domain
	Submission() SubmissionRepository

	// Read-only collaborators
	Course() CourseRepository
	Enrollment() EnrollmentRepository
	User() UserRepository

	// WithTransaction runs fn against a repository bound to a single
	// database transaction; returning an error rolls back.
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}

// RepositoryManager manages repository lifecycle.
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
