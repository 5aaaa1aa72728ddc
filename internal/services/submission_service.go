package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/opencourse/exam-service/internal/models"
	"github.com/opencourse/exam-service/internal/repositories"
	"github.com/opencourse/exam-service/internal/validator"
)

type submissionService struct {
	repo         repositories.Repository
	validator    *validator.Validator
	grading      GradingEngine
	notification NotificationEventService
	logger       *slog.Logger
}

func NewSubmissionService(
	repo repositories.Repository,
	v *validator.Validator,
	grading GradingEngine,
	notification NotificationEventService,
	logger *slog.Logger,
) SubmissionService {
	return &submissionService{
		repo:         repo,
		validator:    v,
		grading:      grading,
		notification: notification,
		logger:       logger,
	}
}

// Start opens a submission for the student. The attempt count and the
// in-progress check run inside one transaction with the count query holding
// row locks; the partial unique index on (exam_id, student_id) where
// status = 'in_progress' backstops the race two concurrent starts can't
// both win.
func (s *submissionService) Start(ctx context.Context, examID uint, studentID string) (*SubmissionResponse, error) {
	exam, err := s.getPublishedExam(ctx, examID)
	if err != nil {
		return nil, err
	}

	if err := s.requireEnrollment(ctx, exam.CourseID, studentID); err != nil {
		return nil, err
	}

	now := time.Now()
	if now.Before(exam.ScheduledAt) {
		return nil, ErrExamNotAvailable
	}
	if exam.Deadline != nil && now.After(*exam.Deadline) {
		return nil, ErrExamNotAvailable
	}

	var result *SubmissionResponse
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		count, err := txRepo.Submission().CountByExamAndStudent(ctx, examID, studentID, true)
		if err != nil {
			return err
		}

		active, err := txRepo.Submission().GetActive(ctx, examID, studentID)
		if err != nil && !repositories.IsNotFoundError(err) {
			return err
		}

		if active != nil {
			// An overdue open submission expires lazily here; the burned
			// attempt stays in the count.
			if now.After(active.WindowEnd(exam)) {
				if err := txRepo.Submission().MarkExpired(ctx, active.ID); err != nil {
					return err
				}
			} else {
				result = s.toResponse(active, exam, now)
				result.Resumed = true
				return nil
			}
		}

		if count >= exam.MaxAttempts {
			return ErrAttemptsExhausted
		}

		submission := &models.Submission{
			ExamID:        examID,
			StudentID:     studentID,
			AttemptNumber: count + 1,
			Status:        models.SubmissionInProgress,
			StartedAt:     now,
		}
		if err := txRepo.Submission().Create(ctx, submission); err != nil {
			return err
		}

		result = s.toResponse(submission, exam, now)
		return nil
	})
	if err != nil {
		// A duplicate-key failure means another call created the in-progress
		// row first; resume it.
		if repositories.IsDuplicateError(err) {
			active, getErr := s.repo.Submission().GetActive(ctx, examID, studentID)
			if getErr == nil {
				resp := s.toResponse(active, exam, now)
				resp.Resumed = true
				return resp, nil
			}
		}
		if errors.Is(err, ErrAttemptsExhausted) {
			return nil, ErrAttemptsExhausted
		}
		return nil, fmt.Errorf("failed to start submission: %w", err)
	}

	s.logger.Info("Submission started",
		"exam_id", examID,
		"student_id", studentID,
		"submission_id", result.Submission.ID,
		"attempt_number", result.Submission.AttemptNumber,
		"resumed", result.Resumed)

	return result, nil
}

// Submit finalizes the student's active submission: grade, stamp timing,
// and transition to submitted in one conditional update. A concurrent
// submit losing the race gets ErrSubmissionConflict, never a double score.
func (s *submissionService) Submit(ctx context.Context, examID uint, studentID string, req *SubmitRequest) (*SubmissionResponse, error) {
	if validationErrors := s.validator.ValidateSubmit(req); len(validationErrors) > 0 {
		return nil, validationErrors
	}

	exam, err := s.getPublishedExam(ctx, examID)
	if err != nil {
		return nil, err
	}

	submission, err := s.repo.Submission().GetActive(ctx, examID, studentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to get active submission: %w", err)
	}

	now := time.Now()
	if now.After(submission.WindowEnd(exam)) {
		if err := s.repo.Submission().MarkExpired(ctx, submission.ID); err != nil && !repositories.IsNotFoundError(err) {
			s.logger.Error("Failed to expire overdue submission",
				"submission_id", submission.ID, "error", err)
		}
		return nil, ErrSubmissionExpired
	}

	questions := make([]*models.Question, len(exam.Questions))
	for i := range exam.Questions {
		questions[i] = &exam.Questions[i]
	}

	if err := s.checkAnswersKnown(req.Answers, questions); err != nil {
		return nil, err
	}

	gradingResult, gradedAnswers, err := s.grading.Grade(exam, questions, req.Answers)
	if err != nil {
		return nil, fmt.Errorf("failed to grade submission: %w", err)
	}

	submission.Status = models.SubmissionSubmitted
	submission.SubmittedAt = &now
	submission.TimeSpent = roundMinutes(now.Sub(submission.StartedAt))
	if req.TimeSpent != nil {
		submission.TimeSpent = *req.TimeSpent
	}
	submission.Score = gradingResult.Score
	submission.Percentage = gradingResult.Percentage
	submission.Passed = gradingResult.Passed

	if err := s.repo.Submission().MarkSubmitted(ctx, submission, gradedAnswers); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSubmissionConflict
		}
		return nil, fmt.Errorf("failed to finalize submission: %w", err)
	}
	submission.Answers = gradedAnswers

	// Result notification is best-effort and runs off the request path; it
	// never blocks or fails the submit.
	go func() {
		notifyCtx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notification.NotifyExamResult(notifyCtx, exam, submission); err != nil {
			s.logger.Error("Failed to publish exam result notification",
				"submission_id", submission.ID, "error", err)
		}
	}()

	s.logger.Info("Submission graded",
		"exam_id", examID,
		"student_id", studentID,
		"submission_id", submission.ID,
		"score", submission.Score,
		"percentage", submission.Percentage,
		"passed", submission.Passed)

	return s.toResponse(submission, exam, now), nil
}

// ===== GET OPERATIONS =====

func (s *submissionService) GetByID(ctx context.Context, id uint, actor *models.User) (*SubmissionResponse, error) {
	submission, err := s.repo.Submission().GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}

	exam, err := s.repo.Exam().GetByID(ctx, submission.ExamID)
	if err != nil && !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	if !s.canView(submission, exam, actor) {
		return nil, NewPermissionError(actor.ID, id, "submission", "read", "not owner or insufficient permissions")
	}

	return s.toResponse(submission, exam, time.Now()), nil
}

// ===== LIST OPERATIONS =====

func (s *submissionService) ListByExam(ctx context.Context, examID uint, filters repositories.SubmissionFilters, actor *models.User) (*SubmissionListResponse, error) {
	exam, err := s.repo.Exam().GetByID(ctx, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	if !s.canViewExamSubmissions(exam, actor) {
		return nil, NewPermissionError(actor.ID, examID, "submission", "list", "not owner or insufficient permissions")
	}

	submissions, total, err := s.repo.Submission().ListByExam(ctx, examID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}

	now := time.Now()
	out := make([]*SubmissionResponse, 0, len(submissions))
	for _, sub := range submissions {
		out = append(out, s.toResponse(sub, exam, now))
	}

	page := 1
	if filters.Limit > 0 {
		page = filters.Offset/filters.Limit + 1
	}

	return &SubmissionListResponse{
		Submissions: out,
		Total:       total,
		Page:        page,
		Size:        filters.Limit,
	}, nil
}

// ListMine returns the student's own submissions for an exam, most recent
// attempt first.
func (s *submissionService) ListMine(ctx context.Context, examID uint, studentID string) ([]*SubmissionResponse, error) {
	exam, err := s.repo.Exam().GetByID(ctx, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	submissions, err := s.repo.Submission().ListByStudent(ctx, examID, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}

	now := time.Now()
	out := make([]*SubmissionResponse, 0, len(submissions))
	for _, sub := range submissions {
		out = append(out, s.toResponse(sub, exam, now))
	}
	return out, nil
}

// ===== HELPERS =====

func (s *submissionService) getPublishedExam(ctx context.Context, examID uint) (*models.Exam, error) {
	exam, err := s.repo.Exam().GetByIDWithQuestions(ctx, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}
	if !exam.IsPublished {
		return nil, ErrExamNotPublished
	}
	return exam, nil
}

func (s *submissionService) requireEnrollment(ctx context.Context, courseID uint, studentID string) error {
	courseIDs, err := s.repo.Enrollment().ActiveCourses(ctx, studentID)
	if err != nil {
		return fmt.Errorf("failed to check enrollment: %w", err)
	}
	if !slices.Contains(courseIDs, courseID) {
		return ErrStudentNotEnrolled
	}
	return nil
}

func (s *submissionService) checkAnswersKnown(answers []AnswerRequest, questions []*models.Question) error {
	known := make(map[uint]bool, len(questions))
	for _, q := range questions {
		known[q.ID] = true
	}
	for _, ans := range answers {
		if !known[ans.QuestionID] {
			return NewValidationError("answers", fmt.Sprintf("question %d does not belong to this exam", ans.QuestionID))
		}
	}
	return nil
}

func (s *submissionService) canView(submission *models.Submission, exam *models.Exam, actor *models.User) bool {
	switch actor.Role {
	case models.RoleAuthority, models.RoleAdmin:
		return true
	case models.RoleStudent:
		return submission.StudentID == actor.ID
	case models.RoleOrganization:
		return exam != nil && exam.CreatedBy == actor.ID
	}
	return false
}

func (s *submissionService) canViewExamSubmissions(exam *models.Exam, actor *models.User) bool {
	if actor.Role == models.RoleAuthority || actor.Role == models.RoleAdmin {
		return true
	}
	return actor.Role == models.RoleOrganization && exam.CreatedBy == actor.ID
}

func (s *submissionService) toResponse(submission *models.Submission, exam *models.Exam, now time.Time) *SubmissionResponse {
	resp := &SubmissionResponse{
		Submission: submission,
		CanSubmit:  submission.Status == models.SubmissionInProgress,
	}
	if exam != nil && submission.Status == models.SubmissionInProgress {
		remaining := submission.WindowEnd(exam).Sub(now)
		if remaining < 0 {
			remaining = 0
			resp.CanSubmit = false
		}
		resp.RemainingSeconds = int(remaining.Seconds())
	}
	return resp
}

func roundMinutes(d time.Duration) int {
	return int(math.Round(d.Minutes()))
}
