package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"

	"github.com/opencourse/exam-service/internal/models"
	"github.com/opencourse/exam-service/internal/repositories"
	"github.com/opencourse/exam-service/internal/validator"
)

type examService struct {
	repo         repositories.Repository
	validator    *validator.Validator
	authorizer   SlotAuthorizer
	availability AvailabilityResolver
	notification NotificationEventService
	logger       *slog.Logger
}

func NewExamService(
	repo repositories.Repository,
	v *validator.Validator,
	authorizer SlotAuthorizer,
	availability AvailabilityResolver,
	notification NotificationEventService,
	logger *slog.Logger,
) ExamService {
	return &examService{
		repo:         repo,
		validator:    v,
		authorizer:   authorizer,
		availability: availability,
		notification: notification,
		logger:       logger,
	}
}

// ===== CORE CRUD OPERATIONS =====

func (s *examService) Create(ctx context.Context, req *CreateExamRequest, actor *models.User) (*ExamResponse, error) {
	if !models.CanPerform(actor.Role, models.ActionExamCreate) {
		return nil, NewPermissionError(actor.ID, 0, "exam", "create", "insufficient role permissions")
	}

	if validationErrors := s.validator.ValidateExamCreate(req); len(validationErrors) > 0 {
		return nil, validationErrors
	}

	if _, err := s.repo.Course().GetByID(ctx, req.CourseID); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to verify course: %w", err)
	}

	// Organization actors must bind to an authority slot, either by
	// explicit slot id or by proposed time.
	if _, err := s.authorizer.Authorize(ctx, s.repo, actor, req.CourseID, req.ScheduledAt, req.SlotID); err != nil {
		return nil, err
	}

	exam := s.buildExam(req, actor)

	if err := s.repo.Exam().Create(ctx, exam); err != nil {
		return nil, fmt.Errorf("failed to create exam: %w", err)
	}

	s.logger.Info("Exam created",
		"exam_id", exam.ID,
		"course_id", exam.CourseID,
		"created_by", actor.ID,
		"creator_role", actor.Role)

	return s.toResponse(exam, actor), nil
}

func (s *examService) GetByID(ctx context.Context, id uint, actor *models.User) (*ExamResponse, error) {
	exam, err := s.repo.Exam().GetByIDWithQuestions(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	// Students only ever see published exams.
	if actor.Role == models.RoleStudent && !exam.IsPublished {
		return nil, ErrExamNotFound
	}

	return s.toResponse(exam, actor), nil
}

func (s *examService) Update(ctx context.Context, id uint, req *UpdateExamRequest, actor *models.User) (*ExamResponse, error) {
	exam, err := s.repo.Exam().GetByIDWithQuestions(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	if !s.canModify(exam, actor) {
		return nil, NewPermissionError(actor.ID, id, "exam", "update", "not owner or insufficient permissions")
	}

	if validationErrors := s.validator.ValidateExamUpdate(req, exam); len(validationErrors) > 0 {
		return nil, validationErrors
	}

	if req.IsPublished != nil && !*req.IsPublished && exam.IsPublished {
		return nil, NewValidationError("is_published", "publishing is one-way; exams cannot be unpublished")
	}

	// Moving an organization exam, or rebinding it to an explicit slot,
	// re-checks the slot binding.
	if (req.ScheduledAt != nil && !req.ScheduledAt.Equal(exam.ScheduledAt)) || req.SlotID != nil {
		scheduledAt := exam.ScheduledAt
		if req.ScheduledAt != nil {
			scheduledAt = *req.ScheduledAt
		}
		if _, err := s.authorizer.Authorize(ctx, s.repo, actor, exam.CourseID, scheduledAt, req.SlotID); err != nil {
			return nil, err
		}
	}

	wasPublished := exam.IsPublished
	s.applyUpdate(exam, req)

	var questions []models.Question
	if req.Questions != nil {
		questions = s.buildQuestions(*req.Questions)
		exam.TotalPoints = sumPoints(questions)
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if req.Questions != nil {
			if err := txRepo.Exam().ReplaceQuestions(ctx, exam.ID, questions); err != nil {
				return err
			}
			exam.Questions = questions
		}
		return txRepo.Exam().Update(ctx, exam)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update exam: %w", err)
	}

	// Publish transition: false -> true through an update fans out exactly
	// like the publish endpoint.
	if !wasPublished && exam.IsPublished {
		s.fanOutScheduled(exam)
	}

	s.logger.Info("Exam updated", "exam_id", exam.ID, "updated_by", actor.ID)

	return s.toResponse(exam, actor), nil
}

func (s *examService) Delete(ctx context.Context, id uint, actor *models.User) error {
	exam, err := s.repo.Exam().GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrExamNotFound
		}
		return fmt.Errorf("failed to get exam: %w", err)
	}

	if !s.canModify(exam, actor) {
		return NewPermissionError(actor.ID, id, "exam", "delete", "not owner or insufficient permissions")
	}

	// Submissions survive exam deletion; cleaning them up is an
	// administrative operation.
	if err := s.repo.Exam().Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete exam: %w", err)
	}

	s.logger.Info("Exam deleted", "exam_id", id, "deleted_by", actor.ID)
	return nil
}

// ===== LIST OPERATIONS =====

func (s *examService) List(ctx context.Context, filters repositories.ExamFilters, actor *models.User) (*ExamListResponse, error) {
	if !models.CanPerform(actor.Role, models.ActionExamList) {
		return nil, NewPermissionError(actor.ID, 0, "exam", "list", "insufficient role permissions")
	}

	// Visibility runs inside the query so total stays consistent with the
	// page contents.
	switch actor.Role {
	case models.RoleOrganization:
		filters.VisibleTo = &repositories.ExamVisibility{
			ActorID: actor.ID,
			OrgID:   actor.Organization(),
		}
	case models.RoleStudent:
		if filters.IsPublished != nil && !*filters.IsPublished {
			return &ExamListResponse{Exams: []*ExamResponse{}, Page: 1, Size: filters.Limit}, nil
		}
		published := true
		filters.IsPublished = &published
	}

	exams, total, err := s.repo.Exam().List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list exams: %w", err)
	}

	visible := make([]*ExamResponse, 0, len(exams))
	for _, exam := range exams {
		visible = append(visible, s.toResponse(exam, actor))
	}

	page := 1
	if filters.Limit > 0 {
		page = filters.Offset/filters.Limit + 1
	}

	return &ExamListResponse{
		Exams: visible,
		Total: total,
		Page:  page,
		Size:  filters.Limit,
	}, nil
}

func (s *examService) ListByCourse(ctx context.Context, courseID uint) ([]*models.Exam, error) {
	exams, err := s.repo.Exam().ListByCourse(ctx, courseID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list exams by course: %w", err)
	}
	return exams, nil
}

func (s *examService) ListForStudent(ctx context.Context, studentID string) ([]*ExamAvailability, error) {
	courseIDs, err := s.repo.Enrollment().ActiveCourses(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load enrollments: %w", err)
	}

	exams, err := s.repo.Exam().ListByCourses(ctx, courseIDs, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list exams: %w", err)
	}

	now := time.Now()
	out := make([]*ExamAvailability, 0, len(exams))
	for _, exam := range exams {
		latest, err := s.repo.Submission().GetLatest(ctx, exam.ID, studentID)
		if err != nil && !repositories.IsNotFoundError(err) {
			return nil, fmt.Errorf("failed to load submission: %w", err)
		}

		attemptCount := 0
		if latest != nil {
			attemptCount = latest.AttemptNumber
		}

		out = append(out, &ExamAvailability{
			Exam:   exam,
			Status: s.availability.Resolve(exam, latest, attemptCount, now),
		})
	}

	return out, nil
}

// ===== PUBLISH =====

func (s *examService) Publish(ctx context.Context, id uint, actor *models.User) (*ExamResponse, error) {
	exam, err := s.repo.Exam().GetByIDWithQuestions(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	if !s.canModify(exam, actor) {
		return nil, NewPermissionError(actor.ID, id, "exam", "publish", "not owner or insufficient permissions")
	}

	// Publishing is one-way and idempotent: a second publish neither fails
	// nor fans out again.
	if exam.IsPublished {
		return s.toResponse(exam, actor), nil
	}

	exam.IsPublished = true
	if err := s.repo.Exam().Update(ctx, exam); err != nil {
		return nil, fmt.Errorf("failed to publish exam: %w", err)
	}

	s.fanOutScheduled(exam)

	s.logger.Info("Exam published", "exam_id", exam.ID, "published_by", actor.ID)

	return s.toResponse(exam, actor), nil
}

// fanOutScheduled notifies every actively enrolled student. Dispatch runs
// off the request path on a detached context; failures are logged, never
// surfaced, and never block the publish transition.
func (s *examService) fanOutScheduled(exam *models.Exam) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		studentIDs, err := s.repo.Enrollment().ActiveStudents(ctx, exam.CourseID)
		if err != nil {
			s.logger.Error("Failed to load enrolled students for fan-out",
				"exam_id", exam.ID,
				"course_id", exam.CourseID,
				"error", err)
			return
		}

		if err := s.notification.NotifyExamScheduled(ctx, exam, studentIDs); err != nil {
			s.logger.Error("Failed to publish exam scheduled notification",
				"exam_id", exam.ID,
				"error", err)
		}
	}()
}

// ===== HELPERS =====

func (s *examService) buildExam(req *CreateExamRequest, actor *models.User) *models.Exam {
	exam := &models.Exam{
		Title:            req.Title,
		Description:      req.Description,
		CourseID:         req.CourseID,
		TargetOrgID:      req.TargetOrgID,
		Duration:         req.Duration,
		TotalPoints:      models.DefaultTotalPoints,
		PassingScore:     models.DefaultPassingScore,
		MaxAttempts:      models.DefaultMaxAttempts,
		ScheduledAt:      req.ScheduledAt,
		Deadline:         req.Deadline,
		ShuffleQuestions: req.ShuffleQuestions,
		Mode:             models.ModeDigital,
		CreatedBy:        actor.ID,
		CreatorRole:      actor.Role,
	}

	if req.TotalPoints != nil {
		exam.TotalPoints = *req.TotalPoints
	}
	if req.PassingScore != nil {
		exam.PassingScore = *req.PassingScore
	}
	if req.MaxAttempts != nil {
		exam.MaxAttempts = *req.MaxAttempts
	}
	if req.Mode != "" {
		exam.Mode = req.Mode
	}

	// A non-empty question set overrides any explicit total.
	if len(req.Questions) > 0 {
		exam.Questions = s.buildQuestions(req.Questions)
		exam.TotalPoints = sumPoints(exam.Questions)
	}

	return exam
}

func (s *examService) buildQuestions(reqs []QuestionRequest) []models.Question {
	questions := make([]models.Question, 0, len(reqs))
	for i, qr := range reqs {
		q := models.Question{
			Type:       qr.Type,
			Text:       qr.Text,
			Points:     qr.Points,
			Position:   qr.Position,
			Difficulty: qr.Difficulty,
		}
		if q.Points <= 0 {
			q.Points = 1
		}
		if q.Position == 0 {
			q.Position = i
		}
		if q.Difficulty == "" {
			q.Difficulty = models.DifficultyMedium
		}
		if len(qr.Options) > 0 {
			data, err := json.Marshal(qr.Options)
			if err == nil {
				q.Options = datatypes.JSON(data)
			}
		}
		questions = append(questions, q)
	}
	return questions
}

func (s *examService) applyUpdate(exam *models.Exam, req *UpdateExamRequest) {
	if req.Title != nil {
		exam.Title = *req.Title
	}
	if req.Description != nil {
		exam.Description = req.Description
	}
	if req.TargetOrgID != nil {
		exam.TargetOrgID = req.TargetOrgID
	}
	if req.Duration != nil {
		exam.Duration = *req.Duration
	}
	if req.TotalPoints != nil {
		exam.TotalPoints = *req.TotalPoints
	}
	if req.PassingScore != nil {
		exam.PassingScore = *req.PassingScore
	}
	if req.MaxAttempts != nil {
		exam.MaxAttempts = *req.MaxAttempts
	}
	if req.ScheduledAt != nil {
		exam.ScheduledAt = *req.ScheduledAt
	}
	if req.Deadline != nil {
		exam.Deadline = req.Deadline
	}
	if req.ShuffleQuestions != nil {
		exam.ShuffleQuestions = *req.ShuffleQuestions
	}
	if req.Mode != nil {
		exam.Mode = *req.Mode
	}
	if req.IsPublished != nil && *req.IsPublished {
		exam.IsPublished = true
	}
}

func (s *examService) canModify(exam *models.Exam, actor *models.User) bool {
	if actor.Role == models.RoleAuthority || actor.Role == models.RoleAdmin {
		return true
	}
	return exam.CreatedBy == actor.ID && models.CanPerform(actor.Role, models.ActionExamUpdate)
}

func (s *examService) toResponse(exam *models.Exam, actor *models.User) *ExamResponse {
	return &ExamResponse{
		Exam:      exam,
		CanEdit:   s.canModify(exam, actor),
		CanDelete: s.canModify(exam, actor),
		CanTake:   actor.Role == models.RoleStudent && exam.IsPublished,
	}
}

func sumPoints(questions []models.Question) int {
	total := 0
	for _, q := range questions {
		total += q.Points
	}
	return total
}
