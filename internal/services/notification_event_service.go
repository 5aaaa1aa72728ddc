package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opencourse/exam-service/internal/events"
	"github.com/opencourse/exam-service/internal/models"
	"github.com/opencourse/exam-service/internal/repositories"
	"github.com/opencourse/exam-service/internal/validator"
)

// Kafka topics the service publishes to. Consumers (mail, chat, push) hang
// off these; delivery mechanics are entirely their problem.
const (
	TopicExamEvents    = "exam-events"
	TopicNotifications = "notification-events"
)

// notifyTimeout bounds asynchronous dispatch detached from request contexts.
const notifyTimeout = 5 * time.Second

type notificationEventService struct {
	repo           repositories.Repository
	eventPublisher events.EventPublisher
	logger         *slog.Logger
	validator      *validator.Validator
}

func NewNotificationEventService(
	repo repositories.Repository,
	eventPublisher events.EventPublisher,
	logger *slog.Logger,
	v *validator.Validator,
) NotificationEventService {
	return &notificationEventService{
		repo:           repo,
		eventPublisher: eventPublisher,
		logger:         logger,
		validator:      v,
	}
}

func (s *notificationEventService) NotifyExamScheduled(ctx context.Context, exam *models.Exam, studentIDs []string) error {
	if len(studentIDs) == 0 {
		s.logger.Debug("No enrolled students to notify", "exam_id", exam.ID)
		return nil
	}

	event := events.NewEvent(events.EventExamScheduled, &events.ExamScheduledEvent{
		ExamID:      exam.ID,
		CourseID:    exam.CourseID,
		Title:       exam.Title,
		ScheduledAt: exam.ScheduledAt,
		Duration:    exam.Duration,
		StudentIDs:  studentIDs,
	})

	if err := s.eventPublisher.Publish(ctx, TopicExamEvents, event); err != nil {
		return fmt.Errorf("failed to publish exam scheduled event: %w", err)
	}

	s.logger.Info("Exam scheduled notification published",
		"exam_id", exam.ID,
		"recipients", len(studentIDs))
	return nil
}

func (s *notificationEventService) NotifyExamResult(ctx context.Context, exam *models.Exam, submission *models.Submission) error {
	event := events.NewEvent(events.EventExamResult, &events.ExamResultEvent{
		ExamID:       exam.ID,
		SubmissionID: submission.ID,
		StudentID:    submission.StudentID,
		Score:        submission.Score,
		Percentage:   submission.Percentage,
		Passed:       submission.Passed,
	})

	if err := s.eventPublisher.Publish(ctx, TopicExamEvents, event); err != nil {
		return fmt.Errorf("failed to publish exam result event: %w", err)
	}

	s.logger.Info("Exam result notification published",
		"submission_id", submission.ID,
		"student_id", submission.StudentID)
	return nil
}

func (s *notificationEventService) SendBulkNotification(ctx context.Context, userIDs []string, notification *NotificationRequest) error {
	if validationErrors := s.validator.Validate(notification); len(validationErrors) > 0 {
		return validationErrors
	}

	priority := notification.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}

	event := events.NewEvent(events.EventBulkNotification, &events.BulkNotificationEvent{
		UserIDs:  userIDs,
		Kind:     string(notification.Kind),
		Title:    notification.Title,
		Message:  notification.Message,
		Priority: string(priority),
	})

	if err := s.eventPublisher.Publish(ctx, TopicNotifications, event); err != nil {
		return fmt.Errorf("failed to publish bulk notification: %w", err)
	}

	s.logger.Info("Bulk notification published", "recipients", len(userIDs))
	return nil
}
