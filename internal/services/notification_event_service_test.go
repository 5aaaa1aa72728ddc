package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opencourse/exam-service/internal/events"
	"github.com/opencourse/exam-service/internal/models"
	"github.com/opencourse/exam-service/internal/validator"
)

func newNotificationServiceForTest() (*notificationEventService, *events.MockEventPublisher) {
	logger := testLogger()
	mockPublisher := events.NewMockEventPublisher(logger)
	service := &notificationEventService{
		repo:           newMockRepository(),
		eventPublisher: mockPublisher,
		logger:         logger,
		validator:      validator.New(),
	}
	return service, mockPublisher
}

func TestNotificationEventService_PublishEvents(t *testing.T) {
	ctx := context.Background()
	service, mockPublisher := newNotificationServiceForTest()

	t.Run("NotifyExamScheduled", func(t *testing.T) {
		mockPublisher.ClearEvents()

		exam := &models.Exam{
			ID:          5,
			CourseID:    10,
			Title:       "Final",
			ScheduledAt: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
			Duration:    60,
		}

		if err := service.NotifyExamScheduled(ctx, exam, []string{"s1", "s2"}); err != nil {
			t.Fatalf("Failed to publish scheduled notification: %v", err)
		}

		published := mockPublisher.GetPublishedEvents()
		if len(published) != 1 {
			t.Fatalf("Expected 1 event, got %d", len(published))
		}
		if published[0].Type != events.EventExamScheduled {
			t.Errorf("Expected event type %q, got %q", events.EventExamScheduled, published[0].Type)
		}

		payload, ok := published[0].Data.(*events.ExamScheduledEvent)
		if !ok {
			t.Fatalf("Expected ExamScheduledEvent payload, got %T", published[0].Data)
		}
		if payload.ExamID != 5 || payload.CourseID != 10 {
			t.Errorf("Unexpected payload ids: %+v", payload)
		}
		if len(payload.StudentIDs) != 2 {
			t.Errorf("Expected 2 recipients, got %d", len(payload.StudentIDs))
		}
	})

	t.Run("NotifyExamScheduled_NoRecipients", func(t *testing.T) {
		mockPublisher.ClearEvents()

		exam := &models.Exam{ID: 5, CourseID: 10, Title: "Final"}
		if err := service.NotifyExamScheduled(ctx, exam, nil); err != nil {
			t.Fatalf("Empty fan-out should be a no-op: %v", err)
		}
		if published := mockPublisher.GetPublishedEvents(); len(published) != 0 {
			t.Errorf("Expected no events for empty recipient list, got %d", len(published))
		}
	})

	t.Run("NotifyExamResult", func(t *testing.T) {
		mockPublisher.ClearEvents()

		exam := &models.Exam{ID: 5, CourseID: 10, Title: "Final"}
		submission := &models.Submission{
			ID:         77,
			ExamID:     5,
			StudentID:  "s1",
			Score:      8,
			Percentage: 80,
			Passed:     true,
		}

		if err := service.NotifyExamResult(ctx, exam, submission); err != nil {
			t.Fatalf("Failed to publish result notification: %v", err)
		}

		published := mockPublisher.GetPublishedEvents()
		if len(published) != 1 {
			t.Fatalf("Expected 1 event, got %d", len(published))
		}
		if published[0].Type != events.EventExamResult {
			t.Errorf("Expected event type %q, got %q", events.EventExamResult, published[0].Type)
		}

		payload, ok := published[0].Data.(*events.ExamResultEvent)
		if !ok {
			t.Fatalf("Expected ExamResultEvent payload, got %T", published[0].Data)
		}
		if payload.SubmissionID != 77 || payload.StudentID != "s1" || !payload.Passed {
			t.Errorf("Unexpected payload: %+v", payload)
		}
	})

	t.Run("SendBulkNotification", func(t *testing.T) {
		mockPublisher.ClearEvents()

		userIDs := []string{"s1", "s2", "s3"}
		notification := &NotificationRequest{
			Kind:     models.NotificationExamScheduled,
			Title:    "Test Notification",
			Message:  "This is a test message",
			Priority: models.PriorityHigh,
		}

		if err := service.SendBulkNotification(ctx, userIDs, notification); err != nil {
			t.Fatalf("Failed to send bulk notification: %v", err)
		}

		published := mockPublisher.GetPublishedEvents()
		if len(published) != 1 {
			t.Fatalf("Expected 1 event, got %d", len(published))
		}
		if published[0].Type != events.EventBulkNotification {
			t.Errorf("Expected event type %q, got %q", events.EventBulkNotification, published[0].Type)
		}

		payload, ok := published[0].Data.(*events.BulkNotificationEvent)
		if !ok {
			t.Fatalf("Expected BulkNotificationEvent payload, got %T", published[0].Data)
		}
		if len(payload.UserIDs) != 3 || payload.Priority != string(models.PriorityHigh) {
			t.Errorf("Unexpected payload: %+v", payload)
		}
	})

	t.Run("SendBulkNotification_DefaultsPriority", func(t *testing.T) {
		mockPublisher.ClearEvents()

		notification := &NotificationRequest{
			Kind:    models.NotificationExamResult,
			Title:   "Results ready",
			Message: "Your exam was graded",
		}

		if err := service.SendBulkNotification(ctx, []string{"s1"}, notification); err != nil {
			t.Fatalf("Failed to send notification: %v", err)
		}

		published := mockPublisher.GetPublishedEvents()
		payload := published[0].Data.(*events.BulkNotificationEvent)
		if payload.Priority != string(models.PriorityNormal) {
			t.Errorf("Expected default priority %q, got %q", models.PriorityNormal, payload.Priority)
		}
	})

	t.Run("SendBulkNotification_RejectsInvalid", func(t *testing.T) {
		mockPublisher.ClearEvents()

		notification := &NotificationRequest{
			Kind:    models.NotificationExamScheduled,
			Message: "missing title",
		}

		err := service.SendBulkNotification(ctx, []string{"s1"}, notification)
		var validationErrors ValidationErrors
		if !errors.As(err, &validationErrors) {
			t.Fatalf("Expected validation error, got %v", err)
		}
		if published := mockPublisher.GetPublishedEvents(); len(published) != 0 {
			t.Errorf("Invalid notification must not publish, got %d events", len(published))
		}
	})

	t.Run("Event_Structure_Validation", func(t *testing.T) {
		mockPublisher.ClearEvents()

		notification := &NotificationRequest{
			Kind:     models.NotificationExamScheduled,
			Title:    "Exam Scheduled",
			Message:  "Your exam starts in 2 hours",
			Priority: models.PriorityNormal,
		}

		if err := service.SendBulkNotification(ctx, []string{"s1"}, notification); err != nil {
			t.Fatalf("Failed to send notification: %v", err)
		}

		published := mockPublisher.GetPublishedEvents()
		if len(published) != 1 {
			t.Fatalf("Expected 1 event, got %d", len(published))
		}

		event := published[0]
		if event.ID == "" {
			t.Error("Event ID should not be empty")
		}
		if event.Source != "exam-service" {
			t.Errorf("Expected source 'exam-service', got '%s'", event.Source)
		}
		if event.Version != "1.0" {
			t.Errorf("Expected version '1.0', got '%s'", event.Version)
		}
		if event.Timestamp.IsZero() {
			t.Error("Event timestamp should not be zero")
		}
	})
}

// Integration test example (would require actual Kafka)
func TestNotificationEventService_KafkaIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	// This test would require a running Kafka instance
	// You could use testcontainers-go to spin up Kafka for integration testing

	t.Log("Integration test would:")
	t.Log("1. Start Kafka container")
	t.Log("2. Create KafkaEventPublisher")
	t.Log("3. Publish events")
	t.Log("4. Verify events are received by consumer")
	t.Log("5. Cleanup Kafka container")
}

func BenchmarkNotificationEventService_PublishEvent(b *testing.B) {
	service, _ := newNotificationServiceForTest()
	ctx := context.Background()

	userIDs := []string{"s1", "s2", "s3"}
	notification := &NotificationRequest{
		Kind:     models.NotificationExamScheduled,
		Title:    "Benchmark Test",
		Message:  "Benchmark message",
		Priority: models.PriorityNormal,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := service.SendBulkNotification(ctx, userIDs, notification); err != nil {
			b.Fatalf("Failed to send notification: %v", err)
		}
	}
}
