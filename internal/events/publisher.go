package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope every message on the bus travels in. Consumers key
// off Type; Data carries the type-specific payload.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

const (
	EventSource  = "exam-service"
	EventVersion = "1.0"
)

// Event types published by this service
const (
	EventExamScheduled    = "exam.scheduled"
	EventExamResult       = "exam.result"
	EventBulkNotification = "system.bulk_notification"
)

// NewEvent wraps a payload in a fresh envelope.
func NewEvent(eventType string, data interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    EventSource,
		Version:   EventVersion,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// EventPublisher publishes events to the message bus.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event *Event) error
	Close() error
}

// ===== EVENT PAYLOADS =====

// ExamScheduledEvent fans out to every actively enrolled student when an
// exam definition is published.
type ExamScheduledEvent struct {
	ExamID      uint      `json:"exam_id"`
	CourseID    uint      `json:"course_id"`
	Title       string    `json:"title"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Duration    int       `json:"duration"`
	StudentIDs  []string  `json:"student_ids"`
}

// ExamResultEvent notifies a single student that grading finished.
type ExamResultEvent struct {
	ExamID       uint    `json:"exam_id"`
	SubmissionID uint    `json:"submission_id"`
	StudentID    string  `json:"student_id"`
	Score        int     `json:"score"`
	Percentage   float64 `json:"percentage"`
	Passed       bool    `json:"passed"`
}

// BulkNotificationEvent carries an operator-initiated broadcast.
type BulkNotificationEvent struct {
	UserIDs  []string `json:"user_ids"`
	Kind     string   `json:"kind"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Priority string   `json:"priority"`
}
