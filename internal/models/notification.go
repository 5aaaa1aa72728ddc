package models

// NotificationKind identifies what a notification is about. Delivery
// channels are an external collaborator's concern.
type NotificationKind string

const (
	NotificationExamScheduled NotificationKind = "exam_scheduled"
	NotificationExamResult    NotificationKind = "exam_result"
)

type NotificationPriority string

const (
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
)
