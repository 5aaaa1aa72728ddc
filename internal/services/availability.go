package services

import (
	"time"

	"github.com/opencourse/exam-service/internal/models"
)

type availabilityResolver struct{}

// NewAvailabilityResolver returns the pure status resolver used by student
// listing screens.
func NewAvailabilityResolver() AvailabilityResolver {
	return &availabilityResolver{}
}

// Resolve derives the display status for a student and an exam. Total and
// deterministic: every input combination yields exactly one status.
//
// latest is the student's most recent submission, or nil when none exists.
// attemptCount is the number of submissions the student has made so far.
func (r *availabilityResolver) Resolve(exam *models.Exam, latest *models.Submission, attemptCount int, now time.Time) models.AvailabilityStatus {
	if latest != nil {
		switch latest.Status {
		case models.SubmissionInProgress:
			return models.AvailabilityInProgress
		case models.SubmissionSubmitted, models.SubmissionGraded:
			if latest.Passed {
				return models.AvailabilityCompleted
			}
			return models.AvailabilityFailed
		case models.SubmissionExpired:
			// An expired attempt burns one try; if none remain the exam is
			// failed, otherwise fall through to the timing rules.
			if attemptCount >= exam.MaxAttempts {
				return models.AvailabilityFailed
			}
		}
	}

	if now.Before(exam.ScheduledAt) {
		return models.AvailabilityScheduled
	}
	if exam.Deadline != nil && now.After(*exam.Deadline) {
		return models.AvailabilityFailed
	}
	return models.AvailabilityAvailable
}
