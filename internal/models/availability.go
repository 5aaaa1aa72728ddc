package models

// AvailabilityStatus is a student's current standing for an exam. Exactly
// one status applies at any moment.
type AvailabilityStatus string

const (
	// AvailabilityScheduled: the exam window hasn't opened yet.
	AvailabilityScheduled AvailabilityStatus = "scheduled"

	// AvailabilityAvailable: the student can start an attempt now.
	AvailabilityAvailable AvailabilityStatus = "available"

	// AvailabilityInProgress: the student has an open submission.
	AvailabilityInProgress AvailabilityStatus = "in_progress"

	// AvailabilityCompleted: a graded attempt passed, or no attempts remain
	// and the best one passed.
	AvailabilityCompleted AvailabilityStatus = "completed"

	// AvailabilityFailed: no attempts remain and none passed, or the
	// deadline elapsed without a passing attempt.
	AvailabilityFailed AvailabilityStatus = "failed"
)
