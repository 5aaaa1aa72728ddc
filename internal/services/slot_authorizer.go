package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opencourse/exam-service/internal/models"
	"github.com/opencourse/exam-service/internal/repositories"
)

// SlotTolerance is how far an organization's proposed exam time may drift
// from an authority slot's scheduled time and still bind to it.
const SlotTolerance = 120 * time.Second

type slotAuthorizer struct {
	logger *slog.Logger
}

func NewSlotAuthorizer(logger *slog.Logger) SlotAuthorizer {
	return &slotAuthorizer{logger: logger}
}

// Authorize implements the reservation-binding check: authority actors may
// schedule freely; organization actors must bind to an authority-authored
// slot for the course, either by explicit slot id or by proposing a time
// within SlotTolerance of one. When several slots fall inside the
// tolerance, the closest wins.
func (s *slotAuthorizer) Authorize(ctx context.Context, repo repositories.Repository, actor *models.User, courseID uint, scheduledAt time.Time, slotID *uint) (*models.Exam, error) {
	switch actor.Role {
	case models.RoleAuthority, models.RoleAdmin:
		return nil, nil
	case models.RoleOrganization:
	default:
		return nil, NewPermissionError(actor.ID, courseID, "exam", "create", "insufficient role permissions")
	}

	slots, err := repo.Exam().ListAuthoritySlots(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load authority slots: %w", err)
	}

	org := actor.Organization()

	if slotID != nil {
		for _, slot := range slots {
			if slot.ID == *slotID && slot.Targets(org) {
				return slot, nil
			}
		}
		s.logger.Info("Slot binding denied",
			"actor_id", actor.ID,
			"course_id", courseID,
			"slot_id", *slotID)
		return nil, ErrNoAuthoritySlot
	}

	var best *models.Exam
	var bestDelta time.Duration
	for _, slot := range slots {
		if !slot.Targets(org) {
			continue
		}
		delta := scheduledAt.Sub(slot.ScheduledAt)
		if delta < 0 {
			delta = -delta
		}
		if delta > SlotTolerance {
			continue
		}
		if best == nil || delta < bestDelta {
			best = slot
			bestDelta = delta
		}
	}

	if best == nil {
		s.logger.Info("Slot binding denied, no slot within tolerance",
			"actor_id", actor.ID,
			"course_id", courseID,
			"proposed_time", scheduledAt)
		return nil, ErrNoAuthoritySlot
	}

	return best, nil
}
