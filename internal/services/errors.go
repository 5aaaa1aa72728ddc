package services

import (
	"errors"
	"fmt"

	"github.com/opencourse/exam-service/internal/validator"
)

// Sentinel errors returned by the services. Handlers map these onto HTTP
// status codes.
var (
	// Exam errors
	ErrExamNotFound       = errors.New("exam not found")
	ErrExamNotPublished   = errors.New("exam not published")
	ErrExamAlreadyStarted = errors.New("exam cannot be modified after submissions exist")
	ErrCourseNotFound     = errors.New("course not found")

	// Slot authorization errors
	ErrNoAuthoritySlot = errors.New("no authority slot covers this exam time")

	// Submission errors
	ErrSubmissionNotFound  = errors.New("submission not found")
	ErrSubmissionNotActive = errors.New("submission is not in progress")
	ErrSubmissionConflict  = errors.New("submission already finalized")
	ErrAttemptsExhausted   = errors.New("maximum attempts exhausted")
	ErrExamNotAvailable    = errors.New("exam is not available")
	ErrSubmissionExpired   = errors.New("submission time has expired")
	ErrStudentNotEnrolled  = errors.New("student not enrolled in course")
)

// ValidationErrors re-exports the validator's error list so callers only
// depend on the services package.
type ValidationErrors = validator.ValidationErrors

// NewValidationError builds a single-field validation failure.
func NewValidationError(field, message string) ValidationErrors {
	return ValidationErrors{{Field: field, Message: message, Rule: "business_logic"}}
}

// PermissionError carries the denied action's context for the handler layer.
type PermissionError struct {
	UserID     string
	ResourceID uint
	Resource   string
	Action     string
	Reason     string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %s cannot %s %s %d: %s",
		e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// BusinessRuleError signals a domain rule violation that is neither a
// validation failure nor a permission problem.
type BusinessRuleError struct {
	Rule    string
	Message string
	Context map[string]interface{}
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule %s violated: %s", e.Rule, e.Message)
}

func NewBusinessRuleError(rule, message string, context map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    rule,
		Message: message,
		Context: context,
	}
}
