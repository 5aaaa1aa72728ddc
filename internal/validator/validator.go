package validator

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/opencourse/exam-service/internal/models"
)

// Validator handles struct and business rule validation for requests.
type Validator struct {
	validate *validator.Validate
}

// ValidationError represents a single field validation failure
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
	Rule    string      `json:"rule,omitempty"`
}

type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	if len(ve) == 1 {
		return fmt.Sprintf("validation failed: %s %s", ve[0].Field, ve[0].Message)
	}
	return fmt.Sprintf("validation failed: %d field errors", len(ve))
}

// New creates a validator with the exam business rules registered.
func New() *Validator {
	v := &Validator{validate: validator.New()}
	v.registerBusinessRules()
	return v
}

// Validate validates any struct against its tags
func (v *Validator) Validate(s interface{}) ValidationErrors {
	err := v.validate.Struct(s)
	if err != nil {
		return v.toValidationErrors(err)
	}
	return nil
}

// ValidateExamCreate validates exam creation business rules
func (v *Validator) ValidateExamCreate(req *ExamCreateRequest) ValidationErrors {
	var errors ValidationErrors

	errors = append(errors, v.Validate(req)...)
	errors = append(errors, v.validateExamRules(req.ScheduledAt, req.Deadline, req.Questions)...)

	return errors
}

// ValidateExamUpdate validates exam update business rules
func (v *Validator) ValidateExamUpdate(req *ExamUpdateRequest, existing *models.Exam) ValidationErrors {
	var errors ValidationErrors

	errors = append(errors, v.Validate(req)...)

	scheduledAt := existing.ScheduledAt
	if req.ScheduledAt != nil {
		scheduledAt = *req.ScheduledAt
	}
	deadline := existing.Deadline
	if req.Deadline != nil {
		deadline = req.Deadline
	}
	if deadline != nil && !deadline.After(scheduledAt) {
		errors = append(errors, ValidationError{
			Field:   "deadline",
			Message: "must be after the scheduled start",
			Value:   deadline,
			Rule:    "business_logic",
		})
	}

	// Published exams keep their grading contract stable.
	if existing.IsPublished {
		if req.PassingScore != nil && *req.PassingScore != existing.PassingScore {
			errors = append(errors, ValidationError{
				Field:   "passing_score",
				Message: "cannot be changed for published exams",
				Value:   *req.PassingScore,
				Rule:    "business_logic",
			})
		}
		if req.MaxAttempts != nil && *req.MaxAttempts < existing.MaxAttempts {
			errors = append(errors, ValidationError{
				Field:   "max_attempts",
				Message: "cannot be lowered for published exams",
				Value:   *req.MaxAttempts,
				Rule:    "business_logic",
			})
		}
	}

	return errors
}

// ValidateSubmit validates a submit request's answer set
func (v *Validator) ValidateSubmit(req *SubmitRequest) ValidationErrors {
	var errors ValidationErrors

	errors = append(errors, v.Validate(req)...)

	seen := make(map[uint]bool, len(req.Answers))
	for i, ans := range req.Answers {
		if seen[ans.QuestionID] {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("answers[%d].question_id", i),
				Message: "duplicate answer for question",
				Value:   ans.QuestionID,
				Rule:    "business_logic",
			})
		}
		seen[ans.QuestionID] = true
	}

	return errors
}

// registerBusinessRules registers custom business rule validators
func (v *Validator) registerBusinessRules() {
	// Duration validation (5-300 minutes)
	v.validate.RegisterValidation("exam_duration", func(fl validator.FieldLevel) bool {
		duration := fl.Field().Int()
		return duration >= 5 && duration <= 300
	})

	// Passing score validation (0-100)
	v.validate.RegisterValidation("passing_score", func(fl validator.FieldLevel) bool {
		score := fl.Field().Int()
		return score >= 0 && score <= 100
	})

	// Max attempts validation (1-10)
	v.validate.RegisterValidation("max_attempts", func(fl validator.FieldLevel) bool {
		attempts := fl.Field().Int()
		return attempts >= 1 && attempts <= 10
	})

	// Title validation (1-200 characters)
	v.validate.RegisterValidation("exam_title", func(fl validator.FieldLevel) bool {
		title := strings.TrimSpace(fl.Field().String())
		return len(title) >= 1 && len(title) <= 200
	})

	// Description validation (max 1000 characters)
	v.validate.RegisterValidation("exam_description", func(fl validator.FieldLevel) bool {
		desc := fl.Field().String()
		return len(desc) <= 1000
	})

	// Date validation (must be in future)
	v.validate.RegisterValidation("future_date", func(fl validator.FieldLevel) bool {
		field := fl.Field()

		if field.Kind() == reflect.Ptr && field.IsNil() {
			return true // Optional field
		}

		var t time.Time
		if field.Kind() == reflect.Ptr {
			t = field.Elem().Interface().(time.Time)
		} else {
			t = field.Interface().(time.Time)
		}

		return t.After(time.Now())
	})

	// Points range validation
	v.validate.RegisterValidation("points_range", func(fl validator.FieldLevel) bool {
		points := fl.Field().Int()
		return points >= 1 && points <= 100
	})

	// Question type validation
	v.validate.RegisterValidation("question_type", func(fl validator.FieldLevel) bool {
		qType := models.QuestionType(fl.Field().String())
		switch qType {
		case models.MultipleChoice, models.TrueFalse, models.ShortAnswer, models.Essay:
			return true
		}
		return false
	})

	// Difficulty level validation
	v.validate.RegisterValidation("difficulty_level", func(fl validator.FieldLevel) bool {
		level := models.DifficultyLevel(fl.Field().String())
		switch level {
		case models.DifficultyEasy, models.DifficultyMedium, models.DifficultyHard:
			return true
		}
		return false
	})

	// Exam mode validation
	v.validate.RegisterValidation("exam_mode", func(fl validator.FieldLevel) bool {
		mode := models.ExamMode(fl.Field().String())
		return mode == models.ModeDigital || mode == models.ModePaperBased
	})
}

// validateExamRules validates cross-field rules shared by create and update
func (v *Validator) validateExamRules(scheduledAt time.Time, deadline *time.Time, questions []QuestionRequest) ValidationErrors {
	var errors ValidationErrors

	if deadline != nil && !deadline.After(scheduledAt) {
		errors = append(errors, ValidationError{
			Field:   "deadline",
			Message: "must be after the scheduled start",
			Value:   deadline,
			Rule:    "business_logic",
		})
	}

	// Options are a multiple-choice concern; no other type carries them or
	// is auto-graded.
	for i, q := range questions {
		if q.Type == models.MultipleChoice {
			correct := 0
			for _, opt := range q.Options {
				if opt.IsCorrect {
					correct++
				}
			}
			if len(q.Options) < 2 {
				errors = append(errors, ValidationError{
					Field:   fmt.Sprintf("questions[%d].options", i),
					Message: "must have at least 2 options",
					Value:   len(q.Options),
					Rule:    "business_logic",
				})
			}
			if correct != 1 {
				errors = append(errors, ValidationError{
					Field:   fmt.Sprintf("questions[%d].options", i),
					Message: "must have exactly one correct option",
					Value:   correct,
					Rule:    "business_logic",
				})
			}
		}
	}

	return errors
}

// toValidationErrors converts validator.ValidationErrors into our format
func (v *Validator) toValidationErrors(err error) ValidationErrors {
	var errors ValidationErrors

	if fieldErrors, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range fieldErrors {
			errors = append(errors, ValidationError{
				Field:   fe.Field(),
				Message: v.getErrorMessage(fe),
				Value:   fe.Value(),
				Rule:    fe.Tag(),
			})
		}
		return errors
	}

	return ValidationErrors{{Field: "request", Message: err.Error(), Rule: "invalid"}}
}

// getErrorMessage returns user-friendly error messages
func (v *Validator) getErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", err.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", err.Param())
	case "exam_duration":
		return "must be between 5 and 300 minutes"
	case "passing_score":
		return "must be between 0 and 100"
	case "max_attempts":
		return "must be between 1 and 10"
	case "exam_title":
		return "must be between 1 and 200 characters"
	case "exam_description":
		return "must not exceed 1000 characters"
	case "future_date":
		return "must be in the future"
	case "points_range":
		return "must be between 1 and 100"
	case "question_type":
		return "must be a valid question type"
	case "difficulty_level":
		return "must be easy, medium, or hard"
	case "exam_mode":
		return "must be digital or paper_based"
	default:
		return fmt.Sprintf("validation failed for rule '%s'", err.Tag())
	}
}
