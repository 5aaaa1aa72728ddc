package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/opencourse/exam-service/internal/models"
	"github.com/opencourse/exam-service/internal/services"
	"github.com/opencourse/exam-service/internal/utils"
	"github.com/opencourse/exam-service/internal/validator"
)

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// SuccessResponse wraps operation results that have no natural body.
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// BaseHandler carries the helpers shared by all HTTP handlers.
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

// LogRequest logs with the request-scoped logger when one is attached.
func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	utils.LoggerFromContext(c, h.logger).Info(msg, args...)
}

// parseIDParam parses a uint path parameter. A zero return means the
// response has already been written.
func (h *BaseHandler) parseIDParam(c *gin.Context, param string) uint {
	idStr := c.Param(param)
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "bad_request",
			Message: fmt.Sprintf("invalid %s parameter", param),
		})
		return 0
	}
	return uint(id)
}

// parseIntQuery parses an integer query parameter with a fallback.
func (h *BaseHandler) parseIntQuery(c *gin.Context, key string, fallback int) int {
	value := c.Query(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

// currentUser returns the authenticated actor, writing a 401 when the
// auth middleware did not attach one.
func (h *BaseHandler) currentUser(c *gin.Context) *models.User {
	user, err := GetUserFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "User not authenticated",
		})
		return nil
	}
	return user
}

// handleServiceError maps service-layer errors to HTTP status codes.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_failed",
			Message: "Request validation failed",
			Details: validationErrors,
		})
		return
	}

	var permissionErr *services.PermissionError
	if errors.As(err, &permissionErr) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "forbidden",
			Message: permissionErr.Error(),
		})
		return
	}

	var businessErr *services.BusinessRuleError
	if errors.As(err, &businessErr) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "business_rule_violation",
			Message: businessErr.Error(),
			Details: businessErr.Context,
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrExamNotFound),
		errors.Is(err, services.ErrCourseNotFound),
		errors.Is(err, services.ErrSubmissionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, services.ErrNoAuthoritySlot),
		errors.Is(err, services.ErrStudentNotEnrolled):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "forbidden",
			Message: err.Error(),
		})
	case errors.Is(err, services.ErrAttemptsExhausted),
		errors.Is(err, services.ErrSubmissionConflict),
		errors.Is(err, services.ErrSubmissionNotActive),
		errors.Is(err, services.ErrExamNotPublished),
		errors.Is(err, services.ErrExamAlreadyStarted),
		errors.Is(err, services.ErrExamNotAvailable):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "conflict",
			Message: err.Error(),
		})
	case errors.Is(err, services.ErrSubmissionExpired):
		c.JSON(http.StatusGone, ErrorResponse{
			Error:   "expired",
			Message: err.Error(),
		})
	default:
		h.logger.Error("Unhandled service error", "error", err, "path", c.Request.URL.Path)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
	}
}
