package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opencourse/exam-service/internal/models"
	"github.com/opencourse/exam-service/internal/repositories"
	"github.com/opencourse/exam-service/internal/services"
	"github.com/opencourse/exam-service/internal/utils"
	"github.com/opencourse/exam-service/internal/validator"
)

type SubmissionHandler struct {
	BaseHandler
	submissionService services.SubmissionService
	validator         *validator.Validator
}

func NewSubmissionHandler(
	submissionService services.SubmissionService,
	validator *validator.Validator,
	logger utils.Logger,
) *SubmissionHandler {
	return &SubmissionHandler{
		BaseHandler:       NewBaseHandler(logger),
		submissionService: submissionService,
		validator:         validator,
	}
}

// StartSubmission starts or resumes a submission for an exam
// @Summary Start exam
// @Description Opens a submission for the student; an existing active submission is resumed idempotently
// @Tags submissions
// @Produce json
// @Param id path uint true "Exam ID"
// @Success 200 {object} services.SubmissionResponse "Resumed existing submission"
// @Success 201 {object} services.SubmissionResponse "New submission"
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /exams/{id}/start [post]
func (h *SubmissionHandler) StartSubmission(c *gin.Context) {
	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}

	actor := h.currentUser(c)
	if actor == nil {
		return
	}

	h.LogRequest(c, "Starting submission", "exam_id", examID, "student_id", actor.ID)

	submission, err := h.submissionService.Start(c.Request.Context(), examID, actor.ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	status := http.StatusCreated
	if submission.Resumed {
		status = http.StatusOK
	}
	c.JSON(status, submission)
}

// SubmitExam finalizes and grades the student's active submission
// @Summary Submit exam
// @Description Finalizes the active submission, grades closed questions and stores the result
// @Tags submissions
// @Accept json
// @Produce json
// @Param id path uint true "Exam ID"
// @Param request body services.SubmitRequest true "Submitted answers"
// @Success 200 {object} services.SubmissionResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Router /exams/{id}/submit [put]
func (h *SubmissionHandler) SubmitExam(c *gin.Context) {
	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}

	var req services.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "bad_request",
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	actor := h.currentUser(c)
	if actor == nil {
		return
	}

	h.LogRequest(c, "Submitting exam", "exam_id", examID, "student_id", actor.ID)

	submission, err := h.submissionService.Submit(c.Request.Context(), examID, actor.ID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, submission)
}

// ListMyResults lists the student's own submissions for an exam, most
// recent attempt first. Mounted at /results with /attempts as an alias.
// @Summary List my results
// @Description Lists the student's submissions for the exam with their grades, most recent attempt first
// @Tags submissions
// @Produce json
// @Param id path uint true "Exam ID"
// @Success 200 {object} SuccessResponse
// @Router /exams/{id}/results [get]
func (h *SubmissionHandler) ListMyResults(c *gin.Context) {
	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}

	actor := h.currentUser(c)
	if actor == nil {
		return
	}

	attempts, err := h.submissionService.ListMine(c.Request.Context(), examID, actor.ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"attempts": attempts,
		"total":    len(attempts),
	})
}

// ListSubmissions lists submissions for an exam
// @Summary List exam submissions
// @Description Lists submissions for the exam with optional filters and pagination
// @Tags submissions
// @Produce json
// @Param id path uint true "Exam ID"
// @Param status query string false "Filter by status"
// @Param student_id query string false "Filter by student"
// @Param page query int false "Page number (default 1)"
// @Param size query int false "Page size (default 20)"
// @Success 200 {object} services.SubmissionListResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /exams/{id}/submissions [get]
func (h *SubmissionHandler) ListSubmissions(c *gin.Context) {
	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}

	actor := h.currentUser(c)
	if actor == nil {
		return
	}

	filters := h.parseSubmissionFilters(c)

	result, err := h.submissionService.ListByExam(c.Request.Context(), examID, filters, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetSubmission retrieves a single submission
// @Summary Get submission
// @Description Retrieves a submission with its answers; students only see their own
// @Tags submissions
// @Produce json
// @Param id path uint true "Submission ID"
// @Success 200 {object} services.SubmissionResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /submissions/{id} [get]
func (h *SubmissionHandler) GetSubmission(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	actor := h.currentUser(c)
	if actor == nil {
		return
	}

	submission, err := h.submissionService.GetByID(c.Request.Context(), id, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, submission)
}

func (h *SubmissionHandler) parseSubmissionFilters(c *gin.Context) repositories.SubmissionFilters {
	filters := repositories.SubmissionFilters{}

	page := h.parseIntQuery(c, "page", 1)
	if page < 1 {
		page = 1
	}
	size := h.parseIntQuery(c, "size", 20)
	if size < 1 || size > 100 {
		size = 20
	}
	filters.Limit = size
	filters.Offset = (page - 1) * size

	if status := c.Query("status"); status != "" {
		s := models.SubmissionStatus(status)
		filters.Status = &s
	}
	if studentID := c.Query("student_id"); studentID != "" {
		filters.StudentID = &studentID
	}

	return filters
}
