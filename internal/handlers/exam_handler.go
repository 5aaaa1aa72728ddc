package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opencourse/exam-service/internal/repositories"
	"github.com/opencourse/exam-service/internal/services"
	"github.com/opencourse/exam-service/internal/utils"
	"github.com/opencourse/exam-service/internal/validator"
)

type ExamHandler struct {
	BaseHandler
	examService   services.ExamService
	exportService services.ExportService
	validator     *validator.Validator
}

func NewExamHandler(
	examService services.ExamService,
	exportService services.ExportService,
	validator *validator.Validator,
	logger utils.Logger,
) *ExamHandler {
	return &ExamHandler{
		BaseHandler:   NewBaseHandler(logger),
		examService:   examService,
		exportService: exportService,
		validator:     validator,
	}
}

// CreateExam creates a new exam
// @Summary Create exam
// @Description Creates a new exam with the provided details
// @Tags exams
// @Accept json
// @Produce json
// @Param exam body services.CreateExamRequest true "Exam data"
// @Success 201 {object} services.ExamResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /exams [post]
func (h *ExamHandler) CreateExam(c *gin.Context) {
	var req services.CreateExamRequest
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

	h.LogRequest(c, "Creating exam", "course_id", req.CourseID, "created_by", actor.ID)

	exam, err := h.examService.Create(c.Request.Context(), &req, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, exam)
}

// GetExam retrieves an exam by ID
// @Summary Get exam
// @Description Retrieves an exam by its ID, with questions
// @Tags exams
// @Produce json
// @Param id path uint true "Exam ID"
// @Success 200 {object} services.ExamResponse
// @Failure 404 {object} ErrorResponse
// @Router /exams/{id} [get]
func (h *ExamHandler) GetExam(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	actor := h.currentUser(c)
	if actor == nil {
		return
	}

	exam, err := h.examService.GetByID(c.Request.Context(), id, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, exam)
}

// UpdateExam updates an existing exam
// @Summary Update exam
// @Description Updates an existing exam with the provided details
// @Tags exams
// @Accept json
// @Produce json
// @Param id path uint true "Exam ID"
// @Param exam body services.UpdateExamRequest true "Exam update data"
// @Success 200 {object} services.ExamResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /exams/{id} [put]
func (h *ExamHandler) UpdateExam(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.UpdateExamRequest
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

	h.LogRequest(c, "Updating exam", "exam_id", id, "updated_by", actor.ID)

	exam, err := h.examService.Update(c.Request.Context(), id, &req, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, exam)
}

// DeleteExam deletes an exam
// @Summary Delete exam
// @Description Deletes an exam by ID
// @Tags exams
// @Produce json
// @Param id path uint true "Exam ID"
// @Success 200 {object} SuccessResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /exams/{id} [delete]
func (h *ExamHandler) DeleteExam(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	actor := h.currentUser(c)
	if actor == nil {
		return
	}

	h.LogRequest(c, "Deleting exam", "exam_id", id, "deleted_by", actor.ID)

	if err := h.examService.Delete(c.Request.Context(), id, actor); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Exam deleted successfully"})
}

// PublishExam publishes an exam and notifies enrolled students
// @Summary Publish exam
// @Description Makes the exam visible to students; publishing is one-way and idempotent
// @Tags exams
// @Produce json
// @Param id path uint true "Exam ID"
// @Success 200 {object} services.ExamResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /exams/{id}/publish [post]
func (h *ExamHandler) PublishExam(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	actor := h.currentUser(c)
	if actor == nil {
		return
	}

	h.LogRequest(c, "Publishing exam", "exam_id", id, "published_by", actor.ID)

	exam, err := h.examService.Publish(c.Request.Context(), id, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, exam)
}

// ListExams lists exams visible to the actor
// @Summary List exams
// @Description Lists exams with optional filters and pagination
// @Tags exams
// @Produce json
// @Param course_id query uint false "Filter by course"
// @Param is_published query bool false "Filter by published state"
// @Param page query int false "Page number (default 1)"
// @Param size query int false "Page size (default 20)"
// @Param sort_by query string false "Sort field: scheduled_at, created_at, title"
// @Param sort_order query string false "Sort order: asc, desc"
// @Success 200 {object} services.ExamListResponse
// @Failure 403 {object} ErrorResponse
// @Router /exams [get]
func (h *ExamHandler) ListExams(c *gin.Context) {
	actor := h.currentUser(c)
	if actor == nil {
		return
	}

	filters := h.parseExamFilters(c)

	result, err := h.examService.List(c.Request.Context(), filters, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListCourseExams lists published exams for a course
// @Summary List course exams
// @Description Lists published exams scheduled for the given course
// @Tags exams
// @Produce json
// @Param course_id path uint true "Course ID"
// @Success 200 {object} SuccessResponse
// @Router /exams/course/{course_id} [get]
func (h *ExamHandler) ListCourseExams(c *gin.Context) {
	courseID := h.parseIDParam(c, "course_id")
	if courseID == 0 {
		return
	}

	exams, err := h.examService.ListByCourse(c.Request.Context(), courseID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"exams": exams,
		"total": len(exams),
	})
}

// ListMyExams lists the student's exams with availability status
// @Summary List my exams
// @Description Lists exams across the student's active courses with a computed availability status each
// @Tags exams
// @Produce json
// @Success 200 {object} SuccessResponse
// @Router /exams/my-exams [get]
func (h *ExamHandler) ListMyExams(c *gin.Context) {
	actor := h.currentUser(c)
	if actor == nil {
		return
	}

	exams, err := h.examService.ListForStudent(c.Request.Context(), actor.ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"exams": exams,
		"total": len(exams),
	})
}

// ExportResults exports exam results as an xlsx workbook
// @Summary Export exam results
// @Description Renders every submission for the exam as a downloadable spreadsheet
// @Tags exams
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path uint true "Exam ID"
// @Success 200 {file} binary
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /exams/{id}/results/export [get]
func (h *ExamHandler) ExportResults(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	actor := h.currentUser(c)
	if actor == nil {
		return
	}

	h.LogRequest(c, "Exporting exam results", "exam_id", id, "exported_by", actor.ID)

	data, filename, err := h.exportService.ExportResults(c.Request.Context(), id, actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

func (h *ExamHandler) parseExamFilters(c *gin.Context) repositories.ExamFilters {
	filters := repositories.ExamFilters{
		SortBy:    c.DefaultQuery("sort_by", "scheduled_at"),
		SortOrder: c.DefaultQuery("sort_order", "desc"),
	}

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

	if courseID := h.parseIntQuery(c, "course_id", 0); courseID > 0 {
		id := uint(courseID)
		filters.CourseID = &id
	}
	if published := c.Query("is_published"); published != "" {
		value := published == "true"
		filters.IsPublished = &value
	}
	if from := c.Query("scheduled_from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filters.ScheduledFrom = &t
		}
	}
	if to := c.Query("scheduled_to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filters.ScheduledTo = &t
		}
	}

	return filters
}
