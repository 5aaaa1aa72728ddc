package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opencourse/exam-service/internal/services"
	"github.com/opencourse/exam-service/internal/utils"
)

type NotificationHandler struct {
	BaseHandler
	notificationService services.NotificationEventService
}

func NewNotificationHandler(notificationService services.NotificationEventService, logger utils.Logger) *NotificationHandler {
	return &NotificationHandler{
		BaseHandler:         NewBaseHandler(logger),
		notificationService: notificationService,
	}
}

type bulkNotificationRequest struct {
	UserIDs      []string                     `json:"user_ids" binding:"required,min=1"`
	Notification services.NotificationRequest `json:"notification" binding:"required"`
}

// SendBulkNotification publishes an operator-initiated broadcast
// @Summary Send bulk notification
// @Description Publishes a notification event addressed to the given users
// @Tags notifications
// @Accept json
// @Produce json
// @Param request body bulkNotificationRequest true "Broadcast payload"
// @Success 202 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /notifications/bulk [post]
func (h *NotificationHandler) SendBulkNotification(c *gin.Context) {
	var req bulkNotificationRequest
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

	h.LogRequest(c, "Sending bulk notification", "recipients", len(req.UserIDs), "sent_by", actor.ID)

	if err := h.notificationService.SendBulkNotification(c.Request.Context(), req.UserIDs, &req.Notification); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, SuccessResponse{Message: "Notification queued"})
}
