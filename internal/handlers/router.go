package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/opencourse/exam-service/internal/config"
	"github.com/opencourse/exam-service/internal/models"
	"github.com/opencourse/exam-service/internal/repositories"
	"github.com/opencourse/exam-service/internal/services"
	"github.com/opencourse/exam-service/internal/utils"
	"github.com/opencourse/exam-service/internal/validator"
)

type HandlerManager struct {
	examHandler         *ExamHandler
	submissionHandler   *SubmissionHandler
	notificationHandler *NotificationHandler
	authMiddleware      *CasdoorAuthMiddleware
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	validator *validator.Validator,
	logger utils.Logger,
	casdoorConfig config.CasdoorConfig,
	userRepo repositories.UserRepository,
) *HandlerManager {
	authMiddleware := NewCasdoorAuthMiddleware(casdoorConfig, userRepo)

	return &HandlerManager{
		examHandler:         NewExamHandler(serviceManager.Exam(), serviceManager.Export(), validator, logger),
		submissionHandler:   NewSubmissionHandler(serviceManager.Submission(), validator, logger),
		notificationHandler: NewNotificationHandler(serviceManager.Notification(), logger),
		authMiddleware:      authMiddleware,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	// API v1 routes with authentication
	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		exams := v1.Group("/exams")
		{
			// Create/modify exams - authorities and organizations only
			exams.POST("", hm.authMiddleware.RequireRoleMiddleware(models.RoleAuthority, models.RoleOrganization), hm.examHandler.CreateExam)
			exams.PUT("/:id", hm.authMiddleware.RequireRoleMiddleware(models.RoleAuthority, models.RoleOrganization), hm.examHandler.UpdateExam)
			exams.DELETE("/:id", hm.authMiddleware.RequireRoleMiddleware(models.RoleAuthority, models.RoleOrganization), hm.examHandler.DeleteExam)
			exams.POST("/:id/publish", hm.authMiddleware.RequireRoleMiddleware(models.RoleAuthority, models.RoleOrganization), hm.examHandler.PublishExam)

			// Management views - authorities and organizations only
			exams.GET("", hm.authMiddleware.RequireRoleMiddleware(models.RoleAuthority, models.RoleOrganization), hm.examHandler.ListExams)
			exams.GET("/:id/submissions", hm.authMiddleware.RequireRoleMiddleware(models.RoleAuthority, models.RoleOrganization), hm.submissionHandler.ListSubmissions)
			exams.GET("/:id/results/export", hm.authMiddleware.RequireRoleMiddleware(models.RoleAuthority, models.RoleOrganization), hm.examHandler.ExportResults)

			// View exams - all authenticated users
			exams.GET("/:id", hm.examHandler.GetExam)
			exams.GET("/course/:course_id", hm.examHandler.ListCourseExams)

			// Student routes
			exams.GET("/my-exams", hm.authMiddleware.RequireRoleMiddleware(models.RoleStudent), hm.examHandler.ListMyExams)
			exams.POST("/:id/start", hm.authMiddleware.RequireRoleMiddleware(models.RoleStudent), hm.submissionHandler.StartSubmission)
			exams.PUT("/:id/submit", hm.authMiddleware.RequireRoleMiddleware(models.RoleStudent), hm.submissionHandler.SubmitExam)
			exams.GET("/:id/results", hm.authMiddleware.RequireRoleMiddleware(models.RoleStudent), hm.submissionHandler.ListMyResults)
			exams.GET("/:id/attempts", hm.authMiddleware.RequireRoleMiddleware(models.RoleStudent), hm.submissionHandler.ListMyResults)
		}

		submissions := v1.Group("/submissions")
		{
			// Access control is enforced by the service per submission.
			submissions.GET("/:id", hm.submissionHandler.GetSubmission)
		}

		notifications := v1.Group("/notifications")
		{
			notifications.POST("/bulk", hm.authMiddleware.RequireRoleMiddleware(models.RoleAuthority), hm.notificationHandler.SendBulkNotification)
		}
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "exam-service",
		})
	})
}
