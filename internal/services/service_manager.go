package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opencourse/exam-service/internal/events"
	"github.com/opencourse/exam-service/internal/repositories"
	"github.com/opencourse/exam-service/internal/validator"
)

// ServiceManagerConfig holds configuration for the service manager
type ServiceManagerConfig struct {
	LogLevel       slog.Level
	DefaultTimeout time.Duration
}

// serviceManager implements ServiceManager
type serviceManager struct {
	// Dependencies
	repo           repositories.Repository
	repoManager    repositories.RepositoryManager
	eventPublisher events.EventPublisher
	logger         *slog.Logger
	validator      *validator.Validator
	config         ServiceManagerConfig

	// Service instances
	examService         ExamService
	submissionService   SubmissionService
	notificationService NotificationEventService
	exportService       ExportService

	// Lifecycle management
	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

// NewServiceManager creates a service manager with all dependencies
func NewServiceManager(
	repoManager repositories.RepositoryManager,
	eventPublisher events.EventPublisher,
	logger *slog.Logger,
	v *validator.Validator,
	config ServiceManagerConfig,
) ServiceManager {
	return &serviceManager{
		repoManager:    repoManager,
		eventPublisher: eventPublisher,
		logger:         logger,
		validator:      v,
		config:         config,
	}
}

// NewDefaultServiceManager creates a service manager with default configuration
func NewDefaultServiceManager(
	repoManager repositories.RepositoryManager,
	eventPublisher events.EventPublisher,
	logger *slog.Logger,
	v *validator.Validator,
) ServiceManager {
	return NewServiceManager(repoManager, eventPublisher, logger, v, ServiceManagerConfig{
		LogLevel:       slog.LevelInfo,
		DefaultTimeout: 30 * time.Second,
	})
}

// Initialize wires up all services and their dependencies
func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}

	sm.logger.Info("Initializing service manager")

	sm.repo = sm.repoManager.GetRepository()
	if sm.repo == nil {
		return fmt.Errorf("repository manager not initialized")
	}

	sm.notificationService = NewNotificationEventService(sm.repo, sm.eventPublisher, sm.logger, sm.validator)

	authorizer := NewSlotAuthorizer(sm.logger)
	availability := NewAvailabilityResolver()
	grading := NewGradingEngine()

	sm.examService = NewExamService(sm.repo, sm.validator, authorizer, availability, sm.notificationService, sm.logger)
	sm.submissionService = NewSubmissionService(sm.repo, sm.validator, grading, sm.notificationService, sm.logger)
	sm.exportService = NewExportService(sm.repo, sm.logger)

	sm.initialized = true
	sm.logger.Info("Service manager initialized successfully")

	return nil
}

// Service getters

func (sm *serviceManager) Exam() ExamService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.examService
}

func (sm *serviceManager) Submission() SubmissionService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.submissionService
}

func (sm *serviceManager) Notification() NotificationEventService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.notificationService
}

func (sm *serviceManager) Export() ExportService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.exportService
}

// Health and lifecycle

func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}
	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}

	if err := sm.repoManager.HealthCheck(ctx); err != nil {
		return fmt.Errorf("repository health check failed: %w", err)
	}

	return nil
}

func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}

	sm.logger.Info("Shutting down service manager")

	if err := sm.eventPublisher.Close(); err != nil {
		sm.logger.Error("Failed to close event publisher", "error", err)
	}

	if err := sm.repoManager.Shutdown(ctx); err != nil {
		sm.logger.Error("Failed to shutdown repository manager", "error", err)
	}

	sm.shutdown = true
	sm.logger.Info("Service manager shut down completed")

	return nil
}
