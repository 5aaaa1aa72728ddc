package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/opencourse/exam-service/internal/models"
	"github.com/opencourse/exam-service/internal/repositories"
)

type SubmissionPostgreSQL struct {
	db *gorm.DB
}

func NewSubmissionPostgreSQL(db *gorm.DB) repositories.SubmissionRepository {
	return &SubmissionPostgreSQL{db: db}
}

func (s *SubmissionPostgreSQL) Create(ctx context.Context, submission *models.Submission) error {
	if err := s.db.WithContext(ctx).Create(submission).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return repositories.ErrDuplicate
		}
		return fmt.Errorf("failed to create submission: %w", err)
	}
	return nil
}

func (s *SubmissionPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Submission, error) {
	var submission models.Submission
	if err := s.db.WithContext(ctx).
		Preload("Answers").
		First(&submission, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return &submission, nil
}

func (s *SubmissionPostgreSQL) GetActive(ctx context.Context, examID uint, studentID string) (*models.Submission, error) {
	var submission models.Submission
	if err := s.db.WithContext(ctx).
		Where("exam_id = ? AND student_id = ? AND status = ?", examID, studentID, models.SubmissionInProgress).
		First(&submission).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get active submission: %w", err)
	}
	return &submission, nil
}

func (s *SubmissionPostgreSQL) GetLatest(ctx context.Context, examID uint, studentID string) (*models.Submission, error) {
	var submission models.Submission
	if err := s.db.WithContext(ctx).
		Where("exam_id = ? AND student_id = ?", examID, studentID).
		Order("attempt_number DESC").
		First(&submission).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest submission: %w", err)
	}
	return &submission, nil
}

func (s *SubmissionPostgreSQL) CountByExamAndStudent(ctx context.Context, examID uint, studentID string, forUpdate bool) (int, error) {
	query := s.db.WithContext(ctx).Model(&models.Submission{}).
		Where("exam_id = ? AND student_id = ?", examID, studentID)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count submissions: %w", err)
	}
	return int(count), nil
}

func (s *SubmissionPostgreSQL) MarkSubmitted(ctx context.Context, submission *models.Submission, answers []models.Answer) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Conditional update: only an in_progress row may transition. Zero
		// rows affected means a concurrent submit or expiry won the race.
		result := tx.Model(&models.Submission{}).
			Where("id = ? AND status = ?", submission.ID, models.SubmissionInProgress).
			Updates(map[string]interface{}{
				"status":       submission.Status,
				"submitted_at": submission.SubmittedAt,
				"time_spent":   submission.TimeSpent,
				"score":        submission.Score,
				"percentage":   submission.Percentage,
				"passed":       submission.Passed,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to mark submission submitted: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return repositories.ErrNotFound
		}

		for i := range answers {
			answers[i].SubmissionID = submission.ID
		}
		if len(answers) > 0 {
			if err := tx.Create(&answers).Error; err != nil {
				return fmt.Errorf("failed to store answers: %w", err)
			}
		}

		return nil
	})
}

func (s *SubmissionPostgreSQL) MarkExpired(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ? AND status = ?", id, models.SubmissionInProgress).
		Updates(map[string]interface{}{
			"status":       models.SubmissionExpired,
			"submitted_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark submission expired: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (s *SubmissionPostgreSQL) ListByStudent(ctx context.Context, examID uint, studentID string) ([]*models.Submission, error) {
	var submissions []*models.Submission
	if err := s.db.WithContext(ctx).
		Where("exam_id = ? AND student_id = ?", examID, studentID).
		Order("attempt_number DESC").
		Find(&submissions).Error; err != nil {
		return nil, fmt.Errorf("failed to list submissions by student: %w", err)
	}
	return submissions, nil
}

func (s *SubmissionPostgreSQL) ListByExam(ctx context.Context, examID uint, filters repositories.SubmissionFilters) ([]*models.Submission, int64, error) {
	var submissions []*models.Submission
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Submission{}).Where("exam_id = ?", examID)
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.StudentID != nil {
		query = query.Where("student_id = ?", *filters.StudentID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count submissions: %w", err)
	}

	query = query.Order("submitted_at DESC NULLS LAST, started_at DESC")
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Find(&submissions).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list submissions by exam: %w", err)
	}

	return submissions, total, nil
}

func (s *SubmissionPostgreSQL) Delete(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&models.Submission{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete submission: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}
