package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/opencourse/exam-service/internal/cache"
	"github.com/opencourse/exam-service/internal/models"
	"github.com/opencourse/exam-service/internal/repositories"
)

type ExamPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewExamPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.ExamRepository {
	return &ExamPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (e *ExamPostgreSQL) Create(ctx context.Context, exam *models.Exam) error {
	if err := e.db.WithContext(ctx).Create(exam).Error; err != nil {
		return fmt.Errorf("failed to create exam: %w", err)
	}
	return nil
}

func (e *ExamPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Exam, error) {
	var exam models.Exam
	if err := e.db.WithContext(ctx).First(&exam, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}
	return &exam, nil
}

func (e *ExamPostgreSQL) GetByIDWithQuestions(ctx context.Context, id uint) (*models.Exam, error) {
	cacheKey := fmt.Sprintf("id:%d:full", id)
	var exam models.Exam

	err := e.cacheManager.Exam.CacheOrExecute(ctx, cacheKey, &exam, cache.ExamCacheConfig.TTL, func() (interface{}, error) {
		var dbExam models.Exam
		if err := e.db.WithContext(ctx).
			Preload("Questions", func(db *gorm.DB) *gorm.DB {
				return db.Order("position ASC, id ASC")
			}).
			First(&dbExam, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, repositories.ErrNotFound
			}
			return nil, fmt.Errorf("failed to get exam with questions: %w", err)
		}
		return &dbExam, nil
	})
	if err != nil {
		return nil, err
	}

	return &exam, nil
}

func (e *ExamPostgreSQL) Update(ctx context.Context, exam *models.Exam) error {
	if err := e.db.WithContext(ctx).Save(exam).Error; err != nil {
		return fmt.Errorf("failed to update exam: %w", err)
	}
	e.invalidate(ctx, exam.ID)
	return nil
}

func (e *ExamPostgreSQL) Delete(ctx context.Context, id uint) error {
	result := e.db.WithContext(ctx).Delete(&models.Exam{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete exam: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	e.invalidate(ctx, id)
	return nil
}

func (e *ExamPostgreSQL) List(ctx context.Context, filters repositories.ExamFilters) ([]*models.Exam, int64, error) {
	var exams []*models.Exam
	var total int64

	query := e.db.WithContext(ctx).Model(&models.Exam{})
	query = e.applyFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count exams: %w", err)
	}

	query = e.applyPaginationAndSort(query, filters)
	if err := query.Find(&exams).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list exams: %w", err)
	}

	return exams, total, nil
}

func (e *ExamPostgreSQL) ListByCourse(ctx context.Context, courseID uint, publishedOnly bool) ([]*models.Exam, error) {
	var exams []*models.Exam
	query := e.db.WithContext(ctx).Where("course_id = ?", courseID)
	if publishedOnly {
		query = query.Where("is_published = ?", true)
	}
	if err := query.Order("scheduled_at ASC").Find(&exams).Error; err != nil {
		return nil, fmt.Errorf("failed to list exams by course: %w", err)
	}
	return exams, nil
}

func (e *ExamPostgreSQL) ListByCourses(ctx context.Context, courseIDs []uint, publishedOnly bool) ([]*models.Exam, error) {
	if len(courseIDs) == 0 {
		return []*models.Exam{}, nil
	}

	var exams []*models.Exam
	query := e.db.WithContext(ctx).Where("course_id IN ?", courseIDs)
	if publishedOnly {
		query = query.Where("is_published = ?", true)
	}
	if err := query.Order("scheduled_at ASC").Find(&exams).Error; err != nil {
		return nil, fmt.Errorf("failed to list exams by courses: %w", err)
	}
	return exams, nil
}

func (e *ExamPostgreSQL) ListAuthoritySlots(ctx context.Context, courseID uint) ([]*models.Exam, error) {
	var exams []*models.Exam
	if err := e.db.WithContext(ctx).
		Where("course_id = ? AND creator_role IN ?",
			courseID, []models.UserRole{models.RoleAuthority, models.RoleAdmin}).
		Order("scheduled_at ASC").
		Find(&exams).Error; err != nil {
		return nil, fmt.Errorf("failed to list authority slots: %w", err)
	}
	return exams, nil
}

func (e *ExamPostgreSQL) ReplaceQuestions(ctx context.Context, examID uint, questions []models.Question) error {
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("exam_id = ?", examID).Delete(&models.Question{}).Error; err != nil {
			return fmt.Errorf("failed to clear questions: %w", err)
		}
		for i := range questions {
			questions[i].ID = 0
			questions[i].ExamID = examID
		}
		if len(questions) > 0 {
			if err := tx.Create(&questions).Error; err != nil {
				return fmt.Errorf("failed to insert questions: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.invalidate(ctx, examID)
	return nil
}

func (e *ExamPostgreSQL) invalidate(ctx context.Context, examID uint) {
	e.cacheManager.Exam.Delete(ctx, fmt.Sprintf("id:%d:full", examID))
}

func (e *ExamPostgreSQL) applyFilters(query *gorm.DB, filters repositories.ExamFilters) *gorm.DB {
	if filters.CourseID != nil {
		query = query.Where("course_id = ?", *filters.CourseID)
	}
	if filters.CreatedBy != nil {
		query = query.Where("created_by = ?", *filters.CreatedBy)
	}
	if filters.IsPublished != nil {
		query = query.Where("is_published = ?", *filters.IsPublished)
	}
	if filters.ScheduledFrom != nil {
		query = query.Where("scheduled_at >= ?", *filters.ScheduledFrom)
	}
	if filters.ScheduledTo != nil {
		query = query.Where("scheduled_at <= ?", *filters.ScheduledTo)
	}
	if v := filters.VisibleTo; v != nil {
		instructed := e.db.Model(&models.Course{}).Select("id").Where("instructor_id = ?", v.ActorID)
		query = query.Where(
			"is_published = ? OR created_by = ? OR target_org_id IS NULL OR target_org_id = ? OR course_id IN (?)",
			true, v.ActorID, v.OrgID, instructed)
	}
	return query
}

func (e *ExamPostgreSQL) applyPaginationAndSort(query *gorm.DB, filters repositories.ExamFilters) *gorm.DB {
	sortBy := filters.SortBy
	switch sortBy {
	case "scheduled_at", "created_at", "title":
	default:
		sortBy = "scheduled_at"
	}
	order := "ASC"
	if filters.SortOrder == "desc" {
		order = "DESC"
	}
	query = query.Order(fmt.Sprintf("%s %s", sortBy, order))

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}
	return query
}

// QuestionPostgreSQL serves read access to exam questions.
type QuestionPostgreSQL struct {
	db *gorm.DB
}

func NewQuestionPostgreSQL(db *gorm.DB) repositories.QuestionRepository {
	return &QuestionPostgreSQL{db: db}
}

func (q *QuestionPostgreSQL) GetByExam(ctx context.Context, examID uint) ([]*models.Question, error) {
	var questions []*models.Question
	if err := q.db.WithContext(ctx).
		Where("exam_id = ?", examID).
		Order("position ASC, id ASC").
		Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("failed to get questions: %w", err)
	}
	return questions, nil
}
