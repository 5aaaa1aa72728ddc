package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/opencourse/exam-service/internal/models"
	"github.com/opencourse/exam-service/internal/repositories"
)

type CoursePostgreSQL struct {
	db *gorm.DB
}

func NewCoursePostgreSQL(db *gorm.DB) repositories.CourseRepository {
	return &CoursePostgreSQL{db: db}
}

func (c *CoursePostgreSQL) GetByID(ctx context.Context, id uint) (*models.Course, error) {
	var course models.Course
	if err := c.db.WithContext(ctx).First(&course, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	return &course, nil
}

func (c *CoursePostgreSQL) ListByInstructor(ctx context.Context, instructorID string) ([]*models.Course, error) {
	var courses []*models.Course
	if err := c.db.WithContext(ctx).
		Where("instructor_id = ?", instructorID).
		Find(&courses).Error; err != nil {
		return nil, fmt.Errorf("failed to list courses by instructor: %w", err)
	}
	return courses, nil
}

type EnrollmentPostgreSQL struct {
	db *gorm.DB
}

func NewEnrollmentPostgreSQL(db *gorm.DB) repositories.EnrollmentRepository {
	return &EnrollmentPostgreSQL{db: db}
}

func (e *EnrollmentPostgreSQL) ActiveStudents(ctx context.Context, courseID uint) ([]string, error) {
	var studentIDs []string
	if err := e.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("course_id = ? AND status = ?", courseID, models.EnrollmentActive).
		Pluck("student_id", &studentIDs).Error; err != nil {
		return nil, fmt.Errorf("failed to list active students: %w", err)
	}
	return studentIDs, nil
}

func (e *EnrollmentPostgreSQL) ActiveCourses(ctx context.Context, studentID string) ([]uint, error) {
	var courseIDs []uint
	if err := e.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("student_id = ? AND status = ?", studentID, models.EnrollmentActive).
		Pluck("course_id", &courseIDs).Error; err != nil {
		return nil, fmt.Errorf("failed to list active courses: %w", err)
	}
	return courseIDs, nil
}
