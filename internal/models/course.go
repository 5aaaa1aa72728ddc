package models

import "time"

// Course is a read-only projection owned by the course service; this
// service never writes it.
type Course struct {
	ID           uint   `json:"id" gorm:"primaryKey"`
	Title        string `json:"title" gorm:"not null;size:200"`
	InstructorID string `json:"instructor_id" gorm:"not null;size:255;index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Course) TableName() string {
	return "courses"
}

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentDropped   EnrollmentStatus = "dropped"
)

// Enrollment links a student to a course; read-only here. Publish fan-out
// targets active enrollments only.
type Enrollment struct {
	ID        uint             `json:"id" gorm:"primaryKey"`
	CourseID  uint             `json:"course_id" gorm:"not null;index"`
	StudentID string           `json:"student_id" gorm:"not null;size:255;index"`
	Status    EnrollmentStatus `json:"status" gorm:"not null;default:active;index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}
