package model

import (
	"time"

	"gorm.io/gorm"
)

// EnrollmentStatus is the access state of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentStatusActive    EnrollmentStatus = "active"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
	EnrollmentStatusExpired   EnrollmentStatus = "expired"
	EnrollmentStatusCancelled EnrollmentStatus = "cancelled"
)

// Enrollment is proof a student has access to a course. The
// (student_id, course_id) pair is unique; the constraint plus the in-transaction
// existence check in the materializer are what keep a student from ever being
// enrolled twice.
type Enrollment struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	StudentID uint `gorm:"not null;index;uniqueIndex:idx_enrollments_student_course" json:"student_id"`
	CourseID  uint `gorm:"not null;index;uniqueIndex:idx_enrollments_student_course" json:"course_id"`

	Status   EnrollmentStatus `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	Progress float64          `gorm:"not null;default:0" json:"progress"` // 0-100

	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`

	Student        User             `gorm:"foreignKey:StudentID;constraint:OnDelete:CASCADE" json:"student,omitempty"`
	Course         Course           `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"course,omitempty"`
	LessonProgress []LessonProgress `gorm:"foreignKey:EnrollmentID;constraint:OnDelete:CASCADE" json:"lesson_progress,omitempty"`
}

// TableName specifies the table name for Enrollment
func (Enrollment) TableName() string {
	return "enrollments"
}

// LessonProgress is one row per (enrollment, lesson) pair, created in bulk
// when the enrollment is materialized. Lessons added to a course afterwards
// do not get rows from that path and need a separate backfill.
type LessonProgress struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	EnrollmentID uint `gorm:"not null;index;uniqueIndex:idx_lesson_progress_enrollment_lesson" json:"enrollment_id"`
	LessonID     uint `gorm:"not null;index;uniqueIndex:idx_lesson_progress_enrollment_lesson" json:"lesson_id"`

	IsCompleted  bool       `gorm:"not null;default:false" json:"is_completed"`
	Progress     float64    `gorm:"not null;default:0" json:"progress"` // 0-100
	LastPosition int        `gorm:"not null;default:0" json:"last_position"` // seconds
	CompletedAt  *time.Time `json:"completed_at,omitempty"`

	Enrollment Enrollment `gorm:"foreignKey:EnrollmentID;constraint:OnDelete:CASCADE" json:"-"`
	Lesson     Lesson     `gorm:"foreignKey:LessonID;constraint:OnDelete:CASCADE" json:"lesson,omitempty"`
}

// TableName specifies the table name for LessonProgress
func (LessonProgress) TableName() string {
	return "lesson_progress"
}
