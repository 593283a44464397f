package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sahilchouksey/course-market-api/model"
	"gorm.io/gorm"
)

var (
	ErrCourseNotFound       = errors.New("course not found")
	ErrCourseNotPurchasable = errors.New("course is not published")
	ErrCourseNotFree        = errors.New("course requires payment before enrollment")
	ErrAlreadyEnrolled      = errors.New("already enrolled in this course")

	// ErrLockTimeout means a concurrent materialization for the same
	// (student, course) pair held the lock longer than we were willing to
	// wait. Retryable; the holder releases it in milliseconds.
	ErrLockTimeout = errors.New("enrollment temporarily locked, retry")
)

const (
	pgCodeLockNotAvailable = "55P03"
	pgCodeUniqueViolation  = "23505"
)

// EnrollmentService owns enrollment creation. Every enrollment row in the
// system is written through Materialize, either from the free-course
// self-service path or from a payment reaching completed.
type EnrollmentService struct {
	db *gorm.DB
}

// NewEnrollmentService creates a new enrollment service
func NewEnrollmentService(db *gorm.DB) *EnrollmentService {
	return &EnrollmentService{db: db}
}

// Enroll is the free-course self-service path. Paid courses are rejected
// here; they enroll through the payment ledger.
func (s *EnrollmentService) Enroll(ctx context.Context, studentID, courseID uint) (*model.Enrollment, error) {
	var course model.Course
	if err := s.db.WithContext(ctx).First(&course, courseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to load course: %w", err)
	}

	if !course.IsPurchasable() {
		return nil, ErrCourseNotPurchasable
	}
	if course.EffectivePrice() > 0 {
		return nil, ErrCourseNotFree
	}

	var enrollment *model.Enrollment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, already, err := s.Materialize(tx, studentID, courseID)
		if err != nil {
			return err
		}
		if already {
			return ErrAlreadyEnrolled
		}
		enrollment = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return enrollment, nil
}

// Materialize atomically creates an enrollment plus one lesson-progress row
// per lesson the course has right now. It must run inside the caller's
// transaction. The (studentID, courseID) pair is serialized with a
// transaction-scoped advisory lock: acquire (bounded wait), re-check
// existence under the lock, then insert everything in the same atomic unit.
// Two concurrent confirmations for the same purchase are a realistic
// occurrence (IPN racing the return-URL hit), not a hypothetical one.
//
// Returns already=true when the enrollment existed before this call; that is
// success for reconciliation callers, a conflict for the self-service path.
//
// Lessons added to the course after this commit do not get progress rows
// retroactively; backfilling them is the course editor's concern, not this
// path's.
func (s *EnrollmentService) Materialize(tx *gorm.DB, studentID, courseID uint) (enrollment *model.Enrollment, already bool, err error) {
	if err := tx.Exec("SET LOCAL lock_timeout = '5s'").Error; err != nil {
		return nil, false, fmt.Errorf("failed to set lock timeout: %w", err)
	}
	if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", enrollmentLockKey(studentID, courseID)).Error; err != nil {
		if isPgError(err, pgCodeLockNotAvailable) {
			return nil, false, ErrLockTimeout
		}
		return nil, false, fmt.Errorf("failed to acquire enrollment lock: %w", err)
	}

	// Re-check under the lock. The loser of a race lands here after the
	// winner committed.
	var existing model.Enrollment
	findErr := tx.Where("student_id = ? AND course_id = ?", studentID, courseID).First(&existing).Error
	if findErr == nil {
		return &existing, true, nil
	}
	if !errors.Is(findErr, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("failed to check existing enrollment: %w", findErr)
	}

	row := &model.Enrollment{
		StudentID: studentID,
		CourseID:  courseID,
		Status:    model.EnrollmentStatusActive,
	}
	if err := tx.Create(row).Error; err != nil {
		// A writer outside this lock's scope got there first. The student
		// is enrolled either way, which is all the payment was for.
		if isPgError(err, pgCodeUniqueViolation) {
			log.Printf("enrollment already exists for student=%d course=%d, treating as enrolled", studentID, courseID)
			if reloadErr := tx.Where("student_id = ? AND course_id = ?", studentID, courseID).First(&existing).Error; reloadErr != nil {
				return nil, false, fmt.Errorf("failed to reload enrollment after conflict: %w", reloadErr)
			}
			return &existing, true, nil
		}
		return nil, false, fmt.Errorf("failed to create enrollment: %w", err)
	}

	// Snapshot the course's lessons at this instant and seed a not-started
	// progress row for each, in the same transaction as the enrollment.
	// A committed enrollment with a partial progress set must never be
	// observable.
	var lessons []model.Lesson
	if err := tx.Where("course_id = ?", courseID).Order("position ASC").Find(&lessons).Error; err != nil {
		return nil, false, fmt.Errorf("failed to load course lessons: %w", err)
	}

	if len(lessons) > 0 {
		progress := make([]model.LessonProgress, 0, len(lessons))
		for _, lesson := range lessons {
			progress = append(progress, model.LessonProgress{
				EnrollmentID: row.ID,
				LessonID:     lesson.ID,
			})
		}
		if err := tx.Create(&progress).Error; err != nil {
			return nil, false, fmt.Errorf("failed to create lesson progress rows: %w", err)
		}
	}

	if err := tx.Model(&model.Course{}).Where("id = ?", courseID).
		UpdateColumn("enrollment_count", gorm.Expr("enrollment_count + 1")).Error; err != nil {
		return nil, false, fmt.Errorf("failed to bump enrollment count: %w", err)
	}

	return row, false, nil
}

// FindByStudent returns a student's enrollments, newest first.
func (s *EnrollmentService) FindByStudent(ctx context.Context, studentID uint) ([]model.Enrollment, error) {
	var enrollments []model.Enrollment
	err := s.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Preload("Course").
		Order("created_at DESC").
		Find(&enrollments).Error
	return enrollments, err
}

// FindOne returns one enrollment with its progress rows. Students can only
// read their own.
func (s *EnrollmentService) FindOne(ctx context.Context, id, studentID uint) (*model.Enrollment, error) {
	var enrollment model.Enrollment
	err := s.db.WithContext(ctx).
		Preload("Course").
		Preload("LessonProgress").
		Preload("LessonProgress.Lesson").
		First(&enrollment, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, err
	}
	if enrollment.StudentID != studentID {
		return nil, gorm.ErrRecordNotFound
	}
	return &enrollment, nil
}

// IsEnrolled reports whether the student already holds an enrollment for the
// course.
func (s *EnrollmentService) IsEnrolled(ctx context.Context, studentID, courseID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Enrollment{}).
		Where("student_id = ? AND course_id = ?", studentID, courseID).
		Count(&count).Error
	return count > 0, err
}

// enrollmentLockKey packs a (student, course) pair into the single-bigint
// advisory-lock keyspace: student in the high 32 bits, course in the low 32.
// The two-int32 lock form would wrap IDs past 2^31 and collide; this keying
// stays collision-free for IDs up to 2^32.
func enrollmentLockKey(studentID, courseID uint) int64 {
	return int64(uint64(studentID)<<32 | uint64(courseID)&0xffffffff)
}

func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
