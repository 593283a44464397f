package services

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/sahilchouksey/course-market-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestEnrollFreeCourse(t *testing.T) {
	db := setupTestDB(t)
	f := newFixtures(t, db, 0, 0, 3)
	svc := NewEnrollmentService(db)

	enrollment, err := svc.Enroll(t.Context(), f.Student.ID, f.Course.ID)
	require.NoError(t, err)
	assert.Equal(t, f.Student.ID, enrollment.StudentID)
	assert.Equal(t, f.Course.ID, enrollment.CourseID)

	var progressCount int64
	require.NoError(t, db.Model(&model.LessonProgress{}).
		Where("enrollment_id = ?", enrollment.ID).Count(&progressCount).Error)
	assert.Equal(t, int64(3), progressCount)

	// Enrolling twice is a conflict, not a second row.
	_, err = svc.Enroll(t.Context(), f.Student.ID, f.Course.ID)
	assert.ErrorIs(t, err, ErrAlreadyEnrolled)

	var count int64
	require.NoError(t, db.Model(&model.Enrollment{}).
		Where("course_id = ?", f.Course.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestEnrollPaidCourseRejected(t *testing.T) {
	db := setupTestDB(t)
	f := newFixtures(t, db, 500000, 0, 1)
	svc := NewEnrollmentService(db)

	_, err := svc.Enroll(t.Context(), f.Student.ID, f.Course.ID)
	assert.ErrorIs(t, err, ErrCourseNotFree)
}

func TestEnrollUnpublishedCourseRejected(t *testing.T) {
	db := setupTestDB(t)
	f := newFixtures(t, db, 0, 0, 1)
	svc := NewEnrollmentService(db)

	require.NoError(t, db.Model(&model.Course{}).
		Where("id = ?", f.Course.ID).
		UpdateColumn("status", model.CourseStatusDraft).Error)

	_, err := svc.Enroll(t.Context(), f.Student.ID, f.Course.ID)
	assert.ErrorIs(t, err, ErrCourseNotPurchasable)
}

func TestEnrollMissingCourse(t *testing.T) {
	db := setupTestDB(t)
	f := newFixtures(t, db, 0, 0, 1)
	svc := NewEnrollmentService(db)

	_, err := svc.Enroll(t.Context(), f.Student.ID, 0)
	assert.ErrorIs(t, err, ErrCourseNotFound)
}

func TestFindOneScopedToOwner(t *testing.T) {
	db := setupTestDB(t)
	f := newFixtures(t, db, 0, 0, 2)
	svc := NewEnrollmentService(db)

	enrollment, err := svc.Enroll(t.Context(), f.Student.ID, f.Course.ID)
	require.NoError(t, err)

	other := model.User{
		Email:        fmt.Sprintf("other-%s@test.local", uuid.New().String()[:8]),
		PasswordHash: "x",
		Name:         "Other Student",
		Role:         model.RoleStudent,
	}
	require.NoError(t, db.Create(&other).Error)
	t.Cleanup(func() { db.Unscoped().Delete(&model.User{}, other.ID) })

	_, err = svc.FindOne(t.Context(), enrollment.ID, other.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	found, err := svc.FindOne(t.Context(), enrollment.ID, f.Student.ID)
	require.NoError(t, err)
	assert.Len(t, found.LessonProgress, 2)
}

func TestEnrollmentLockKey(t *testing.T) {
	// Distinct pairs must map to distinct lock keys, including IDs past the
	// int32 range, and a swapped pair is not the same key.
	pairs := [][2]uint{
		{1, 2},
		{2, 1},
		{1, 3},
		{2147483648, 7},          // 2^31, would wrap as int32
		{7, 2147483648},
		{3000000000, 3000000001},
	}

	seen := make(map[int64][2]uint, len(pairs))
	for _, p := range pairs {
		key := enrollmentLockKey(p[0], p[1])
		if prev, dup := seen[key]; dup {
			t.Fatalf("pairs %v and %v collide on lock key %d", prev, p, key)
		}
		seen[key] = p
	}

	assert.Equal(t, int64(1<<32|2), enrollmentLockKey(1, 2))
}
