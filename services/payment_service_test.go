package services

import (
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sahilchouksey/course-market-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// These tests exercise the ledger and materializer against a real Postgres,
// because the guarantees under test (row locks, advisory locks, unique
// violations) only exist there.
// Set TEST_DATABASE_URL to run, e.g.
//
//	TEST_DATABASE_URL="host=localhost user=postgres password=postgres dbname=coursemarket_test sslmode=disable"
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("Skipping integration test. Set TEST_DATABASE_URL to run")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Category{},
		&model.Course{},
		&model.Lesson{},
		&model.Payment{},
		&model.Enrollment{},
		&model.LessonProgress{},
	))

	return db
}

// testFixtures creates an isolated student/teacher/course triple and removes
// everything it created when the test ends.
type testFixtures struct {
	db      *gorm.DB
	Student model.User
	Course  model.Course
}

func newFixtures(t *testing.T, db *gorm.DB, price, discountPrice int64, lessonCount int) *testFixtures {
	t.Helper()
	tag := uuid.New().String()[:8]

	teacher := model.User{
		Email:        fmt.Sprintf("teacher-%s@test.local", tag),
		PasswordHash: "x",
		Name:         "Test Teacher",
		Role:         model.RoleTeacher,
	}
	require.NoError(t, db.Create(&teacher).Error)

	student := model.User{
		Email:        fmt.Sprintf("student-%s@test.local", tag),
		PasswordHash: "x",
		Name:         "Test Student",
		Role:         model.RoleStudent,
	}
	require.NoError(t, db.Create(&student).Error)

	course := model.Course{
		Title:         "Course " + tag,
		Slug:          "course-" + tag,
		Price:         price,
		DiscountPrice: discountPrice,
		Status:        model.CourseStatusPublished,
		TeacherID:     teacher.ID,
	}
	require.NoError(t, db.Create(&course).Error)

	for i := 1; i <= lessonCount; i++ {
		lesson := model.Lesson{
			CourseID: course.ID,
			Title:    fmt.Sprintf("Lesson %d", i),
			Position: i,
		}
		require.NoError(t, db.Create(&lesson).Error)
	}

	f := &testFixtures{db: db, Student: student, Course: course}
	t.Cleanup(f.teardown)
	return f
}

func (f *testFixtures) teardown() {
	db := f.db.Session(&gorm.Session{AllowGlobalUpdate: true})
	db.Unscoped().
		Where("enrollment_id IN (?)",
			f.db.Model(&model.Enrollment{}).Select("id").Where("course_id = ?", f.Course.ID)).
		Delete(&model.LessonProgress{})
	db.Unscoped().Where("course_id = ?", f.Course.ID).Delete(&model.Enrollment{})
	db.Unscoped().Where("course_id = ?", f.Course.ID).Delete(&model.Payment{})
	db.Unscoped().Where("course_id = ?", f.Course.ID).Delete(&model.Lesson{})
	db.Unscoped().Delete(&model.Course{}, f.Course.ID)
	db.Unscoped().Where("id = ? OR id = ?", f.Student.ID, f.Course.TeacherID).Delete(&model.User{})
}

func newTestPaymentService(db *gorm.DB) *PaymentService {
	return NewPaymentService(db, NewEnrollmentService(db), nil)
}

func TestCreatePaymentAmountMismatch(t *testing.T) {
	db := setupTestDB(t)
	f := newFixtures(t, db, 500000, 0, 2)
	svc := newTestPaymentService(db)

	_, err := svc.Create(t.Context(), CreatePaymentInput{
		CourseID: f.Course.ID,
		Amount:   499999,
		Method:   model.PaymentMethodVNPay,
	}, f.Student.ID)

	var mismatch *AmountMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, int64(500000), mismatch.Expected)
	assert.Equal(t, int64(499999), mismatch.Claimed)

	// A rejected intent must leave nothing behind.
	var count int64
	require.NoError(t, db.Model(&model.Payment{}).Where("course_id = ?", f.Course.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreatePaymentUsesDiscountPrice(t *testing.T) {
	db := setupTestDB(t)
	f := newFixtures(t, db, 800000, 650000, 1)
	svc := newTestPaymentService(db)

	// The list price is not the effective price while a discount is set.
	_, err := svc.Create(t.Context(), CreatePaymentInput{
		CourseID: f.Course.ID,
		Amount:   800000,
		Method:   model.PaymentMethodVNPay,
	}, f.Student.ID)
	var mismatch *AmountMismatchError
	require.ErrorAs(t, err, &mismatch)

	payment, err := svc.Create(t.Context(), CreatePaymentInput{
		CourseID: f.Course.ID,
		Amount:   650000,
		Method:   model.PaymentMethodVNPay,
	}, f.Student.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(800000), payment.Amount)
	assert.Equal(t, int64(150000), payment.DiscountAmount)
	assert.Equal(t, int64(650000), payment.FinalAmount)
	assert.Equal(t, model.PaymentStatusPending, payment.Status)
	assert.NotEmpty(t, payment.TransactionID)
}

func TestPaymentSuccessMaterializesEnrollment(t *testing.T) {
	db := setupTestDB(t)
	f := newFixtures(t, db, 500000, 0, 5)
	svc := newTestPaymentService(db)

	payment, err := svc.Create(t.Context(), CreatePaymentInput{
		CourseID: f.Course.ID,
		Amount:   500000,
		Method:   model.PaymentMethodVNPay,
	}, f.Student.ID)
	require.NoError(t, err)

	confirmed, err := svc.MarkTerminalByTransactionID(t.Context(), payment.TransactionID, TerminalOutcome{
		Success:    true,
		GatewayRef: "14226112",
	})
	require.NoError(t, err)

	assert.Equal(t, model.PaymentStatusCompleted, confirmed.Status)
	assert.NotNil(t, confirmed.PaidAt)
	assert.Equal(t, "14226112", confirmed.GatewayTransactionID)

	var enrollment model.Enrollment
	require.NoError(t, db.Where("student_id = ? AND course_id = ?", f.Student.ID, f.Course.ID).
		First(&enrollment).Error)

	var progressCount int64
	require.NoError(t, db.Model(&model.LessonProgress{}).
		Where("enrollment_id = ?", enrollment.ID).Count(&progressCount).Error)
	assert.Equal(t, int64(5), progressCount)

	var course model.Course
	require.NoError(t, db.First(&course, f.Course.ID).Error)
	assert.Equal(t, 1, course.EnrollmentCount)
}

func TestPaymentFailureLeavesNoEnrollment(t *testing.T) {
	db := setupTestDB(t)
	f := newFixtures(t, db, 500000, 0, 2)
	svc := newTestPaymentService(db)

	payment, err := svc.Create(t.Context(), CreatePaymentInput{
		CourseID: f.Course.ID,
		Amount:   500000,
		Method:   model.PaymentMethodMomo,
	}, f.Student.ID)
	require.NoError(t, err)

	failed, err := svc.MarkTerminalByTransactionID(t.Context(), payment.TransactionID, TerminalOutcome{
		Success: false,
		Reason:  "User rejected the payment",
	})
	require.NoError(t, err)

	assert.Equal(t, model.PaymentStatusFailed, failed.Status)
	assert.Equal(t, "User rejected the payment", failed.FailureReason)
	assert.Nil(t, failed.PaidAt)

	var count int64
	require.NoError(t, db.Model(&model.Enrollment{}).
		Where("course_id = ?", f.Course.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestMarkTerminalReplayIsNoOp(t *testing.T) {
	db := setupTestDB(t)
	f := newFixtures(t, db, 500000, 0, 3)
	svc := newTestPaymentService(db)

	payment, err := svc.Create(t.Context(), CreatePaymentInput{
		CourseID: f.Course.ID,
		Amount:   500000,
		Method:   model.PaymentMethodVNPay,
	}, f.Student.ID)
	require.NoError(t, err)

	first, err := svc.MarkTerminalByTransactionID(t.Context(), payment.TransactionID, TerminalOutcome{
		Success:    true,
		GatewayRef: "14226112",
	})
	require.NoError(t, err)
	require.Equal(t, model.PaymentStatusCompleted, first.Status)

	// A late contradictory notification must not flip the outcome.
	replay, err := svc.MarkTerminalByTransactionID(t.Context(), payment.TransactionID, TerminalOutcome{
		Success: false,
		Reason:  "timeout",
	})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, replay.Status)
	assert.Empty(t, replay.FailureReason)

	var enrollmentCount int64
	require.NoError(t, db.Model(&model.Enrollment{}).
		Where("course_id = ?", f.Course.ID).Count(&enrollmentCount).Error)
	assert.Equal(t, int64(1), enrollmentCount)

	var course model.Course
	require.NoError(t, db.First(&course, f.Course.ID).Error)
	assert.Equal(t, 1, course.EnrollmentCount)
}

func TestConcurrentConfirmationsEnrollOnce(t *testing.T) {
	db := setupTestDB(t)
	f := newFixtures(t, db, 500000, 0, 4)
	svc := newTestPaymentService(db)

	payment, err := svc.Create(t.Context(), CreatePaymentInput{
		CourseID: f.Course.ID,
		Amount:   500000,
		Method:   model.PaymentMethodVNPay,
	}, f.Student.ID)
	require.NoError(t, err)

	// Return-URL hit and IPN racing each other, several times over.
	const racers = 8
	var wg sync.WaitGroup
	errs := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.MarkTerminalByTransactionID(t.Context(), payment.TransactionID, TerminalOutcome{
				Success:    true,
				GatewayRef: "14226112",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	var enrollmentCount int64
	require.NoError(t, db.Model(&model.Enrollment{}).
		Where("course_id = ?", f.Course.ID).Count(&enrollmentCount).Error)
	assert.Equal(t, int64(1), enrollmentCount)

	var progressCount int64
	require.NoError(t, db.Model(&model.LessonProgress{}).
		Joins("JOIN enrollments ON enrollments.id = lesson_progress.enrollment_id").
		Where("enrollments.course_id = ?", f.Course.ID).Count(&progressCount).Error)
	assert.Equal(t, int64(4), progressCount)

	var course model.Course
	require.NoError(t, db.First(&course, f.Course.ID).Error)
	assert.Equal(t, 1, course.EnrollmentCount)
}

func TestProcessPaymentAdminOverride(t *testing.T) {
	db := setupTestDB(t)
	f := newFixtures(t, db, 500000, 0, 2)
	svc := newTestPaymentService(db)

	payment, err := svc.Create(t.Context(), CreatePaymentInput{
		CourseID: f.Course.ID,
		Amount:   500000,
		Method:   model.PaymentMethodBankTransfer,
	}, f.Student.ID)
	require.NoError(t, err)

	confirmed, err := svc.ProcessPayment(t.Context(), payment.ID, true, "")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, confirmed.Status)

	var enrollmentCount int64
	require.NoError(t, db.Model(&model.Enrollment{}).
		Where("course_id = ?", f.Course.ID).Count(&enrollmentCount).Error)
	assert.Equal(t, int64(1), enrollmentCount)
}

func TestProcessPaymentNotFound(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestPaymentService(db)

	_, err := svc.ProcessPayment(t.Context(), 0, true, "")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestCancelExpiredSparesTerminalRows(t *testing.T) {
	db := setupTestDB(t)
	f := newFixtures(t, db, 500000, 0, 1)
	svc := newTestPaymentService(db)

	stale, err := svc.Create(t.Context(), CreatePaymentInput{
		CourseID: f.Course.ID,
		Amount:   500000,
		Method:   model.PaymentMethodVNPay,
	}, f.Student.ID)
	require.NoError(t, err)

	completed, err := svc.Create(t.Context(), CreatePaymentInput{
		CourseID: f.Course.ID,
		Amount:   500000,
		Method:   model.PaymentMethodVNPay,
	}, f.Student.ID)
	require.NoError(t, err)
	_, err = svc.MarkTerminalByTransactionID(t.Context(), completed.TransactionID, TerminalOutcome{Success: true})
	require.NoError(t, err)

	// Age both rows past the cutoff.
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, db.Model(&model.Payment{}).
		Where("course_id = ?", f.Course.ID).
		UpdateColumn("created_at", old).Error)

	cancelled, err := svc.CancelExpired(t.Context(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cancelled)

	var reloaded model.Payment
	require.NoError(t, db.First(&reloaded, stale.ID).Error)
	assert.Equal(t, model.PaymentStatusCancelled, reloaded.Status)

	require.NoError(t, db.First(&reloaded, completed.ID).Error)
	assert.Equal(t, model.PaymentStatusCompleted, reloaded.Status)
}

func TestMarkTerminalWaitIsBounded(t *testing.T) {
	db := setupTestDB(t)
	f := newFixtures(t, db, 500000, 0, 2)
	svc := newTestPaymentService(db)

	payment, err := svc.Create(t.Context(), CreatePaymentInput{
		CourseID: f.Course.ID,
		Amount:   500000,
		Method:   model.PaymentMethodVNPay,
	}, f.Student.ID)
	require.NoError(t, err)

	// A second session holds the payment row FOR UPDATE, simulating a stuck
	// confirmation. The transition must give up with a retryable error
	// instead of waiting on the row lock forever.
	holder := db.Begin()
	require.NoError(t, holder.Error)
	defer holder.Rollback()

	var held model.Payment
	require.NoError(t, holder.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("transaction_id = ?", payment.TransactionID).
		First(&held).Error)

	start := time.Now()
	_, err = svc.MarkTerminalByTransactionID(t.Context(), payment.TransactionID, TerminalOutcome{
		Success:    true,
		GatewayRef: "14226113",
	})
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.Less(t, time.Since(start), 30*time.Second)

	require.NoError(t, holder.Rollback().Error)

	// With the lock released the same confirmation goes through.
	final, err := svc.MarkTerminalByTransactionID(t.Context(), payment.TransactionID, TerminalOutcome{
		Success:    true,
		GatewayRef: "14226113",
	})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, final.Status)
}
