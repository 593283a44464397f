package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sahilchouksey/course-market-api/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrDuplicateTransaction = errors.New("transaction id already exists")
)

// AmountMismatchError rejects a purchase intent whose claimed amount does not
// match the course's current effective price. It carries both values so the
// caller can self-correct.
type AmountMismatchError struct {
	Expected int64
	Claimed  int64
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("amount mismatch: expected %d, got %d", e.Expected, e.Claimed)
}

// PaymentService is the payment ledger. It owns every write to
// Payment.status; reconciliation callers (admin override, gateway return,
// gateway IPN) all funnel into the same idempotent terminal transition, which
// materializes the enrollment on the first-ever success.
type PaymentService struct {
	db          *gorm.DB
	enrollments *EnrollmentService
	email       *EmailService
}

// NewPaymentService creates a new payment service
func NewPaymentService(db *gorm.DB, enrollments *EnrollmentService, email *EmailService) *PaymentService {
	return &PaymentService{
		db:          db,
		enrollments: enrollments,
		email:       email,
	}
}

// CreatePaymentInput is a purchase intent.
type CreatePaymentInput struct {
	CourseID uint
	Amount   int64 // what the client claims the course costs
	Method   model.PaymentMethod

	// TransactionID may be pre-generated by a gateway handler that needs the
	// order reference inside the signed redirect. Empty means generate one.
	TransactionID string
	GatewayID     string
}

// Create validates a purchase intent and persists a pending payment. The
// claimed amount must equal the course's effective price right now; nothing
// is written otherwise.
func (s *PaymentService) Create(ctx context.Context, in CreatePaymentInput, studentID uint) (*model.Payment, error) {
	var course model.Course
	if err := s.db.WithContext(ctx).First(&course, in.CourseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to load course: %w", err)
	}

	if !course.IsPurchasable() {
		return nil, ErrCourseNotPurchasable
	}

	expected := course.EffectivePrice()
	if in.Amount != expected {
		return nil, &AmountMismatchError{Expected: expected, Claimed: in.Amount}
	}

	enrolled, err := s.enrollments.IsEnrolled(ctx, studentID, in.CourseID)
	if err != nil {
		return nil, fmt.Errorf("failed to check enrollment: %w", err)
	}
	if enrolled {
		return nil, ErrAlreadyEnrolled
	}

	txID := in.TransactionID
	if txID == "" {
		txID = GenerateTransactionID()
	}

	courseID := in.CourseID
	payment := &model.Payment{
		TransactionID:    txID,
		StudentID:        &studentID,
		CourseID:         &courseID,
		Amount:           course.Price,
		DiscountAmount:   course.Price - expected,
		FinalAmount:      expected,
		Currency:         "VND",
		Status:           model.PaymentStatusPending,
		PaymentMethod:    in.Method,
		PaymentGatewayID: in.GatewayID,
	}

	if err := s.db.WithContext(ctx).Create(payment).Error; err != nil {
		if isPgError(err, pgCodeUniqueViolation) {
			return nil, ErrDuplicateTransaction
		}
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	return payment, nil
}

// TerminalOutcome describes how a pending payment finished.
type TerminalOutcome struct {
	Success    bool
	GatewayRef string // provider's own transaction reference
	Reason     string // failure reason, when Success is false
	Metadata   []byte // raw provider payload, stored opaque
}

// MarkTerminalByTransactionID drives a payment to its terminal status, keyed
// by the externally-visible transaction id. Gateways retry notifications and
// the return-URL hit races the IPN, so this is idempotent: a payment already
// in a terminal status is returned unchanged, no matter the outcome claimed.
// On the first-ever success the enrollment is materialized in the same
// transaction.
func (s *PaymentService) MarkTerminalByTransactionID(ctx context.Context, transactionID string, outcome TerminalOutcome) (*model.Payment, error) {
	return s.finalize(ctx, outcome, func(tx *gorm.DB) (*model.Payment, error) {
		var payment model.Payment
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("transaction_id = ?", transactionID).
			First(&payment).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return &payment, err
	})
}

// ProcessPayment is the trusted admin override: the same state machine keyed
// by internal payment id, used for offline and manual confirmation flows.
func (s *PaymentService) ProcessPayment(ctx context.Context, paymentID uint, success bool, reason string) (*model.Payment, error) {
	return s.finalize(ctx, TerminalOutcome{Success: success, Reason: reason}, func(tx *gorm.DB) (*model.Payment, error) {
		var payment model.Payment
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&payment, paymentID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return &payment, err
	})
}

// finalize runs the single terminal-transition path. The payment row is
// locked for the duration, so concurrent confirmations for the same purchase
// serialize here and every caller reads the authoritative status.
func (s *PaymentService) finalize(ctx context.Context, outcome TerminalOutcome, locate func(tx *gorm.DB) (*model.Payment, error)) (*model.Payment, error) {
	var result *model.Payment
	var firstCompletion bool

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Bound the wait before taking any lock in this transaction, the
		// payment row's FOR UPDATE included. A confirmation stuck behind a
		// slow holder comes back retryable instead of hanging.
		if err := tx.Exec("SET LOCAL lock_timeout = '5s'").Error; err != nil {
			return fmt.Errorf("failed to set lock timeout: %w", err)
		}

		payment, err := locate(tx)
		if err != nil {
			if isPgError(err, pgCodeLockNotAvailable) {
				return ErrLockTimeout
			}
			return err
		}

		if payment.Status.IsTerminal() {
			// Replay. The existing row's outcome stands.
			result = payment
			return nil
		}

		if outcome.Success {
			now := time.Now()
			payment.Status = model.PaymentStatusCompleted
			payment.PaidAt = &now
			payment.GatewayTransactionID = outcome.GatewayRef
			if len(outcome.Metadata) > 0 {
				payment.Metadata = datatypes.JSON(outcome.Metadata)
			}
			firstCompletion = true
		} else {
			payment.Status = model.PaymentStatusFailed
			payment.FailureReason = outcome.Reason
		}

		if err := tx.Save(payment).Error; err != nil {
			return fmt.Errorf("failed to persist payment transition: %w", err)
		}

		if outcome.Success {
			// Payments keep their student/course references nullable so the
			// row survives deletions; a confirmation arriving after either
			// side is gone has nothing to enroll.
			if payment.StudentID == nil || payment.CourseID == nil {
				log.Printf("payment %s confirmed but student/course reference is gone, skipping enrollment", payment.TransactionID)
			} else {
				if _, _, err := s.enrollments.Materialize(tx, *payment.StudentID, *payment.CourseID); err != nil {
					return err
				}
			}
		}

		result = payment
		return nil
	})
	if err != nil {
		return nil, err
	}

	if firstCompletion {
		s.sendReceipt(result)
	}
	return result, nil
}

// sendReceipt emails the buyer after the first completion, best effort.
func (s *PaymentService) sendReceipt(payment *model.Payment) {
	if s.email == nil || payment.StudentID == nil {
		return
	}
	var student model.User
	if err := s.db.First(&student, *payment.StudentID).Error; err != nil {
		log.Printf("receipt for %s not sent, failed to load student: %v", payment.TransactionID, err)
		return
	}
	if err := s.email.SendPaymentReceipt(student.Email, student.Name, payment); err != nil {
		log.Printf("receipt for %s not sent: %v", payment.TransactionID, err)
	}
}

// CancelExpired cancels pending payments older than maxAge. Runs from the
// cron manager; the WHERE clause is the terminal-transition guard, so a
// payment confirmed between read and write is left alone.
func (s *PaymentService) CancelExpired(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge)
	res := s.db.WithContext(ctx).Model(&model.Payment{}).
		Where("status = ? AND created_at < ?", model.PaymentStatusPending, cutoff).
		Updates(map[string]interface{}{
			"status":         model.PaymentStatusCancelled,
			"failure_reason": "payment window expired",
		})
	return res.RowsAffected, res.Error
}

// FindByStudent returns a student's payments, newest first.
func (s *PaymentService) FindByStudent(ctx context.Context, studentID uint) ([]model.Payment, error) {
	var payments []model.Payment
	err := s.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Preload("Course").
		Order("created_at DESC").
		Find(&payments).Error
	return payments, err
}

// FindByID returns one payment with its relations.
func (s *PaymentService) FindByID(ctx context.Context, id uint) (*model.Payment, error) {
	var payment model.Payment
	err := s.db.WithContext(ctx).
		Preload("Course").
		Preload("Student").
		First(&payment, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindByTransactionID returns one payment by its external transaction id.
func (s *PaymentService) FindByTransactionID(ctx context.Context, transactionID string) (*model.Payment, error) {
	var payment model.Payment
	err := s.db.WithContext(ctx).
		Preload("Course").
		Preload("Student").
		Where("transaction_id = ?", transactionID).
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// PaymentFilters narrows the admin listing and export.
type PaymentFilters struct {
	Page      int
	Limit     int
	Status    string
	StudentID uint
	CourseID  uint
	StartDate *time.Time
	EndDate   *time.Time
	Search    string // matches transaction id
}

// List returns a filtered, paginated admin view of the ledger.
func (s *PaymentService) List(ctx context.Context, f PaymentFilters) ([]model.Payment, int64, error) {
	query := s.filtered(ctx, f)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 20
	}

	var payments []model.Payment
	err := query.
		Preload("Course").
		Preload("Student").
		Order("created_at DESC").
		Limit(f.Limit).
		Offset((f.Page - 1) * f.Limit).
		Find(&payments).Error
	return payments, total, err
}

// PaymentStats is the admin revenue rollup.
type PaymentStats struct {
	TotalRevenue   int64 `json:"total_revenue"`
	CompletedCount int64 `json:"completed_count"`
	PendingCount   int64 `json:"pending_count"`
	FailedCount    int64 `json:"failed_count"`
	CancelledCount int64 `json:"cancelled_count"`
	RefundedCount  int64 `json:"refunded_count"`
}

// Stats aggregates the ledger by status within an optional date range.
func (s *PaymentService) Stats(ctx context.Context, startDate, endDate *time.Time) (*PaymentStats, error) {
	query := s.db.WithContext(ctx).Model(&model.Payment{})
	if startDate != nil {
		query = query.Where("created_at >= ?", *startDate)
	}
	if endDate != nil {
		query = query.Where("created_at <= ?", *endDate)
	}

	type row struct {
		Status model.PaymentStatus
		Count  int64
		Sum    int64
	}
	var rows []row
	if err := query.
		Select("status, COUNT(*) AS count, COALESCE(SUM(final_amount), 0) AS sum").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	stats := &PaymentStats{}
	for _, r := range rows {
		switch r.Status {
		case model.PaymentStatusCompleted:
			stats.CompletedCount = r.Count
			stats.TotalRevenue = r.Sum
		case model.PaymentStatusPending:
			stats.PendingCount = r.Count
		case model.PaymentStatusFailed:
			stats.FailedCount = r.Count
		case model.PaymentStatusCancelled:
			stats.CancelledCount = r.Count
		case model.PaymentStatusRefunded:
			stats.RefundedCount = r.Count
		}
	}
	return stats, nil
}

// ExportCSV renders the filtered ledger as CSV for admin download.
func (s *PaymentService) ExportCSV(ctx context.Context, f PaymentFilters) ([]byte, error) {
	var payments []model.Payment
	if err := s.filtered(ctx, f).
		Preload("Course").
		Preload("Student").
		Order("created_at DESC").
		Find(&payments).Error; err != nil {
		return nil, err
	}

	var b strings.Builder
	w := csv.NewWriter(&b)
	_ = w.Write([]string{
		"transaction_id", "student", "course", "amount", "discount",
		"final_amount", "currency", "method", "status", "paid_at", "created_at",
	})
	for _, p := range payments {
		studentName := ""
		if p.Student != nil {
			studentName = p.Student.Email
		}
		courseTitle := ""
		if p.Course != nil {
			courseTitle = p.Course.Title
		}
		paidAt := ""
		if p.PaidAt != nil {
			paidAt = p.PaidAt.Format(time.RFC3339)
		}
		_ = w.Write([]string{
			p.TransactionID,
			studentName,
			courseTitle,
			strconv.FormatInt(p.Amount, 10),
			strconv.FormatInt(p.DiscountAmount, 10),
			strconv.FormatInt(p.FinalAmount, 10),
			p.Currency,
			string(p.PaymentMethod),
			string(p.Status),
			paidAt,
			p.CreatedAt.Format(time.RFC3339),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

func (s *PaymentService) filtered(ctx context.Context, f PaymentFilters) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&model.Payment{})
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.StudentID != 0 {
		query = query.Where("student_id = ?", f.StudentID)
	}
	if f.CourseID != 0 {
		query = query.Where("course_id = ?", f.CourseID)
	}
	if f.StartDate != nil {
		query = query.Where("created_at >= ?", *f.StartDate)
	}
	if f.EndDate != nil {
		query = query.Where("created_at <= ?", *f.EndDate)
	}
	if f.Search != "" {
		query = query.Where("transaction_id ILIKE ?", "%"+f.Search+"%")
	}
	return query
}

// GenerateTransactionID produces the system-wide idempotency key for a new
// purchase intent: TXN-<millis base36>-<random>, unique and immutable once
// persisted.
func GenerateTransactionID() string {
	ts := strings.ToUpper(strconv.FormatInt(time.Now().UnixMilli(), 36))
	random := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("TXN-%s-%s", ts, random)
}
