package payment

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-market-api/model"
	"github.com/sahilchouksey/course-market-api/services"
	"github.com/sahilchouksey/course-market-api/utils/middleware"
	"github.com/sahilchouksey/course-market-api/utils/response"
	"github.com/sahilchouksey/course-market-api/utils/validation"
	"gorm.io/gorm"
)

// PaymentHandler handles purchase intents, the admin override and payment
// queries. Gateway-specific endpoints live in the vnpay/momo handlers.
type PaymentHandler struct {
	db        *gorm.DB
	validator *validation.Validator
	payments  *services.PaymentService
	invoices  *services.InvoiceService
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(db *gorm.DB, payments *services.PaymentService, invoices *services.InvoiceService) *PaymentHandler {
	return &PaymentHandler{
		db:        db,
		validator: validation.NewValidator(),
		payments:  payments,
		invoices:  invoices,
	}
}

// CreatePaymentRequest represents the request body for a purchase intent
type CreatePaymentRequest struct {
	CourseID      uint   `json:"course_id" validate:"required,min=1"`
	Amount        int64  `json:"amount" validate:"min=0"`
	PaymentMethod string `json:"payment_method" validate:"required,oneof=vnpay momo bank_transfer manual"`
}

// ProcessPaymentRequest is the admin confirmation body
type ProcessPaymentRequest struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason" validate:"omitempty,max=500"`
}

// CreatePayment handles POST /api/v1/payments
func (h *PaymentHandler) CreatePayment(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req CreatePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	payment, err := h.payments.Create(c.Context(), services.CreatePaymentInput{
		CourseID: req.CourseID,
		Amount:   req.Amount,
		Method:   model.PaymentMethod(req.PaymentMethod),
	}, user.ID)
	if err != nil {
		return mapLedgerError(c, err)
	}

	return response.Created(c, payment)
}

// ProcessPayment handles PATCH /api/v1/payments/:id/process (admin override)
func (h *PaymentHandler) ProcessPayment(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid payment ID")
	}

	var req ProcessPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	payment, err := h.payments.ProcessPayment(c.Context(), uint(id), req.Success, req.Reason)
	if err != nil {
		return mapLedgerError(c, err)
	}

	return response.SuccessWithMessage(c, "Payment processed", payment)
}

// MyPayments handles GET /api/v1/payments/my-payments
func (h *PaymentHandler) MyPayments(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	payments, err := h.payments.FindByStudent(c.Context(), user.ID)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch payments")
	}

	return response.Success(c, payments)
}

// GetPayment handles GET /api/v1/payments/:id
func (h *PaymentHandler) GetPayment(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid payment ID")
	}

	payment, err := h.payments.FindByID(c.Context(), uint(id))
	if err != nil {
		return mapLedgerError(c, err)
	}

	if !h.canView(user, payment) {
		return response.Forbidden(c, "Access denied")
	}

	return response.Success(c, payment)
}

// GetByTransactionID handles GET /api/v1/payments/transaction/:transactionId
func (h *PaymentHandler) GetByTransactionID(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	payment, err := h.payments.FindByTransactionID(c.Context(), c.Params("transactionId"))
	if err != nil {
		return mapLedgerError(c, err)
	}

	if !h.canView(user, payment) {
		return response.Forbidden(c, "Access denied")
	}

	return response.Success(c, payment)
}

// Invoice handles GET /api/v1/payments/:id/invoice
func (h *PaymentHandler) Invoice(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid payment ID")
	}

	payment, err := h.payments.FindByID(c.Context(), uint(id))
	if err != nil {
		return mapLedgerError(c, err)
	}

	if !h.canView(user, payment) {
		return response.Forbidden(c, "Access denied")
	}

	pdf, err := h.invoices.Render(payment)
	if err != nil {
		return response.InternalServerError(c, "Failed to generate invoice")
	}

	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="invoice-%s.pdf"`, payment.TransactionID))
	return c.Send(pdf)
}

// ListPayments handles GET /api/v1/payments/admin/all
func (h *PaymentHandler) ListPayments(c *fiber.Ctx) error {
	filters := parseFilters(c)

	payments, total, err := h.payments.List(c.Context(), filters)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch payments")
	}

	pagination := response.CalculatePagination(filters.Page, filters.Limit, total)
	return response.Paginated(c, payments, pagination)
}

// PaymentStats handles GET /api/v1/payments/admin/stats
func (h *PaymentHandler) PaymentStats(c *fiber.Ctx) error {
	start := parseDate(c.Query("start_date"))
	end := parseDate(c.Query("end_date"))

	stats, err := h.payments.Stats(c.Context(), start, end)
	if err != nil {
		return response.InternalServerError(c, "Failed to compute stats")
	}

	return response.Success(c, stats)
}

// ExportPayments handles POST /api/v1/payments/admin/export
func (h *PaymentHandler) ExportPayments(c *fiber.Ctx) error {
	filters := parseFilters(c)

	csvData, err := h.payments.ExportCSV(c.Context(), filters)
	if err != nil {
		return response.InternalServerError(c, "Failed to export payments")
	}

	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="payments.csv"`)
	return c.Send(csvData)
}

func (h *PaymentHandler) canView(user *model.User, payment *model.Payment) bool {
	if user.IsAdmin() {
		return true
	}
	return payment.StudentID != nil && *payment.StudentID == user.ID
}

func parseFilters(c *fiber.Ctx) services.PaymentFilters {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	studentID, _ := strconv.ParseUint(c.Query("student_id", "0"), 10, 32)
	courseID, _ := strconv.ParseUint(c.Query("course_id", "0"), 10, 32)

	return services.PaymentFilters{
		Page:      page,
		Limit:     limit,
		Status:    c.Query("status"),
		StudentID: uint(studentID),
		CourseID:  uint(courseID),
		StartDate: parseDate(c.Query("start_date")),
		EndDate:   parseDate(c.Query("end_date")),
		Search:    c.Query("search"),
	}
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}

// mapLedgerError translates ledger/materializer errors to HTTP responses.
// Conflicts are success-equivalent for idempotent callers; lock timeouts are
// retryable, not permanent failures.
func mapLedgerError(c *fiber.Ctx, err error) error {
	var mismatch *services.AmountMismatchError
	switch {
	case errors.As(err, &mismatch):
		return response.ErrorWithDetails(c, fiber.StatusBadRequest,
			"Amount does not match course price", "AMOUNT_MISMATCH",
			fmt.Sprintf("expected %d, got %d", mismatch.Expected, mismatch.Claimed))
	case errors.Is(err, services.ErrCourseNotFound):
		return response.NotFound(c, "Course not found")
	case errors.Is(err, services.ErrCourseNotPurchasable):
		return response.BadRequest(c, "Course is not available for purchase")
	case errors.Is(err, services.ErrCourseNotFree):
		return response.BadRequest(c, "Course requires payment before enrollment")
	case errors.Is(err, services.ErrAlreadyEnrolled):
		return response.Conflict(c, "Already enrolled in this course")
	case errors.Is(err, services.ErrDuplicateTransaction):
		return response.Conflict(c, "Transaction already exists")
	case errors.Is(err, services.ErrPaymentNotFound):
		return response.NotFound(c, "Payment not found")
	case errors.Is(err, services.ErrLockTimeout):
		return response.ServiceUnavailable(c, "Payment is being processed, please retry")
	default:
		return response.InternalServerError(c, "Failed to process payment")
	}
}
