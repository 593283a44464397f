package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-market-api/model"
	"github.com/sahilchouksey/course-market-api/services"
	"github.com/sahilchouksey/course-market-api/services/gateway"
	"github.com/sahilchouksey/course-market-api/utils/middleware"
	"github.com/sahilchouksey/course-market-api/utils/response"
	"github.com/sahilchouksey/course-market-api/utils/validation"
)

// VNPayHandler handles the VNPay leg of the payment funnel: redirect URL
// creation, the browser return and the server-to-server IPN.
type VNPayHandler struct {
	validator *validation.Validator
	payments  *services.PaymentService
	gateway   *gateway.VNPay
	appURL    string
}

// NewVNPayHandler creates a new VNPay handler
func NewVNPayHandler(payments *services.PaymentService, gw *gateway.VNPay, appURL string) *VNPayHandler {
	return &VNPayHandler{
		validator: validation.NewValidator(),
		payments:  payments,
		gateway:   gw,
		appURL:    appURL,
	}
}

// CreateVNPayRequest represents the request body for a VNPay redirect
type CreateVNPayRequest struct {
	CourseID  uint   `json:"course_id" validate:"required,min=1"`
	Amount    int64  `json:"amount" validate:"min=0"`
	OrderInfo string `json:"order_info" validate:"omitempty,max=255"`
	BankCode  string `json:"bank_code" validate:"omitempty,max=20"`
	Locale    string `json:"locale" validate:"omitempty,oneof=vn en"`
}

// CreatePayment handles POST /api/v1/payments/vnpay/create
func (h *VNPayHandler) CreatePayment(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req CreateVNPayRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	// The pending ledger row is created before the redirect URL leaves the
	// server, so every URL handed to a browser maps to a known transaction.
	payment, err := h.payments.Create(c.Context(), services.CreatePaymentInput{
		CourseID: req.CourseID,
		Amount:   req.Amount,
		Method:   model.PaymentMethodVNPay,
	}, user.ID)
	if err != nil {
		return mapLedgerError(c, err)
	}

	orderInfo := req.OrderInfo
	if orderInfo == "" {
		orderInfo = fmt.Sprintf("Thanh toan khoa hoc #%d", req.CourseID)
	}

	paymentURL := h.gateway.CreatePaymentURL(gateway.VNPayRequest{
		OrderID:   payment.TransactionID,
		Amount:    payment.FinalAmount,
		OrderInfo: orderInfo,
		BankCode:  req.BankCode,
		Locale:    req.Locale,
		ClientIP:  c.IP(),
	})

	return response.Created(c, fiber.Map{
		"transaction_id": payment.TransactionID,
		"payment_url":    paymentURL,
	})
}

// Return handles GET /api/v1/payments/vnpay/return, the browser redirect
// after the customer leaves the gateway. It confirms the payment when the
// signature checks out, then sends the browser to the frontend result page.
// The IPN remains authoritative; a dropped return is recovered there.
func (h *VNPayHandler) Return(c *fiber.Ctx) error {
	params := queryValues(c)
	result := h.gateway.VerifyCallback(params)

	if !result.Valid {
		log.Printf("WARN vnpay return with bad signature, order %q, ip %s", result.OrderID, c.IP())
		return h.redirectResult(c, result.OrderID, "failed", "Invalid signature")
	}

	_, err := h.payments.MarkTerminalByTransactionID(c.Context(), result.OrderID, services.TerminalOutcome{
		Success:    result.Succeeded,
		GatewayRef: result.ProviderTransactionID,
		Reason:     result.Message,
		Metadata:   callbackMetadata(params),
	})
	switch {
	case err == nil:
	case errors.Is(err, services.ErrLockTimeout):
		// Another confirmation holds the row; the outcome lands either way.
		return h.redirectResult(c, result.OrderID, "processing", "Payment is being processed")
	case errors.Is(err, services.ErrPaymentNotFound):
		return h.redirectResult(c, result.OrderID, "failed", "Unknown transaction")
	default:
		return h.redirectResult(c, result.OrderID, "failed", "Payment could not be processed")
	}

	if result.Succeeded {
		return h.redirectResult(c, result.OrderID, "success", "Payment completed")
	}
	return h.redirectResult(c, result.OrderID, "failed", result.Message)
}

// IPN handles GET /api/v1/payments/vnpay/ipn, VNPay's server-to-server
// notification. Response codes follow the gateway contract: "00" accepted,
// "01" order not found, "02" already confirmed, "04" amount mismatch,
// "97" bad signature, "99" transient error (gateway retries).
func (h *VNPayHandler) IPN(c *fiber.Ctx) error {
	params := queryValues(c)
	result := h.gateway.VerifyCallback(params)

	if !result.Valid {
		log.Printf("WARN vnpay ipn with bad signature, order %q, ip %s", result.OrderID, c.IP())
		return c.JSON(fiber.Map{"RspCode": "97", "Message": "Invalid signature"})
	}

	payment, err := h.payments.FindByTransactionID(c.Context(), result.OrderID)
	if err != nil {
		if errors.Is(err, services.ErrPaymentNotFound) {
			return c.JSON(fiber.Map{"RspCode": "01", "Message": "Order not found"})
		}
		return c.JSON(fiber.Map{"RspCode": "99", "Message": "Unknown error"})
	}

	if result.Amount != payment.FinalAmount {
		return c.JSON(fiber.Map{"RspCode": "04", "Message": "Invalid amount"})
	}

	if payment.Status.IsTerminal() {
		return c.JSON(fiber.Map{"RspCode": "02", "Message": "Order already confirmed"})
	}

	_, err = h.payments.MarkTerminalByTransactionID(c.Context(), result.OrderID, services.TerminalOutcome{
		Success:    result.Succeeded,
		GatewayRef: result.ProviderTransactionID,
		Reason:     result.Message,
		Metadata:   callbackMetadata(params),
	})
	if err != nil {
		// Includes lock timeouts: the gateway retries the IPN later.
		return c.JSON(fiber.Map{"RspCode": "99", "Message": "Unknown error"})
	}

	return c.JSON(fiber.Map{"RspCode": "00", "Message": "Confirm success"})
}

// Banks handles GET /api/v1/payments/vnpay/banks
func (h *VNPayHandler) Banks(c *fiber.Ctx) error {
	return response.Success(c, h.gateway.SupportedBanks())
}

func (h *VNPayHandler) redirectResult(c *fiber.Ctx, orderID, status, message string) error {
	target := fmt.Sprintf("%s/enrollment/result?orderId=%s&status=%s&message=%s",
		h.appURL, url.QueryEscape(orderID), url.QueryEscape(status), url.QueryEscape(message))
	return c.Redirect(target, fiber.StatusFound)
}

// queryValues converts fiber's query map to url.Values for signature checks.
func queryValues(c *fiber.Ctx) url.Values {
	params := url.Values{}
	for key, value := range c.Queries() {
		params.Set(key, value)
	}
	return params
}

// callbackMetadata snapshots the raw callback parameters for the audit trail.
func callbackMetadata(params url.Values) []byte {
	flat := make(map[string]string, len(params))
	for key := range params {
		flat[key] = params.Get(key)
	}
	data, err := json.Marshal(flat)
	if err != nil {
		return nil
	}
	return data
}
