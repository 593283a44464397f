package payment

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-market-api/model"
	"github.com/sahilchouksey/course-market-api/services"
	"github.com/sahilchouksey/course-market-api/services/gateway"
	"github.com/sahilchouksey/course-market-api/utils/middleware"
	"github.com/sahilchouksey/course-market-api/utils/response"
	"github.com/sahilchouksey/course-market-api/utils/validation"
)

// MomoHandler handles the MoMo leg of the payment funnel.
type MomoHandler struct {
	validator *validation.Validator
	payments  *services.PaymentService
	gateway   *gateway.Momo
	appURL    string
}

// NewMomoHandler creates a new MoMo handler
func NewMomoHandler(payments *services.PaymentService, gw *gateway.Momo, appURL string) *MomoHandler {
	return &MomoHandler{
		validator: validation.NewValidator(),
		payments:  payments,
		gateway:   gw,
		appURL:    appURL,
	}
}

// CreateMomoRequest represents the request body for a MoMo payment
type CreateMomoRequest struct {
	CourseID  uint   `json:"course_id" validate:"required,min=1"`
	Amount    int64  `json:"amount" validate:"min=0"`
	OrderInfo string `json:"order_info" validate:"omitempty,max=255"`
}

// CreatePayment handles POST /api/v1/payments/momo/create
func (h *MomoHandler) CreatePayment(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req CreateMomoRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	payment, err := h.payments.Create(c.Context(), services.CreatePaymentInput{
		CourseID: req.CourseID,
		Amount:   req.Amount,
		Method:   model.PaymentMethodMomo,
	}, user.ID)
	if err != nil {
		return mapLedgerError(c, err)
	}

	orderInfo := req.OrderInfo
	if orderInfo == "" {
		orderInfo = fmt.Sprintf("Thanh toan khoa hoc #%d", req.CourseID)
	}

	momoResp, err := h.gateway.CreatePayment(c.Context(), gateway.MomoRequest{
		OrderID:   payment.TransactionID,
		RequestID: h.gateway.GenerateRequestID(),
		Amount:    payment.FinalAmount,
		OrderInfo: orderInfo,
	})
	if err != nil {
		// The gateway never saw a usable request; close the ledger row so the
		// student can retry with a fresh transaction.
		_, _ = h.payments.MarkTerminalByTransactionID(c.Context(), payment.TransactionID,
			services.TerminalOutcome{Success: false, Reason: "gateway create failed"})
		return response.ServiceUnavailable(c, "Payment gateway unavailable, please retry")
	}

	return response.Created(c, fiber.Map{
		"transaction_id": payment.TransactionID,
		"pay_url":        momoResp.PayURL,
		"deeplink":       momoResp.Deeplink,
		"qr_code_url":    momoResp.QRCodeURL,
	})
}

// IPN handles POST /api/v1/payments/momo/ipn, MoMo's server-to-server
// notification. MoMo expects {"status": 0} when the notification was
// accepted and retries on anything else.
func (h *MomoHandler) IPN(c *fiber.Ctx) error {
	var cb gateway.MomoCallback
	if err := c.BodyParser(&cb); err != nil {
		return c.JSON(fiber.Map{"status": -1, "message": "Invalid payload"})
	}

	result := h.gateway.VerifyCallback(cb)
	if !result.Valid {
		log.Printf("WARN momo ipn with bad signature, order %q, ip %s", cb.OrderID, c.IP())
		return c.JSON(fiber.Map{"status": -1, "message": "Invalid signature"})
	}

	_, err := h.payments.MarkTerminalByTransactionID(c.Context(), result.OrderID, services.TerminalOutcome{
		Success:    result.Succeeded,
		GatewayRef: result.ProviderTransactionID,
		Reason:     result.Message,
		Metadata:   c.Body(),
	})
	if err != nil {
		if errors.Is(err, services.ErrPaymentNotFound) {
			return c.JSON(fiber.Map{"status": -1, "message": "Order not found"})
		}
		// Transient (lock timeout, db error): MoMo retries the IPN.
		return c.JSON(fiber.Map{"status": -1, "message": "Processing error"})
	}

	return c.JSON(fiber.Map{"status": 0, "message": "Received"})
}

// Return handles GET /api/v1/payments/momo/return, the browser redirect
// back from the MoMo app or web checkout. The redirect carries the same
// signed fields as the IPN, so it is verified and confirmed the same way.
func (h *MomoHandler) Return(c *fiber.Ctx) error {
	cb := callbackFromQuery(c)

	result := h.gateway.VerifyCallback(cb)
	if !result.Valid {
		log.Printf("WARN momo return with bad signature, order %q, ip %s", cb.OrderID, c.IP())
		return h.redirectResult(c, cb.OrderID, "failed", "Invalid signature")
	}

	_, err := h.payments.MarkTerminalByTransactionID(c.Context(), result.OrderID, services.TerminalOutcome{
		Success:    result.Succeeded,
		GatewayRef: result.ProviderTransactionID,
		Reason:     result.Message,
		Metadata:   callbackMetadata(queryValues(c)),
	})
	switch {
	case err == nil:
	case errors.Is(err, services.ErrLockTimeout):
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

func (h *MomoHandler) redirectResult(c *fiber.Ctx, orderID, status, message string) error {
	target := fmt.Sprintf("%s/enrollment/result?orderId=%s&status=%s&message=%s",
		h.appURL, url.QueryEscape(orderID), url.QueryEscape(status), url.QueryEscape(message))
	return c.Redirect(target, fiber.StatusFound)
}

// callbackFromQuery rebuilds the signed callback struct from the redirect
// query string. MoMo sends the numeric fields as decimal strings there.
func callbackFromQuery(c *fiber.Ctx) gateway.MomoCallback {
	amount, _ := strconv.ParseInt(c.Query("amount"), 10, 64)
	transID, _ := strconv.ParseInt(c.Query("transId"), 10, 64)
	resultCode, _ := strconv.Atoi(c.Query("resultCode"))
	responseTime, _ := strconv.ParseInt(c.Query("responseTime"), 10, 64)

	return gateway.MomoCallback{
		PartnerCode:  c.Query("partnerCode"),
		OrderID:      c.Query("orderId"),
		RequestID:    c.Query("requestId"),
		Amount:       amount,
		OrderInfo:    c.Query("orderInfo"),
		OrderType:    c.Query("orderType"),
		TransID:      transID,
		ResultCode:   resultCode,
		Message:      c.Query("message"),
		PayType:      c.Query("payType"),
		ResponseTime: responseTime,
		ExtraData:    c.Query("extraData"),
		Signature:    c.Query("signature"),
	}
}
