package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// MomoConfig is the immutable configuration for one MoMo partner account.
type MomoConfig struct {
	PartnerCode string
	AccessKey   string
	SecretKey   string
	Endpoint    string // e.g. https://test-payment.momo.vn
	RedirectURL string
	IpnURL      string
}

// Momo integrates the MoMo e-wallet (captureWallet flow). Creating a payment
// is an API call to MoMo; verifying a callback is a local signature check.
// The adapter holds no mutable state.
type Momo struct {
	cfg    MomoConfig
	client *http.Client
}

// NewMomo creates a MoMo adapter from config.
func NewMomo(cfg MomoConfig) *Momo {
	return &Momo{
		cfg: cfg,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// MomoRequest describes one payment to open with MoMo.
type MomoRequest struct {
	OrderID   string
	RequestID string
	Amount    int64 // VND
	OrderInfo string
}

// MomoResponse is MoMo's answer to a create-payment call.
type MomoResponse struct {
	PartnerCode string `json:"partnerCode"`
	OrderID     string `json:"orderId"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	PayURL      string `json:"payUrl"`
	Deeplink    string `json:"deeplink"`
	QRCodeURL   string `json:"qrCodeUrl"`
	ResultCode  int    `json:"resultCode"`
	Message     string `json:"message"`
}

// MomoCallback is the IPN body MoMo posts after the buyer acts.
type MomoCallback struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	OrderInfo    string `json:"orderInfo"`
	OrderType    string `json:"orderType"`
	TransID      int64  `json:"transId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	PayType      string `json:"payType"`
	ResponseTime int64  `json:"responseTime"`
	ExtraData    string `json:"extraData"`
	Signature    string `json:"signature"`
}

const (
	momoRequestType = "captureWallet"
	momoCreatePath  = "/v2/gateway/api/create"
)

// CreatePayment opens a payment with MoMo and returns the pay URL, deeplink
// and QR code URL the client can use.
func (g *Momo) CreatePayment(ctx context.Context, req MomoRequest) (*MomoResponse, error) {
	// MoMo signs the raw request fields in this fixed alphabetical layout.
	raw := fmt.Sprintf(
		"accessKey=%s&amount=%d&extraData=%s&ipnUrl=%s&orderId=%s&orderInfo=%s&partnerCode=%s&redirectUrl=%s&requestId=%s&requestType=%s",
		g.cfg.AccessKey, req.Amount, "", g.cfg.IpnURL, req.OrderID, req.OrderInfo,
		g.cfg.PartnerCode, g.cfg.RedirectURL, req.RequestID, momoRequestType,
	)

	body := map[string]interface{}{
		"partnerCode": g.cfg.PartnerCode,
		"accessKey":   g.cfg.AccessKey,
		"requestId":   req.RequestID,
		"amount":      strconv.FormatInt(req.Amount, 10),
		"orderId":     req.OrderID,
		"orderInfo":   req.OrderInfo,
		"redirectUrl": g.cfg.RedirectURL,
		"ipnUrl":      g.cfg.IpnURL,
		"extraData":   "",
		"requestType": momoRequestType,
		"lang":        "vi",
		"signature":   g.sign(raw),
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode momo request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Endpoint+momoCreatePath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build momo request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("momo create payment request failed: %w", err)
	}
	defer resp.Body.Close()

	var result MomoResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode momo response: %w", err)
	}

	if result.ResultCode != 0 {
		return nil, fmt.Errorf("momo rejected payment creation: %s (code %d)", result.Message, result.ResultCode)
	}

	return &result, nil
}

// VerifyCallback recomputes the IPN signature from the callback body and
// normalizes the result. Idempotent; a tampered or unsigned payload comes
// back Valid=false.
func (g *Momo) VerifyCallback(cb MomoCallback) VerifyResult {
	if cb.Signature == "" || cb.OrderID == "" {
		return VerifyResult{
			OrderID:    cb.OrderID,
			ResultCode: strconv.Itoa(cb.ResultCode),
			Message:    "Missing signature",
		}
	}

	raw := fmt.Sprintf(
		"accessKey=%s&amount=%d&extraData=%s&message=%s&orderId=%s&orderInfo=%s&orderType=%s&partnerCode=%s&payType=%s&requestId=%s&responseTime=%d&resultCode=%d&transId=%d",
		g.cfg.AccessKey, cb.Amount, cb.ExtraData, cb.Message, cb.OrderID, cb.OrderInfo,
		cb.OrderType, cb.PartnerCode, cb.PayType, cb.RequestID, cb.ResponseTime,
		cb.ResultCode, cb.TransID,
	)

	if !hmac.Equal([]byte(cb.Signature), []byte(g.sign(raw))) {
		return VerifyResult{
			OrderID:    cb.OrderID,
			ResultCode: strconv.Itoa(cb.ResultCode),
			Message:    "Invalid signature",
		}
	}

	res := VerifyResult{
		Valid:                 true,
		Succeeded:             cb.ResultCode == 0,
		OrderID:               cb.OrderID,
		ProviderTransactionID: strconv.FormatInt(cb.TransID, 10),
		Amount:                cb.Amount,
		ResultCode:            strconv.Itoa(cb.ResultCode),
		Message:               cb.Message,
	}
	if res.Succeeded {
		res.Message = "Success"
	}
	return res
}

func (g *Momo) sign(data string) string {
	mac := hmac.New(sha256.New, []byte(g.cfg.SecretKey))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// GenerateOrderID produces a provider-scoped order id for a new payment.
func (g *Momo) GenerateOrderID(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixMilli())
}

// GenerateRequestID produces the per-request idempotency id MoMo requires.
func (g *Momo) GenerateRequestID() string {
	return uuid.New().String()
}
