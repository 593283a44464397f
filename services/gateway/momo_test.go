package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMomo(endpoint string) *Momo {
	return NewMomo(MomoConfig{
		PartnerCode: "MOMOTEST",
		AccessKey:   "access-key",
		SecretKey:   "secret-key",
		Endpoint:    endpoint,
		RedirectURL: "http://localhost:8080/api/v1/payments/momo/return",
		IpnURL:      "http://localhost:8080/api/v1/payments/momo/ipn",
	})
}

func TestMomoCreatePayment(t *testing.T) {
	var captured map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v2/gateway/api/create", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		json.NewEncoder(w).Encode(MomoResponse{
			PartnerCode: "MOMOTEST",
			OrderID:     captured["orderId"].(string),
			RequestID:   captured["requestId"].(string),
			Amount:      500000,
			PayURL:      "https://test-payment.momo.vn/pay/abc",
			Deeplink:    "momo://app?action=pay",
			QRCodeURL:   "https://test-payment.momo.vn/qr/abc",
			ResultCode:  0,
			Message:     "Success",
		})
	}))
	defer server.Close()

	g := testMomo(server.URL)

	resp, err := g.CreatePayment(t.Context(), MomoRequest{
		OrderID:   "TXN-ABC123-DEADBEEF",
		RequestID: "req-1",
		Amount:    500000,
		OrderInfo: "Thanh toan khoa hoc #1",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://test-payment.momo.vn/pay/abc", resp.PayURL)
	assert.NotEmpty(t, resp.Deeplink)

	// The request must carry a signature over the documented field layout.
	expectedRaw := fmt.Sprintf(
		"accessKey=%s&amount=%d&extraData=&ipnUrl=%s&orderId=%s&orderInfo=%s&partnerCode=%s&redirectUrl=%s&requestId=%s&requestType=captureWallet",
		g.cfg.AccessKey, 500000, g.cfg.IpnURL, "TXN-ABC123-DEADBEEF",
		"Thanh toan khoa hoc #1", g.cfg.PartnerCode, g.cfg.RedirectURL, "req-1",
	)
	assert.Equal(t, g.sign(expectedRaw), captured["signature"])
	assert.Equal(t, "captureWallet", captured["requestType"])
	assert.Equal(t, "500000", captured["amount"])
}

func TestMomoCreatePaymentRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(MomoResponse{
			ResultCode: 41,
			Message:    "Duplicated orderId",
		})
	}))
	defer server.Close()

	g := testMomo(server.URL)

	_, err := g.CreatePayment(t.Context(), MomoRequest{
		OrderID:   "TXN-1",
		RequestID: "req-1",
		Amount:    100000,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Duplicated orderId")
}

// signedMomoCallback builds a callback the way MoMo signs its IPN bodies.
func signedMomoCallback(g *Momo, resultCode int) MomoCallback {
	cb := MomoCallback{
		PartnerCode:  "MOMOTEST",
		OrderID:      "TXN-ABC123-DEADBEEF",
		RequestID:    "req-1",
		Amount:       500000,
		OrderInfo:    "Thanh toan khoa hoc #1",
		OrderType:    "momo_wallet",
		TransID:      2147483650,
		ResultCode:   resultCode,
		Message:      "Successful.",
		PayType:      "qr",
		ResponseTime: 1741944413000,
		ExtraData:    "",
	}

	raw := fmt.Sprintf(
		"accessKey=%s&amount=%d&extraData=%s&message=%s&orderId=%s&orderInfo=%s&orderType=%s&partnerCode=%s&payType=%s&requestId=%s&responseTime=%d&resultCode=%d&transId=%d",
		g.cfg.AccessKey, cb.Amount, cb.ExtraData, cb.Message, cb.OrderID, cb.OrderInfo,
		cb.OrderType, cb.PartnerCode, cb.PayType, cb.RequestID, cb.ResponseTime,
		cb.ResultCode, cb.TransID,
	)
	cb.Signature = g.sign(raw)
	return cb
}

func TestMomoVerifyCallbackSuccess(t *testing.T) {
	g := testMomo("https://test-payment.momo.vn")
	cb := signedMomoCallback(g, 0)

	result := g.VerifyCallback(cb)

	assert.True(t, result.Valid)
	assert.True(t, result.Succeeded)
	assert.Equal(t, "TXN-ABC123-DEADBEEF", result.OrderID)
	assert.Equal(t, "2147483650", result.ProviderTransactionID)
	assert.Equal(t, int64(500000), result.Amount)
}

func TestMomoVerifyCallbackAuthenticFailure(t *testing.T) {
	g := testMomo("https://test-payment.momo.vn")
	// 1006: user declined in the app. Signed by MoMo, but not a payment.
	cb := signedMomoCallback(g, 1006)

	result := g.VerifyCallback(cb)

	assert.True(t, result.Valid)
	assert.False(t, result.Succeeded)
	assert.Equal(t, "1006", result.ResultCode)
}

func TestMomoVerifyCallbackTamperedAmount(t *testing.T) {
	g := testMomo("https://test-payment.momo.vn")
	cb := signedMomoCallback(g, 0)
	cb.Amount = 1

	result := g.VerifyCallback(cb)
	assert.False(t, result.Valid)
	assert.False(t, result.Succeeded)
}

func TestMomoVerifyCallbackMissingSignature(t *testing.T) {
	g := testMomo("https://test-payment.momo.vn")
	cb := signedMomoCallback(g, 0)
	cb.Signature = ""

	result := g.VerifyCallback(cb)
	assert.False(t, result.Valid)
}

func TestMomoGenerateIDs(t *testing.T) {
	g := testMomo("https://test-payment.momo.vn")

	orderID := g.GenerateOrderID("MOMO")
	assert.Contains(t, orderID, "MOMO_")

	assert.NotEqual(t, g.GenerateRequestID(), g.GenerateRequestID())
}
