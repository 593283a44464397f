package gateway

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVNPay() *VNPay {
	g := NewVNPay(VNPayConfig{
		TmnCode:    "TESTTMN1",
		HashSecret: "SECRETSECRETSECRETSECRET",
		PaymentURL: "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		ReturnURL:  "http://localhost:8080/api/v1/payments/vnpay/return",
	})
	g.now = func() time.Time {
		return time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	}
	return g
}

func TestVNPayCreatePaymentURL(t *testing.T) {
	g := testVNPay()

	paymentURL := g.CreatePaymentURL(VNPayRequest{
		OrderID:   "TXN-ABC123-DEADBEEF",
		Amount:    500000,
		OrderInfo: "Thanh toan khoa hoc #1",
		ClientIP:  "127.0.0.1",
	})

	require.True(t, strings.HasPrefix(paymentURL, g.cfg.PaymentURL+"?"))

	parsed, err := url.Parse(paymentURL)
	require.NoError(t, err)
	params := parsed.Query()

	assert.Equal(t, "2.1.0", params.Get("vnp_Version"))
	assert.Equal(t, "pay", params.Get("vnp_Command"))
	assert.Equal(t, "TESTTMN1", params.Get("vnp_TmnCode"))
	// VNPay wants the amount multiplied by 100.
	assert.Equal(t, "50000000", params.Get("vnp_Amount"))
	assert.Equal(t, "TXN-ABC123-DEADBEEF", params.Get("vnp_TxnRef"))
	assert.Equal(t, "vn", params.Get("vnp_Locale"))
	// 09:26:53 UTC is 16:26:53 in Vietnam.
	assert.Equal(t, "20250314162653", params.Get("vnp_CreateDate"))
	assert.Equal(t, "20250314164153", params.Get("vnp_ExpireDate"))
	assert.NotEmpty(t, params.Get("vnp_SecureHash"))

	// The URL must verify under the same secret it was signed with.
	result := g.VerifyCallback(params)
	assert.True(t, result.Valid)
}

func TestVNPayCreatePaymentURLBankCodeAndLocale(t *testing.T) {
	g := testVNPay()

	paymentURL := g.CreatePaymentURL(VNPayRequest{
		OrderID:  "TXN-1",
		Amount:   100000,
		BankCode: "NCB",
		Locale:   "en",
	})

	parsed, err := url.Parse(paymentURL)
	require.NoError(t, err)
	assert.Equal(t, "NCB", parsed.Query().Get("vnp_BankCode"))
	assert.Equal(t, "en", parsed.Query().Get("vnp_Locale"))
}

// signedCallback builds a callback payload the way VNPay would: business
// fields plus a signature over the canonical query.
func signedCallback(g *VNPay, responseCode string) url.Values {
	params := url.Values{}
	params.Set("vnp_TmnCode", g.cfg.TmnCode)
	params.Set("vnp_TxnRef", "TXN-ABC123-DEADBEEF")
	params.Set("vnp_Amount", "50000000")
	params.Set("vnp_ResponseCode", responseCode)
	params.Set("vnp_TransactionNo", "14226112")
	params.Set("vnp_BankCode", "NCB")
	params.Set("vnp_PayDate", "20250314163001")
	params.Set("vnp_SecureHash", g.sign(canonicalQuery(params)))
	return params
}

func TestVNPayVerifyCallbackSuccess(t *testing.T) {
	g := testVNPay()
	params := signedCallback(g, "00")

	result := g.VerifyCallback(params)

	assert.True(t, result.Valid)
	assert.True(t, result.Succeeded)
	assert.Equal(t, "TXN-ABC123-DEADBEEF", result.OrderID)
	assert.Equal(t, "14226112", result.ProviderTransactionID)
	assert.Equal(t, int64(500000), result.Amount)
	assert.Equal(t, "00", result.ResultCode)
}

func TestVNPayVerifyCallbackAuthenticFailure(t *testing.T) {
	g := testVNPay()
	// 24 is customer cancellation: the signature is genuine, the payment is
	// not. Valid and Succeeded must disagree here.
	params := signedCallback(g, "24")

	result := g.VerifyCallback(params)

	assert.True(t, result.Valid)
	assert.False(t, result.Succeeded)
	assert.Equal(t, "24", result.ResultCode)
	assert.NotEmpty(t, result.Message)
}

func TestVNPayVerifyCallbackTamperedAmount(t *testing.T) {
	g := testVNPay()
	params := signedCallback(g, "00")
	params.Set("vnp_Amount", "100")

	result := g.VerifyCallback(params)

	assert.False(t, result.Valid)
	assert.False(t, result.Succeeded)
	assert.Equal(t, "97", result.ResultCode)
}

func TestVNPayVerifyCallbackWrongSecret(t *testing.T) {
	g := testVNPay()
	params := signedCallback(g, "00")

	other := NewVNPay(VNPayConfig{
		TmnCode:    g.cfg.TmnCode,
		HashSecret: "a-different-secret",
		PaymentURL: g.cfg.PaymentURL,
		ReturnURL:  g.cfg.ReturnURL,
	})

	result := other.VerifyCallback(params)
	assert.False(t, result.Valid)
}

func TestVNPayVerifyCallbackMissingSignature(t *testing.T) {
	g := testVNPay()

	params := url.Values{}
	params.Set("vnp_TxnRef", "TXN-1")
	params.Set("vnp_ResponseCode", "00")

	result := g.VerifyCallback(params)
	assert.False(t, result.Valid)
	assert.Equal(t, "97", result.ResultCode)
}

func TestVNPayVerifyCallbackUppercaseHash(t *testing.T) {
	g := testVNPay()
	params := signedCallback(g, "00")
	params.Set("vnp_SecureHash", strings.ToUpper(params.Get("vnp_SecureHash")))

	result := g.VerifyCallback(params)
	assert.True(t, result.Valid)
}

func TestVNPayVerifyCallbackIgnoresForeignParams(t *testing.T) {
	g := testVNPay()
	params := signedCallback(g, "00")
	// Non vnp_ parameters are outside the signed surface.
	params.Set("utm_source", "email")

	result := g.VerifyCallback(params)
	assert.True(t, result.Valid)
}

func TestCanonicalQuerySortsKeys(t *testing.T) {
	params := url.Values{}
	params.Set("b", "2")
	params.Set("a", "1 x")
	params.Set("c", "3")

	assert.Equal(t, "a=1+x&b=2&c=3", canonicalQuery(params))
}

func TestVNPaySupportedBanks(t *testing.T) {
	g := testVNPay()
	banks := g.SupportedBanks()

	require.NotEmpty(t, banks)
	seen := make(map[string]bool, len(banks))
	for _, bank := range banks {
		assert.NotEmpty(t, bank.Code)
		assert.NotEmpty(t, bank.Name)
		assert.False(t, seen[bank.Code], "duplicate bank code %s", bank.Code)
		seen[bank.Code] = true
	}
}
