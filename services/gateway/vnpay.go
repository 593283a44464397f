package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// VerifyResult is the normalized verdict for a gateway callback. Valid means
// the payload is authentic (signature checks out); Succeeded means the
// provider reports the payment itself went through. A forged payload is
// Valid=false regardless of its business fields; an authentic decline is
// Valid=true, Succeeded=false.
type VerifyResult struct {
	Valid                 bool
	Succeeded             bool
	OrderID               string
	ProviderTransactionID string
	Amount                int64
	ResultCode            string
	Message               string
}

// VNPayConfig is the immutable configuration for one VNPay merchant account.
type VNPayConfig struct {
	TmnCode    string
	HashSecret string
	PaymentURL string // e.g. https://sandbox.vnpayment.vn/paymentv2/vpcpay.html
	ReturnURL  string
}

// VNPay builds signed redirect URLs and verifies return/IPN payloads for the
// VNPay gateway. It holds no mutable state; every method is safe for
// concurrent use.
type VNPay struct {
	cfg VNPayConfig
	now func() time.Time
}

// NewVNPay creates a VNPay adapter from config.
func NewVNPay(cfg VNPayConfig) *VNPay {
	return &VNPay{cfg: cfg, now: time.Now}
}

// VNPayRequest describes one outbound payment redirect.
type VNPayRequest struct {
	OrderID   string
	Amount    int64 // VND
	OrderInfo string
	BankCode  string // optional, preselects a bank
	Locale    string // "vn" or "en", defaults to "vn"
	ClientIP  string
}

const (
	vnpVersion     = "2.1.0"
	vnpCommand     = "pay"
	vnpCurrency    = "VND"
	vnpOrderType   = "other"
	vnpSuccessCode = "00"
)

// CreatePaymentURL builds the signed redirect URL for a payment. This is a
// pure local computation; parameter ordering and encoding must match VNPay's
// signature algorithm exactly or the gateway silently rejects the request.
func (g *VNPay) CreatePaymentURL(req VNPayRequest) string {
	locale := req.Locale
	if locale != "en" {
		locale = "vn"
	}

	// VNPay timestamps are Vietnam local time.
	loc := time.FixedZone("ICT", 7*3600)
	createDate := g.now().In(loc)

	params := url.Values{}
	params.Set("vnp_Version", vnpVersion)
	params.Set("vnp_Command", vnpCommand)
	params.Set("vnp_TmnCode", g.cfg.TmnCode)
	params.Set("vnp_Amount", strconv.FormatInt(req.Amount*100, 10))
	params.Set("vnp_CurrCode", vnpCurrency)
	params.Set("vnp_TxnRef", req.OrderID)
	params.Set("vnp_OrderInfo", req.OrderInfo)
	params.Set("vnp_OrderType", vnpOrderType)
	params.Set("vnp_Locale", locale)
	params.Set("vnp_ReturnUrl", g.cfg.ReturnURL)
	params.Set("vnp_IpAddr", req.ClientIP)
	params.Set("vnp_CreateDate", createDate.Format("20060102150405"))
	params.Set("vnp_ExpireDate", createDate.Add(15*time.Minute).Format("20060102150405"))
	if req.BankCode != "" {
		params.Set("vnp_BankCode", req.BankCode)
	}

	signData := canonicalQuery(params)
	secureHash := g.sign(signData)

	return g.cfg.PaymentURL + "?" + signData + "&vnp_SecureHash=" + secureHash
}

// VerifyCallback checks the signature of a return-URL or IPN payload and
// normalizes its business fields. It is idempotent and never panics on
// malformed input; anything unverifiable comes back Valid=false.
func (g *VNPay) VerifyCallback(params url.Values) VerifyResult {
	received := params.Get("vnp_SecureHash")
	orderID := params.Get("vnp_TxnRef")
	if received == "" || orderID == "" {
		return VerifyResult{
			OrderID:    orderID,
			ResultCode: "97",
			Message:    "Missing signature",
		}
	}

	// The hash fields are excluded from the data they sign.
	filtered := url.Values{}
	for key, vals := range params {
		if key == "vnp_SecureHash" || key == "vnp_SecureHashType" {
			continue
		}
		if len(vals) > 0 && strings.HasPrefix(key, "vnp_") {
			filtered.Set(key, vals[0])
		}
	}

	expected := g.sign(canonicalQuery(filtered))
	if !hmac.Equal([]byte(strings.ToLower(received)), []byte(expected)) {
		return VerifyResult{
			OrderID:    orderID,
			ResultCode: "97",
			Message:    "Invalid signature",
		}
	}

	// vnp_Amount carries the amount multiplied by 100.
	amount, _ := strconv.ParseInt(params.Get("vnp_Amount"), 10, 64)
	code := params.Get("vnp_ResponseCode")

	res := VerifyResult{
		Valid:                 true,
		Succeeded:             code == vnpSuccessCode,
		OrderID:               orderID,
		ProviderTransactionID: params.Get("vnp_TransactionNo"),
		Amount:                amount / 100,
		ResultCode:            code,
	}
	if res.Succeeded {
		res.Message = "Success"
	} else {
		res.Message = vnpayResponseMessage(code)
	}
	return res
}

func (g *VNPay) sign(data string) string {
	mac := hmac.New(sha512.New, []byte(g.cfg.HashSecret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// canonicalQuery encodes params as VNPay's signature algorithm expects:
// keys in ascending ASCII order, values query-escaped (space as '+').
func canonicalQuery(params url.Values) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, key := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params.Get(key)))
	}
	return b.String()
}

// vnpayResponseMessage maps VNPay response codes to human-readable reasons.
func vnpayResponseMessage(code string) string {
	switch code {
	case "07":
		return "Deducted, transaction suspected fraudulent"
	case "09":
		return "Card not registered for online banking"
	case "10":
		return "Card information verified incorrectly more than 3 times"
	case "11":
		return "Payment window expired"
	case "12":
		return "Card or account is locked"
	case "13":
		return "Incorrect OTP"
	case "24":
		return "Transaction cancelled by customer"
	case "51":
		return "Insufficient funds"
	case "65":
		return "Account exceeded daily transaction limit"
	case "75":
		return "Bank under maintenance"
	case "79":
		return "Incorrect payment password entered too many times"
	default:
		return fmt.Sprintf("Payment failed (code %s)", code)
	}
}

// VNPayBank is an entry in the supported-bank directory shown to the buyer
// before redirect.
type VNPayBank struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// SupportedBanks returns the banks that can be preselected via vnp_BankCode.
func (g *VNPay) SupportedBanks() []VNPayBank {
	return []VNPayBank{
		{Code: "NCB", Name: "Ngan hang NCB"},
		{Code: "AGRIBANK", Name: "Ngan hang Agribank"},
		{Code: "SCB", Name: "Ngan hang SCB"},
		{Code: "SACOMBANK", Name: "Ngan hang SacomBank"},
		{Code: "EXIMBANK", Name: "Ngan hang EximBank"},
		{Code: "MSBANK", Name: "Ngan hang MSBANK"},
		{Code: "NAMABANK", Name: "Ngan hang NamABank"},
		{Code: "VNMART", Name: "Vi dien tu VnMart"},
		{Code: "VIETINBANK", Name: "Ngan hang Vietinbank"},
		{Code: "VIETCOMBANK", Name: "Ngan hang VCB"},
		{Code: "HDBANK", Name: "Ngan hang HDBank"},
		{Code: "DONGABANK", Name: "Ngan hang Dong A"},
		{Code: "TPBANK", Name: "Ngan hang TPBank"},
		{Code: "OJB", Name: "Ngan hang OceanBank"},
		{Code: "BIDV", Name: "Ngan hang BIDV"},
		{Code: "TECHCOMBANK", Name: "Ngan hang Techcombank"},
		{Code: "VPBANK", Name: "Ngan hang VPBank"},
		{Code: "MBBANK", Name: "Ngan hang MBBank"},
		{Code: "ACB", Name: "Ngan hang ACB"},
		{Code: "OCB", Name: "Ngan hang OCB"},
		{Code: "IVB", Name: "Ngan hang IVB"},
		{Code: "VISA", Name: "Thanh toan qua VISA/MASTER"},
	}
}
