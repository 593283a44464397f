package services

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/sahilchouksey/course-market-api/model"
)

// InvoiceService renders a payment into a fixed-layout PDF invoice. It is a
// pure function of already-committed data; nothing here touches the ledger.
type InvoiceService struct {
	sellerName string
	sellerAddr string
}

// NewInvoiceService creates a new invoice service
func NewInvoiceService() *InvoiceService {
	return &InvoiceService{
		sellerName: getEnvOrDefault("INVOICE_SELLER_NAME", "Course Market"),
		sellerAddr: getEnvOrDefault("INVOICE_SELLER_ADDRESS", "Ho Chi Minh City, Vietnam"),
	}
}

// Render builds the one-page invoice PDF for a payment.
func (s *InvoiceService) Render(payment *model.Payment) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Invoice %s", payment.TransactionID), false)
	pdf.AddPage()

	// Header
	pdf.SetFont("Helvetica", "B", 20)
	pdf.Cell(100, 10, s.sellerName)
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "INVOICE", "", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.Cell(100, 6, s.sellerAddr)
	pdf.CellFormat(0, 6, fmt.Sprintf("No. %s", payment.TransactionID), "", 1, "R", false, 0, "")

	issued := payment.CreatedAt
	if payment.PaidAt != nil {
		issued = *payment.PaidAt
	}
	pdf.Cell(100, 6, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Date: %s", issued.Format("2006-01-02")), "", 1, "R", false, 0, "")
	pdf.Ln(8)

	// Buyer
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 7, "Billed to", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	if payment.Student != nil {
		pdf.CellFormat(0, 6, payment.Student.Name, "", 1, "L", false, 0, "")
		pdf.CellFormat(0, 6, payment.Student.Email, "", 1, "L", false, 0, "")
	} else {
		pdf.CellFormat(0, 6, "(account removed)", "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	// Line items table
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(240, 240, 240)
	pdf.CellFormat(100, 8, "Description", "1", 0, "L", true, 0, "")
	pdf.CellFormat(30, 8, "List price", "1", 0, "R", true, 0, "")
	pdf.CellFormat(30, 8, "Discount", "1", 0, "R", true, 0, "")
	pdf.CellFormat(30, 8, "Amount", "1", 1, "R", true, 0, "")

	description := "Course purchase"
	if payment.Course != nil {
		description = payment.Course.Title
	}

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(100, 8, description, "1", 0, "L", false, 0, "")
	pdf.CellFormat(30, 8, formatVND(payment.Amount), "1", 0, "R", false, 0, "")
	pdf.CellFormat(30, 8, formatVND(payment.DiscountAmount), "1", 0, "R", false, 0, "")
	pdf.CellFormat(30, 8, formatVND(payment.FinalAmount), "1", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(160, 8, "Total", "1", 0, "R", false, 0, "")
	pdf.CellFormat(30, 8, fmt.Sprintf("%s %s", formatVND(payment.FinalAmount), payment.Currency), "1", 1, "R", false, 0, "")
	pdf.Ln(8)

	// Payment details
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 5, fmt.Sprintf("Payment method: %s", payment.PaymentMethod), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 5, fmt.Sprintf("Status: %s", payment.Status), "", 1, "L", false, 0, "")
	if payment.GatewayTransactionID != "" {
		pdf.CellFormat(0, 5, fmt.Sprintf("Gateway reference: %s", payment.GatewayTransactionID), "", 1, "L", false, 0, "")
	}
	if payment.PaidAt != nil {
		pdf.CellFormat(0, 5, fmt.Sprintf("Paid at: %s", payment.PaidAt.Format(time.RFC3339)), "", 1, "L", false, 0, "")
	}

	pdf.Ln(10)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.CellFormat(0, 5, "This invoice was generated electronically and is valid without a signature.", "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render invoice: %w", err)
	}
	return buf.Bytes(), nil
}

// formatVND groups digits in thousands, the way Vietnamese amounts are
// usually printed (1.500.000).
func formatVND(amount int64) string {
	if amount < 0 {
		return "-" + formatVND(-amount)
	}
	s := fmt.Sprintf("%d", amount)
	if len(s) <= 3 {
		return s
	}
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, '.')
		}
		out = append(out, c)
	}
	return string(out)
}
