package services

import (
	"testing"
	"time"

	"github.com/sahilchouksey/course-market-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCompletedPayment() *model.Payment {
	studentID := uint(7)
	courseID := uint(12)
	paidAt := time.Date(2025, 3, 14, 16, 30, 1, 0, time.UTC)

	return &model.Payment{
		TransactionID:        "TXN-ABC123-DEADBEEF",
		StudentID:            &studentID,
		CourseID:             &courseID,
		Amount:               800000,
		DiscountAmount:       150000,
		FinalAmount:          650000,
		Currency:             "VND",
		Status:               model.PaymentStatusCompleted,
		PaymentMethod:        model.PaymentMethodVNPay,
		GatewayTransactionID: "14226112",
		PaidAt:               &paidAt,
		Student: &model.User{
			Name:  "Minh Nguyen",
			Email: "student1@coursemarket.local",
		},
		Course: &model.Course{
			Title: "SQL for Analysts",
		},
	}
}

func TestInvoiceRender(t *testing.T) {
	svc := NewInvoiceService()

	data, err := svc.Render(sampleCompletedPayment())
	require.NoError(t, err)

	require.NotEmpty(t, data)
	assert.Equal(t, "%PDF", string(data[:4]))
}

func TestInvoiceRenderWithoutStudent(t *testing.T) {
	svc := NewInvoiceService()

	payment := sampleCompletedPayment()
	payment.Student = nil
	payment.StudentID = nil

	// Confirmed payments outlive account deletion; the invoice still renders.
	data, err := svc.Render(payment)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data[:4]))
}

func TestFormatVND(t *testing.T) {
	assert.Equal(t, "0", formatVND(0))
	assert.Equal(t, "500", formatVND(500))
	assert.Equal(t, "500.000", formatVND(500000))
	assert.Equal(t, "1.234.567", formatVND(1234567))
	assert.Equal(t, "-650.000", formatVND(-650000))
}
