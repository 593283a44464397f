package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PaymentStatus is the lifecycle state of a payment. A payment is created
// pending and moves exactly once into a terminal state; completed payments
// may later be refunded.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed from s.
// Refund handling lives outside the reconciliation path, so completed
// counts as terminal here.
func (s PaymentStatus) IsTerminal() bool {
	return s != PaymentStatusPending
}

// PaymentMethod identifies how a payment was (or will be) settled.
type PaymentMethod string

const (
	PaymentMethodVNPay        PaymentMethod = "vnpay"
	PaymentMethodMomo         PaymentMethod = "momo"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodManual       PaymentMethod = "manual"
)

// Payment is one purchase attempt for a course. TransactionID is generated
// by this system and is the only key gateway callbacks are allowed to
// reference. Student/course references are nullable so the row survives as a
// financial record after either side is deleted.
type Payment struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	TransactionID string `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_id"`
	StudentID     *uint  `gorm:"index" json:"student_id"`
	CourseID      *uint  `gorm:"index" json:"course_id"`

	// Amounts are integer VND. FinalAmount is what the gateway is asked to
	// collect and must match the course's effective price at creation time.
	Amount         int64  `gorm:"not null" json:"amount"`
	DiscountAmount int64  `gorm:"not null;default:0" json:"discount_amount"`
	FinalAmount    int64  `gorm:"not null" json:"final_amount"`
	Currency       string `gorm:"type:varchar(10);default:'VND'" json:"currency"`

	Status        PaymentStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	PaymentMethod PaymentMethod `gorm:"type:varchar(20);not null" json:"payment_method"`

	// PaymentGatewayID names the configured gateway account the request went
	// through. GatewayTransactionID is the provider's own reference and is
	// recorded only on confirmation.
	PaymentGatewayID     string `gorm:"type:varchar(100)" json:"payment_gateway_id,omitempty"`
	GatewayTransactionID string `gorm:"type:varchar(100)" json:"gateway_transaction_id,omitempty"`

	// Metadata holds the provider's raw callback payload, keyed by
	// PaymentMethod. Reconciliation never branches on its contents.
	Metadata datatypes.JSON `json:"metadata,omitempty"`

	PaidAt        *time.Time `json:"paid_at,omitempty"`
	FailureReason string     `gorm:"type:text" json:"failure_reason,omitempty"`

	Student *User   `gorm:"foreignKey:StudentID;constraint:OnDelete:SET NULL" json:"student,omitempty"`
	Course  *Course `gorm:"foreignKey:CourseID;constraint:OnDelete:SET NULL" json:"course,omitempty"`
}

// TableName specifies the table name for Payment
func (Payment) TableName() string {
	return "payments"
}
