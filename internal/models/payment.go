package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	PurposeSession  = "SESSION"
	PurposeDonation = "DONATION"
)

const (
	PaymentPending     = "PENDING"
	PaymentCompleted   = "COMPLETED"
	PaymentFailed      = "FAILED"
	PaymentCancelled   = "CANCELLED"
	PaymentChargedBack = "CHARGEDBACK"
)

type Payment struct {
	gorm.Model
	OrderID          string     `gorm:"size:64;not null;uniqueIndex" json:"orderId"`
	PayerID          *uint      `gorm:"index" json:"payerId"`
	Purpose          string     `gorm:"size:16;not null;index" json:"purpose"`
	Amount           float64    `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency         string     `gorm:"size:3;not null" json:"currency"`
	Status           string     `gorm:"size:16;not null;index" json:"status"`
	PayHerePaymentID string     `gorm:"column:payhere_payment_id;size:64" json:"payherePaymentId,omitempty"`
	Method           string     `gorm:"size:32" json:"method,omitempty"`
	StatusMessage    string     `gorm:"size:255" json:"statusMessage,omitempty"`
	CardHolderName   string     `gorm:"size:255" json:"-"`
	CardNo           string     `gorm:"size:32" json:"cardNo,omitempty"` // masked by the gateway
	CardExpiry       string     `gorm:"size:8" json:"-"`
	PaidAt           *time.Time `json:"paidAt"`

	// booking metadata, only for SESSION payments
	TherapistID     *uint      `gorm:"index" json:"therapistId,omitempty"`
	PatientID       *uint      `gorm:"index" json:"patientId,omitempty"`
	ScheduledAt     *time.Time `json:"scheduledAt,omitempty"`
	DurationMinutes int        `json:"durationMinutes,omitempty"`
}

// HasBooking reports whether the payment carries enough data to book a session.
func (p *Payment) HasBooking() bool {
	return p.Purpose == PurposeSession && p.TherapistID != nil && p.PatientID != nil &&
		p.ScheduledAt != nil && p.DurationMinutes > 0
}

type Donation struct {
	gorm.Model
	PaymentID  uint    `gorm:"not null;uniqueIndex" json:"paymentId"`
	Payment    Payment `json:"payment"`
	DonorName  string  `gorm:"size:255" json:"donorName"`
	DonorEmail string  `gorm:"size:255" json:"donorEmail"`
	Message    string  `gorm:"type:text" json:"message"`
	Anonymous  bool    `gorm:"not null;default:false" json:"anonymous"`
	Amount     float64 `gorm:"type:numeric(12,2);not null" json:"amount"`
}
