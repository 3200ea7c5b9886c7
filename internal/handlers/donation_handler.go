package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/sparks-care/sparks-api/internal/models"
	"github.com/sparks-care/sparks-api/internal/payhere"
	"github.com/sparks-care/sparks-api/internal/services"
)

type DonationRequest struct {
	Amount     float64 `json:"amount" binding:"required,gt=0"`
	DonorName  string  `json:"donorName" binding:"required,notblank"`
	DonorEmail string  `json:"donorEmail" binding:"required,email"`
	Phone      string  `json:"phone"`
	Message    string  `json:"message" binding:"max=1000"`
	Anonymous  bool    `json:"anonymous"`
}

// CreateDonation is public. The donation only counts once PayHere reports
// the payment COMPLETED.
func (h *Handler) CreateDonation(c *gin.Context) {
	var req DonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payment := models.Payment{
		OrderID:  services.NewOrderID("DON"),
		Purpose:  models.PurposeDonation,
		Amount:   req.Amount,
		Currency: h.Currency,
		Status:   models.PaymentPending,
	}
	donation := models.Donation{
		DonorName:  strings.TrimSpace(req.DonorName),
		DonorEmail: strings.ToLower(strings.TrimSpace(req.DonorEmail)),
		Message:    req.Message,
		Anonymous:  req.Anonymous,
		Amount:     req.Amount,
	}
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}
		donation.PaymentID = payment.ID
		return tx.Omit("Payment").Create(&donation).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create donation"})
		return
	}

	first, last := splitName(donation.DonorName)
	checkout := h.Merchant.NewCheckout(payment.OrderID, "Donation to SPARKS", payment.Amount, payment.Currency,
		payhere.Customer{FirstName: first, LastName: last, Email: donation.DonorEmail, Phone: req.Phone},
		models.PurposeDonation, "")

	c.JSON(http.StatusCreated, gin.H{"orderId": payment.OrderID, "donationId": donation.ID, "checkout": checkout})
}
