package handlers

import (
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/sparks-care/sparks-api/internal/models"
	"github.com/sparks-care/sparks-api/internal/payhere"
	"github.com/sparks-care/sparks-api/internal/services"
)

const (
	defaultSessionMinutes = 60
	minSessionMinutes     = 30
	maxSessionMinutes     = 120
)

type CheckoutRequest struct {
	TherapistID     uint   `json:"therapistId" binding:"required"`
	PatientID       uint   `json:"patientId"` // defaults to the caller's own profile
	ScheduledAt     string `json:"scheduledAt" binding:"required"`
	DurationMinutes int    `json:"durationMinutes"`
}

// sessionPrice prorates the therapist's hourly fee to the booked duration.
func sessionPrice(fee float64, minutes int) float64 {
	return math.Round(fee*float64(minutes)/60*100) / 100
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// Checkout creates a PENDING session payment carrying the booking details
// and returns the PayHere form the browser posts.
func (h *Handler) Checkout(c *gin.Context) {
	userID, role := currentUser(c)
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid time format, use RFC3339"})
		return
	}
	start = start.UTC().Truncate(time.Minute)
	if !start.After(time.Now()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Session must start in the future"})
		return
	}
	if req.DurationMinutes == 0 {
		req.DurationMinutes = defaultSessionMinutes
	}
	if req.DurationMinutes < minSessionMinutes || req.DurationMinutes > maxSessionMinutes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Duration must be between 30 and 120 minutes"})
		return
	}

	var therapist models.Therapist
	if err := h.DB.Preload("User").First(&therapist, req.TherapistID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Therapist not found"})
		return
	}
	if !therapist.IsApproved || !therapist.User.IsActive || therapist.SessionFee <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Therapist is not accepting bookings"})
		return
	}

	if req.PatientID == 0 && role == models.RolePatient {
		ids, err := h.patientsOf(userID, role)
		if err != nil || len(ids) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "Patient profile not found"})
			return
		}
		req.PatientID = ids[0]
	}
	mine, err := h.canActFor(userID, role, req.PatientID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create checkout"})
		return
	}
	if !mine {
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only book for yourself or your children"})
		return
	}

	end := start.Add(time.Duration(req.DurationMinutes) * time.Minute)
	busy, err := services.TherapistBusy(h.DB, therapist.ID, start, end, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create checkout"})
		return
	}
	if busy {
		c.JSON(http.StatusConflict, gin.H{"error": "Therapist is not available at that time"})
		return
	}

	var payer models.User
	if err := h.DB.First(&payer, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	payerID, therapistID, patientID := payer.ID, therapist.ID, req.PatientID
	payment := models.Payment{
		OrderID:         services.NewOrderID("SES"),
		PayerID:         &payerID,
		Purpose:         models.PurposeSession,
		Amount:          sessionPrice(therapist.SessionFee, req.DurationMinutes),
		Currency:        h.Currency,
		Status:          models.PaymentPending,
		TherapistID:     &therapistID,
		PatientID:       &patientID,
		ScheduledAt:     &start,
		DurationMinutes: req.DurationMinutes,
	}
	if err := h.DB.Create(&payment).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create payment"})
		return
	}

	first, last := splitName(payer.FullName)
	checkout := h.Merchant.NewCheckout(payment.OrderID, "Therapy session with "+therapist.User.FullName,
		payment.Amount, payment.Currency,
		payhere.Customer{FirstName: first, LastName: last, Email: payer.Email, Phone: payer.Phone},
		models.PurposeSession, "")

	c.JSON(http.StatusCreated, gin.H{"payment": payment, "checkout": checkout})
}

// PayHereNotify is the notify_url webhook. PayHere posts form fields and
// only cares about the status code of the answer.
func (h *Handler) PayHereNotify(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid form"})
		return
	}
	n := payhere.ParseNotification(c.Request.PostForm)

	res, err := h.Payments.HandleNotification(c.Request.Context(), n)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidSignature):
			h.Log.Warn("rejected payhere notification with bad signature for order " + n.OrderID)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
		case errors.Is(err, services.ErrUnknownStatus):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown status code"})
		case errors.Is(err, services.ErrAmountMismatch):
			h.Log.Warn("payhere amount mismatch for order " + n.OrderID)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Amount or currency mismatch"})
		case errors.Is(err, services.ErrPaymentNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
		default:
			h.Log.Error("payhere notification failed", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process notification"})
		}
		return
	}

	body := gin.H{"status": res.Payment.Status}
	if res.Duplicate {
		body["duplicate"] = true
	}
	if res.Ignored {
		body["ignored"] = true
	}
	if res.Session != nil {
		body["sessionId"] = res.Session.ID
	}
	c.JSON(http.StatusOK, body)
}

// MyPayments lists payments made by the caller.
func (h *Handler) MyPayments(c *gin.Context) {
	userID, _ := currentUser(c)
	payments := make([]models.Payment, 0)
	q := h.DB.Where("payer_id = ?", userID)
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Order("created_at DESC").Find(&payments).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve payments"})
		return
	}
	c.JSON(http.StatusOK, payments)
}

// PaymentStatus lets the return page poll one of the caller's orders.
func (h *Handler) PaymentStatus(c *gin.Context) {
	userID, _ := currentUser(c)
	var payment models.Payment
	err := h.DB.Where("order_id = ? AND payer_id = ?", c.Param("orderId"), userID).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve payment"})
		return
	}

	var session *models.TherapySession
	var s models.TherapySession
	if err := h.DB.Where("payment_id = ?", payment.ID).First(&s).Error; err == nil {
		session = &s
	}
	c.JSON(http.StatusOK, gin.H{"payment": payment, "session": session})
}
