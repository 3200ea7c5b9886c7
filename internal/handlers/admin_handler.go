package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sparks-care/sparks-api/internal/models"
	"github.com/sparks-care/sparks-api/internal/reports"
	"github.com/sparks-care/sparks-api/internal/services"
)

var allRoles = map[string]bool{
	models.RolePatient:   true,
	models.RoleGuardian:  true,
	models.RoleTherapist: true,
	models.RoleManager:   true,
	models.RoleAdmin:     true,
}

func (h *Handler) AdminUsers(c *gin.Context) {
	q := h.DB.Model(&models.User{})
	if role := c.Query("role"); role != "" {
		if !allRoles[role] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role"})
			return
		}
		q = q.Where("role = ?", role)
	}
	users := make([]models.User, 0)
	if err := q.Order("created_at DESC").Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve users"})
		return
	}
	c.JSON(http.StatusOK, users)
}

// SetUserStatus activates or deactivates an account. Admins can't lock
// themselves out.
func (h *Handler) SetUserStatus(c *gin.Context) {
	callerID, _ := currentUser(c)
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		IsActive *bool `json:"isActive" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "isActive is required"})
		return
	}
	if id == callerID && !*req.IsActive {
		c.JSON(http.StatusBadRequest, gin.H{"error": "You cannot deactivate your own account"})
		return
	}

	var user models.User
	if err := h.DB.First(&user, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err := h.DB.Model(&user).Update("is_active", *req.IsActive).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) ApproveTherapist(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Approved *bool `json:"approved"`
	}
	_ = c.ShouldBindJSON(&req)
	approved := req.Approved == nil || *req.Approved

	var therapist models.Therapist
	if err := h.DB.Preload("User").First(&therapist, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Therapist not found"})
		return
	}
	if err := h.DB.Model(&therapist).Update("is_approved", approved).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update therapist"})
		return
	}

	title, message := "Profile approved", "You can now accept bookings."
	if !approved {
		title, message = "Profile approval withdrawn", "Your profile is hidden from patients until it is approved again."
	}
	err := h.NotificationSvc.Notify(c.Request.Context(), models.Notification{
		UserID:  therapist.UserID,
		Type:    models.NotifySystem,
		Title:   title,
		Message: message,
		Link:    "/therapist/profile",
	})
	if err != nil {
		h.Log.Warn("approval notification failed", err)
	}
	c.JSON(http.StatusOK, therapist)
}

// reportFilter reads status, purpose, from and to query parameters.
func reportFilter(c *gin.Context) (reports.Filter, bool) {
	f := reports.Filter{Status: c.Query("status"), Purpose: c.Query("purpose")}
	if raw := c.Query("from"); raw != "" {
		t, ok := parseDay(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid from date"})
			return f, false
		}
		f.From = t
	}
	if raw := c.Query("to"); raw != "" {
		t, ok := parseUntil(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid to date"})
			return f, false
		}
		f.To = t
	}
	return f, true
}

func (h *Handler) AdminPayments(c *gin.Context) {
	f, ok := reportFilter(c)
	if !ok {
		return
	}
	payments, err := reports.Payments(c.Request.Context(), h.DB, f)
	if err != nil {
		h.Log.Error("list payments failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve payments"})
		return
	}
	c.JSON(http.StatusOK, payments)
}

func (h *Handler) AdminSessions(c *gin.Context) {
	f, ok := reportFilter(c)
	if !ok {
		return
	}
	sessions, err := reports.Sessions(c.Request.Context(), h.DB, f)
	if err != nil {
		h.Log.Error("list sessions failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve sessions"})
		return
	}
	c.JSON(http.StatusOK, sessions)
}

func (h *Handler) AdminDonations(c *gin.Context) {
	f, ok := reportFilter(c)
	if !ok {
		return
	}
	donations, err := reports.Donations(c.Request.Context(), h.DB, f)
	if err != nil {
		h.Log.Error("list donations failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve donations"})
		return
	}
	c.JSON(http.StatusOK, donations)
}

type Stats struct {
	Users           map[string]int64 `json:"users"`
	PendingApproval int64            `json:"pendingApproval"`
	Sessions        map[string]int64 `json:"sessions"`
	Revenue         float64          `json:"revenue"`
	Donations       float64          `json:"donations"`
	OpenTickets     int64            `json:"openTickets"`
}

type groupCount struct {
	Name  string
	Count int64
}

func (h *Handler) AdminStats(c *gin.Context) {
	db := h.DB.WithContext(c.Request.Context())
	stats := Stats{Users: map[string]int64{}, Sessions: map[string]int64{}}

	var rows []groupCount
	if err := db.Model(&models.User{}).Select("role AS name, COUNT(*) AS count").Group("role").Scan(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute stats"})
		return
	}
	for _, r := range rows {
		stats.Users[r.Name] = r.Count
	}

	rows = nil
	if err := db.Model(&models.TherapySession{}).Select("status AS name, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute stats"})
		return
	}
	for _, r := range rows {
		stats.Sessions[r.Name] = r.Count
	}

	err := db.Model(&models.Therapist{}).Where("is_approved = ?", false).Count(&stats.PendingApproval).Error
	if err == nil {
		err = db.Model(&models.Payment{}).
			Where("status = ? AND purpose = ?", models.PaymentCompleted, models.PurposeSession).
			Select("COALESCE(SUM(amount), 0)").Scan(&stats.Revenue).Error
	}
	if err == nil {
		err = db.Model(&models.Payment{}).
			Where("status = ? AND purpose = ?", models.PaymentCompleted, models.PurposeDonation).
			Select("COALESCE(SUM(amount), 0)").Scan(&stats.Donations).Error
	}
	if err == nil {
		err = db.Model(&models.SupportTicket{}).
			Where("status IN ?", []string{models.TicketOpen, models.TicketInProgress}).
			Count(&stats.OpenTickets).Error
	}
	if err != nil {
		h.Log.Error("stats failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// BookPaidSession is the manual follow-up for a completed payment whose
// session could not be booked automatically.
func (h *Handler) BookPaidSession(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var payment models.Payment
	if err := h.DB.First(&payment, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
		return
	}

	session, err := h.Payments.EnsureSession(c.Request.Context(), &payment)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, session)
	case errors.Is(err, services.ErrPaymentNotCompleted), errors.Is(err, services.ErrNoBooking):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrTherapistBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.Log.Error("manual booking failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to book session"})
	}
}
