package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/sparks-care/sparks-api/internal/models"
	"github.com/sparks-care/sparks-api/internal/services"
)

// ListTherapists is public: approved therapists with active accounts.
func (h *Handler) ListTherapists(c *gin.Context) {
	q := h.DB.Preload("User").
		Joins("JOIN users ON users.id = therapists.user_id").
		Where("therapists.is_approved = ? AND users.is_active = ?", true, true)
	if spec := c.Query("specialization"); spec != "" {
		q = q.Where("LOWER(therapists.specialization) LIKE LOWER(?)", "%"+spec+"%")
	}

	therapists := make([]models.Therapist, 0)
	if err := q.Order("users.full_name").Find(&therapists).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve therapists"})
		return
	}
	c.JSON(http.StatusOK, therapists)
}

// sessionFilters applies ?status=&from=&to= the same way for every listing.
func sessionFilters(c *gin.Context, q *gorm.DB) *gorm.DB {
	if from, ok := parseDay(c.Query("from")); ok {
		q = q.Where("therapy_sessions.scheduled_at >= ?", from)
	}
	if to, ok := parseUntil(c.Query("to")); ok {
		q = q.Where("therapy_sessions.scheduled_at < ?", to)
	}
	if status := c.Query("status"); status != "" {
		q = q.Where("therapy_sessions.status = ?", status)
	}
	return q
}

// GetSessions lists sessions visible to the caller.
func (h *Handler) GetSessions(c *gin.Context) {
	userID, role := currentUser(c)
	q := h.DB.Model(&models.TherapySession{})

	switch role {
	case models.RolePatient, models.RoleGuardian:
		ids, err := h.patientsOf(userID, role)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve sessions"})
			return
		}
		if len(ids) == 0 {
			c.JSON(http.StatusOK, []models.TherapySession{})
			return
		}
		q = q.Where("patient_id IN ?", ids)
	case models.RoleTherapist:
		therapist, err := h.therapistByUser(userID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Therapist profile not found"})
			return
		}
		q = q.Where("therapist_id = ?", therapist.ID)
	default:
		// staff can narrow down to one patient or therapist
		if id, err := strconv.ParseUint(c.Query("patientId"), 10, 64); err == nil {
			q = q.Where("patient_id = ?", id)
		}
		if id, err := strconv.ParseUint(c.Query("therapistId"), 10, 64); err == nil {
			q = q.Where("therapist_id = ?", id)
		}
	}

	sessions := make([]models.TherapySession, 0)
	err := sessionFilters(c, q).
		Preload("Patient.User").Preload("Therapist.User").
		Order("scheduled_at DESC").
		Find(&sessions).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve sessions"})
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// CancelSession lets a participant cancel an upcoming session. The other
// side is notified.
func (h *Handler) CancelSession(c *gin.Context) {
	userID, role := currentUser(c)
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var session models.TherapySession
	if err := h.DB.Preload("Patient.User").Preload("Therapist.User").First(&session, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	allowed := isStaff(role)
	switch role {
	case models.RolePatient, models.RoleGuardian:
		var err error
		if allowed, err = h.canActFor(userID, role, session.PatientID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel session"})
			return
		}
	case models.RoleTherapist:
		allowed = session.Therapist.UserID == userID
	}
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "Permission denied."})
		return
	}
	if session.Status != models.SessionScheduled || !session.ScheduledAt.After(time.Now()) {
		c.JSON(http.StatusConflict, gin.H{"error": "Only upcoming scheduled sessions can be cancelled"})
		return
	}

	res := h.DB.Model(&models.TherapySession{}).
		Where("id = ? AND status = ?", session.ID, models.SessionScheduled).
		Update("status", models.SessionCancelled)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel session"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Session was already updated"})
		return
	}
	session.Status = models.SessionCancelled

	when := session.ScheduledAt.Format("Mon Jan 2, 15:04 MST")
	recipients := append(services.PatientUserIDs(h.DB, &session.Patient), session.Therapist.UserID)
	var notes []models.Notification
	for _, uid := range recipients {
		if uid == userID {
			continue
		}
		notes = append(notes, models.Notification{
			UserID:  uid,
			Type:    models.NotifySession,
			Title:   "Session cancelled",
			Message: fmt.Sprintf("The session on %s between %s and %s was cancelled.", when, session.Patient.User.FullName, session.Therapist.User.FullName),
			Link:    "/sessions",
		})
	}
	if err := h.NotificationSvc.Notify(c.Request.Context(), notes...); err != nil {
		h.Log.Warn("cancel notifications failed", err)
	}

	c.JSON(http.StatusOK, session)
}
