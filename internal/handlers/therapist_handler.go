package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sparks-care/sparks-api/internal/models"
	"github.com/sparks-care/sparks-api/internal/services"
)

// TherapistPatients lists every patient the caller has had a session with.
func (h *Handler) TherapistPatients(c *gin.Context) {
	userID, _ := currentUser(c)
	therapist, err := h.therapistByUser(userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Therapist profile not found"})
		return
	}

	patients := make([]models.Patient, 0)
	err = h.DB.Preload("User").
		Where("id IN (?)", h.DB.Model(&models.TherapySession{}).Select("patient_id").Where("therapist_id = ?", therapist.ID)).
		Order("id").
		Find(&patients).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve patients"})
		return
	}
	c.JSON(http.StatusOK, patients)
}

// CompleteSession marks one of the caller's scheduled sessions as held.
func (h *Handler) CompleteSession(c *gin.Context) {
	userID, _ := currentUser(c)
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Notes string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	therapist, err := h.therapistByUser(userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Therapist profile not found"})
		return
	}
	var session models.TherapySession
	if err := h.DB.Preload("Patient.User").First(&session, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	if session.TherapistID != therapist.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Permission denied."})
		return
	}
	if session.Status != models.SessionScheduled {
		c.JSON(http.StatusConflict, gin.H{"error": "Session is not scheduled"})
		return
	}

	err = h.DB.Model(&session).Updates(map[string]interface{}{
		"status": models.SessionCompleted,
		"notes":  req.Notes,
	}).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update session"})
		return
	}
	session.Status = models.SessionCompleted
	session.Notes = req.Notes

	var notes []models.Notification
	for _, uid := range services.PatientUserIDs(h.DB, &session.Patient) {
		notes = append(notes, models.Notification{
			UserID:  uid,
			Type:    models.NotifySession,
			Title:   "Session completed",
			Message: fmt.Sprintf("%s marked the session on %s as completed.", therapist.User.FullName, session.ScheduledAt.Format("Jan 2")),
			Link:    "/sessions",
		})
	}
	if err := h.NotificationSvc.Notify(c.Request.Context(), notes...); err != nil {
		h.Log.Warn("completion notifications failed", err)
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) UpdateTherapistProfile(c *gin.Context) {
	userID, _ := currentUser(c)
	var req struct {
		Specialization  *string  `json:"specialization"`
		Bio             *string  `json:"bio"`
		SessionFee      *float64 `json:"sessionFee" binding:"omitempty,gt=0"`
		YearsExperience *int     `json:"yearsExperience" binding:"omitempty,gte=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	therapist, err := h.therapistByUser(userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Therapist profile not found"})
		return
	}

	updates := map[string]interface{}{}
	if req.Specialization != nil {
		updates["specialization"] = *req.Specialization
	}
	if req.Bio != nil {
		updates["bio"] = *req.Bio
	}
	if req.SessionFee != nil {
		updates["session_fee"] = *req.SessionFee
	}
	if req.YearsExperience != nil {
		updates["years_experience"] = *req.YearsExperience
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No update fields provided"})
		return
	}
	if err := h.DB.Model(therapist).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
		return
	}
	therapist, _ = h.therapistByUser(userID)
	c.JSON(http.StatusOK, therapist)
}
