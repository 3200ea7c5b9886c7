package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sparks-care/sparks-api/internal/models"
)

type MedicationRequest struct {
	Name         string `json:"name" binding:"required,notblank"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	Instructions string `json:"instructions"`
	StartDate    string `json:"startDate"`
	EndDate      string `json:"endDate"`
}

func (r MedicationRequest) dates() (time.Time, *time.Time, bool) {
	start := time.Now().UTC().Truncate(24 * time.Hour)
	if r.StartDate != "" {
		t, ok := parseDay(r.StartDate)
		if !ok {
			return start, nil, false
		}
		start = t
	}
	if r.EndDate == "" {
		return start, nil, true
	}
	end, ok := parseDay(r.EndDate)
	if !ok || end.Before(start) {
		return start, nil, false
	}
	return start, &end, true
}

// PrescribeMedication adds a medication for one of the therapist's patients.
func (h *Handler) PrescribeMedication(c *gin.Context) {
	userID, _ := currentUser(c)
	patientID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req MedicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, end, ok := req.dates()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid start or end date"})
		return
	}

	therapist, err := h.therapistByUser(userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Therapist profile not found"})
		return
	}
	treats, err := h.treats(therapist.ID, patientID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to prescribe medication"})
		return
	}
	if !treats {
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only prescribe for your own patients"})
		return
	}

	med := models.Medication{
		PatientID:      patientID,
		PrescribedByID: therapist.ID,
		Name:           req.Name,
		Dosage:         req.Dosage,
		Frequency:      req.Frequency,
		Instructions:   req.Instructions,
		StartDate:      start,
		EndDate:        end,
		IsActive:       true,
	}
	if err := h.DB.Create(&med).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to prescribe medication"})
		return
	}

	var patient models.Patient
	if err := h.DB.First(&patient, patientID).Error; err == nil {
		err = h.NotificationSvc.Notify(c.Request.Context(), models.Notification{
			UserID:  patient.UserID,
			Type:    models.NotifySystem,
			Title:   "New medication",
			Message: therapist.User.FullName + " prescribed " + med.Name + ".",
			Link:    "/medications",
		})
		if err != nil {
			h.Log.Warn("medication notification failed", err)
		}
	}
	c.JSON(http.StatusCreated, med)
}

func (h *Handler) prescribedMedication(c *gin.Context) (*models.Medication, bool) {
	userID, _ := currentUser(c)
	id, ok := paramID(c, "id")
	if !ok {
		return nil, false
	}
	therapist, err := h.therapistByUser(userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Therapist profile not found"})
		return nil, false
	}
	var med models.Medication
	if err := h.DB.First(&med, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Medication not found"})
		return nil, false
	}
	if med.PrescribedByID != therapist.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Permission denied."})
		return nil, false
	}
	return &med, true
}

func (h *Handler) UpdateMedication(c *gin.Context) {
	med, ok := h.prescribedMedication(c)
	if !ok {
		return
	}
	var req MedicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, end, ok := req.dates()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid start or end date"})
		return
	}

	err := h.DB.Model(med).Updates(map[string]interface{}{
		"name":         req.Name,
		"dosage":       req.Dosage,
		"frequency":    req.Frequency,
		"instructions": req.Instructions,
		"start_date":   start,
		"end_date":     end,
	}).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update medication"})
		return
	}
	h.DB.First(med, med.ID)
	c.JSON(http.StatusOK, med)
}

// DeactivateMedication keeps the row and its logs but stops the course.
func (h *Handler) DeactivateMedication(c *gin.Context) {
	med, ok := h.prescribedMedication(c)
	if !ok {
		return
	}
	if err := h.DB.Model(med).Update("is_active", false).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to deactivate medication"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Medication deactivated"})
}

// PatientMedications lists medications for the caller, or for one of a
// guardian's children with ?patientId=.
func (h *Handler) PatientMedications(c *gin.Context) {
	userID, role := currentUser(c)
	ids, err := h.patientsOf(userID, role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve medications"})
		return
	}
	if raw := c.Query("patientId"); raw != "" {
		want, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid patientId"})
			return
		}
		mine := false
		for _, id := range ids {
			if id == uint(want) {
				mine = true
			}
		}
		if !mine {
			c.JSON(http.StatusForbidden, gin.H{"error": "Permission denied."})
			return
		}
		ids = []uint{uint(want)}
	}

	meds := make([]models.Medication, 0)
	if len(ids) > 0 {
		q := h.DB.Where("patient_id IN ?", ids)
		if c.Query("active") == "true" {
			q = q.Where("is_active = ?", true)
		}
		if err := q.Order("start_date DESC").Find(&meds).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve medications"})
			return
		}
	}
	c.JSON(http.StatusOK, meds)
}

// takenMedication loads :id if the caller is the patient or their guardian.
func (h *Handler) takenMedication(c *gin.Context) (*models.Medication, bool) {
	userID, role := currentUser(c)
	id, ok := paramID(c, "id")
	if !ok {
		return nil, false
	}
	var med models.Medication
	if err := h.DB.First(&med, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Medication not found"})
		return nil, false
	}
	mine, err := h.canActFor(userID, role, med.PatientID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load medication"})
		return nil, false
	}
	if !mine {
		c.JSON(http.StatusNotFound, gin.H{"error": "Medication not found"})
		return nil, false
	}
	return &med, true
}

func (h *Handler) LogMedication(c *gin.Context) {
	med, ok := h.takenMedication(c)
	if !ok {
		return
	}
	var req struct {
		TakenAt string `json:"takenAt"`
		Skipped bool   `json:"skipped"`
		Notes   string `json:"notes" binding:"max=512"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !med.IsActive {
		c.JSON(http.StatusConflict, gin.H{"error": "Medication is no longer active"})
		return
	}

	takenAt := time.Now().UTC()
	if req.TakenAt != "" {
		t, err := time.Parse(time.RFC3339, req.TakenAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid time format, use RFC3339"})
			return
		}
		takenAt = t.UTC()
	}
	entry := models.MedicationLog{MedicationID: med.ID, TakenAt: takenAt, Skipped: req.Skipped, Notes: req.Notes}
	if err := h.DB.Create(&entry).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log medication"})
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *Handler) MedicationLogs(c *gin.Context) {
	med, ok := h.takenMedication(c)
	if !ok {
		return
	}
	logs := make([]models.MedicationLog, 0)
	if err := h.DB.Where("medication_id = ?", med.ID).Order("taken_at DESC").Find(&logs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve logs"})
		return
	}
	c.JSON(http.StatusOK, logs)
}
