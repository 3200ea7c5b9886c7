package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/sparks-care/sparks-api/internal/logger"
	"github.com/sparks-care/sparks-api/internal/middleware"
	"github.com/sparks-care/sparks-api/internal/models"
	"github.com/sparks-care/sparks-api/internal/payhere"
	"github.com/sparks-care/sparks-api/internal/services"
	"github.com/sparks-care/sparks-api/internal/storage"
)

// Handler carries the dependencies shared by every route.
type Handler struct {
	DB              *gorm.DB
	NotificationSvc *services.NotificationService
	Payments        *services.PaymentReconciler
	Reminders       *services.ReminderService
	Messages        services.MessageStore // nil without MongoDB
	Storage         *storage.Local
	Merchant        payhere.Merchant
	Currency        string
	Log             logger.Logger
}

func NewHandler(db *gorm.DB, notificationSvc *services.NotificationService, payments *services.PaymentReconciler, log logger.Logger) *Handler {
	return &Handler{
		DB:              db,
		NotificationSvc: notificationSvc,
		Payments:        payments,
		Currency:        "LKR",
		Log:             log,
	}
}

func currentUser(c *gin.Context) (uint, string) {
	return middleware.CurrentUser(c)
}

// paramID reads a numeric path parameter and answers 400 when it isn't one.
func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return uint(id), true
}

func notFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// parseDay accepts 2006-01-02 or RFC3339.
func parseDay(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// parseUntil is parseDay for upper bounds: a bare date includes that
// whole day.
func parseUntil(s string) (time.Time, bool) {
	t, ok := parseDay(s)
	if ok && len(s) == len("2006-01-02") {
		t = t.Add(24 * time.Hour)
	}
	return t, ok
}

func (h *Handler) therapistByUser(userID uint) (*models.Therapist, error) {
	var t models.Therapist
	if err := h.DB.Preload("User").Where("user_id = ?", userID).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (h *Handler) guardianByUser(userID uint) (*models.ParentGuardian, error) {
	var g models.ParentGuardian
	if err := h.DB.Where("user_id = ?", userID).First(&g).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

// patientsOf returns the patient ids the caller may act for: their own
// profile for patients, their children for guardians.
func (h *Handler) patientsOf(userID uint, role string) ([]uint, error) {
	var ids []uint
	switch role {
	case models.RolePatient:
		err := h.DB.Model(&models.Patient{}).Where("user_id = ?", userID).Pluck("id", &ids).Error
		return ids, err
	case models.RoleGuardian:
		err := h.DB.Model(&models.Patient{}).
			Where("guardian_id IN (?)", h.DB.Model(&models.ParentGuardian{}).Select("id").Where("user_id = ?", userID)).
			Pluck("id", &ids).Error
		return ids, err
	}
	return nil, nil
}

// canActFor reports whether a patient or guardian may act for patientID.
func (h *Handler) canActFor(userID uint, role string, patientID uint) (bool, error) {
	ids, err := h.patientsOf(userID, role)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == patientID {
			return true, nil
		}
	}
	return false, nil
}

// treats reports whether the therapist has ever had a session with the patient.
func (h *Handler) treats(therapistID, patientID uint) (bool, error) {
	var n int64
	err := h.DB.Model(&models.TherapySession{}).
		Where("therapist_id = ? AND patient_id = ?", therapistID, patientID).
		Count(&n).Error
	return n > 0, err
}

func isStaff(role string) bool {
	return role == models.RoleAdmin || role == models.RoleManager
}
