package services

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sparks-care/sparks-api/internal/models"
)

// TherapistBusy reports whether the therapist has a scheduled session
// overlapping [start, end). excludeID skips one session (0 for none).
func TherapistBusy(db *gorm.DB, therapistID uint, start, end time.Time, excludeID uint) (bool, error) {
	q := db.Model(&models.TherapySession{}).
		Where("therapist_id = ? AND status = ? AND scheduled_at < ? AND ends_at > ?",
			therapistID, models.SessionScheduled, end.UTC(), start.UTC())
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// NewOrderID returns PREFIX-XXXXXXXXXXXX, unique enough for PayHere order ids.
func NewOrderID(prefix string) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return prefix + "-" + id[:12]
}

// PatientUserIDs returns the user ids that should hear about a patient's
// sessions: the patient and, when set, the guardian.
func PatientUserIDs(db *gorm.DB, patient *models.Patient) []uint {
	ids := []uint{patient.UserID}
	if patient.GuardianID == nil {
		return ids
	}
	var guardian models.ParentGuardian
	if err := db.Select("user_id").First(&guardian, *patient.GuardianID).Error; err == nil {
		ids = append(ids, guardian.UserID)
	}
	return ids
}
