package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	SessionScheduled = "SCHEDULED"
	SessionCompleted = "COMPLETED"
	SessionCancelled = "CANCELLED"
)

type TherapySession struct {
	gorm.Model
	PatientID       uint      `gorm:"not null;index" json:"patientId"`
	Patient         Patient   `json:"patient"`
	TherapistID     uint      `gorm:"not null;index" json:"therapistId"`
	Therapist       Therapist `json:"therapist"`
	PaymentID       *uint     `gorm:"uniqueIndex" json:"paymentId"`
	ScheduledAt     time.Time `gorm:"not null;index" json:"scheduledAt"`
	EndsAt          time.Time `gorm:"not null" json:"endsAt"`
	DurationMinutes int       `gorm:"not null" json:"durationMinutes"`
	Status          string    `gorm:"size:16;not null;index" json:"status"`
	MeetingLink     string    `gorm:"size:512" json:"meetingLink"`
	CalendarEventID string    `gorm:"size:255" json:"calendarEventId,omitempty"`
	Notes           string    `gorm:"type:text" json:"notes,omitempty"`
	ReminderSent    bool      `gorm:"not null;default:false" json:"-"`
}
