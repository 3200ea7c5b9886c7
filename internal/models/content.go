package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	NotifyPayment  = "PAYMENT"
	NotifySession  = "SESSION"
	NotifyDonation = "DONATION"
	NotifyMessage  = "MESSAGE"
	NotifyReminder = "REMINDER"
	NotifySystem   = "SYSTEM"
)

type Notification struct {
	gorm.Model
	UserID  uint   `gorm:"not null;index" json:"userId"`
	Type    string `gorm:"size:16;not null" json:"type"`
	Title   string `gorm:"size:255;not null" json:"title"`
	Message string `gorm:"type:text" json:"message"`
	Link    string `gorm:"size:255" json:"link,omitempty"`
	IsRead  bool   `gorm:"not null;default:false;index" json:"isRead"`
}

const (
	TicketOpen       = "OPEN"
	TicketInProgress = "IN_PROGRESS"
	TicketResolved   = "RESOLVED"
	TicketClosed     = "CLOSED"
)

type SupportTicket struct {
	gorm.Model
	UserID        uint   `gorm:"not null;index" json:"userId"`
	User          User   `json:"user,omitempty"`
	Subject       string `gorm:"size:255;not null" json:"subject"`
	Description   string `gorm:"type:text;not null" json:"description"`
	Status        string `gorm:"size:16;not null;index" json:"status"`
	Priority      string `gorm:"size:8;not null" json:"priority"`
	AdminResponse string `gorm:"type:text" json:"adminResponse,omitempty"`
}

const (
	BlogDraft     = "DRAFT"
	BlogPublished = "PUBLISHED"
)

type Blog struct {
	gorm.Model
	AuthorID    uint       `gorm:"not null;index" json:"authorId"`
	Author      User       `json:"author"`
	Title       string     `gorm:"size:255;not null" json:"title"`
	Slug        string     `gorm:"size:255;not null;uniqueIndex" json:"slug"`
	Category    string     `gorm:"size:64;index" json:"category"`
	Content     string     `gorm:"type:text" json:"content"`
	CoverImage  string     `gorm:"size:512" json:"coverImage,omitempty"`
	Status      string     `gorm:"size:16;not null;index" json:"status"`
	PublishedAt *time.Time `json:"publishedAt"`
}

type Medication struct {
	gorm.Model
	PatientID      uint       `gorm:"not null;index" json:"patientId"`
	PrescribedByID uint       `gorm:"not null;index" json:"prescribedById"` // therapist
	Name           string     `gorm:"size:255;not null" json:"name"`
	Dosage         string     `gorm:"size:128" json:"dosage"`
	Frequency      string     `gorm:"size:128" json:"frequency"`
	Instructions   string     `gorm:"type:text" json:"instructions"`
	StartDate      time.Time  `json:"startDate"`
	EndDate        *time.Time `json:"endDate"`
	IsActive       bool       `gorm:"not null;default:true" json:"isActive"`
}

type MedicationLog struct {
	gorm.Model
	MedicationID uint      `gorm:"not null;index" json:"medicationId"`
	TakenAt      time.Time `gorm:"not null" json:"takenAt"`
	Skipped      bool      `json:"skipped"`
	Notes        string    `gorm:"size:512" json:"notes"`
}
