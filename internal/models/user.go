package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	RolePatient   = "patient"
	RoleGuardian  = "guardian"
	RoleTherapist = "therapist"
	RoleManager   = "manager"
	RoleAdmin     = "admin"
)

type User struct {
	gorm.Model
	FullName string `gorm:"size:255;not null" json:"fullName"`
	Email    string `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Password string `gorm:"size:255;not null" json:"-"` // bcrypt hash
	Role     string `gorm:"size:32;not null;index" json:"role"`
	Phone    string `gorm:"size:32" json:"phone"`
	IsActive bool   `gorm:"not null;default:true" json:"isActive"`
}

type Patient struct {
	gorm.Model
	UserID      uint       `gorm:"not null;uniqueIndex" json:"userId"`
	User        User       `json:"user"`
	GuardianID  *uint      `gorm:"index" json:"guardianId"`
	DateOfBirth *time.Time `json:"dateOfBirth"`
	Gender      string     `gorm:"size:32" json:"gender"`
	Diagnosis   string     `gorm:"type:text" json:"diagnosis"`
	Notes       string     `gorm:"type:text" json:"notes"`
}

type ParentGuardian struct {
	gorm.Model
	UserID       uint      `gorm:"not null;uniqueIndex" json:"userId"`
	User         User      `json:"user"`
	Relationship string    `gorm:"size:64" json:"relationship"`
	Children     []Patient `gorm:"foreignKey:GuardianID" json:"children,omitempty"`
}

type Therapist struct {
	gorm.Model
	UserID          uint    `gorm:"not null;uniqueIndex" json:"userId"`
	User            User    `json:"user"`
	Specialization  string  `gorm:"size:255" json:"specialization"`
	Bio             string  `gorm:"type:text" json:"bio"`
	SessionFee      float64 `gorm:"type:numeric(12,2);not null;default:0" json:"sessionFee"`
	YearsExperience int     `json:"yearsExperience"`
	IsApproved      bool    `gorm:"not null;default:false" json:"isApproved"`
}

type DeviceToken struct {
	gorm.Model
	UserID uint   `gorm:"not null;index"`
	Token  string `gorm:"size:512;not null;uniqueIndex" json:"token"`
}
