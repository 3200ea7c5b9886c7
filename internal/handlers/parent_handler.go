package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/sparks-care/sparks-api/internal/models"
	"github.com/sparks-care/sparks-api/internal/utils"
)

func (h *Handler) ParentChildren(c *gin.Context) {
	userID, _ := currentUser(c)
	guardian, err := h.guardianByUser(userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Guardian profile not found"})
		return
	}

	children := make([]models.Patient, 0)
	if err := h.DB.Preload("User").Where("guardian_id = ?", guardian.ID).Order("id").Find(&children).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve children"})
		return
	}
	c.JSON(http.StatusOK, children)
}

// CreateChild registers a patient account managed by the calling guardian.
func (h *Handler) CreateChild(c *gin.Context) {
	userID, _ := currentUser(c)
	var req struct {
		FullName    string `json:"fullName" binding:"required,notblank"`
		Email       string `json:"email" binding:"required,email"`
		Password    string `json:"password" binding:"required,min=8"`
		DateOfBirth string `json:"dateOfBirth"`
		Gender      string `json:"gender"`
		Diagnosis   string `json:"diagnosis"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	guardian, err := h.guardianByUser(userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Guardian profile not found"})
		return
	}
	hashed, err := utils.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	guardianID := guardian.ID
	child := models.Patient{
		User: models.User{
			FullName: strings.TrimSpace(req.FullName),
			Email:    strings.ToLower(strings.TrimSpace(req.Email)),
			Password: hashed,
			Role:     models.RolePatient,
			IsActive: true,
		},
		GuardianID: &guardianID,
		Gender:     req.Gender,
		Diagnosis:  req.Diagnosis,
	}
	if dob, ok := parseDay(req.DateOfBirth); ok {
		child.DateOfBirth = &dob
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.User{}).Where("email = ?", child.User.Email).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return errEmailTaken
		}
		return tx.Create(&child).Error
	})
	if err != nil {
		if errors.Is(err, errEmailTaken) || errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "An account with this email already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create child"})
		return
	}
	c.JSON(http.StatusCreated, child)
}

func (h *Handler) ChildSessions(c *gin.Context) {
	userID, role := currentUser(c)
	childID, ok := paramID(c, "id")
	if !ok {
		return
	}
	mine, err := h.canActFor(userID, role, childID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve sessions"})
		return
	}
	if !mine {
		c.JSON(http.StatusNotFound, gin.H{"error": "Child not found"})
		return
	}

	sessions := make([]models.TherapySession, 0)
	q := h.DB.Model(&models.TherapySession{}).Where("patient_id = ?", childID)
	if err := sessionFilters(c, q).Preload("Therapist.User").Order("scheduled_at DESC").Find(&sessions).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve sessions"})
		return
	}
	c.JSON(http.StatusOK, sessions)
}
