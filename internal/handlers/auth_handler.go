package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/sparks-care/sparks-api/internal/models"
	"github.com/sparks-care/sparks-api/internal/utils"
)

type RegisterUserRequest struct {
	FullName string `json:"fullName" binding:"required,notblank"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"required,selfrole"`
	Phone    string `json:"phone"`

	// therapist profile
	Specialization  string  `json:"specialization"`
	Bio             string  `json:"bio"`
	SessionFee      float64 `json:"sessionFee" binding:"gte=0"`
	YearsExperience int     `json:"yearsExperience" binding:"gte=0"`

	// guardian profile
	Relationship string `json:"relationship"`

	// patient profile
	DateOfBirth string `json:"dateOfBirth"`
	Gender      string `json:"gender"`
}

var errEmailTaken = errors.New("email taken")

// RegisterUser creates the account and its role profile in one transaction.
func (h *Handler) RegisterUser(c *gin.Context) {
	var req RegisterUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hashedPassword, err := utils.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	user := models.User{
		FullName: strings.TrimSpace(req.FullName),
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Password: hashedPassword,
		Role:     req.Role,
		Phone:    req.Phone,
		IsActive: true,
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.User{}).Where("email = ?", user.Email).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return errEmailTaken
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}

		switch user.Role {
		case models.RolePatient:
			patient := models.Patient{UserID: user.ID, Gender: req.Gender}
			if dob, ok := parseDay(req.DateOfBirth); ok {
				patient.DateOfBirth = &dob
			}
			return tx.Create(&patient).Error
		case models.RoleGuardian:
			return tx.Create(&models.ParentGuardian{UserID: user.ID, Relationship: req.Relationship}).Error
		case models.RoleTherapist:
			return tx.Create(&models.Therapist{
				UserID:          user.ID,
				Specialization:  req.Specialization,
				Bio:             req.Bio,
				SessionFee:      req.SessionFee,
				YearsExperience: req.YearsExperience,
			}).Error
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errEmailTaken) || errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "An account with this email already exists"})
			return
		}
		h.Log.Error("register user failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}
	log.Printf("RegisterUser: %s registered as %s", user.Email, user.Role)

	if user.Role == models.RoleTherapist {
		err := h.NotificationSvc.NotifyRoles(c.Request.Context(), models.Notification{
			Type:    models.NotifySystem,
			Title:   "Therapist awaiting approval",
			Message: user.FullName + " registered as a therapist.",
			Link:    "/admin/therapists",
		}, models.RoleAdmin)
		if err != nil {
			h.Log.Warn("approval notification failed", err)
		}
	}

	c.JSON(http.StatusCreated, user)
}

func (h *Handler) Login(c *gin.Context) {
	var loginReq struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&loginReq); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	var user models.User
	err := h.DB.Where("email = ?", strings.ToLower(strings.TrimSpace(loginReq.Email))).First(&user).Error
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if !utils.CheckPasswordHash(loginReq.Password, user.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if !user.IsActive {
		c.JSON(http.StatusForbidden, gin.H{"error": "Account is deactivated"})
		return
	}

	token, err := utils.GenerateJWT(user.ID, user.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

// GetCurrentUser returns the caller and their role profile.
func (h *Handler) GetCurrentUser(c *gin.Context) {
	userID, role := currentUser(c)

	var user models.User
	if err := h.DB.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var profile interface{}
	switch role {
	case models.RolePatient:
		var p models.Patient
		if err := h.DB.Where("user_id = ?", userID).First(&p).Error; err == nil {
			profile = p
		}
	case models.RoleGuardian:
		var g models.ParentGuardian
		if err := h.DB.Preload("Children.User").Where("user_id = ?", userID).First(&g).Error; err == nil {
			profile = g
		}
	case models.RoleTherapist:
		var t models.Therapist
		if err := h.DB.Where("user_id = ?", userID).First(&t).Error; err == nil {
			profile = t
		}
	}

	c.JSON(http.StatusOK, gin.H{"user": user, "profile": profile})
}

// UpdateCurrentUser lets a user change their name, phone or password.
func (h *Handler) UpdateCurrentUser(c *gin.Context) {
	userID, _ := currentUser(c)

	var req struct {
		FullName        *string `json:"fullName" binding:"omitempty,notblank"`
		Phone           *string `json:"phone"`
		CurrentPassword string  `json:"currentPassword"`
		NewPassword     string  `json:"newPassword" binding:"omitempty,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	var user models.User
	if err := h.DB.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	updates := map[string]interface{}{}
	if req.FullName != nil {
		updates["full_name"] = strings.TrimSpace(*req.FullName)
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.NewPassword != "" {
		if !utils.CheckPasswordHash(req.CurrentPassword, user.Password) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Current password is incorrect"})
			return
		}
		hashed, err := utils.HashPassword(req.NewPassword)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
			return
		}
		updates["password"] = hashed
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No update fields provided"})
		return
	}

	if err := h.DB.Model(&user).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user profile"})
		return
	}
	h.DB.First(&user, userID)
	c.JSON(http.StatusOK, user)
}

// RegisterDevice stores an FCM token for push notifications. A token moves
// to whoever registered it last.
func (h *Handler) RegisterDevice(c *gin.Context) {
	userID, _ := currentUser(c)

	var req struct {
		Token string `json:"token" binding:"required,notblank"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	var device models.DeviceToken
	err := h.DB.Where("token = ?", req.Token).First(&device).Error
	switch {
	case err == nil:
		err = h.DB.Model(&device).Update("user_id", userID).Error
	case notFound(err):
		device = models.DeviceToken{UserID: userID, Token: req.Token}
		err = h.DB.Create(&device).Error
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register device"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Device registered"})
}
