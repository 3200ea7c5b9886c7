package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparks-care/sparks-api/internal/models"
)

func TestRegisterUser(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/auth/register", "", gin.H{
		"fullName": "Sunil Fernando",
		"email":    "Sunil@Example.com ",
		"password": "longenough",
		"role":     models.RoleGuardian,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var user models.User
	require.NoError(t, e.db.Where("email = ?", "sunil@example.com").First(&user).Error)
	var n int64
	e.db.Model(&models.ParentGuardian{}).Where("user_id = ?", user.ID).Count(&n)
	assert.EqualValues(t, 1, n)
	assert.NotContains(t, w.Body.String(), "password")

	w = e.do(t, http.MethodPost, "/auth/register", "", gin.H{
		"fullName": "Someone Else",
		"email":    "sunil@example.com",
		"password": "longenough",
		"role":     models.RolePatient,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRegisterRejectsStaffRoles(t *testing.T) {
	e := newEnv(t)
	for _, role := range []string{models.RoleAdmin, models.RoleManager, ""} {
		w := e.do(t, http.MethodPost, "/auth/register", "", gin.H{
			"fullName": "Mallory",
			"email":    "mallory@example.com",
			"password": "longenough",
			"role":     role,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code, role)
	}
	w := e.do(t, http.MethodPost, "/auth/register", "", gin.H{
		"fullName": "   ",
		"email":    "blank@example.com",
		"password": "longenough",
		"role":     models.RolePatient,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterTherapistAwaitsApproval(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodPost, "/auth/register", "", gin.H{
		"fullName":       "Dr. Wickrama",
		"email":          "wickrama@example.com",
		"password":       "longenough",
		"role":           models.RoleTherapist,
		"specialization": "Speech therapy",
		"sessionFee":     2000,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var user models.User
	require.NoError(t, e.db.Where("email = ?", "wickrama@example.com").First(&user).Error)
	var therapist models.Therapist
	require.NoError(t, e.db.Where("user_id = ?", user.ID).First(&therapist).Error)
	assert.False(t, therapist.IsApproved)
	assert.Equal(t, 2000.0, therapist.SessionFee)

	notes := notificationsFor(t, e.db, e.f.admin.ID)
	require.Len(t, notes, 1)
	assert.Equal(t, "Therapist awaiting approval", notes[0].Title)
}

func TestLogin(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/auth/login", "", gin.H{"email": "KAMALA@example.com", "password": testPassword})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	decode(t, w, &body)
	assert.NotEmpty(t, body.Token)
	assert.Equal(t, e.f.guardian.UserID, body.User.ID)

	me := e.do(t, http.MethodGet, "/api/me", body.Token, nil)
	assert.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), `"relationship":"mother"`)

	w = e.do(t, http.MethodPost, "/auth/login", "", gin.H{"email": "kamala@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodPost, "/auth/login", "", gin.H{"email": "nobody@example.com", "password": testPassword})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginDeactivated(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.db.Model(&models.User{}).Where("id = ?", e.f.guardian.UserID).Update("is_active", false).Error)

	w := e.do(t, http.MethodPost, "/auth/login", "", gin.H{"email": "kamala@example.com", "password": testPassword})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUpdateCurrentUser(t *testing.T) {
	e := newEnv(t)
	tok := tokenFor(t, e.f.guardian.User)

	w := e.do(t, http.MethodPut, "/api/me", tok, gin.H{"phone": "+94771234567"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "+94771234567")

	w = e.do(t, http.MethodPut, "/api/me", tok, gin.H{"currentPassword": "nope", "newPassword": "brand-new-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodPut, "/api/me", tok, gin.H{"currentPassword": testPassword, "newPassword": "brand-new-pass"})
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, http.MethodPost, "/auth/login", "", gin.H{"email": "kamala@example.com", "password": "brand-new-pass"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodPut, "/api/me", tok, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterDevice(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodPost, "/api/devices", tokenFor(t, e.f.guardian.User), gin.H{"token": "fcm-token-1"})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodPost, "/api/devices", tokenFor(t, e.f.patient.User), gin.H{"token": "fcm-token-1"})
	require.Equal(t, http.StatusOK, w.Code)

	var devices []models.DeviceToken
	require.NoError(t, e.db.Find(&devices).Error)
	require.Len(t, devices, 1)
	assert.Equal(t, e.f.patient.UserID, devices[0].UserID)
}
