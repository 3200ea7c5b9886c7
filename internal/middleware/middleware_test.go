package middleware

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparks-care/sparks-api/internal/database"
	"github.com/sparks-care/sparks-api/internal/models"
	"github.com/sparks-care/sparks-api/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers := append(mw, func(c *gin.Context) {
		id, role := CurrentUser(c)
		c.JSON(http.StatusOK, gin.H{"id": id, "role": role})
	})
	r.GET("/x", handlers...)
	return r
}

func do(r http.Handler, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	utils.SetJWTSecret("middleware-secret", time.Hour)
	tok, err := utils.GenerateJWT(7, "therapist")
	require.NoError(t, err)
	r := newRouter(AuthMiddleware(nil))

	assert.Equal(t, http.StatusUnauthorized, do(r, "/x", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/x", "garbage").Code)

	w := do(r, "/x", tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":7,"role":"therapist"}`, w.Body.String())

	// query token for EventSource clients
	assert.Equal(t, http.StatusOK, do(r, "/x?token="+tok, "").Code)
}

func TestAuthMiddlewareChecksAccount(t *testing.T) {
	utils.SetJWTSecret("middleware-secret", time.Hour)
	db, err := database.Open("sqlite://"+filepath.Join(t.TempDir(), "auth.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	user := models.User{FullName: "Kamala Perera", Email: "kamala@example.com", Password: "x", Role: "guardian", IsActive: true}
	require.NoError(t, db.Create(&user).Error)
	tok, err := utils.GenerateJWT(user.ID, user.Role)
	require.NoError(t, err)
	r := newRouter(AuthMiddleware(db))

	assert.Equal(t, http.StatusOK, do(r, "/x", tok).Code)

	require.NoError(t, db.Model(&user).Update("is_active", false).Error)
	w := do(r, "/x", tok)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"Account is deactivated"}`, w.Body.String())

	require.NoError(t, db.Delete(&user).Error)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/x", tok).Code)

	ghost, _ := utils.GenerateJWT(999, "admin")
	assert.Equal(t, http.StatusUnauthorized, do(r, "/x", ghost).Code)
}

func TestRequireRoles(t *testing.T) {
	utils.SetJWTSecret("middleware-secret", time.Hour)
	r := newRouter(AuthMiddleware(nil), RequireRoles("admin", "manager"))

	patient, _ := utils.GenerateJWT(1, "patient")
	admin, _ := utils.GenerateJWT(2, "admin")

	w := do(r, "/x", patient)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"Permission denied."}`, w.Body.String())
	assert.Equal(t, http.StatusOK, do(r, "/x", admin).Code)
}

func TestRateLimit(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	defer rl.Stop()
	r := newRouter(RateLimit(rl))

	assert.Equal(t, http.StatusOK, do(r, "/x", "").Code)
	assert.Equal(t, http.StatusOK, do(r, "/x", "").Code)
	w := do(r, "/x", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// other clients have their own bucket
	assert.True(t, rl.Allow("10.0.0.2"))

	rl.cleanup(0)
	assert.True(t, rl.Allow("10.0.0.1"))
}
