package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sparks-care/sparks-api/internal/database"
	"github.com/sparks-care/sparks-api/internal/logger"
	"github.com/sparks-care/sparks-api/internal/models"
	"github.com/sparks-care/sparks-api/internal/payhere"
	"github.com/sparks-care/sparks-api/internal/services"
	"github.com/sparks-care/sparks-api/internal/storage"
	"github.com/sparks-care/sparks-api/internal/utils"
)

const (
	testMerchant = "1211149"
	testSecret   = "sparks-secret"
	testPassword = "password123"
)

func init() {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("handlers-test-secret", time.Hour)
	utils.RegisterValidators()
}

type testEnv struct {
	db     *gorm.DB
	h      *Handler
	r      *gin.Engine
	f      fixture
	logBuf *bytes.Buffer
}

type fixture struct {
	admin     models.User
	guardian  models.ParentGuardian
	patient   models.Patient
	other     models.Patient // unrelated patient
	therapist models.Therapist
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open("sqlite://"+filepath.Join(t.TempDir(), "handlers.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	var buf bytes.Buffer
	appLog := logger.NewStdLogger(log.New(&buf, "", 0))
	notify := services.NewNotificationService(db, services.NewBroadcaster(), appLog)
	meetings := services.NewMeetingService(nil, "https://meet.jit.si", appLog)
	payments := services.NewPaymentReconciler(db, testMerchant, testSecret, meetings, notify, appLog)

	h := NewHandler(db, notify, payments, appLog)
	h.Storage = storage.NewLocal(t.TempDir(), "/uploads")
	h.Merchant = payhere.Merchant{MerchantID: testMerchant, Secret: testSecret, Sandbox: true, NotifyURL: "http://localhost/api/payments/notify"}

	r := gin.New()
	h.Register(r, nil)
	return &testEnv{db: db, h: h, r: r, f: seed(t, db), logBuf: &buf}
}

func seed(t *testing.T, db *gorm.DB) fixture {
	t.Helper()
	hash, err := utils.HashPassword(testPassword)
	require.NoError(t, err)
	user := func(name, email, role string) models.User {
		return models.User{FullName: name, Email: email, Password: hash, Role: role, IsActive: true}
	}

	var f fixture
	f.admin = user("Admin", "admin@sparks.lk", models.RoleAdmin)
	require.NoError(t, db.Create(&f.admin).Error)

	f.guardian = models.ParentGuardian{User: user("Kamala Perera", "kamala@example.com", models.RoleGuardian), Relationship: "mother"}
	require.NoError(t, db.Create(&f.guardian).Error)

	guardianID := f.guardian.ID
	f.patient = models.Patient{User: user("Nimal Perera", "nimal@example.com", models.RolePatient), GuardianID: &guardianID}
	require.NoError(t, db.Create(&f.patient).Error)

	f.other = models.Patient{User: user("Ruwan Jayasuriya", "ruwan@example.com", models.RolePatient)}
	require.NoError(t, db.Create(&f.other).Error)

	f.therapist = models.Therapist{User: user("Dr. Silva", "silva@sparks.lk", models.RoleTherapist), SessionFee: 1500, IsApproved: true}
	require.NoError(t, db.Create(&f.therapist).Error)
	return f
}

func tokenFor(t *testing.T, u models.User) string {
	t.Helper()
	tok, err := utils.GenerateJWT(u.ID, u.Role)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, target, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rdr)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func (e *testEnv) postForm(t *testing.T, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

// bookedSession inserts a scheduled session between the fixture patient and
// therapist starting at at.
func (e *testEnv) bookedSession(t *testing.T, at time.Time) models.TherapySession {
	t.Helper()
	at = at.UTC().Truncate(time.Minute)
	s := models.TherapySession{
		PatientID:       e.f.patient.ID,
		TherapistID:     e.f.therapist.ID,
		ScheduledAt:     at,
		EndsAt:          at.Add(time.Hour),
		DurationMinutes: 60,
		Status:          models.SessionScheduled,
		MeetingLink:     "https://meet.jit.si/sparks-00000000",
	}
	require.NoError(t, e.db.Omit("Patient", "Therapist").Create(&s).Error)
	return s
}

func notificationsFor(t *testing.T, db *gorm.DB, userID uint) []models.Notification {
	t.Helper()
	var notes []models.Notification
	require.NoError(t, db.Where("user_id = ?", userID).Order("id").Find(&notes).Error)
	return notes
}

// memStore keeps messages in memory.
type memStore struct {
	mu   sync.Mutex
	msgs []models.Message
}

var _ services.MessageStore = (*memStore)(nil)

func (s *memStore) Save(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, *msg)
	return nil
}

func (s *memStore) Thread(_ context.Context, a, b uint, since time.Time, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := models.ConversationID(a, b)
	var out []models.Message
	for _, m := range s.msgs {
		if m.ConversationID == conv && m.CreatedAt.After(since) {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *memStore) MarkRead(_ context.Context, readerID, otherID uint, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.msgs {
		m := &s.msgs[i]
		if m.RecipientID == readerID && m.SenderID == otherID && m.ReadAt == nil {
			m.ReadAt = &at
			n++
		}
	}
	return n, nil
}

func (s *memStore) UnreadCount(_ context.Context, userID uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.msgs {
		if m.RecipientID == userID && m.ReadAt == nil {
			n++
		}
	}
	return n, nil
}
