package services

import (
	"bytes"
	"context"
	"errors"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sparks-care/sparks-api/internal/database"
	"github.com/sparks-care/sparks-api/internal/logger"
	"github.com/sparks-care/sparks-api/internal/models"
)

const (
	testMerchant = "1211149"
	testSecret   = "sparks-secret"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open("sqlite://"+filepath.Join(t.TempDir(), "sparks.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func newTestLogger() (logger.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return logger.NewStdLogger(log.New(&buf, "", 0)), &buf
}

type fixture struct {
	admin     models.User
	guardian  models.ParentGuardian
	patient   models.Patient
	therapist models.Therapist
}

func seed(t *testing.T, db *gorm.DB) fixture {
	t.Helper()
	var f fixture

	f.admin = models.User{FullName: "Admin", Email: "admin@sparks.lk", Password: "x", Role: models.RoleAdmin, IsActive: true}
	require.NoError(t, db.Create(&f.admin).Error)

	f.guardian = models.ParentGuardian{
		User:         models.User{FullName: "Kamala Perera", Email: "kamala@example.com", Password: "x", Role: models.RoleGuardian, IsActive: true},
		Relationship: "mother",
	}
	require.NoError(t, db.Create(&f.guardian).Error)

	guardianID := f.guardian.ID
	f.patient = models.Patient{
		User:       models.User{FullName: "Nimal Perera", Email: "nimal@example.com", Password: "x", Role: models.RolePatient, IsActive: true, Phone: "+94770000000"},
		GuardianID: &guardianID,
	}
	require.NoError(t, db.Create(&f.patient).Error)

	f.therapist = models.Therapist{
		User:       models.User{FullName: "Dr. Silva", Email: "silva@sparks.lk", Password: "x", Role: models.RoleTherapist, IsActive: true},
		SessionFee: 1500,
		IsApproved: true,
	}
	require.NoError(t, db.Create(&f.therapist).Error)
	return f
}

func sessionPayment(t *testing.T, db *gorm.DB, f fixture, orderID string, at time.Time) models.Payment {
	t.Helper()
	payerID := f.guardian.UserID
	therapistID := f.therapist.ID
	patientID := f.patient.ID
	at = at.UTC().Truncate(time.Minute)
	p := models.Payment{
		OrderID:         orderID,
		PayerID:         &payerID,
		Purpose:         models.PurposeSession,
		Amount:          1500,
		Currency:        "LKR",
		Status:          models.PaymentPending,
		TherapistID:     &therapistID,
		PatientID:       &patientID,
		ScheduledAt:     &at,
		DurationMinutes: 60,
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

type fakeProvider struct {
	err       error
	calls     int
	cancelled []string
}

func (p *fakeProvider) CreateMeeting(_ context.Context, req MeetingRequest) (*Meeting, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &Meeting{Link: "https://meet.google.com/abc-defg-hij", EventID: "evt-1"}, nil
}

func (p *fakeProvider) CancelMeeting(_ context.Context, eventID string) error {
	p.cancelled = append(p.cancelled, eventID)
	return nil
}

var errProviderDown = errors.New("calendar unavailable")

type sentMail struct {
	To, Subject, Body string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *fakeMailer) SendEmail(_, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *fakeMailer) to(addr string) []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentMail
	for _, s := range m.sent {
		if s.To == addr {
			out = append(out, s)
		}
	}
	return out
}

type fakeSMS struct {
	mu   sync.Mutex
	sent []string
}

func (s *fakeSMS) SendSMS(phone, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, phone+": "+message)
	return nil
}

func notificationsFor(t *testing.T, db *gorm.DB, userID uint) []models.Notification {
	t.Helper()
	var notes []models.Notification
	require.NoError(t, db.Where("user_id = ?", userID).Order("id").Find(&notes).Error)
	return notes
}
