package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sparks-care/sparks-api/internal/models"
	"github.com/sparks-care/sparks-api/internal/payhere"
)

type reconcilerEnv struct {
	db       *gorm.DB
	f        fixture
	provider *fakeProvider
	mail     *fakeMailer
	notify   *NotificationService
	rec      *PaymentReconciler
}

func newReconcilerEnv(t *testing.T) *reconcilerEnv {
	t.Helper()
	db := newTestDB(t)
	log, _ := newTestLogger()
	env := &reconcilerEnv{
		db:       db,
		f:        seed(t, db),
		provider: &fakeProvider{},
		mail:     &fakeMailer{},
	}
	env.notify = NewNotificationService(db, NewBroadcaster(), log)
	env.notify.SetMailer(env.mail)
	meetings := NewMeetingService(env.provider, "https://meet.jit.si", log)
	env.rec = NewPaymentReconciler(db, testMerchant, testSecret, meetings, env.notify, log)
	return env
}

func signed(orderID, amount, code string) payhere.Notification {
	n := payhere.Notification{
		MerchantID: testMerchant,
		OrderID:    orderID,
		PaymentID:  "320025071278",
		Amount:     amount,
		Currency:   "LKR",
		StatusCode: code,
		Method:     "VISA",
		CardNo:     "************4564",
	}
	n.MD5Sig = n.Signature(testSecret)
	return n
}

func (e *reconcilerEnv) payment(t *testing.T, id uint) models.Payment {
	t.Helper()
	var p models.Payment
	require.NoError(t, e.db.First(&p, id).Error)
	return p
}

func (e *reconcilerEnv) sessionCount(t *testing.T, paymentID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&models.TherapySession{}).Where("payment_id = ?", paymentID).Count(&n).Error)
	return n
}

func TestCompletedNotificationBooksSessionOnce(t *testing.T) {
	env := newReconcilerEnv(t)
	ctx := context.Background()
	at := time.Now().Add(48 * time.Hour)
	p := sessionPayment(t, env.db, env.f, "SES-TEST01", at)

	res, err := env.rec.HandleNotification(ctx, signed("SES-TEST01", "1500.00", "2"))
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	require.NoError(t, res.SessionErr)
	require.NotNil(t, res.Session)
	assert.Equal(t, "https://meet.google.com/abc-defg-hij", res.Session.MeetingLink)
	assert.Equal(t, "evt-1", res.Session.CalendarEventID)
	assert.Equal(t, models.SessionScheduled, res.Session.Status)
	assert.Equal(t, 60, res.Session.DurationMinutes)

	stored := env.payment(t, p.ID)
	assert.Equal(t, models.PaymentCompleted, stored.Status)
	assert.Equal(t, "320025071278", stored.PayHerePaymentID)
	assert.Equal(t, "VISA", stored.Method)
	assert.NotNil(t, stored.PaidAt)

	// PayHere retries the same notification
	again, err := env.rec.HandleNotification(ctx, signed("SES-TEST01", "1500.00", "2"))
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Nil(t, again.Session)

	assert.Equal(t, int64(1), env.sessionCount(t, p.ID))
	assert.Equal(t, 1, env.provider.calls)

	env.notify.Wait()
	assert.Len(t, env.mail.to("nimal@example.com"), 1)
	assert.Len(t, env.mail.to("silva@sparks.lk"), 1)

	// payer is the guardian: payment notice plus session notice
	guardianNotes := notificationsFor(t, env.db, env.f.guardian.UserID)
	require.Len(t, guardianNotes, 2)
	assert.Equal(t, models.NotifyPayment, guardianNotes[0].Type)
	assert.Equal(t, models.NotifySession, guardianNotes[1].Type)
	assert.Len(t, notificationsFor(t, env.db, env.f.patient.UserID), 1)
	assert.Len(t, notificationsFor(t, env.db, env.f.therapist.UserID), 1)
}

func TestInvalidSignatureLeavesPaymentUnchanged(t *testing.T) {
	env := newReconcilerEnv(t)
	p := sessionPayment(t, env.db, env.f, "SES-BAD", time.Now().Add(24*time.Hour))

	n := signed("SES-BAD", "1500.00", "2")
	n.MD5Sig = "00000000000000000000000000000000"
	_, err := env.rec.HandleNotification(context.Background(), n)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	stored := env.payment(t, p.ID)
	assert.Equal(t, models.PaymentPending, stored.Status)
	assert.Empty(t, stored.PayHerePaymentID)
	assert.Equal(t, int64(0), env.sessionCount(t, p.ID))
}

func TestNotificationRejections(t *testing.T) {
	env := newReconcilerEnv(t)
	ctx := context.Background()
	sessionPayment(t, env.db, env.f, "SES-REJ", time.Now().Add(24*time.Hour))

	_, err := env.rec.HandleNotification(ctx, signed("SES-NOPE", "1500.00", "2"))
	assert.ErrorIs(t, err, ErrPaymentNotFound)

	_, err = env.rec.HandleNotification(ctx, signed("SES-REJ", "15.00", "2"))
	assert.ErrorIs(t, err, ErrAmountMismatch)

	_, err = env.rec.HandleNotification(ctx, signed("SES-REJ", "1500.00", "9"))
	assert.ErrorIs(t, err, ErrUnknownStatus)

	wrongCurrency := signed("SES-REJ", "1500.00", "2")
	wrongCurrency.Currency = "USD"
	wrongCurrency.MD5Sig = wrongCurrency.Signature(testSecret)
	_, err = env.rec.HandleNotification(ctx, wrongCurrency)
	assert.ErrorIs(t, err, ErrAmountMismatch)
}

func TestStatusTransitions(t *testing.T) {
	env := newReconcilerEnv(t)
	ctx := context.Background()
	p := sessionPayment(t, env.db, env.f, "SES-FLOW", time.Now().Add(72*time.Hour))

	_, err := env.rec.HandleNotification(ctx, signed("SES-FLOW", "1500.00", "2"))
	require.NoError(t, err)

	// a late PENDING must not undo a completion
	res, err := env.rec.HandleNotification(ctx, signed("SES-FLOW", "1500.00", "0"))
	require.NoError(t, err)
	assert.True(t, res.Ignored)
	assert.Equal(t, models.PaymentCompleted, env.payment(t, p.ID).Status)

	res, err = env.rec.HandleNotification(ctx, signed("SES-FLOW", "1500.00", "-3"))
	require.NoError(t, err)
	assert.False(t, res.Ignored)
	assert.Equal(t, models.PaymentChargedBack, env.payment(t, p.ID).Status)

	res, err = env.rec.HandleNotification(ctx, signed("SES-FLOW", "1500.00", "2"))
	require.NoError(t, err)
	assert.True(t, res.Ignored)
	assert.Equal(t, models.PaymentChargedBack, env.payment(t, p.ID).Status)

	adminNotes := notificationsFor(t, env.db, env.f.admin.ID)
	require.Len(t, adminNotes, 1)
	assert.Equal(t, "Payment charged back", adminNotes[0].Title)
}

func TestFailedPaymentNotifiesPayer(t *testing.T) {
	env := newReconcilerEnv(t)
	p := sessionPayment(t, env.db, env.f, "SES-FAIL", time.Now().Add(24*time.Hour))

	res, err := env.rec.HandleNotification(context.Background(), signed("SES-FAIL", "1500.00", "-2"))
	require.NoError(t, err)
	assert.Nil(t, res.Session)
	assert.Equal(t, models.PaymentFailed, env.payment(t, p.ID).Status)
	assert.Equal(t, int64(0), env.sessionCount(t, p.ID))

	notes := notificationsFor(t, env.db, env.f.guardian.UserID)
	require.Len(t, notes, 1)
	assert.Equal(t, "Payment failed", notes[0].Title)
}

func TestProviderFailureFallsBack(t *testing.T) {
	env := newReconcilerEnv(t)
	env.provider.err = errProviderDown
	sessionPayment(t, env.db, env.f, "SES-FALLBACK", time.Now().Add(24*time.Hour))

	res, err := env.rec.HandleNotification(context.Background(), signed("SES-FALLBACK", "1500.00", "2"))
	require.NoError(t, err)
	require.NotNil(t, res.Session)
	assert.Regexp(t, `^https://meet\.jit\.si/sparks-[0-9a-f]{8}$`, res.Session.MeetingLink)
	assert.Empty(t, res.Session.CalendarEventID)
}

func TestBusyTherapistKeepsPaymentCompleted(t *testing.T) {
	env := newReconcilerEnv(t)
	ctx := context.Background()
	at := time.Now().Add(24 * time.Hour)

	first := sessionPayment(t, env.db, env.f, "SES-FIRST", at)
	_, err := env.rec.HandleNotification(ctx, signed("SES-FIRST", "1500.00", "2"))
	require.NoError(t, err)

	second := sessionPayment(t, env.db, env.f, "SES-SECOND", at.Add(30*time.Minute))
	res, err := env.rec.HandleNotification(ctx, signed("SES-SECOND", "1500.00", "2"))
	require.NoError(t, err)
	assert.ErrorIs(t, res.SessionErr, ErrTherapistBusy)
	assert.Nil(t, res.Session)

	assert.Equal(t, models.PaymentCompleted, env.payment(t, second.ID).Status)
	assert.Equal(t, int64(1), env.sessionCount(t, first.ID))
	assert.Equal(t, int64(0), env.sessionCount(t, second.ID))
	assert.Equal(t, []string{"evt-1"}, env.provider.cancelled)

	adminNotes := notificationsFor(t, env.db, env.f.admin.ID)
	require.Len(t, adminNotes, 1)
	assert.Equal(t, "Session needs manual booking", adminNotes[0].Title)
}

func TestEnsureSessionIsIdempotent(t *testing.T) {
	env := newReconcilerEnv(t)
	ctx := context.Background()
	p := sessionPayment(t, env.db, env.f, "SES-IDEM", time.Now().Add(24*time.Hour))

	_, err := env.rec.EnsureSession(ctx, &p)
	assert.ErrorIs(t, err, ErrPaymentNotCompleted)

	require.NoError(t, env.db.Model(&p).Update("status", models.PaymentCompleted).Error)
	p = env.payment(t, p.ID)

	s1, err := env.rec.EnsureSession(ctx, &p)
	require.NoError(t, err)
	s2, err := env.rec.EnsureSession(ctx, &p)
	require.NoError(t, err)
	assert.Equal(t, s1.ID, s2.ID)
	assert.Equal(t, 1, env.provider.calls)

	noBooking := models.Payment{OrderID: "DON-X", Purpose: models.PurposeDonation, Amount: 10, Currency: "LKR", Status: models.PaymentCompleted}
	_, err = env.rec.EnsureSession(ctx, &noBooking)
	assert.ErrorIs(t, err, ErrNoBooking)
}

func TestDonationCompletion(t *testing.T) {
	env := newReconcilerEnv(t)
	p := models.Payment{OrderID: "DON-TEST01", Purpose: models.PurposeDonation, Amount: 2500, Currency: "LKR", Status: models.PaymentPending}
	require.NoError(t, env.db.Create(&p).Error)
	d := models.Donation{PaymentID: p.ID, DonorName: "Sunil", DonorEmail: "sunil@example.com", Amount: 2500}
	require.NoError(t, env.db.Create(&d).Error)

	res, err := env.rec.HandleNotification(context.Background(), signed("DON-TEST01", "2500.00", "2"))
	require.NoError(t, err)
	assert.Nil(t, res.Session)
	assert.NoError(t, res.SessionErr)

	env.notify.Wait()
	mails := env.mail.to("sunil@example.com")
	require.Len(t, mails, 1)
	assert.Contains(t, mails[0].Body, "LKR 2500.00")

	adminNotes := notificationsFor(t, env.db, env.f.admin.ID)
	require.Len(t, adminNotes, 1)
	assert.Equal(t, "Sunil donated LKR 2500.00.", adminNotes[0].Message)
}

func TestTransitionAllowed(t *testing.T) {
	assert.True(t, transitionAllowed(models.PaymentPending, models.PaymentCompleted))
	assert.True(t, transitionAllowed(models.PaymentFailed, models.PaymentCompleted))
	assert.True(t, transitionAllowed(models.PaymentCancelled, models.PaymentFailed))
	assert.False(t, transitionAllowed(models.PaymentFailed, models.PaymentPending))
	assert.False(t, transitionAllowed(models.PaymentCompleted, models.PaymentFailed))
	assert.True(t, transitionAllowed(models.PaymentCompleted, models.PaymentChargedBack))
	assert.False(t, transitionAllowed(models.PaymentChargedBack, models.PaymentCompleted))
}
