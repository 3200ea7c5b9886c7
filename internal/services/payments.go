package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/sparks-care/sparks-api/internal/logger"
	"github.com/sparks-care/sparks-api/internal/models"
	"github.com/sparks-care/sparks-api/internal/payhere"
)

var (
	ErrInvalidSignature    = payhere.ErrInvalidSignature
	ErrUnknownStatus       = payhere.ErrUnknownStatus
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrAmountMismatch      = errors.New("payment amount or currency mismatch")
	ErrTherapistBusy       = errors.New("therapist already has a session at that time")
	ErrNoBooking           = errors.New("payment has no booking details")
	ErrPaymentNotCompleted = errors.New("payment is not completed")
)

type ReconcileResult struct {
	Payment    *models.Payment
	Duplicate  bool // same status delivered again, or a concurrent delivery won
	Ignored    bool // transition not allowed from the stored status
	Session    *models.TherapySession
	SessionErr error
}

// PaymentReconciler applies PayHere notifications to stored payments.
type PaymentReconciler struct {
	db         *gorm.DB
	merchantID string
	secret     string
	meetings   *MeetingService
	notify     *NotificationService
	log        logger.Logger
	now        func() time.Time
}

func NewPaymentReconciler(db *gorm.DB, merchantID, secret string, meetings *MeetingService, notify *NotificationService, log logger.Logger) *PaymentReconciler {
	return &PaymentReconciler{
		db:         db,
		merchantID: merchantID,
		secret:     secret,
		meetings:   meetings,
		notify:     notify,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// transitionAllowed: COMPLETED only moves to CHARGEDBACK, CHARGEDBACK is
// final, and nothing goes back to PENDING.
func transitionAllowed(from, to string) bool {
	switch {
	case from == models.PaymentChargedBack:
		return false
	case from == models.PaymentCompleted:
		return to == models.PaymentChargedBack
	case to == models.PaymentPending:
		return from == models.PaymentPending
	}
	return true
}

// HandleNotification verifies and applies one notify-URL delivery.
func (r *PaymentReconciler) HandleNotification(ctx context.Context, n payhere.Notification) (*ReconcileResult, error) {
	if err := n.Verify(r.merchantID, r.secret); err != nil {
		return nil, err
	}
	mapped, err := payhere.MapStatus(n.StatusCode)
	if err != nil {
		return nil, err
	}
	status := string(mapped)

	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("order_id = ?", n.OrderID).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, errors.Wrap(err, "load payment")
	}

	amount, err := n.AmountValue()
	if err != nil || payhere.FormatAmount(amount) != payhere.FormatAmount(payment.Amount) ||
		!strings.EqualFold(n.Currency, payment.Currency) {
		return nil, ErrAmountMismatch
	}

	res := &ReconcileResult{Payment: &payment}
	if payment.Status == status {
		res.Duplicate = true
		return res, nil
	}
	if !transitionAllowed(payment.Status, status) {
		r.log.Warn(fmt.Sprintf("ignoring %s -> %s for order %s", payment.Status, status, payment.OrderID))
		res.Ignored = true
		return res, nil
	}

	updates := map[string]interface{}{
		"status":             status,
		"payhere_payment_id": n.PaymentID,
		"method":             n.Method,
		"status_message":     n.StatusMessage,
		"card_holder_name":   n.CardHolderName,
		"card_no":            n.CardNo,
		"card_expiry":        n.CardExpiry,
	}
	if status == models.PaymentCompleted {
		updates["paid_at"] = r.now()
	}
	// guarded on the old status so concurrent deliveries apply once
	tx := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", payment.ID, payment.Status).
		Updates(updates)
	if tx.Error != nil {
		return nil, errors.Wrap(tx.Error, "update payment")
	}
	if tx.RowsAffected == 0 {
		res.Duplicate = true
		return res, nil
	}
	if err := r.db.WithContext(ctx).First(&payment, payment.ID).Error; err != nil {
		return nil, errors.Wrap(err, "reload payment")
	}
	r.log.Info(fmt.Sprintf("payment %s is now %s", payment.OrderID, payment.Status))

	switch status {
	case models.PaymentCompleted:
		r.onCompleted(ctx, &payment, res)
	case models.PaymentFailed, models.PaymentCancelled:
		r.notifyPayer(ctx, &payment, "Payment "+strings.ToLower(status),
			fmt.Sprintf("Your payment %s was %s. No session has been booked.", payment.OrderID, strings.ToLower(status)))
	case models.PaymentChargedBack:
		r.notifyAdmins(ctx, "Payment charged back",
			fmt.Sprintf("Order %s (%s %s) was charged back.", payment.OrderID, payment.Currency, payhere.FormatAmount(payment.Amount)))
	}
	return res, nil
}

func (r *PaymentReconciler) onCompleted(ctx context.Context, payment *models.Payment, res *ReconcileResult) {
	r.notifyPayer(ctx, payment, "Payment received",
		fmt.Sprintf("We received %s %s for order %s.", payment.Currency, payhere.FormatAmount(payment.Amount), payment.OrderID))

	switch payment.Purpose {
	case models.PurposeSession:
		session, err := r.EnsureSession(ctx, payment)
		if err != nil {
			// the payment stays COMPLETED; an admin books the session by hand
			r.log.Error("session creation failed for order "+payment.OrderID, err)
			res.SessionErr = err
			r.notifyAdmins(ctx, "Session needs manual booking",
				fmt.Sprintf("Order %s was paid but no session could be created: %v", payment.OrderID, err))
			return
		}
		res.Session = session
	case models.PurposeDonation:
		r.onDonation(ctx, payment)
	}
}

func (r *PaymentReconciler) onDonation(ctx context.Context, payment *models.Payment) {
	var donation models.Donation
	if err := r.db.WithContext(ctx).Where("payment_id = ?", payment.ID).First(&donation).Error; err != nil {
		r.log.Warn("no donation row for order "+payment.OrderID, err)
		return
	}
	donor := donation.DonorName
	if donation.Anonymous || donor == "" {
		donor = "An anonymous supporter"
	}
	r.notifyAdmins(ctx, "New donation",
		fmt.Sprintf("%s donated %s %s.", donor, payment.Currency, payhere.FormatAmount(payment.Amount)))
	r.notify.SendEmail(donation.DonorName, donation.DonorEmail, "Thank you for supporting SPARKS",
		fmt.Sprintf("Thank you for your donation of %s %s. It helps us keep therapy within reach.",
			payment.Currency, payhere.FormatAmount(payment.Amount)))
}

// EnsureSession books the session paid for by payment. It is idempotent:
// the unique payment_id on sessions means a second call returns the first
// session. Also used by admins for manual follow-up.
func (r *PaymentReconciler) EnsureSession(ctx context.Context, payment *models.Payment) (*models.TherapySession, error) {
	if payment.Status != models.PaymentCompleted {
		return nil, ErrPaymentNotCompleted
	}
	if !payment.HasBooking() {
		return nil, ErrNoBooking
	}
	db := r.db.WithContext(ctx)

	if existing, err := r.sessionFor(db, payment.ID); err != nil || existing != nil {
		return existing, err
	}

	var patient models.Patient
	if err := db.Preload("User").First(&patient, *payment.PatientID).Error; err != nil {
		return nil, errors.Wrap(err, "load patient")
	}
	var therapist models.Therapist
	if err := db.Preload("User").First(&therapist, *payment.TherapistID).Error; err != nil {
		return nil, errors.Wrap(err, "load therapist")
	}

	start := payment.ScheduledAt.UTC()
	end := start.Add(time.Duration(payment.DurationMinutes) * time.Minute)
	meeting := r.meetings.Provision(ctx, MeetingRequest{
		Summary:     fmt.Sprintf("SPARKS session: %s with %s", patient.User.FullName, therapist.User.FullName),
		Description: "Online therapy session booked through SPARKS (order " + payment.OrderID + ").",
		Start:       start,
		End:         end,
		Attendees:   []string{patient.User.Email, therapist.User.Email},
	})

	paymentID := payment.ID
	session := models.TherapySession{
		PatientID:       patient.ID,
		TherapistID:     therapist.ID,
		PaymentID:       &paymentID,
		ScheduledAt:     start,
		EndsAt:          end,
		DurationMinutes: payment.DurationMinutes,
		Status:          models.SessionScheduled,
		MeetingLink:     meeting.Link,
		CalendarEventID: meeting.EventID,
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		busy, err := TherapistBusy(tx, therapist.ID, start, end, 0)
		if err != nil {
			return err
		}
		if busy {
			return ErrTherapistBusy
		}
		return tx.Create(&session).Error
	})
	if err != nil {
		r.meetings.Release(ctx, meeting)
		// lost a race with a concurrent delivery
		if existing, lookupErr := r.sessionFor(db, payment.ID); lookupErr == nil && existing != nil {
			return existing, nil
		}
		return nil, errors.Wrap(err, "create session")
	}

	when := start.Format("Mon Jan 2, 15:04 MST")
	var notes []models.Notification
	for _, uid := range PatientUserIDs(db, &patient) {
		notes = append(notes, models.Notification{
			UserID:  uid,
			Type:    models.NotifySession,
			Title:   "Session confirmed",
			Message: fmt.Sprintf("Session with %s on %s. Join: %s", therapist.User.FullName, when, session.MeetingLink),
			Link:    "/sessions",
		})
	}
	notes = append(notes, models.Notification{
		UserID:  therapist.UserID,
		Type:    models.NotifySession,
		Title:   "New session booked",
		Message: fmt.Sprintf("%s booked a session on %s.", patient.User.FullName, when),
		Link:    "/therapist/sessions",
	})
	if err := r.notify.Notify(ctx, notes...); err != nil {
		r.log.Warn("session notifications failed", err)
	}
	r.notify.SendSessionConfirmation(&patient.User, &therapist.User, &session)

	return &session, nil
}

func (r *PaymentReconciler) sessionFor(db *gorm.DB, paymentID uint) (*models.TherapySession, error) {
	var s models.TherapySession
	err := db.Where("payment_id = ?", paymentID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "find session")
	}
	return &s, nil
}

func (r *PaymentReconciler) notifyPayer(ctx context.Context, payment *models.Payment, title, message string) {
	if payment.PayerID == nil {
		return
	}
	err := r.notify.Notify(ctx, models.Notification{
		UserID:  *payment.PayerID,
		Type:    models.NotifyPayment,
		Title:   title,
		Message: message,
		Link:    "/payments",
	})
	if err != nil {
		r.log.Warn("payer notification failed", err)
	}
}

func (r *PaymentReconciler) notifyAdmins(ctx context.Context, title, message string) {
	err := r.notify.NotifyRoles(ctx, models.Notification{
		Type:    models.NotifySystem,
		Title:   title,
		Message: message,
		Link:    "/admin/payments",
	}, models.RoleAdmin, models.RoleManager)
	if err != nil {
		r.log.Warn("admin notification failed", err)
	}
}
