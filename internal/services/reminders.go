package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"gorm.io/gorm"

	"github.com/sparks-care/sparks-api/internal/logger"
	"github.com/sparks-care/sparks-api/internal/models"
)

// ReminderService notifies participants shortly before a session starts.
type ReminderService struct {
	db     *gorm.DB
	notify *NotificationService
	log    logger.Logger
	lead   time.Duration
}

func NewReminderService(db *gorm.DB, notify *NotificationService, log logger.Logger, lead time.Duration) *ReminderService {
	if lead <= 0 {
		lead = time.Hour
	}
	return &ReminderService{db: db, notify: notify, log: log, lead: lead}
}

// Start runs SendDueReminders every interval until the scheduler is stopped.
func (r *ReminderService) Start(interval time.Duration) (*gocron.Scheduler, error) {
	scheduler := gocron.NewScheduler(time.UTC)
	_, err := scheduler.Every(interval).Do(func() {
		n, err := r.SendDueReminders(context.Background(), time.Now())
		if err != nil {
			r.log.Error("reminder pass failed", err)
			return
		}
		if n > 0 {
			r.log.Info(fmt.Sprintf("sent reminders for %d sessions", n))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule reminders: %w", err)
	}
	scheduler.StartAsync()
	return scheduler, nil
}

// SendDueReminders handles SCHEDULED sessions starting in (now, now+lead]
// that have not been reminded yet, and returns how many it reminded.
func (r *ReminderService) SendDueReminders(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC()
	db := r.db.WithContext(ctx)

	var sessions []models.TherapySession
	err := db.Preload("Patient.User").Preload("Therapist.User").
		Where("status = ? AND reminder_sent = ? AND scheduled_at > ? AND scheduled_at <= ?",
			models.SessionScheduled, false, now, now.Add(r.lead)).
		Order("scheduled_at").
		Find(&sessions).Error
	if err != nil {
		return 0, fmt.Errorf("query upcoming sessions: %w", err)
	}

	sent := 0
	for i := range sessions {
		s := &sessions[i]
		// claim the row first so overlapping passes don't remind twice
		claim := db.Model(&models.TherapySession{}).
			Where("id = ? AND reminder_sent = ?", s.ID, false).
			Update("reminder_sent", true)
		if claim.Error != nil {
			r.log.Warn(fmt.Sprintf("could not flag session %d", s.ID), claim.Error)
			continue
		}
		if claim.RowsAffected == 0 {
			continue
		}

		minutes := int(s.ScheduledAt.Sub(now).Round(time.Minute).Minutes())
		var notes []models.Notification
		for _, uid := range PatientUserIDs(db, &s.Patient) {
			notes = append(notes, models.Notification{
				UserID:  uid,
				Type:    models.NotifyReminder,
				Title:   "Upcoming session",
				Message: fmt.Sprintf("Your session with %s starts in %d minutes. Join: %s", s.Therapist.User.FullName, minutes, s.MeetingLink),
				Link:    "/sessions",
			})
		}
		notes = append(notes, models.Notification{
			UserID:  s.Therapist.UserID,
			Type:    models.NotifyReminder,
			Title:   "Upcoming session",
			Message: fmt.Sprintf("Session with %s starts in %d minutes.", s.Patient.User.FullName, minutes),
			Link:    "/therapist/sessions",
		})
		if err := r.notify.Notify(ctx, notes...); err != nil {
			r.log.Warn(fmt.Sprintf("reminder notifications for session %d failed", s.ID), err)
			continue
		}
		r.notify.SendSMS(s.Patient.User.Phone,
			fmt.Sprintf("Reminder: your SPARKS session with %s starts in %d minutes.", s.Therapist.User.FullName, minutes))
		sent++
	}
	return sent, nil
}
