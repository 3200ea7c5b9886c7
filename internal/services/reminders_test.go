package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparks-care/sparks-api/internal/models"
)

func TestSendDueReminders(t *testing.T) {
	db := newTestDB(t)
	f := seed(t, db)
	log, _ := newTestLogger()
	notify := NewNotificationService(db, nil, log)
	sms := &fakeSMS{}
	notify.SetSMS(sms)
	reminders := NewReminderService(db, notify, log, time.Hour)

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	mk := func(at time.Time, status string) models.TherapySession {
		s := models.TherapySession{
			PatientID:       f.patient.ID,
			TherapistID:     f.therapist.ID,
			ScheduledAt:     at,
			EndsAt:          at.Add(time.Hour),
			DurationMinutes: 60,
			Status:          status,
			MeetingLink:     "https://meet.jit.si/sparks-0000abcd",
		}
		require.NoError(t, db.Create(&s).Error)
		return s
	}
	due := mk(now.Add(30*time.Minute), models.SessionScheduled)
	mk(now.Add(3*time.Hour), models.SessionScheduled)     // too far out
	mk(now.Add(-30*time.Minute), models.SessionScheduled) // already started
	mk(now.Add(45*time.Minute), models.SessionCancelled)

	n, err := reminders.SendDueReminders(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var stored models.TherapySession
	require.NoError(t, db.First(&stored, due.ID).Error)
	assert.True(t, stored.ReminderSent)

	for _, uid := range []uint{f.patient.UserID, f.guardian.UserID, f.therapist.UserID} {
		notes := notificationsFor(t, db, uid)
		require.Len(t, notes, 1, "user %d", uid)
		assert.Equal(t, models.NotifyReminder, notes[0].Type)
		assert.Contains(t, notes[0].Message, "30 minutes")
	}

	// a second pass finds nothing new
	n, err = reminders.SendDueReminders(context.Background(), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	notify.Wait()
	require.Len(t, sms.sent, 1)
	assert.Contains(t, sms.sent[0], "+94770000000")
}

func TestReminderSchedulerStarts(t *testing.T) {
	db := newTestDB(t)
	log, _ := newTestLogger()
	reminders := NewReminderService(db, NewNotificationService(db, nil, log), log, 0)

	scheduler, err := reminders.Start(time.Hour)
	require.NoError(t, err)
	defer scheduler.Stop()
	assert.True(t, scheduler.IsRunning())
	assert.Len(t, scheduler.Jobs(), 1)
}
