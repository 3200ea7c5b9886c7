package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/sparks-care/sparks-api/internal/logger"
	"github.com/sparks-care/sparks-api/internal/models"
)

type SMSSender interface {
	SendSMS(phone, message string) error
}

type Mailer interface {
	SendEmail(toName, toAddress, subject, body string) error
}

type Pusher interface {
	Push(ctx context.Context, tokens []string, title, body string) error
}

// NotificationService stores in-app notifications and fans them out to the
// live stream, push, email and SMS channels. Channels left nil are skipped.
type NotificationService struct {
	db   *gorm.DB
	hub  *Broadcaster
	log  logger.Logger
	sms  SMSSender
	mail Mailer
	push Pusher
	wg   sync.WaitGroup
}

func NewNotificationService(db *gorm.DB, hub *Broadcaster, log logger.Logger) *NotificationService {
	return &NotificationService{db: db, hub: hub, log: log}
}

func (s *NotificationService) SetSMS(sms SMSSender) { s.sms = sms }
func (s *NotificationService) SetMailer(m Mailer) { s.mail = m }
func (s *NotificationService) SetPusher(p Pusher) { s.push = p }
func (s *NotificationService) Broadcaster() *Broadcaster { return s.hub }

// Notify inserts the rows and then publishes them.
func (s *NotificationService) Notify(ctx context.Context, notes ...models.Notification) error {
	if len(notes) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&notes).Error; err != nil {
		return fmt.Errorf("insert notifications: %w", err)
	}
	for i := range notes {
		s.publish(&notes[i])
	}
	s.pushAll(notes)
	return nil
}

// NotifyRoles sends a copy of tmpl to every active user holding one of roles.
func (s *NotificationService) NotifyRoles(ctx context.Context, tmpl models.Notification, roles ...string) error {
	var ids []uint
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("role IN ? AND is_active = ?", roles, true).
		Pluck("id", &ids).Error; err != nil {
		return fmt.Errorf("find %v users: %w", roles, err)
	}
	notes := make([]models.Notification, 0, len(ids))
	for _, id := range ids {
		n := tmpl
		n.UserID = id
		notes = append(notes, n)
	}
	return s.Notify(ctx, notes...)
}

func (s *NotificationService) publish(n *models.Notification) {
	if s.hub == nil {
		return
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return
	}
	s.hub.Publish(n.UserID, string(payload))
}

func (s *NotificationService) pushAll(notes []models.Notification) {
	if s.push == nil {
		return
	}
	for _, n := range notes {
		var tokens []string
		if err := s.db.Model(&models.DeviceToken{}).Where("user_id = ?", n.UserID).Pluck("token", &tokens).Error; err != nil || len(tokens) == 0 {
			continue
		}
		title, body := n.Title, n.Message
		s.goSend(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.push.Push(ctx, tokens, title, body); err != nil {
				s.log.Warn("push notification failed", err)
			}
		})
	}
}

// SendEmail sends in the background so it doesn't block the API response.
func (s *NotificationService) SendEmail(toName, toAddress, subject, body string) {
	if s.mail == nil || toAddress == "" {
		return
	}
	s.goSend(func() {
		if err := s.mail.SendEmail(toName, toAddress, subject, body); err != nil {
			s.log.Warn("email to "+toAddress+" failed", err)
		}
	})
}

// SendSMS sends in the background; users without a phone are skipped.
func (s *NotificationService) SendSMS(phone, message string) {
	if s.sms == nil || phone == "" {
		return
	}
	s.goSend(func() {
		if err := s.sms.SendSMS(phone, message); err != nil {
			s.log.Warn("sms to "+phone+" failed", err)
		}
	})
}

// SendSessionConfirmation emails and texts both participants of a booked session.
func (s *NotificationService) SendSessionConfirmation(patient, therapist *models.User, session *models.TherapySession) {
	when := session.ScheduledAt.Format("Jan 2 at 3:04 PM MST")
	s.SendEmail(patient.FullName, patient.Email, "Your therapy session is confirmed",
		fmt.Sprintf("Hi %s,\n\nYour session with %s is booked for %s.\nJoin here: %s\n",
			patient.FullName, therapist.FullName, when, session.MeetingLink))
	s.SendEmail(therapist.FullName, therapist.Email, "New session booked",
		fmt.Sprintf("Hi %s,\n\n%s booked a session for %s.\nMeeting link: %s\n",
			therapist.FullName, patient.FullName, when, session.MeetingLink))
	s.SendSMS(patient.Phone, fmt.Sprintf("Session confirmed with %s on %s.", therapist.FullName, when))
}

func (s *NotificationService) goSend(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Wait blocks until background sends have finished.
func (s *NotificationService) Wait() {
	s.wg.Wait()
}

// TextbeltSMS sends text messages through the Textbelt HTTP API.
type TextbeltSMS struct {
	key      string
	endpoint string
	client   *http.Client
}

func NewTextbeltSMS(key string) *TextbeltSMS {
	return &TextbeltSMS{
		key:      key,
		endpoint: "https://textbelt.com/text",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TextbeltSMS) SendSMS(phone, message string) error {
	postBody, _ := json.Marshal(map[string]string{
		"phone":   phone,
		"message": message,
		"key":     t.key,
	})

	resp, err := t.client.Post(t.endpoint, "application/json", bytes.NewBuffer(postBody))
	if err != nil {
		return fmt.Errorf("textbelt request: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("textbelt response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("textbelt: %s", result.Error)
	}
	return nil
}
