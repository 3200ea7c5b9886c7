package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/sparks-care/sparks-api/internal/logger"
)

type MeetingRequest struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Attendees   []string
}

type Meeting struct {
	Link     string
	EventID  string
	Fallback bool
}

type MeetingProvider interface {
	CreateMeeting(ctx context.Context, req MeetingRequest) (*Meeting, error)
}

// MeetingCanceller is implemented by providers that can remove a meeting
// they created.
type MeetingCanceller interface {
	CancelMeeting(ctx context.Context, eventID string) error
}

// GoogleMeetProvider creates a calendar event with a Meet conference attached.
type GoogleMeetProvider struct {
	events     *calendar.EventsService
	calendarID string
}

func NewGoogleMeetProvider(ctx context.Context, credentialsFile, calendarID string) (*GoogleMeetProvider, error) {
	svc, err := calendar.NewService(ctx, option.WithCredentialsFile(credentialsFile), option.WithScopes(calendar.CalendarEventsScope))
	if err != nil {
		return nil, fmt.Errorf("calendar service: %w", err)
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	return &GoogleMeetProvider{events: svc.Events, calendarID: calendarID}, nil
}

func (g *GoogleMeetProvider) CreateMeeting(ctx context.Context, req MeetingRequest) (*Meeting, error) {
	event := &calendar.Event{
		Summary:     req.Summary,
		Description: req.Description,
		Start:       &calendar.EventDateTime{DateTime: req.Start.Format(time.RFC3339), TimeZone: "UTC"},
		End:         &calendar.EventDateTime{DateTime: req.End.Format(time.RFC3339), TimeZone: "UTC"},
		ConferenceData: &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId:             uuid.NewString(),
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		},
	}
	for _, email := range req.Attendees {
		if email != "" {
			event.Attendees = append(event.Attendees, &calendar.EventAttendee{Email: email})
		}
	}

	created, err := g.events.Insert(g.calendarID, event).ConferenceDataVersion(1).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("insert calendar event: %w", err)
	}
	if created.HangoutLink == "" {
		return nil, errors.New("calendar event has no meet link")
	}
	return &Meeting{Link: created.HangoutLink, EventID: created.Id}, nil
}

func (g *GoogleMeetProvider) CancelMeeting(ctx context.Context, eventID string) error {
	if err := g.events.Delete(g.calendarID, eventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete calendar event: %w", err)
	}
	return nil
}

// MeetingService never fails: without a provider, or when the provider
// errors, it hands out a locally generated link.
type MeetingService struct {
	provider     MeetingProvider
	fallbackBase string
	log          logger.Logger
}

func NewMeetingService(provider MeetingProvider, fallbackBase string, log logger.Logger) *MeetingService {
	if fallbackBase == "" {
		fallbackBase = "https://meet.jit.si"
	}
	return &MeetingService{provider: provider, fallbackBase: strings.TrimRight(fallbackBase, "/"), log: log}
}

func (m *MeetingService) Provision(ctx context.Context, req MeetingRequest) Meeting {
	if m.provider != nil {
		meeting, err := m.provider.CreateMeeting(ctx, req)
		if err == nil {
			return *meeting
		}
		m.log.Warn("meeting provider failed, using fallback link", err)
	}
	return Meeting{Link: FallbackMeetingLink(m.fallbackBase), Fallback: true}
}

// Release removes a provisioned meeting that ended up unused. Fallback
// links have nothing to remove.
func (m *MeetingService) Release(ctx context.Context, meeting Meeting) {
	if meeting.Fallback || meeting.EventID == "" {
		return
	}
	canceller, ok := m.provider.(MeetingCanceller)
	if !ok {
		m.log.Warn("meeting provider cannot cancel event " + meeting.EventID)
		return
	}
	if err := canceller.CancelMeeting(ctx, meeting.EventID); err != nil {
		m.log.Warn("could not cancel unused meeting "+meeting.EventID, err)
	}
}

// FallbackMeetingLink is base/sparks-<8 hex chars>.
func FallbackMeetingLink(base string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s/sparks-%s", base, id[:8])
}
