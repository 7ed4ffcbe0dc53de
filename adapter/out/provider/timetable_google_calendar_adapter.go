// Package provider implements the external calendar boundary.
package provider

import (
	"context"
	"fmt"
	"time"

	"timetable_server/core/domain"
	"timetable_server/core/port/out"
	"timetable_server/pkg/apperr"
	"timetable_server/pkg/logger"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GoogleCalendarAdapter implements out.CalendarProviderPort against the
// Google Calendar API. All listings are filtered to namespace-tagged
// events client-side; the API itself knows nothing about the tag.
type GoogleCalendarAdapter struct {
	oauthConfig *oauth2.Config
	calendarID  string
	cb          *gobreaker.CircuitBreaker
}

var _ out.CalendarProviderPort = (*GoogleCalendarAdapter)(nil)

// GoogleCalendarConfig holds the adapter's OAuth client settings.
type GoogleCalendarConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	CalendarID   string
}

// NewGoogleCalendarAdapter creates the adapter.
func NewGoogleCalendarAdapter(cfg *GoogleCalendarConfig) *GoogleCalendarAdapter {
	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes: []string{
			calendar.CalendarEventsScope,
		},
		Endpoint: google.Endpoint,
	}

	calendarID := cfg.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}

	cbSettings := gobreaker.Settings{
		Name:        "google-calendar-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker %s: %s -> %s", name, from.String(), to.String())
		},
	}

	return &GoogleCalendarAdapter{
		oauthConfig: oauthConfig,
		calendarID:  calendarID,
		cb:          gobreaker.NewCircuitBreaker(cbSettings),
	}
}

// OAuthConfig exposes the shared OAuth client config for the token guard.
func (a *GoogleCalendarAdapter) OAuthConfig() *oauth2.Config {
	return a.oauthConfig
}

// getService creates a Calendar service bound to the token.
func (a *GoogleCalendarAdapter) getService(ctx context.Context, token *oauth2.Token) (*calendar.Service, error) {
	client := a.oauthConfig.Client(ctx, token)
	return calendar.NewService(ctx, option.WithHTTPClient(client))
}

// =============================================================================
// Event Operations
// =============================================================================

// ListWeekEvents lists tagged events in [weekStart, weekStart+7d).
func (a *GoogleCalendarAdapter) ListWeekEvents(ctx context.Context, token *oauth2.Token, weekStart time.Time) ([]*out.ProviderEvent, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	var events []*out.ProviderEvent
	pageToken := ""
	for {
		req := svc.Events.List(a.calendarID).
			TimeMin(weekStart.Format(time.RFC3339)).
			TimeMax(weekStart.AddDate(0, 0, 7).Format(time.RFC3339)).
			SingleEvents(true).
			MaxResults(250).
			Context(ctx)
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}

		var resp *calendar.Events
		err := a.execute("list events", func() error {
			var doErr error
			resp, doErr = req.Do()
			return doErr
		})
		if err != nil {
			return nil, err
		}

		for _, item := range resp.Items {
			ev := a.convertEvent(item)
			// Untagged events belong to the user, not to us. Never read
			// or mutate them.
			if !domain.HasNamespaceTag(ev.Private, ev.Description) {
				continue
			}
			events = append(events, ev)
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return events, nil
}

// CreateEvent creates a single event.
func (a *GoogleCalendarAdapter) CreateEvent(ctx context.Context, token *oauth2.Token, event *out.ProviderEvent) (*out.ProviderEvent, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	var created *calendar.Event
	err = a.execute("create event", func() error {
		var doErr error
		created, doErr = svc.Events.Insert(a.calendarID, a.toGoogleEvent(event)).Context(ctx).Do()
		return doErr
	})
	if err != nil {
		return nil, err
	}

	return a.convertEvent(created), nil
}

// UpdateEvent rewrites an existing event in place.
func (a *GoogleCalendarAdapter) UpdateEvent(ctx context.Context, token *oauth2.Token, eventID string, event *out.ProviderEvent) (*out.ProviderEvent, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	var updated *calendar.Event
	err = a.execute("update event", func() error {
		var doErr error
		updated, doErr = svc.Events.Update(a.calendarID, eventID, a.toGoogleEvent(event)).Context(ctx).Do()
		return doErr
	})
	if err != nil {
		return nil, err
	}

	return a.convertEvent(updated), nil
}

// DeleteEvent removes an event. Missing events surface as a
// remote-not-found error which callers treat as success.
func (a *GoogleCalendarAdapter) DeleteEvent(ctx context.Context, token *oauth2.Token, eventID string) error {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to create calendar service: %w", err)
	}

	return a.execute("delete event", func() error {
		return svc.Events.Delete(a.calendarID, eventID).Context(ctx).Do()
	})
}

// =============================================================================
// Conversion
// =============================================================================

func (a *GoogleCalendarAdapter) convertEvent(event *calendar.Event) *out.ProviderEvent {
	converted := &out.ProviderEvent{
		ID:          event.Id,
		Title:       event.Summary,
		Description: event.Description,
		Location:    event.Location,
	}

	if event.Start != nil && event.Start.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, event.Start.DateTime); err == nil {
			converted.StartTime = t.UTC()
		}
	}
	if event.End != nil && event.End.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, event.End.DateTime); err == nil {
			converted.EndTime = t.UTC()
		}
	}
	if event.Created != "" {
		if t, err := time.Parse(time.RFC3339, event.Created); err == nil {
			converted.Created = t.UTC()
		}
	}
	if event.ExtendedProperties != nil {
		converted.Private = event.ExtendedProperties.Private
	}

	return converted
}

func (a *GoogleCalendarAdapter) toGoogleEvent(event *out.ProviderEvent) *calendar.Event {
	return &calendar.Event{
		Summary:     event.Title,
		Description: event.Description,
		Location:    event.Location,
		Start: &calendar.EventDateTime{
			DateTime: event.StartTime.Format(time.RFC3339),
			TimeZone: "UTC",
		},
		End: &calendar.EventDateTime{
			DateTime: event.EndTime.Format(time.RFC3339),
			TimeZone: "UTC",
		},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: event.Private,
		},
	}
}

// =============================================================================
// Circuit Breaker and Error Classification
// =============================================================================

// execute runs one API call through the circuit breaker. Client-side
// errors (auth, not-found, bad request) never trip the breaker; server
// errors and rate limiting do.
func (a *GoogleCalendarAdapter) execute(operation string, fn func() error) error {
	_, err := a.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			if apiErr, ok := err.(*googleapi.Error); ok {
				switch apiErr.Code {
				case 500, 502, 503, 429:
					return nil, err
				default:
					return nil, &nonCircuitError{err: err}
				}
			}
			return nil, err
		}
		return nil, nil
	})
	if err == nil {
		return nil
	}

	if nce, ok := err.(*nonCircuitError); ok {
		err = nce.err
	}
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return apperr.ExternalError("google-calendar", err)
	}

	return classifyAPIError(operation, err)
}

// classifyAPIError maps an API failure onto the engine's error taxonomy.
func classifyAPIError(operation string, err error) error {
	apiErr, ok := err.(*googleapi.Error)
	if !ok {
		return apperr.RemoteConflict(operation, err)
	}
	switch apiErr.Code {
	case 404, 410:
		return apperr.RemoteNotFound("")
	case 401:
		return apperr.AuthTransient(err)
	case 403:
		// Insufficient scope means the grant itself is unusable.
		for _, e := range apiErr.Errors {
			if e.Reason == "insufficientPermissions" || e.Reason == "forbidden" {
				return apperr.ReauthRequired(err)
			}
		}
		return apperr.RemoteConflict(operation, err)
	default:
		return apperr.RemoteConflict(operation, err)
	}
}

// nonCircuitError wraps errors that should not trip the circuit breaker.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string {
	return e.err.Error()
}

// State reports the current circuit breaker state.
func (a *GoogleCalendarAdapter) State() string {
	return a.cb.State().String()
}
