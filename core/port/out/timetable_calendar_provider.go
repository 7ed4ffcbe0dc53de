// Package out defines outbound ports (driven ports) for the application.
package out

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// =============================================================================
// Calendar Provider Port
// =============================================================================

// CalendarProviderPort is the boundary to the external calendar service.
// Implementations must filter listings to namespace-tagged events
// client-side; the service itself knows nothing about the tag.
type CalendarProviderPort interface {
	// ListWeekEvents lists tagged events in [weekStart, weekStart+7d).
	ListWeekEvents(ctx context.Context, token *oauth2.Token, weekStart time.Time) ([]*ProviderEvent, error)

	// CreateEvent creates a single event and returns it with the remote id
	// assigned.
	CreateEvent(ctx context.Context, token *oauth2.Token, event *ProviderEvent) (*ProviderEvent, error)

	// UpdateEvent rewrites an existing event in place.
	UpdateEvent(ctx context.Context, token *oauth2.Token, eventID string, event *ProviderEvent) (*ProviderEvent, error)

	// DeleteEvent removes an event. A missing event is reported as a
	// remote-not-found error, which callers treat as success.
	DeleteEvent(ctx context.Context, token *oauth2.Token, eventID string) error
}

// ProviderEvent is the provider-neutral remote event representation.
// Private carries the structured metadata channel; the description holds
// the delimited JSON fallback copy.
type ProviderEvent struct {
	ID          string
	Title       string
	Description string
	Location    string
	StartTime   time.Time
	EndTime     time.Time
	Created     time.Time
	Private     map[string]string
}
