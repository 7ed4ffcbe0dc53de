package out

import (
	"context"

	"timetable_server/core/domain"

	"github.com/google/uuid"
)

// CredentialRepository reads and writes the per-user calendar credential.
// The credential rows themselves are owned by the session layer; the sync
// engine only consumes this contract.
type CredentialRepository interface {
	// GetByUser returns the active credential for a user, or nil when the
	// user has never connected a calendar.
	GetByUser(ctx context.Context, userID uuid.UUID) (*domain.CalendarCredential, error)

	// Update persists refreshed tokens and the connected flag.
	Update(ctx context.Context, cred *domain.CalendarCredential) error

	// MarkDisconnected flags a credential whose refresh token is dead so
	// the session layer can force a re-consent flow.
	MarkDisconnected(ctx context.Context, credentialID int64) error
}
