package domain

import (
	"time"

	"github.com/google/uuid"
)

// CalendarCredential is the stored OAuth credential for a user's external
// calendar. Owned by the session layer; the sync engine only reads and
// refreshes it through the token guard.
type CalendarCredential struct {
	ID           int64     `json:"id" db:"id"`
	UserID       uuid.UUID `json:"user_id" db:"user_id"`
	Email        string    `json:"email" db:"email"`
	AccessToken  string    `json:"-" db:"access_token"`
	RefreshToken string    `json:"-" db:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at" db:"expires_at"`
	IsConnected  bool      `json:"is_connected" db:"is_connected"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// ExpiresWithin reports whether the access token expires inside the given
// safety margin. A zero expiry is treated as already expired.
func (c *CalendarCredential) ExpiresWithin(margin time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return true
	}
	return time.Until(c.ExpiresAt) < margin
}
