package persistence

import (
	"context"
	"database/sql"
	"time"

	"timetable_server/core/domain"
	"timetable_server/core/port/out"
	"timetable_server/pkg/crypto"
	"timetable_server/pkg/logger"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// CredentialAdapter implements out.CredentialRepository using PostgreSQL.
// The rows are written by the session layer's consent flow; the engine
// only reads and refreshes them. Tokens are encrypted at rest when an
// encryption key is configured.
type CredentialAdapter struct {
	db                *sqlx.DB
	encryptionEnabled bool
}

var _ out.CredentialRepository = (*CredentialAdapter)(nil)

// NewCredentialAdapter creates a new CredentialAdapter.
func NewCredentialAdapter(db *sqlx.DB) *CredentialAdapter {
	err := crypto.Init()
	if err != nil {
		logger.Warn("Token encryption disabled: %v", err)
	}
	return &CredentialAdapter{db: db, encryptionEnabled: err == nil}
}

func (a *CredentialAdapter) encryptToken(token string) string {
	if !a.encryptionEnabled || token == "" {
		return token
	}
	encrypted, err := crypto.EncryptToken(token)
	if err != nil {
		logger.Warn("Failed to encrypt token: %v", err)
		return token
	}
	return encrypted
}

func (a *CredentialAdapter) decryptToken(token string) string {
	if token == "" {
		return token
	}
	// Rows written before encryption was enabled hold plaintext.
	if !crypto.IsEncrypted(token) {
		return token
	}
	decrypted, err := crypto.DecryptToken(token)
	if err != nil {
		return token
	}
	return decrypted
}

// credentialRow represents the database row for a calendar credential.
type credentialRow struct {
	ID           int64        `db:"id"`
	UserID       string       `db:"user_id"`
	Email        string       `db:"email"`
	AccessToken  string       `db:"access_token"`
	RefreshToken string       `db:"refresh_token"`
	ExpiresAt    sql.NullTime `db:"expires_at"`
	IsConnected  bool         `db:"is_connected"`
	CreatedAt    time.Time    `db:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at"`
}

func (r *credentialRow) toEntity() (*domain.CalendarCredential, error) {
	userID, err := uuid.Parse(r.UserID)
	if err != nil {
		return nil, err
	}

	cred := &domain.CalendarCredential{
		ID:           r.ID,
		UserID:       userID,
		Email:        r.Email,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		IsConnected:  r.IsConnected,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.ExpiresAt.Valid {
		cred.ExpiresAt = r.ExpiresAt.Time.UTC()
	}
	return cred, nil
}

// GetByUser returns the active credential for a user, or nil when the
// user never connected a calendar.
func (a *CredentialAdapter) GetByUser(ctx context.Context, userID uuid.UUID) (*domain.CalendarCredential, error) {
	query := `SELECT * FROM calendar_credentials WHERE user_id = $1 LIMIT 1`

	var row credentialRow
	err := a.db.QueryRowxContext(ctx, query, userID.String()).StructScan(&row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	cred, err := row.toEntity()
	if err != nil {
		return nil, err
	}
	cred.AccessToken = a.decryptToken(cred.AccessToken)
	cred.RefreshToken = a.decryptToken(cred.RefreshToken)
	return cred, nil
}

// Update persists refreshed tokens and the connected flag.
func (a *CredentialAdapter) Update(ctx context.Context, cred *domain.CalendarCredential) error {
	query := `
		UPDATE calendar_credentials
		SET access_token = $2,
		    refresh_token = $3,
		    expires_at = $4,
		    is_connected = $5,
		    updated_at = NOW()
		WHERE id = $1
	`
	result, err := a.db.ExecContext(ctx, query,
		cred.ID, a.encryptToken(cred.AccessToken), a.encryptToken(cred.RefreshToken),
		cred.ExpiresAt, cred.IsConnected)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkDisconnected flags a credential whose refresh token is dead.
func (a *CredentialAdapter) MarkDisconnected(ctx context.Context, credentialID int64) error {
	query := `
		UPDATE calendar_credentials
		SET is_connected = false, updated_at = NOW()
		WHERE id = $1
	`
	result, err := a.db.ExecContext(ctx, query, credentialID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
