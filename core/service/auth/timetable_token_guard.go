// Package auth guards access tokens for outbound calendar calls.
package auth

import (
	"context"
	"strings"
	"time"

	"timetable_server/core/port/out"
	"timetable_server/pkg/apperr"
	"timetable_server/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// TokenRefresher exchanges a refresh token for a fresh access token.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// OAuthRefresher refreshes through the provider's token endpoint.
type OAuthRefresher struct {
	config *oauth2.Config
}

var _ TokenRefresher = (*OAuthRefresher)(nil)

func NewOAuthRefresher(config *oauth2.Config) *OAuthRefresher {
	return &OAuthRefresher{config: config}
}

func (r *OAuthRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	return src.Token()
}

// ============================================================================
// Token Guard
// ============================================================================

// TokenGuard hands out access tokens that are guaranteed to outlive the
// refresh margin. Every sync batch goes through EnsureToken before its
// first remote call.
type TokenGuard struct {
	credentials out.CredentialRepository
	refresher   TokenRefresher
	margin      time.Duration
}

func NewTokenGuard(credentials out.CredentialRepository, refresher TokenRefresher, margin time.Duration) *TokenGuard {
	if margin <= 0 {
		margin = 60 * time.Second
	}
	return &TokenGuard{
		credentials: credentials,
		refresher:   refresher,
		margin:      margin,
	}
}

// EnsureToken returns a usable access token for the user, refreshing it
// first when it expires inside the margin. A dead refresh token marks the
// credential disconnected and reports ReauthRequired; any other refresh
// failure is transient and retryable.
func (g *TokenGuard) EnsureToken(ctx context.Context, userID uuid.UUID) (*oauth2.Token, error) {
	cred, err := g.credentials.GetByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Persistence("get calendar credential", err)
	}
	if cred == nil || !cred.IsConnected {
		return nil, apperr.ReauthRequired(nil)
	}

	if !cred.ExpiresWithin(g.margin) {
		return &oauth2.Token{
			AccessToken:  cred.AccessToken,
			RefreshToken: cred.RefreshToken,
			Expiry:       cred.ExpiresAt,
			TokenType:    "Bearer",
		}, nil
	}

	fresh, err := g.refresher.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		if isRevokedGrantError(err) {
			logger.WithError(err).Warn("Refresh token revoked for user %s, marking disconnected", userID)
			if markErr := g.credentials.MarkDisconnected(ctx, cred.ID); markErr != nil {
				logger.WithError(markErr).Error("Failed to mark credential %d disconnected", cred.ID)
			}
			return nil, apperr.ReauthRequired(err)
		}
		return nil, apperr.AuthTransient(err)
	}

	cred.AccessToken = fresh.AccessToken
	cred.ExpiresAt = fresh.Expiry
	// Google only returns a refresh token on the first consent; keep the
	// stored one when the response omits it.
	if fresh.RefreshToken != "" {
		cred.RefreshToken = fresh.RefreshToken
	}
	if err := g.credentials.Update(ctx, cred); err != nil {
		// The refreshed token is still valid for this batch even if we
		// failed to persist it.
		logger.WithError(err).Error("Failed to persist refreshed token for user %s", userID)
	}

	return &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		Expiry:       cred.ExpiresAt,
		TokenType:    "Bearer",
	}, nil
}

// isRevokedGrantError distinguishes a dead refresh token from a flaky
// token endpoint. The OAuth error body is not structured, so match the
// known provider messages.
func isRevokedGrantError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "invalid_grant") ||
		strings.Contains(msg, "invalid_client") ||
		strings.Contains(msg, "Token has been expired or revoked")
}
