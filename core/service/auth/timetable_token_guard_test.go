package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"timetable_server/core/domain"
	"timetable_server/pkg/apperr"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

type fakeCredentialRepo struct {
	cred         *domain.CalendarCredential
	updated      *domain.CalendarCredential
	disconnected []int64
	getErr       error
	updateErr    error
}

func (f *fakeCredentialRepo) GetByUser(_ context.Context, _ uuid.UUID) (*domain.CalendarCredential, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.cred, nil
}

func (f *fakeCredentialRepo) Update(_ context.Context, cred *domain.CalendarCredential) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	c := *cred
	f.updated = &c
	return nil
}

func (f *fakeCredentialRepo) MarkDisconnected(_ context.Context, credentialID int64) error {
	f.disconnected = append(f.disconnected, credentialID)
	return nil
}

type fakeRefresher struct {
	token *oauth2.Token
	err   error
	calls int
}

func (f *fakeRefresher) Refresh(_ context.Context, _ string) (*oauth2.Token, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.token, nil
}

func testCredential(expiresIn time.Duration) *domain.CalendarCredential {
	return &domain.CalendarCredential{
		ID:           42,
		UserID:       uuid.New(),
		AccessToken:  "old-access",
		RefreshToken: "stored-refresh",
		ExpiresAt:    time.Now().Add(expiresIn),
		IsConnected:  true,
	}
}

func TestEnsureToken_FreshTokenPassesThrough(t *testing.T) {
	repo := &fakeCredentialRepo{cred: testCredential(time.Hour)}
	refresher := &fakeRefresher{}
	guard := NewTokenGuard(repo, refresher, 60*time.Second)

	tok, err := guard.EnsureToken(context.Background(), repo.cred.UserID)
	if err != nil {
		t.Fatalf("EnsureToken() error = %v", err)
	}
	if tok.AccessToken != "old-access" {
		t.Errorf("access token = %q, want stored token", tok.AccessToken)
	}
	if refresher.calls != 0 {
		t.Errorf("refresher called %d times for a fresh token", refresher.calls)
	}
}

func TestEnsureToken_RefreshesInsideMargin(t *testing.T) {
	repo := &fakeCredentialRepo{cred: testCredential(30 * time.Second)}
	refresher := &fakeRefresher{token: &oauth2.Token{
		AccessToken: "new-access",
		Expiry:      time.Now().Add(time.Hour),
	}}
	guard := NewTokenGuard(repo, refresher, 60*time.Second)

	tok, err := guard.EnsureToken(context.Background(), repo.cred.UserID)
	if err != nil {
		t.Fatalf("EnsureToken() error = %v", err)
	}
	if refresher.calls != 1 {
		t.Fatalf("refresher called %d times, want 1", refresher.calls)
	}
	if tok.AccessToken != "new-access" {
		t.Errorf("access token = %q, want refreshed token", tok.AccessToken)
	}
	if tok.RefreshToken != "stored-refresh" {
		t.Errorf("refresh token = %q, want the stored one kept", tok.RefreshToken)
	}
	if repo.updated == nil {
		t.Fatal("refreshed credential was not persisted")
	}
	if repo.updated.AccessToken != "new-access" {
		t.Errorf("persisted access token = %q", repo.updated.AccessToken)
	}
}

func TestEnsureToken_NewRefreshTokenReplacesStored(t *testing.T) {
	repo := &fakeCredentialRepo{cred: testCredential(0)}
	refresher := &fakeRefresher{token: &oauth2.Token{
		AccessToken:  "new-access",
		RefreshToken: "rotated-refresh",
		Expiry:       time.Now().Add(time.Hour),
	}}
	guard := NewTokenGuard(repo, refresher, 60*time.Second)

	tok, err := guard.EnsureToken(context.Background(), repo.cred.UserID)
	if err != nil {
		t.Fatal(err)
	}
	if tok.RefreshToken != "rotated-refresh" {
		t.Errorf("refresh token = %q, want the rotated one", tok.RefreshToken)
	}
}

func TestEnsureToken_RevokedGrantRequiresReauth(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"invalid_grant body", errors.New(`oauth2: "invalid_grant" "Bad Request"`)},
		{"invalid_client body", errors.New(`oauth2: "invalid_client"`)},
		{"expired message", errors.New("Token has been expired or revoked.")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeCredentialRepo{cred: testCredential(10 * time.Second)}
			guard := NewTokenGuard(repo, &fakeRefresher{err: tt.err}, 60*time.Second)

			_, err := guard.EnsureToken(context.Background(), repo.cred.UserID)
			if !apperr.IsReauthRequired(err) {
				t.Fatalf("error = %v, want reauth required", err)
			}
			if len(repo.disconnected) != 1 || repo.disconnected[0] != 42 {
				t.Errorf("disconnected = %v, want credential 42 marked", repo.disconnected)
			}
		})
	}
}

func TestEnsureToken_TransientRefreshFailure(t *testing.T) {
	repo := &fakeCredentialRepo{cred: testCredential(10 * time.Second)}
	guard := NewTokenGuard(repo, &fakeRefresher{err: errors.New("connection reset by peer")}, 60*time.Second)

	_, err := guard.EnsureToken(context.Background(), repo.cred.UserID)
	if !apperr.IsAuthTransient(err) {
		t.Fatalf("error = %v, want transient auth error", err)
	}
	if len(repo.disconnected) != 0 {
		t.Error("transient failure must not disconnect the credential")
	}
}

func TestEnsureToken_MissingCredential(t *testing.T) {
	guard := NewTokenGuard(&fakeCredentialRepo{}, &fakeRefresher{}, 60*time.Second)

	_, err := guard.EnsureToken(context.Background(), uuid.New())
	if !apperr.IsReauthRequired(err) {
		t.Fatalf("error = %v, want reauth required for missing credential", err)
	}
}

func TestEnsureToken_DisconnectedCredential(t *testing.T) {
	cred := testCredential(time.Hour)
	cred.IsConnected = false
	guard := NewTokenGuard(&fakeCredentialRepo{cred: cred}, &fakeRefresher{}, 60*time.Second)

	_, err := guard.EnsureToken(context.Background(), cred.UserID)
	if !apperr.IsReauthRequired(err) {
		t.Fatalf("error = %v, want reauth required for disconnected credential", err)
	}
}

func TestEnsureToken_PersistFailureStillReturnsToken(t *testing.T) {
	repo := &fakeCredentialRepo{
		cred:      testCredential(0),
		updateErr: errors.New("db down"),
	}
	refresher := &fakeRefresher{token: &oauth2.Token{
		AccessToken: "new-access",
		Expiry:      time.Now().Add(time.Hour),
	}}
	guard := NewTokenGuard(repo, refresher, 60*time.Second)

	tok, err := guard.EnsureToken(context.Background(), repo.cred.UserID)
	if err != nil {
		t.Fatalf("EnsureToken() error = %v, the in-memory token is still valid", err)
	}
	if tok.AccessToken != "new-access" {
		t.Errorf("access token = %q", tok.AccessToken)
	}
}
