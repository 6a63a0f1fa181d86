package strava

import (
	"context"
	"time"

	"github.com/chromium7/shoe-wear-tracker/internal/domain"
	"github.com/chromium7/shoe-wear-tracker/internal/observability"
)

// refreshWindow is the safety margin, in seconds, before expiry within which
// a token is refreshed ahead of use.
const refreshWindow = 300

// CredentialStore persists OAuth token state per user. A missing credential
// is reported as (nil, nil).
type CredentialStore interface {
	Credential(ctx context.Context, userID int64) (*domain.Credential, error)
	SaveCredential(ctx context.Context, cred domain.Credential) error
}

// TokenManager hands out access tokens, refreshing them against the token
// endpoint when they are close to expiry. Two concurrent refreshes for the
// same user are resolved last-writer-wins on the stored credential; the
// provider keeps the previous refresh token valid long enough for this to be
// safe without locking.
type TokenManager struct {
	store CredentialStore
	oauth *OAuthClient
	now   func() time.Time
}

// NewTokenManager constructs a TokenManager.
func NewTokenManager(store CredentialStore, oauth *OAuthClient) *TokenManager {
	return &TokenManager{store: store, oauth: oauth, now: time.Now}
}

// AccessToken returns an access token valid for at least the refresh window.
// A failed refresh is terminal for the current operation; no retry is
// attempted and the stale token is never returned.
func (m *TokenManager) AccessToken(ctx context.Context, userID int64) (string, error) {
	cred, err := m.store.Credential(ctx, userID)
	if err != nil {
		return "", err
	}
	if cred == nil {
		return "", domain.ErrNotConnected
	}

	if m.now().Unix() <= cred.ExpiresAt-refreshWindow {
		return cred.AccessToken, nil
	}

	grant, err := m.oauth.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		recordTokenRefresh("error")
		return "", err
	}

	cred.AccessToken = grant.AccessToken
	cred.RefreshToken = grant.RefreshToken
	cred.ExpiresAt = grant.ExpiresAt
	if err := m.store.SaveCredential(ctx, *cred); err != nil {
		return "", err
	}

	recordTokenRefresh("ok")
	observability.RecordTokenRefreshed(m.now())
	return cred.AccessToken, nil
}
