package strava

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chromium7/shoe-wear-tracker/internal/domain"
)

type memoryStore struct {
	creds map[int64]domain.Credential
	saves int
}

func newMemoryStore(creds ...domain.Credential) *memoryStore {
	store := &memoryStore{creds: make(map[int64]domain.Credential)}
	for _, cred := range creds {
		store.creds[cred.UserID] = cred
	}
	return store
}

func (s *memoryStore) Credential(_ context.Context, userID int64) (*domain.Credential, error) {
	cred, ok := s.creds[userID]
	if !ok {
		return nil, nil
	}
	return &cred, nil
}

func (s *memoryStore) SaveCredential(_ context.Context, cred domain.Credential) error {
	s.saves++
	s.creds[cred.UserID] = cred
	return nil
}

func newTokenServer(t *testing.T, calls *int, status int, grant map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		require.Equal(t, http.MethodPost, r.Method)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.NotEmpty(t, body["grant_type"])

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(grant))
	}))
}

func TestAccessTokenFreshCredentialSkipsRefresh(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	var calls int
	server := newTokenServer(t, &calls, http.StatusOK, nil)
	defer server.Close()

	store := newMemoryStore(domain.Credential{
		UserID:       1,
		AccessToken:  "fresh-token",
		RefreshToken: "refresh-1",
		ExpiresAt:    now.Unix() + refreshWindow, // exactly at the window edge, still valid
	})

	manager := NewTokenManager(store, NewOAuthClient(OAuthConfig{TokenURL: server.URL}))
	manager.now = func() time.Time { return now }

	token, err := manager.AccessToken(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "fresh-token", token)
	require.Equal(t, 0, calls)
	require.Equal(t, 0, store.saves)
}

func TestAccessTokenExpiringCredentialRefreshesOnce(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	var calls int
	server := newTokenServer(t, &calls, http.StatusOK, map[string]interface{}{
		"access_token":  "new-token",
		"refresh_token": "refresh-2",
		"expires_at":    now.Unix() + 6*3600,
	})
	defer server.Close()

	store := newMemoryStore(domain.Credential{
		UserID:       1,
		AthleteID:    42,
		AccessToken:  "stale-token",
		RefreshToken: "refresh-1",
		ExpiresAt:    now.Unix() + refreshWindow - 1,
	})

	manager := NewTokenManager(store, NewOAuthClient(OAuthConfig{TokenURL: server.URL}))
	manager.now = func() time.Time { return now }

	token, err := manager.AccessToken(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "new-token", token)
	require.Equal(t, 1, calls)

	stored := store.creds[1]
	require.Equal(t, "new-token", stored.AccessToken)
	require.Equal(t, "refresh-2", stored.RefreshToken)
	require.Equal(t, now.Unix()+6*3600, stored.ExpiresAt)
	require.Equal(t, int64(42), stored.AthleteID)
}

func TestAccessTokenRefreshFailureIsTerminal(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	var calls int
	server := newTokenServer(t, &calls, http.StatusUnauthorized, nil)
	defer server.Close()

	store := newMemoryStore(domain.Credential{
		UserID:       1,
		AccessToken:  "stale-token",
		RefreshToken: "refresh-1",
		ExpiresAt:    now.Unix() - 10,
	})

	manager := NewTokenManager(store, NewOAuthClient(OAuthConfig{TokenURL: server.URL}))
	manager.now = func() time.Time { return now }

	token, err := manager.AccessToken(context.Background(), 1)
	require.Empty(t, token)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, http.StatusUnauthorized, authErr.Status)

	// The stale credential must be left untouched.
	require.Equal(t, 0, store.saves)
	require.Equal(t, "stale-token", store.creds[1].AccessToken)
}

func TestAccessTokenWithoutCredential(t *testing.T) {
	manager := NewTokenManager(newMemoryStore(), NewOAuthClient(OAuthConfig{}))

	_, err := manager.AccessToken(context.Background(), 7)
	require.ErrorIs(t, err, domain.ErrNotConnected)
}
