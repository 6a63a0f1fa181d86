package strava

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/chromium7/shoe-wear-tracker/internal/domain"
)

// requestedScopes covers profile and activity reads needed for sync.
const requestedScopes = "read,profile:read_all,activity:read_all"

// UserDirectory resolves local users and binds their Strava credential.
type UserDirectory interface {
	UserByID(ctx context.Context, id int64) (*domain.User, error)
	// BindCredential stores the credential and the measurement unit derived
	// from the athlete profile in a single transaction.
	BindCredential(ctx context.Context, cred domain.Credential, unit domain.MeasurementUnit) error
}

// AuthorizerConfig carries the pieces needed to build consent URLs.
type AuthorizerConfig struct {
	ClientID    string
	RedirectURL string
}

// Authorizer runs the OAuth consent flow: it builds the authorization URL
// and completes the callback by exchanging the code and binding the
// resulting profile to a local user.
type Authorizer struct {
	oauth *OAuthClient
	store CredentialStore
	users UserDirectory
	cfg   AuthorizerConfig
}

// NewAuthorizer constructs an Authorizer.
func NewAuthorizer(oauth *OAuthClient, store CredentialStore, users UserDirectory, cfg AuthorizerConfig) *Authorizer {
	return &Authorizer{oauth: oauth, store: store, users: users, cfg: cfg}
}

// AuthorizationURL builds the consent URL for a user. The local user id is
// carried in the opaque state parameter so the callback can rebind to the
// correct user without a server-side session.
func (a *Authorizer) AuthorizationURL(userID int64) string {
	query := url.Values{}
	query.Set("client_id", a.cfg.ClientID)
	query.Set("redirect_uri", a.cfg.RedirectURL)
	query.Set("response_type", "code")
	query.Set("approval_prompt", "auto")
	query.Set("scope", requestedScopes)
	query.Set("state", strconv.FormatInt(userID, 10))
	return authorizeURL + "?" + query.Encode()
}

// Complete exchanges the authorization code and persists the credential.
// Re-authorizing an already-connected user is rejected with
// domain.ErrInvalidState before any upstream call or mutation happens.
func (a *Authorizer) Complete(ctx context.Context, state, code string) (*domain.Credential, error) {
	userID, err := strconv.ParseInt(state, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: state %q", domain.ErrInvalidState, state)
	}

	user, err := a.users.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: no user %d", domain.ErrInvalidState, userID)
	}

	existing, err := a.store.Credential(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: user %d already connected", domain.ErrInvalidState, userID)
	}

	grant, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCode, err)
		}
		return nil, err
	}

	unit := domain.MeasurementImperial
	if grant.MeasurementPreference == "meters" {
		unit = domain.MeasurementMetric
	}

	cred := domain.Credential{
		UserID:       userID,
		AthleteID:    grant.AthleteID,
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    grant.ExpiresAt,
	}
	if err := a.users.BindCredential(ctx, cred, unit); err != nil {
		return nil, err
	}
	return &cred, nil
}
