// Package strava integrates with the Strava OAuth and REST APIs.
package strava

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	defaultBaseURL  = "https://www.strava.com/api/v3/"
	defaultTokenURL = "https://www.strava.com/api/v3/oauth/token"
	authorizeURL    = "https://www.strava.com/oauth/authorize"

	// requestTimeout bounds every outbound call to Strava.
	requestTimeout = 10 * time.Second
)

type grantType string

const (
	grantAuthorizationCode grantType = "authorization_code"
	grantRefreshToken      grantType = "refresh_token"
)

// OAuthConfig carries the application credentials issued by Strava.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string // defaults to the production token endpoint
}

// OAuthClient performs authorization-code and refresh-token grants.
type OAuthClient struct {
	clientID     string
	clientSecret string
	tokenURL     string
	httpClient   *http.Client
}

// NewOAuthClient constructs an OAuthClient with a bounded request timeout.
func NewOAuthClient(cfg OAuthConfig) *OAuthClient {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	return &OAuthClient{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		tokenURL:     tokenURL,
		httpClient:   &http.Client{Timeout: requestTimeout},
	}
}

// TokenGrant is the decoded response from the token endpoint. Athlete fields
// are only populated on authorization-code grants.
type TokenGrant struct {
	AccessToken           string
	RefreshToken          string
	ExpiresAt             int64
	AthleteID             int64
	MeasurementPreference string
}

// Exchange trades an authorization code for tokens.
func (c *OAuthClient) Exchange(ctx context.Context, code string) (*TokenGrant, error) {
	return c.token(ctx, grantAuthorizationCode, code)
}

// Refresh trades a refresh token for a fresh access token.
func (c *OAuthClient) Refresh(ctx context.Context, refreshToken string) (*TokenGrant, error) {
	return c.token(ctx, grantRefreshToken, refreshToken)
}

func (c *OAuthClient) token(ctx context.Context, grant grantType, value string) (*TokenGrant, error) {
	body := map[string]string{
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
		"grant_type":    string(grant),
	}
	switch grant {
	case grantAuthorizationCode:
		body["code"] = value
	case grantRefreshToken:
		body["refresh_token"] = value
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &AuthError{Status: resp.StatusCode}
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresAt    int64  `json:"expires_at"`
		Athlete      *struct {
			ID                    int64  `json:"id"`
			MeasurementPreference string `json:"measurement_preference"`
		} `json:"athlete"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" || payload.RefreshToken == "" || payload.ExpiresAt == 0 {
		return nil, errors.New("token response missing required fields")
	}

	out := &TokenGrant{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresAt:    payload.ExpiresAt,
	}
	if payload.Athlete != nil {
		out.AthleteID = payload.Athlete.ID
		out.MeasurementPreference = payload.Athlete.MeasurementPreference
	}
	return out, nil
}
