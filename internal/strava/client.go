package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/chromium7/shoe-wear-tracker/internal/domain"
)

// Client performs authenticated reads against the Strava REST API. Every
// call obtains a valid token from the TokenManager first.
type Client struct {
	baseURL    string
	tokens     *TokenManager
	httpClient *http.Client
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(base string) ClientOption {
	return func(c *Client) {
		c.baseURL = base
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient constructs a Client with a bounded request timeout.
func NewClient(tokens *TokenManager, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Athlete is the authenticated athlete's profile.
type Athlete struct {
	ID                    int64  `json:"id"`
	MeasurementPreference string `json:"measurement_preference"`
	Shoes                 []Gear `json:"shoes"`
}

// Gear describes a pair of shoes registered with Strava.
type Gear struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Nickname       string  `json:"nickname"`
	Retired        bool    `json:"retired"`
	DistanceMeters float64 `json:"distance"`
}

// activityPayload decodes the fields we track from an activity response.
// Unknown keys are ignored.
type activityPayload struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Distance   float64   `json:"distance"`
	MovingTime int       `json:"moving_time"`
	SportType  string    `json:"sport_type"`
	Type       string    `json:"type"`
	StartDate  time.Time `json:"start_date"`
	GearID     string    `json:"gear_id"`
}

func (p activityPayload) sportType() string {
	if p.SportType != "" {
		return p.SportType
	}
	return p.Type
}

func (p activityPayload) external() (domain.ExternalActivity, error) {
	if p.ID == 0 {
		return domain.ExternalActivity{}, errors.New("activity payload missing id")
	}
	if p.StartDate.IsZero() {
		return domain.ExternalActivity{}, fmt.Errorf("activity %d missing start_date", p.ID)
	}
	return domain.ExternalActivity{
		ID:             strconv.FormatInt(p.ID, 10),
		Name:           p.Name,
		DistanceMeters: p.Distance,
		DurationSec:    p.MovingTime,
		SportType:      p.sportType(),
		GearID:         p.GearID,
		StartedAt:      p.StartDate,
	}, nil
}

// Athlete fetches the authenticated athlete's profile.
func (c *Client) Athlete(ctx context.Context, userID int64) (*Athlete, error) {
	var out Athlete
	if err := c.get(ctx, userID, "athlete", "athlete", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AthleteShoes fetches the shoes registered on the athlete's profile.
func (c *Client) AthleteShoes(ctx context.Context, userID int64) ([]Gear, error) {
	athlete, err := c.Athlete(ctx, userID)
	if err != nil {
		return nil, err
	}
	return athlete.Shoes, nil
}

// Activities lists the athlete's activities recorded after the given time.
// Sport types outside the tracked mapping are dropped. Strava returns
// activities in ascending start order; results are normalised to most
// recent first.
func (c *Client) Activities(ctx context.Context, userID int64, after time.Time) ([]domain.ExternalActivity, error) {
	query := url.Values{}
	query.Set("after", strconv.FormatInt(after.Unix(), 10))

	var payloads []activityPayload
	if err := c.get(ctx, userID, "activities", "athlete/activities", query, &payloads); err != nil {
		return nil, err
	}

	out := make([]domain.ExternalActivity, 0, len(payloads))
	for _, payload := range payloads {
		if _, ok := domain.SportTypes[payload.sportType()]; !ok {
			continue
		}
		external, err := payload.external()
		if err != nil {
			return nil, err
		}
		out = append(out, external)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

// Activity fetches a single activity by its Strava id. Sport type is not
// filtered here; callers validate it against the tracked mapping.
func (c *Client) Activity(ctx context.Context, userID int64, externalID string) (*domain.ExternalActivity, error) {
	var payload activityPayload
	if err := c.get(ctx, userID, "activity", "activities/"+url.PathEscape(externalID), nil, &payload); err != nil {
		return nil, err
	}
	external, err := payload.external()
	if err != nil {
		return nil, err
	}
	return &external, nil
}

// Gear fetches a single piece of gear by its Strava id.
func (c *Client) Gear(ctx context.Context, userID int64, gearID string) (*Gear, error) {
	var out Gear
	if err := c.get(ctx, userID, "gear", "gear/"+url.PathEscape(gearID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, userID int64, name, endpoint string, query url.Values, out interface{}) error {
	token, err := c.tokens.AccessToken(ctx, userID)
	if err != nil {
		return err
	}

	target := c.baseURL + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	recordAPIRequest(name, resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RequestError{Status: resp.StatusCode, Endpoint: name}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
