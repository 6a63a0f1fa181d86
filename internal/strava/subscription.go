package strava

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// SubscriptionClient manages the Strava webhook push subscription. These
// calls authenticate with the application credentials, not a user token.
type SubscriptionClient struct {
	clientID     string
	clientSecret string
	baseURL      string
	httpClient   *http.Client
}

// NewSubscriptionClient constructs a SubscriptionClient.
func NewSubscriptionClient(clientID, clientSecret string) *SubscriptionClient {
	return &SubscriptionClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      defaultBaseURL,
		httpClient:   &http.Client{Timeout: requestTimeout},
	}
}

// Subscription describes a registered webhook subscription.
type Subscription struct {
	ID          int64  `json:"id"`
	CallbackURL string `json:"callback_url"`
}

// Create registers a webhook subscription pointing at callbackURL. Strava
// performs the verification handshake against the callback before the call
// returns.
func (c *SubscriptionClient) Create(ctx context.Context, callbackURL, verifyToken string) (*Subscription, error) {
	body, err := json.Marshal(map[string]string{
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
		"callback_url":  callbackURL,
		"verify_token":  verifyToken,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"push_subscriptions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out Subscription
	if err := c.do(req, "push_subscriptions", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns the application's registered subscriptions.
func (c *SubscriptionClient) List(ctx context.Context) ([]Subscription, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"push_subscriptions?"+c.credentialsQuery(), nil)
	if err != nil {
		return nil, err
	}

	var out []Subscription
	if err := c.do(req, "push_subscriptions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a subscription by id.
func (c *SubscriptionClient) Delete(ctx context.Context, id int64) error {
	target := fmt.Sprintf("%spush_subscriptions/%s?%s", c.baseURL, strconv.FormatInt(id, 10), c.credentialsQuery())
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target, nil)
	if err != nil {
		return err
	}
	return c.do(req, "push_subscriptions", nil)
}

func (c *SubscriptionClient) credentialsQuery() string {
	query := url.Values{}
	query.Set("client_id", c.clientID)
	query.Set("client_secret", c.clientSecret)
	return query.Encode()
}

func (c *SubscriptionClient) do(req *http.Request, endpoint string, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RequestError{Status: resp.StatusCode, Endpoint: endpoint}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
