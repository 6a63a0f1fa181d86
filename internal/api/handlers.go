// Package api exposes HTTP handlers for the tracker service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chromium7/shoe-wear-tracker/internal/auth"
	"github.com/chromium7/shoe-wear-tracker/internal/domain"
	"github.com/chromium7/shoe-wear-tracker/internal/persistence"
	"github.com/chromium7/shoe-wear-tracker/internal/strava"
)

// defaultImportDays bounds how far back the unregistered-activity diff
// looks on Strava.
const defaultImportDays = 21

// UserFinder resolves local users for authenticated requests.
type UserFinder interface {
	UserByID(ctx context.Context, id int64) (*domain.User, error)
}

// Handler coordinates HTTP requests with the domain service and the Strava
// authorization flow.
type Handler struct {
	service    *domain.Service
	authorizer *strava.Authorizer
	users      UserFinder
	// redirectPath is where the browser lands after a successful
	// authorization callback.
	redirectPath string
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, authorizer *strava.Authorizer, users UserFinder) *Handler {
	return &Handler{
		service:      service,
		authorizer:   authorizer,
		users:        users,
		redirectPath: "/activities",
	}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/activities", h.listActivities)
	mux.HandleFunc("/v1/strava/connect", h.connect)
	mux.HandleFunc("/v1/strava/authorized", h.authorized)
	mux.HandleFunc("/v1/strava/activities", h.unregisteredActivities)
	mux.HandleFunc("/v1/strava/sync", h.syncActivity)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// connect returns the Strava consent URL for the authenticated user.
func (h *Handler) connect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeActivitiesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope activities:write required")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"url": h.authorizer.AuthorizationURL(claims.UserID),
	})
}

// authorized handles the OAuth callback from Strava. It is reached by the
// user's browser, so there is no bearer token; the state parameter carries
// the user id instead.
func (h *Handler) authorized(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	query := r.URL.Query()
	if query.Get("error") != "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "authorization was denied")
		return
	}

	_, err := h.authorizer.Complete(r.Context(), query.Get("state"), query.Get("code"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidState):
			writeError(w, http.StatusBadRequest, "invalid_state", "state does not map to a connectable user")
		case errors.Is(err, domain.ErrInvalidCode):
			writeError(w, http.StatusBadRequest, "invalid_code", "provider rejected the authorization code")
		default:
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		}
		return
	}

	http.Redirect(w, r, h.redirectPath, http.StatusFound)
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeActivitiesRead) && !claims.HasScope(auth.ScopeActivitiesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope activities:read required")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	activities, next, err := h.service.ListActivities(r.Context(), claims.UserID, cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]ActivityView, 0, len(activities))
	for _, activity := range activities {
		items = append(items, toActivityView(activity))
	}

	writeJSON(w, http.StatusOK, ListActivitiesResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

// unregisteredActivities lists recent Strava activities that have not been
// imported yet and whose gear maps to an active shoe.
func (h *Handler) unregisteredActivities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeActivitiesRead) && !claims.HasScope(auth.ScopeActivitiesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope activities:read required")
		return
	}

	user, err := h.resolveUser(w, r.Context(), claims.UserID)
	if err != nil {
		return
	}

	days := defaultImportDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			days = parsed
		}
	}

	unregistered, err := h.service.UnregisteredActivities(r.Context(), user, days)
	if err != nil {
		h.writeSyncError(w, err)
		return
	}

	items := make([]UnregisteredActivityView, 0, len(unregistered))
	for _, entry := range unregistered {
		items = append(items, UnregisteredActivityView{
			ExternalID:     entry.External.ID,
			Name:           entry.External.Name,
			SportType:      entry.External.SportType,
			DistanceMeters: entry.External.DistanceMeters,
			DurationSec:    entry.External.DurationSec,
			StartedAt:      entry.External.StartedAt,
			ShoeID:         entry.Shoe.ID,
			ShoeName:       entry.Shoe.Name,
		})
	}
	writeJSON(w, http.StatusOK, UnregisteredActivitiesResponse{Items: items})
}

// syncActivity imports a single Strava activity on demand.
func (h *Handler) syncActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeActivitiesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope activities:write required")
		return
	}

	var req SyncActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if strings.TrimSpace(req.ExternalID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "external_id is required")
		return
	}

	user, err := h.resolveUser(w, r.Context(), claims.UserID)
	if err != nil {
		return
	}

	activity, err := h.service.SynchronizeActivity(r.Context(), user, req.ExternalID)
	if err != nil {
		h.writeSyncError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

// resolveUser loads the authenticated user, writing the error response
// itself when resolution fails.
func (h *Handler) resolveUser(w http.ResponseWriter, ctx context.Context, userID int64) (*domain.User, error) {
	user, err := h.users.UserByID(ctx, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return nil, err
	}
	if user == nil {
		err := errors.New("user not found")
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return nil, err
	}
	return user, nil
}

func (h *Handler) writeSyncError(w http.ResponseWriter, err error) {
	var requestErr *strava.RequestError
	switch {
	case errors.Is(err, domain.ErrNotConnected):
		writeError(w, http.StatusBadRequest, "not_connected", "connect a Strava account first")
	case errors.Is(err, domain.ErrUnsupportedSportType):
		writeError(w, http.StatusBadRequest, "unsupported_sport_type", err.Error())
	case errors.Is(err, domain.ErrShoeNotMapped):
		writeError(w, http.StatusBadRequest, "gear_not_mapped", err.Error())
	case errors.As(err, &requestErr) && requestErr.NotFound():
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

// SyncActivityRequest is the payload for POST /v1/strava/sync.
type SyncActivityRequest struct {
	ExternalID string `json:"external_id"`
}

// ActivityView exposes full details about a stored activity.
type ActivityView struct {
	ActivityID         string    `json:"activity_id"`
	Type               string    `json:"type"`
	ShoeID             string    `json:"shoe_id"`
	Name               string    `json:"name"`
	DistanceMeters     float64   `json:"distance_meters"`
	DurationSec        int       `json:"duration_seconds"`
	ExternalID         string    `json:"strava_id"`
	ShoeDistanceMeters float64   `json:"shoe_distance_meters"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// UnregisteredActivityView pairs a Strava activity with the shoe it would
// be imported against.
type UnregisteredActivityView struct {
	ExternalID     string    `json:"strava_id"`
	Name           string    `json:"name"`
	SportType      string    `json:"sport_type"`
	DistanceMeters float64   `json:"distance_meters"`
	DurationSec    int       `json:"duration_seconds"`
	StartedAt      time.Time `json:"started_at"`
	ShoeID         string    `json:"shoe_id"`
	ShoeName       string    `json:"shoe_name"`
}

// UnregisteredActivitiesResponse packages the unregistered-activity diff.
type UnregisteredActivitiesResponse struct {
	Items []UnregisteredActivityView `json:"items"`
}

func toActivityView(activity domain.Activity) ActivityView {
	return ActivityView{
		ActivityID:         activity.ID,
		Type:               string(activity.Type),
		ShoeID:             activity.ShoeID,
		Name:               activity.Name,
		DistanceMeters:     activity.DistanceMeters,
		DurationSec:        activity.DurationSec,
		ExternalID:         activity.ExternalID,
		ShoeDistanceMeters: activity.ShoeDistanceMeters,
		CreatedAt:          activity.CreatedAt,
		UpdatedAt:          activity.UpdatedAt,
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
