package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/chromium7/shoe-wear-tracker/internal/domain"
)

// Syncer applies validated events against the local store.
type Syncer interface {
	SynchronizeActivity(ctx context.Context, user *domain.User, externalID string) (*domain.Activity, error)
	DeleteActivity(ctx context.Context, user *domain.User, externalID string) error
}

// Notifier publishes sync notifications after an event is applied.
type Notifier interface {
	ActivitySynced(ctx context.Context, userID int64, activityID, externalID string)
	ActivityDeleted(ctx context.Context, userID int64, externalID string)
}

// Handler serves the Strava webhook endpoint: the verification handshake on
// GET and event ingestion on POST.
type Handler struct {
	verifyToken string
	directory   Directory
	syncer      Syncer
	notifier    Notifier
	logger      *log.Logger
}

// Option configures optional behaviour for the Handler.
type Option func(*Handler)

// WithLogger overrides the logger used to report rejected events.
func WithLogger(logger *log.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithNotifier attaches a sync notification publisher.
func WithNotifier(notifier Notifier) Option {
	return func(h *Handler) {
		h.notifier = notifier
	}
}

// NewHandler constructs a Handler.
func NewHandler(verifyToken string, directory Directory, syncer Syncer, opts ...Option) *Handler {
	h := &Handler{
		verifyToken: verifyToken,
		directory:   directory,
		syncer:      syncer,
		logger:      log.New(log.Writer(), "[webhook] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes wires the webhook endpoint to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/strava/webhook", h.notification)
}

func (h *Handler) notification(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.verify(w, r)
	case http.MethodPost:
		h.ingest(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// verify answers the subscription verification handshake. The challenge is
// echoed back only when the mode and shared verify token both match; any
// mismatch gets a bare 403.
func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	mode := query.Get("hub.mode")
	token := query.Get("hub.verify_token")
	challenge := query.Get("hub.challenge")

	if mode != "subscribe" || token != h.verifyToken {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"hub.challenge": challenge})
}

// ingest validates and applies one event delivery. Validation failures are
// acknowledged with HTTP 200 and a structured error body so Strava never
// retries them; only transport-level failures return a non-success status.
func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	var event Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		h.reject(w, event, &ValidationError{Field: "", Code: "invalid_payload", Message: "unable to parse body"})
		return
	}

	resolution, rejection, err := validate(r.Context(), h.directory, event)
	if err != nil {
		h.logger.Printf("validation error (object_id=%d): %v", event.ObjectID, err)
		writeJSON(w, http.StatusInternalServerError, errorBody("server_error", "failed to process event", ""))
		return
	}
	if rejection != nil {
		h.reject(w, event, rejection)
		return
	}

	if event.ObjectType == "athlete" {
		recordEvent(event.AspectType, "ignored")
		writeJSON(w, http.StatusOK, acknowledgment{Status: "ok"})
		return
	}

	switch event.AspectType {
	case "delete":
		h.applyDelete(w, r.Context(), resolution)
	default:
		h.applySync(w, r.Context(), resolution)
	}
}

func (h *Handler) applyDelete(w http.ResponseWriter, ctx context.Context, resolution *Resolution) {
	event := resolution.Event
	if err := h.syncer.DeleteActivity(ctx, resolution.User, event.ExternalID()); err != nil {
		if errors.Is(err, domain.ErrActivityNotFound) {
			h.reject(w, event, &ValidationError{Field: "object_id", Code: "unknown_activity", Message: err.Error()})
			return
		}
		h.logger.Printf("delete failed (object_id=%d, user=%d): %v", event.ObjectID, resolution.User.ID, err)
		writeJSON(w, http.StatusInternalServerError, errorBody("server_error", "failed to delete activity", ""))
		return
	}

	if h.notifier != nil {
		h.notifier.ActivityDeleted(ctx, resolution.User.ID, event.ExternalID())
	}
	recordEvent(event.AspectType, "applied")
	writeJSON(w, http.StatusOK, acknowledgment{Status: "ok", Activity: resolution.Activity.ID})
}

func (h *Handler) applySync(w http.ResponseWriter, ctx context.Context, resolution *Resolution) {
	event := resolution.Event
	activity, err := h.syncer.SynchronizeActivity(ctx, resolution.User, event.ExternalID())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnsupportedSportType):
			h.reject(w, event, &ValidationError{Field: "object_id", Code: "unsupported_sport_type", Message: err.Error()})
		case errors.Is(err, domain.ErrShoeNotMapped):
			h.reject(w, event, &ValidationError{Field: "updates", Code: "gear_not_mapped", Message: err.Error()})
		default:
			h.logger.Printf("sync failed (object_id=%d, user=%d): %v", event.ObjectID, resolution.User.ID, err)
			writeJSON(w, http.StatusInternalServerError, errorBody("server_error", "failed to synchronize activity", ""))
		}
		return
	}

	if h.notifier != nil {
		h.notifier.ActivitySynced(ctx, resolution.User.ID, activity.ID, activity.ExternalID)
	}
	recordEvent(event.AspectType, "applied")
	writeJSON(w, http.StatusOK, acknowledgment{Status: "ok", Activity: activity.ID})
}

// reject acknowledges a delivery whose payload failed validation. Rejected
// events are logged and counted but never surface as transport errors.
func (h *Handler) reject(w http.ResponseWriter, event Event, rejection *ValidationError) {
	h.logger.Printf("rejected event (aspect=%s, object_id=%d): %s", event.AspectType, event.ObjectID, rejection.Error())
	recordEvent(event.AspectType, "rejected")
	writeJSON(w, http.StatusOK, errorBody(rejection.Code, rejection.Message, rejection.Field))
}

type acknowledgment struct {
	Status   string `json:"status"`
	Activity string `json:"activity,omitempty"`
}

func errorBody(code, message, field string) map[string]interface{} {
	return map[string]interface{}{
		"errors": []ValidationError{{Field: field, Code: code, Message: message}},
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
