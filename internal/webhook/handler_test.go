package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chromium7/shoe-wear-tracker/internal/domain"
)

type stubDirectory struct {
	users      map[int64]*domain.User
	shoes      map[string]*domain.Shoe
	activities map[string]*domain.Activity
}

func (d *stubDirectory) UserByAthleteID(_ context.Context, athleteID int64) (*domain.User, error) {
	return d.users[athleteID], nil
}

func (d *stubDirectory) ActiveShoeByGearID(_ context.Context, _ int64, gearID string) (*domain.Shoe, error) {
	return d.shoes[gearID], nil
}

func (d *stubDirectory) ActivityByExternalID(_ context.Context, _ int64, externalID string) (*domain.Activity, error) {
	return d.activities[externalID], nil
}

type stubSyncer struct {
	synced  map[string]*domain.Activity
	deleted []string
	syncErr error
}

func newStubSyncer() *stubSyncer {
	return &stubSyncer{synced: make(map[string]*domain.Activity)}
}

func (s *stubSyncer) SynchronizeActivity(_ context.Context, user *domain.User, externalID string) (*domain.Activity, error) {
	if s.syncErr != nil {
		return nil, s.syncErr
	}
	// Idempotent upsert keyed on the external id.
	activity, ok := s.synced[externalID]
	if !ok {
		activity = &domain.Activity{ID: "local-" + externalID, UserID: user.ID, ExternalID: externalID}
		s.synced[externalID] = activity
	}
	return activity, nil
}

func (s *stubSyncer) DeleteActivity(_ context.Context, _ *domain.User, externalID string) error {
	s.deleted = append(s.deleted, externalID)
	return nil
}

func testLogger(t *testing.T) *log.Logger {
	return log.New(testWriter{t}, "", 0)
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}

func newTestHandler(t *testing.T, directory *stubDirectory, syncer Syncer) *Handler {
	t.Helper()
	if directory.users == nil {
		directory.users = map[int64]*domain.User{}
	}
	return NewHandler("secret-token", directory, syncer, WithLogger(testLogger(t)))
}

func postEvent(t *testing.T, handler *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/strava/webhook", strings.NewReader(body))
	rr := httptest.NewRecorder()
	handler.notification(rr, req)
	return rr
}

func decodeErrors(t *testing.T, rr *httptest.ResponseRecorder) []ValidationError {
	t.Helper()
	var payload struct {
		Errors []ValidationError `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	return payload.Errors
}

func eventBody(aspect, object string, objectID, ownerID int64, updates map[string]string) string {
	payload := map[string]interface{}{
		"aspect_type":     aspect,
		"object_type":     object,
		"object_id":       objectID,
		"owner_id":        ownerID,
		"subscription_id": 120475,
		"event_time":      1767000000,
	}
	if updates != nil {
		payload["updates"] = updates
	}
	encoded, _ := json.Marshal(payload)
	return string(encoded)
}

func TestVerificationHandshake(t *testing.T) {
	handler := newTestHandler(t, &stubDirectory{}, newStubSyncer())

	req := httptest.NewRequest(http.MethodGet,
		"/v1/strava/webhook?hub.mode=subscribe&hub.verify_token=secret-token&hub.challenge=abc123", nil)
	rr := httptest.NewRecorder()
	handler.notification(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	require.Equal(t, "abc123", payload["hub.challenge"])
}

func TestVerificationHandshakeRejectsBadToken(t *testing.T) {
	handler := newTestHandler(t, &stubDirectory{}, newStubSyncer())

	req := httptest.NewRequest(http.MethodGet,
		"/v1/strava/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=abc123", nil)
	rr := httptest.NewRecorder()
	handler.notification(rr, req)

	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Empty(t, rr.Body.String())
}

func TestIngestRejectsUnknownAspectType(t *testing.T) {
	syncer := newStubSyncer()
	handler := newTestHandler(t, &stubDirectory{}, syncer)

	rr := postEvent(t, handler, eventBody("upsert", "activity", 10, 42, nil))

	require.Equal(t, http.StatusOK, rr.Code)
	errs := decodeErrors(t, rr)
	require.Len(t, errs, 1)
	require.Equal(t, "aspect_type", errs[0].Field)
	require.Empty(t, syncer.synced)
}

func TestIngestRejectsUnknownOwner(t *testing.T) {
	syncer := newStubSyncer()
	handler := newTestHandler(t, &stubDirectory{}, syncer)

	rr := postEvent(t, handler, eventBody("create", "activity", 10, 42, nil))

	require.Equal(t, http.StatusOK, rr.Code)
	errs := decodeErrors(t, rr)
	require.Equal(t, "owner_id", errs[0].Field)
	require.Equal(t, "unknown_owner", errs[0].Code)
}

func TestIngestAcknowledgesAthleteEvents(t *testing.T) {
	syncer := newStubSyncer()
	handler := newTestHandler(t, &stubDirectory{}, syncer)

	rr := postEvent(t, handler, eventBody("update", "athlete", 42, 42, map[string]string{"authorized": "false"}))

	require.Equal(t, http.StatusOK, rr.Code)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	require.Equal(t, "ok", payload["status"])
	require.Empty(t, syncer.synced)
	require.Empty(t, syncer.deleted)
}

func TestIngestRejectsDeleteOfUnknownActivity(t *testing.T) {
	directory := &stubDirectory{users: map[int64]*domain.User{42: {ID: 7}}}
	syncer := newStubSyncer()
	handler := newTestHandler(t, directory, syncer)

	rr := postEvent(t, handler, eventBody("delete", "activity", 999, 42, nil))

	require.Equal(t, http.StatusOK, rr.Code)
	errs := decodeErrors(t, rr)
	require.Equal(t, "object_id", errs[0].Field)
	require.Contains(t, errs[0].Message, "999")
	require.Empty(t, syncer.deleted)
}

func TestIngestAppliesDelete(t *testing.T) {
	directory := &stubDirectory{
		users:      map[int64]*domain.User{42: {ID: 7}},
		activities: map[string]*domain.Activity{"55": {ID: "local-55", UserID: 7, ExternalID: "55"}},
	}
	syncer := newStubSyncer()
	handler := newTestHandler(t, directory, syncer)

	rr := postEvent(t, handler, eventBody("delete", "activity", 55, 42, nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, []string{"55"}, syncer.deleted)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	require.Equal(t, "local-55", payload["activity"])
}

func TestIngestRejectsUnmappedGear(t *testing.T) {
	directory := &stubDirectory{users: map[int64]*domain.User{42: {ID: 7}}}
	syncer := newStubSyncer()
	handler := newTestHandler(t, directory, syncer)

	rr := postEvent(t, handler, eventBody("update", "activity", 10, 42, map[string]string{"gear_id": "g-unknown"}))

	require.Equal(t, http.StatusOK, rr.Code)
	errs := decodeErrors(t, rr)
	require.Equal(t, "updates", errs[0].Field)
	require.Equal(t, "gear_not_mapped", errs[0].Code)
	require.Empty(t, syncer.synced)
}

func TestIngestAppliesCreate(t *testing.T) {
	directory := &stubDirectory{
		users: map[int64]*domain.User{42: {ID: 7}},
		shoes: map[string]*domain.Shoe{"g1": {ID: "shoe-1", UserID: 7, ExternalID: "g1"}},
	}
	syncer := newStubSyncer()
	handler := newTestHandler(t, directory, syncer)

	rr := postEvent(t, handler, eventBody("create", "activity", 10, 42, map[string]string{"gear_id": "g1"}))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, syncer.synced, 1)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	require.Equal(t, "local-10", payload["activity"])
}

func TestIngestIsIdempotentAcrossRedelivery(t *testing.T) {
	directory := &stubDirectory{users: map[int64]*domain.User{42: {ID: 7}}}
	syncer := newStubSyncer()
	handler := newTestHandler(t, directory, syncer)

	body := eventBody("create", "activity", 10, 42, nil)
	first := postEvent(t, handler, body)
	second := postEvent(t, handler, body)

	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)
	require.Len(t, syncer.synced, 1, "redelivery must not create a duplicate")
}

func TestIngestRejectsUnsupportedSportType(t *testing.T) {
	directory := &stubDirectory{users: map[int64]*domain.User{42: {ID: 7}}}
	syncer := newStubSyncer()
	syncer.syncErr = fmt.Errorf("%w: Ride", domain.ErrUnsupportedSportType)
	handler := newTestHandler(t, directory, syncer)

	rr := postEvent(t, handler, eventBody("create", "activity", 10, 42, nil))

	require.Equal(t, http.StatusOK, rr.Code)
	errs := decodeErrors(t, rr)
	require.Equal(t, "unsupported_sport_type", errs[0].Code)
}

func TestIngestRejectsMalformedBody(t *testing.T) {
	handler := newTestHandler(t, &stubDirectory{}, newStubSyncer())

	rr := postEvent(t, handler, "{not json")

	require.Equal(t, http.StatusOK, rr.Code)
	errs := decodeErrors(t, rr)
	require.Equal(t, "invalid_payload", errs[0].Code)
}
