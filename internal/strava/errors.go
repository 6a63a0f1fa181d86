package strava

import (
	"fmt"
	"net/http"
)

// AuthError reports a failed grant against the Strava token endpoint. Token
// refresh and code exchange are never retried; the error is terminal for the
// current operation.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("strava token endpoint returned status %d", e.Status)
}

// RequestError reports a non-2xx response from a Strava read call. Callers
// decide whether a given status is fatal (e.g. 404 on a gear lookup may be
// treated as "not found").
type RequestError struct {
	Status   int
	Endpoint string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("strava %s returned status %d", e.Endpoint, e.Status)
}

// NotFound reports whether the upstream answered 404.
func (e *RequestError) NotFound() bool {
	return e.Status == http.StatusNotFound
}
