// Package webhook ingests Strava push notifications.
package webhook

import (
	"context"
	"fmt"
	"strconv"

	"github.com/chromium7/shoe-wear-tracker/internal/domain"
)

// Event is the payload of a Strava push notification.
type Event struct {
	AspectType     string            `json:"aspect_type"`
	ObjectType     string            `json:"object_type"`
	ObjectID       int64             `json:"object_id"`
	OwnerID        int64             `json:"owner_id"`
	SubscriptionID int64             `json:"subscription_id"`
	EventTime      int64             `json:"event_time"`
	Updates        map[string]string `json:"updates"`
}

// ExternalID returns the object id in the form stored locally.
func (e Event) ExternalID() string {
	return strconv.FormatInt(e.ObjectID, 10)
}

// ValidationError describes why an event was rejected. Rejections are
// acknowledged to Strava with HTTP 200 so the delivery queue never retries
// application-level failures.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Directory resolves the local records referenced by an event.
type Directory interface {
	UserByAthleteID(ctx context.Context, athleteID int64) (*domain.User, error)
	ActiveShoeByGearID(ctx context.Context, userID int64, gearID string) (*domain.Shoe, error)
	ActivityByExternalID(ctx context.Context, userID int64, externalID string) (*domain.Activity, error)
}

// Resolution carries the entities resolved during validation for use by the
// apply step.
type Resolution struct {
	Event    Event
	User     *domain.User
	Activity *domain.Activity // existing local activity, set for delete events
	Shoe     *domain.Shoe     // shoe matched from updates.gear_id, when present
}

// validate checks the event payload and resolves the referenced records.
// It performs no mutation; a non-nil *ValidationError moves the event to
// the rejected state.
func validate(ctx context.Context, dir Directory, event Event) (*Resolution, *ValidationError, error) {
	switch event.AspectType {
	case "create", "update", "delete":
	default:
		return nil, &ValidationError{Field: "aspect_type", Code: "invalid_aspect_type",
			Message: fmt.Sprintf("unknown aspect type %q", event.AspectType)}, nil
	}

	switch event.ObjectType {
	case "activity", "athlete":
	default:
		return nil, &ValidationError{Field: "object_type", Code: "invalid_object_type",
			Message: fmt.Sprintf("unknown object type %q", event.ObjectType)}, nil
	}

	if event.ObjectID == 0 {
		return nil, &ValidationError{Field: "object_id", Code: "required", Message: "object_id is required"}, nil
	}
	if event.OwnerID == 0 {
		return nil, &ValidationError{Field: "owner_id", Code: "required", Message: "owner_id is required"}, nil
	}
	if event.SubscriptionID == 0 {
		return nil, &ValidationError{Field: "subscription_id", Code: "required", Message: "subscription_id is required"}, nil
	}
	if event.EventTime == 0 {
		return nil, &ValidationError{Field: "event_time", Code: "required", Message: "event_time is required"}, nil
	}

	resolution := &Resolution{Event: event}

	// Athlete events are profile-only updates; they are acknowledged without
	// resolving anything further and produce no local change.
	if event.ObjectType == "athlete" {
		return resolution, nil, nil
	}

	user, err := dir.UserByAthleteID(ctx, event.OwnerID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, &ValidationError{Field: "owner_id", Code: "unknown_owner",
			Message: fmt.Sprintf("no user linked to athlete %d", event.OwnerID)}, nil
	}
	resolution.User = user

	if event.AspectType == "delete" {
		activity, err := dir.ActivityByExternalID(ctx, user.ID, event.ExternalID())
		if err != nil {
			return nil, nil, err
		}
		if activity == nil {
			return nil, &ValidationError{Field: "object_id", Code: "unknown_activity",
				Message: fmt.Sprintf("no activity with strava id %s", event.ExternalID())}, nil
		}
		resolution.Activity = activity
		return resolution, nil, nil
	}

	// For create/update events a gear id carried in the updates mapping must
	// map to an active shoe. When absent, gear is resolved later from the
	// freshly fetched activity payload.
	if gearID := event.Updates["gear_id"]; gearID != "" {
		shoe, err := dir.ActiveShoeByGearID(ctx, user.ID, gearID)
		if err != nil {
			return nil, nil, err
		}
		if shoe == nil {
			return nil, &ValidationError{Field: "updates", Code: "gear_not_mapped",
				Message: fmt.Sprintf("gear %q does not map to an active shoe", gearID)}, nil
		}
		resolution.Shoe = shoe
	}

	return resolution, nil, nil
}
