package events

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event types emitted after a webhook delivery is applied.
const (
	EventActivitySynced  = "activity.synced"
	EventActivityDeleted = "activity.deleted"
)

// publishTimeout bounds the in-request publish; a slow broker must not hold
// the webhook acknowledgment hostage.
const publishTimeout = 5 * time.Second

// SyncEvent is the record published after an activity changes locally.
type SyncEvent struct {
	EventType  string    `json:"event_type"`
	UserID     int64     `json:"user_id"`
	ActivityID string    `json:"activity_id,omitempty"`
	ExternalID string    `json:"external_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher emits sync notifications synchronously within the request.
// Publish failures are logged and never fail the operation that produced
// them.
type Publisher struct {
	producer *Producer
	topic    string
	logger   *log.Logger
}

// NewPublisher constructs a Publisher.
func NewPublisher(producer *Producer, topic string) *Publisher {
	return &Publisher{
		producer: producer,
		topic:    topic,
		logger:   log.New(log.Writer(), "[events] ", log.LstdFlags),
	}
}

// ActivitySynced publishes an activity.synced notification.
func (p *Publisher) ActivitySynced(ctx context.Context, userID int64, activityID, externalID string) {
	p.publish(ctx, SyncEvent{
		EventType:  EventActivitySynced,
		UserID:     userID,
		ActivityID: activityID,
		ExternalID: externalID,
		OccurredAt: time.Now().UTC(),
	})
}

// ActivityDeleted publishes an activity.deleted notification.
func (p *Publisher) ActivityDeleted(ctx context.Context, userID int64, externalID string) {
	p.publish(ctx, SyncEvent{
		EventType:  EventActivityDeleted,
		UserID:     userID,
		ExternalID: externalID,
		OccurredAt: time.Now().UTC(),
	})
}

func (p *Publisher) publish(ctx context.Context, event SyncEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Printf("marshal %s: %v", event.EventType, err)
		return
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(event.UserID, 10)),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	if err := p.producer.WriteMessages(publishCtx, p.topic, msg); err != nil {
		p.logger.Printf("publish %s (external_id=%s): %v", event.EventType, event.ExternalID, err)
	}
}
