package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// Pub/Sub channel constants
const (
	EventsChannel = "channel:events"

	TypeSessionUpdated = "session_updated"
	TypeSessionDeleted = "session_deleted"
)

// Event represents a global message published via Pub/Sub.
type Event struct {
	Type    string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// SessionPayload identifies the session and the process that changed it, so a
// process can ignore its own echoes.
type SessionPayload struct {
	SessionID string `json:"session_id"`
	Origin    string `json:"origin"`
}

// NewSessionEvent wraps a SessionPayload in an Event of type eventType.
func NewSessionEvent(eventType, sessionID, origin string) (Event, error) {
	payload, err := json.Marshal(SessionPayload{SessionID: sessionID, Origin: origin})
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Event{Type: eventType, Payload: payload}, nil
}

// Publisher fans session changes out to other processes.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type redisPublisher struct {
	rdb *redis.Client
}

// NewRedisPublisher publishes on EventsChannel.
func NewRedisPublisher(rdb *redis.Client) Publisher {
	return &redisPublisher{rdb: rdb}
}

func (p *redisPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.rdb.Publish(ctx, EventsChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}
	return nil
}

// NopPublisher is used when a single process holds all state.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
