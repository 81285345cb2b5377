package hub

import (
	"context"
	"encoding/json"
	"log/slog"

	"ctchen222/hotseat-tictactoe/internal/events"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// handleEvent reacts to one message from the events channel.
func (h *Hub) handleEvent(ctx context.Context, raw []byte) {
	ctx, span := tracer.Start(ctx, "hub.handleEvent")
	defer span.End()

	var event events.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		slog.ErrorContext(ctx, "Failed to unmarshal event", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to unmarshal event")
		return
	}

	var payload events.SessionPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		slog.ErrorContext(ctx, "Failed to unmarshal event payload", "event", event.Type, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to unmarshal event payload")
		return
	}
	span.SetAttributes(
		attribute.String("event.type", event.Type),
		attribute.String("session.id", payload.SessionID),
	)

	if payload.Origin == h.opts.Origin {
		return
	}

	switch event.Type {
	case events.TypeSessionUpdated:
		h.mu.Lock()
		s, ok := h.sessions[payload.SessionID]
		h.mu.Unlock()
		if ok {
			s.Refresh()
		}
	case events.TypeSessionDeleted:
		slog.InfoContext(ctx, "Session deleted elsewhere", "session.id", payload.SessionID, "origin", payload.Origin)
		h.Close(payload.SessionID)
	default:
		slog.WarnContext(ctx, "Unknown event type", "event", event.Type)
		span.SetStatus(codes.Error, "Unknown event type")
	}
}
