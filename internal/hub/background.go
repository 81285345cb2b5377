package hub

import (
	"context"
	"log/slog"
	"time"

	"ctchen222/hotseat-tictactoe/internal/events"
	"ctchen222/hotseat-tictactoe/internal/session"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// cleanupIdleSessions closes loops that stopped on their own or have had no
// views for longer than the idle timeout. The stored game is left alone; its
// TTL decides when it goes.
func (h *Hub) cleanupIdleSessions(ctx context.Context, now time.Time) {
	_, span := tracer.Start(ctx, "hub.cleanupIdleSessions")
	defer span.End()

	var idle []*session.Session
	h.mu.Lock()
	for id, s := range h.sessions {
		select {
		case <-s.Done:
			delete(h.sessions, id)
			continue
		default:
		}
		since, noViews := s.IdleSince()
		if noViews && now.Sub(since) > h.opts.IdleTimeout {
			delete(h.sessions, id)
			idle = append(idle, s)
		}
	}
	h.mu.Unlock()

	for _, s := range idle {
		slog.InfoContext(ctx, "Closing idle session loop", "session.id", s.ID)
		s.Close()
	}
	span.SetAttributes(attribute.Int("sessions.closed", len(idle)))
}

// runEventSubscriber follows changes other processes make to sessions this
// process also serves.
func (h *Hub) runEventSubscriber(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "hub.runEventSubscriber", trace.WithAttributes(
		attribute.String("redis.channel", events.EventsChannel),
	))
	defer span.End()

	slog.InfoContext(ctx, "Starting events subscriber", "channel", events.EventsChannel)
	pubsub := h.rdb.Subscribe(ctx, events.EventsChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Stopping events subscriber")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.handleEvent(ctx, []byte(msg.Payload))
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]*session.Session)
	h.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
