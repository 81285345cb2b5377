package hub

import (
	"context"
	"errors"
	"log/slog"

	"ctchen222/hotseat-tictactoe/internal/game"
	"ctchen222/hotseat-tictactoe/internal/hub/types"
	"ctchen222/hotseat-tictactoe/internal/repository"
	"ctchen222/hotseat-tictactoe/internal/session"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func (h *Hub) handleRegistration(req *types.RegistrationRequest) {
	ctx := req.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracer.Start(ctx, "hub.handleRegistration", trace.WithAttributes(
		attribute.String("client.id", req.Client.ID),
		attribute.String("session.id", req.SessionID),
	))
	defer span.End()

	s, err := h.ensure(ctx, req.SessionID)
	if err == nil {
		err = s.Attach(req.Client)
	}
	if err != nil {
		slog.WarnContext(ctx, "Rejecting view", "client.id", req.Client.ID, "session.id", req.SessionID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to attach view")
		rejectView(ctx, req.Client, err)
		return
	}
	slog.InfoContext(ctx, "View registered", "client.id", req.Client.ID, "session.id", req.SessionID)
}

func (h *Hub) handleDeparture(d *types.Departure) {
	h.mu.Lock()
	s, ok := h.sessions[d.SessionID]
	h.mu.Unlock()
	if !ok {
		return
	}
	s.Detach(d.Client)
}

// Dispatch runs event through the session's loop, starting the loop if this
// process has none for id yet.
func (h *Hub) Dispatch(ctx context.Context, id string, event game.Event) (*repository.SessionState, bool, error) {
	ctx, span := tracer.Start(ctx, "hub.Dispatch", trace.WithAttributes(
		attribute.String("session.id", id),
		attribute.String("event.kind", string(event.Kind)),
	))
	defer span.End()

	// A loop may be torn down by the idle sweeper between lookup and submit; one
	// retry picks up its replacement.
	for attempt := 0; ; attempt++ {
		s, err := h.ensure(ctx, id)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to open session")
			return nil, false, err
		}
		state, accepted, err := s.Submit(ctx, event)
		if errors.Is(err, session.ErrClosed) && attempt == 0 {
			continue
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to dispatch event")
		}
		return state, accepted, err
	}
}

// Close stops the local loop of a session, if any.
func (h *Hub) Close(id string) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()
	if ok {
		s.Close()
	}
}

// ensure returns the running loop for id, starting one if the game exists in the store.
// The store is read without h.mu held.
func (h *Hub) ensure(ctx context.Context, id string) (*session.Session, error) {
	if s := h.running(id); s != nil {
		return s, nil
	}

	if _, err := h.repo.FindByID(ctx, id); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// Another caller may have started the loop during the lookup.
	if s := h.runningLocked(id); s != nil {
		return s, nil
	}
	s := session.New(id, h.repo, h.publisher, h.metrics, session.Options{
		Origin:            h.opts.Origin,
		HeartbeatInterval: h.opts.HeartbeatInterval,
	})
	s.Start(h.unregister)
	h.sessions[id] = s
	slog.InfoContext(ctx, "Session loop started", "session.id", id)
	return s, nil
}

func (h *Hub) running(id string) *session.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runningLocked(id)
}

// runningLocked returns the live loop for id and forgets a finished one. Callers hold h.mu.
func (h *Hub) runningLocked(id string) *session.Session {
	s, ok := h.sessions[id]
	if !ok {
		return nil
	}
	select {
	case <-s.Done:
		delete(h.sessions, id)
		return nil
	default:
		return s
	}
}
