package session

import (
	"context"
	"errors"
	"log/slog"

	"ctchen222/hotseat-tictactoe/internal/client"
	"ctchen222/hotseat-tictactoe/internal/events"
	"ctchen222/hotseat-tictactoe/internal/game"
	"ctchen222/hotseat-tictactoe/internal/repository"
	"ctchen222/hotseat-tictactoe/pkg/proto"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// handleCommand applies one event to the stored game and tells the views.
func (s *Session) handleCommand(cmd *command) {
	ctx, span := tracer.Start(cmd.ctx, "session.handleCommand", trace.WithAttributes(
		attribute.String("session.id", s.ID),
		attribute.String("event.kind", string(cmd.event.Kind)),
	))
	defer span.End()

	if cmd.event.Kind == game.EventMove {
		span.SetAttributes(attribute.Int("event.cell", cmd.event.Cell))
	}

	state, accepted, err := s.repo.Apply(ctx, s.ID, cmd.event)
	if err != nil {
		slog.ErrorContext(ctx, "failed to apply event", "session.id", s.ID, "event.kind", cmd.event.Kind, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to apply event")
		s.send(ctx, cmd.from, &proto.ErrorMessage{Type: proto.TypeError, Reason: "session unavailable"})
		s.respond(cmd, Result{Err: err})
		if errors.Is(err, repository.ErrSessionNotFound) {
			s.stop()
		}
		return
	}
	span.SetAttributes(attribute.Bool("event.accepted", accepted))

	switch cmd.event.Kind {
	case game.EventMove:
		s.metrics.RecordMove(ctx, accepted)
	case game.EventReset:
		s.metrics.RecordReset(ctx)
	}

	if !accepted {
		s.send(ctx, cmd.from, proto.NewSnapshot(s.ID, state.State, &accepted))
		s.respond(cmd, Result{State: state, Accepted: false})
		return
	}

	if status := state.Status(); cmd.event.Kind == game.EventMove && status.IsTerminal() {
		s.metrics.RecordFinished(ctx, status)
		slog.InfoContext(ctx, "Game finished", "session.id", s.ID, "status", status.Kind, "winner", status.Winner)
	}

	s.publish(ctx, events.TypeSessionUpdated)
	s.broadcast(ctx, proto.NewSnapshot(s.ID, state.State, &accepted))
	s.respond(cmd, Result{State: state, Accepted: true})
}

// handleAttach registers a view, greets it with the current board and starts its reader.
func (s *Session) handleAttach(ctx context.Context, c *client.Client) {
	ctx, span := tracer.Start(ctx, "session.handleAttach", trace.WithAttributes(
		attribute.String("session.id", s.ID),
		attribute.String("client.id", c.ID),
	))
	defer span.End()

	s.clients[c.ID] = c
	s.clientCount.Store(int32(len(s.clients)))
	slog.InfoContext(ctx, "View attached", "session.id", s.ID, "client.id", c.ID, "clients.count", len(s.clients))

	state, err := s.repo.FindByID(ctx, s.ID)
	if err != nil {
		slog.ErrorContext(ctx, "Could not get initial game state", "session.id", s.ID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Could not get initial game state")
		s.send(ctx, c, &proto.ErrorMessage{Type: proto.TypeError, Reason: "session unavailable"})
		s.drop(c)
		if errors.Is(err, repository.ErrSessionNotFound) {
			s.stop()
		}
		return
	}

	s.send(ctx, c, proto.NewSnapshot(s.ID, state.State, nil))
	go s.ReadPump(c)
}

// handleRefresh re-reads the stored game after another process changed it.
func (s *Session) handleRefresh(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "session.handleRefresh", trace.WithAttributes(
		attribute.String("session.id", s.ID),
	))
	defer span.End()

	state, err := s.repo.FindByID(ctx, s.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Could not refresh game state")
		if errors.Is(err, repository.ErrSessionNotFound) {
			slog.InfoContext(ctx, "Session gone from the store, stopping", "session.id", s.ID)
			s.stop()
			return
		}
		slog.ErrorContext(ctx, "Could not refresh game state", "session.id", s.ID, "error", err)
		return
	}
	s.broadcast(ctx, proto.NewSnapshot(s.ID, state.State, nil))
}

func (s *Session) publish(ctx context.Context, eventType string) {
	event, err := events.NewSessionEvent(eventType, s.ID, s.opts.Origin)
	if err == nil {
		err = s.publisher.Publish(ctx, event)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to publish session event", "session.id", s.ID, "event", eventType, "error", err)
		trace.SpanFromContext(ctx).RecordError(err)
	}
}

func (s *Session) respond(cmd *command, res Result) {
	if cmd.reply != nil {
		cmd.reply <- res
	}
}

// stop ends the loop from inside it.
func (s *Session) stop() {
	s.closeOnce.Do(func() { close(s.Done) })
}
