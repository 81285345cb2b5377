package session

import (
	"context"
	"encoding/json"
	"log/slog"

	"ctchen222/hotseat-tictactoe/internal/client"
	"ctchen222/hotseat-tictactoe/internal/hub/types"
	"ctchen222/hotseat-tictactoe/internal/validator"
	"ctchen222/hotseat-tictactoe/pkg/proto"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	textMessage = websocket.TextMessage
	pingMessage = websocket.PingMessage
)

// broadcast sends a message to all connected views. Called from run only.
func (s *Session) broadcast(ctx context.Context, message any) {
	ctx, span := tracer.Start(ctx, "session.broadcast", trace.WithAttributes(
		attribute.String("session.id", s.ID),
		attribute.Int("clients.count", len(s.clients)),
	))
	defer span.End()

	data, err := json.Marshal(message)
	if err != nil {
		slog.ErrorContext(ctx, "error marshalling message", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Error marshalling message")
		return
	}

	for _, c := range s.clients {
		if c.Status() != client.StatusConnected {
			continue
		}
		if err := c.Conn.WriteMessage(textMessage, data); err != nil {
			slog.ErrorContext(ctx, "error writing message to view", "client.id", c.ID, "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "Error writing message to view")
			s.drop(c)
		}
	}
}

// send writes a message to a single view. Called from run only.
func (s *Session) send(ctx context.Context, c *client.Client, message any) {
	if c == nil || c.Status() != client.StatusConnected {
		return
	}
	data, err := json.Marshal(message)
	if err != nil {
		slog.ErrorContext(ctx, "error marshalling message", "error", err)
		return
	}
	if err := c.Conn.WriteMessage(textMessage, data); err != nil {
		slog.WarnContext(ctx, "error writing message to view", "client.id", c.ID, "error", err)
		s.drop(c)
	}
}

// drop forgets a view whose connection failed. Closing the connection ends its ReadPump.
func (s *Session) drop(c *client.Client) {
	if c.MarkDisconnected() {
		_ = c.Conn.Close()
	}
	if _, ok := s.clients[c.ID]; ok {
		delete(s.clients, c.ID)
		s.clientCount.Store(int32(len(s.clients)))
	}
}

// ReadPump pumps messages from a view connection into the session loop.
func (s *Session) ReadPump(c *client.Client) {
	ctx, span := tracer.Start(context.Background(), "session.ReadPump", trace.WithAttributes(
		attribute.String("client.id", c.ID),
		attribute.String("session.id", s.ID),
	))
	defer span.End()

	defer func() {
		if c.MarkDisconnected() {
			_ = c.Conn.Close()
		}
		if s.unregister == nil {
			s.Detach(c)
			return
		}
		select {
		case s.unregister <- &types.Departure{Client: c, SessionID: s.ID}:
		case <-s.Done:
		}
		slog.InfoContext(ctx, "View disconnected", "client.id", c.ID, "session.id", s.ID)
	}()

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.WarnContext(ctx, "View connection error", "client.id", c.ID, "session.id", s.ID, "error", err)
				span.RecordError(err)
				span.SetStatus(codes.Error, "View connection error")
			}
			return
		}
		c.Touch()

		var message proto.ClientMessage
		if err := validator.DecodeAndValidate(raw, &message); err != nil {
			slog.WarnContext(ctx, "invalid message from view", "client.id", c.ID, "error", err)
			s.reply(c, &proto.ErrorMessage{Type: proto.TypeError, Reason: err.Error()})
			continue
		}
		event, ok := message.Event()
		if !ok {
			s.reply(c, &proto.ErrorMessage{Type: proto.TypeError, Reason: "move requires a cell"})
			continue
		}

		if err := s.enqueue(ctx, &command{ctx: ctx, event: event, from: c}); err != nil {
			return
		}
	}
}

func (s *Session) reply(c *client.Client, msg any) {
	select {
	case s.direct <- outgoing{to: c, msg: msg}:
	case <-s.Done:
	}
}
