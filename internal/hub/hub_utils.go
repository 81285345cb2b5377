package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"ctchen222/hotseat-tictactoe/internal/client"
	"ctchen222/hotseat-tictactoe/internal/repository"
	"ctchen222/hotseat-tictactoe/pkg/proto"

	"github.com/gorilla/websocket"
)

// SessionCount is the number of session loops running on this process.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// rejectView tells a view why it cannot be attached and closes it.
func rejectView(ctx context.Context, c *client.Client, cause error) {
	reason := "session unavailable"
	if errors.Is(cause, repository.ErrSessionNotFound) {
		reason = "session not found"
	}
	data, _ := json.Marshal(&proto.ErrorMessage{Type: proto.TypeError, Reason: reason})
	if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.WarnContext(ctx, "Error sending rejection to view", "client.id", c.ID, "error", err)
	}
	c.MarkDisconnected()
	_ = c.Conn.Close()
}
