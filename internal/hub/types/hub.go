package types

import (
	"context"

	"ctchen222/hotseat-tictactoe/internal/client"
)

// RegistrationRequest asks the hub to attach a view to a session.
type RegistrationRequest struct {
	Client    *client.Client
	SessionID string
	Ctx       context.Context
}

// Departure reports a view whose connection dropped.
type Departure struct {
	Client    *client.Client
	SessionID string
}
