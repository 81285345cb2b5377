package proto

import "ctchen222/hotseat-tictactoe/internal/game"

const (
	TypeMove     = "move"
	TypeReset    = "reset"
	TypeSnapshot = "snapshot"
	TypeError    = "error"
)

// ClientMessage is what a board view sends: a click on a cell or on the reset control.
type ClientMessage struct {
	Type string `json:"type" validate:"required,oneof=move reset"`
	Cell *int   `json:"cell,omitempty" validate:"omitempty,min=0,max=8"`
}

// Event converts the message to an engine event. A move without a cell yields false.
func (m *ClientMessage) Event() (game.Event, bool) {
	switch m.Type {
	case TypeMove:
		if m.Cell == nil {
			return game.Event{}, false
		}
		return game.Move(*m.Cell), true
	case TypeReset:
		return game.Reset(), true
	default:
		return game.Event{}, false
	}
}

// SnapshotMessage carries everything a view needs to re-render.
type SnapshotMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Board     game.Board      `json:"board"`
	Next      game.PlayerMark `json:"next"`
	Status    game.StatusKind `json:"status"`
	Winner    game.PlayerMark `json:"winner,omitempty"`
	Display   game.Display    `json:"display"`
	Accepted  *bool           `json:"accepted,omitempty"`
}

// NewSnapshot derives status and display from state. accepted is nil for pushes
// that do not answer a particular event.
func NewSnapshot(sessionID string, state game.State, accepted *bool) *SnapshotMessage {
	status := game.ComputeStatus(state.Board)
	return &SnapshotMessage{
		Type:      TypeSnapshot,
		SessionID: sessionID,
		Board:     state.Board,
		Next:      state.CurrentTurn,
		Status:    status.Kind,
		Winner:    status.Winner,
		Display:   game.Describe(status, state.CurrentTurn),
		Accepted:  accepted,
	}
}

// ErrorMessage tells a view its message could not be understood.
type ErrorMessage struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}
