package repository

import (
	"context"
	"errors"
	"time"

	"ctchen222/hotseat-tictactoe/internal/game"

	"go.opentelemetry.io/otel"
)

//go:generate mockgen -destination=mocks/mock_game_repository.go -package=mocks . GameRepository

var tracer = otel.Tracer("repository")

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	ErrContention      = errors.New("session changed concurrently, giving up")
)

// SessionState is the stored game of one browser session.
type SessionState struct {
	ID        string
	State     game.State
	UpdatedAt time.Time
}

// Status derives the game status of the stored board.
func (s *SessionState) Status() game.Status {
	return game.ComputeStatus(s.State.Board)
}

// GameRepository stores one game per session. Apply runs game.Apply atomically
// against the stored state and persists the result only if the event was accepted.
type GameRepository interface {
	Create(ctx context.Context, id string) (*SessionState, error)
	FindByID(ctx context.Context, id string) (*SessionState, error)
	Apply(ctx context.Context, id string, event game.Event) (*SessionState, bool, error)
	Delete(ctx context.Context, id string) error
}
