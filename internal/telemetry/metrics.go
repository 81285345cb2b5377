package telemetry

import (
	"context"
	"fmt"
	"strings"

	"ctchen222/hotseat-tictactoe/internal/game"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "ctchen222/hotseat-tictactoe"

// GameMetrics counts what happens on the boards. A nil *GameMetrics records nothing.
type GameMetrics struct {
	moves    metric.Int64Counter
	resets   metric.Int64Counter
	finished metric.Int64Counter
	active   metric.Int64UpDownCounter
}

// NewGameMetrics registers the instruments on meter.
func NewGameMetrics(meter metric.Meter) (*GameMetrics, error) {
	moves, err := meter.Int64Counter("tictactoe.moves",
		metric.WithDescription("Move attempts, split by whether the engine accepted them."))
	if err != nil {
		return nil, fmt.Errorf("failed to create moves counter: %w", err)
	}
	resets, err := meter.Int64Counter("tictactoe.resets",
		metric.WithDescription("Board resets."))
	if err != nil {
		return nil, fmt.Errorf("failed to create resets counter: %w", err)
	}
	finished, err := meter.Int64Counter("tictactoe.games.finished",
		metric.WithDescription("Games that reached a win or a tie."))
	if err != nil {
		return nil, fmt.Errorf("failed to create finished counter: %w", err)
	}
	active, err := meter.Int64UpDownCounter("tictactoe.sessions.active",
		metric.WithDescription("Sessions with a running event loop on this process."))
	if err != nil {
		return nil, fmt.Errorf("failed to create active sessions counter: %w", err)
	}

	return &GameMetrics{moves: moves, resets: resets, finished: finished, active: active}, nil
}

// NewGlobalGameMetrics uses the meter provider installed by InitOtel.
func NewGlobalGameMetrics() (*GameMetrics, error) {
	return NewGameMetrics(otel.Meter(meterName))
}

func (m *GameMetrics) RecordMove(ctx context.Context, accepted bool) {
	if m == nil {
		return
	}
	m.moves.Add(ctx, 1, metric.WithAttributes(attribute.Bool("accepted", accepted)))
}

func (m *GameMetrics) RecordReset(ctx context.Context) {
	if m == nil {
		return
	}
	m.resets.Add(ctx, 1)
}

// RecordFinished counts a terminal status; InProgress is ignored.
func (m *GameMetrics) RecordFinished(ctx context.Context, status game.Status) {
	if m == nil || !status.IsTerminal() {
		return
	}
	result := "tie"
	if status.Kind == game.Won {
		result = strings.ToLower(string(status.Winner))
	}
	m.finished.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *GameMetrics) SessionOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.active.Add(ctx, 1)
}

func (m *GameMetrics) SessionClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.active.Add(ctx, -1)
}
