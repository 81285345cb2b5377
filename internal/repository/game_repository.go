package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ctchen222/hotseat-tictactoe/internal/game"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Hash fields of a session key.
const (
	FieldBoard     = "board"
	FieldNextTurn  = "next_turn"
	FieldUpdatedAt = "updated_at"
)

const maxTxRetries = 5

type redisGameRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewGameRepository creates a Redis-based GameRepository. Every write refreshes
// the key's expiry to ttl, so a session's game disappears with the session.
func NewGameRepository(rdb *redis.Client, ttl time.Duration) GameRepository {
	return &redisGameRepository{rdb: rdb, ttl: ttl}
}

func sessionKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}

// Create initializes a new game state in Redis.
func (r *redisGameRepository) Create(ctx context.Context, id string) (*SessionState, error) {
	ctx, span := tracer.Start(ctx, "GameRepository.Create")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", id))

	state := game.NewState()
	now := time.Now().UTC()
	fields, err := encodeState(state, now)
	if err != nil {
		return nil, err
	}

	key := sessionKey(id)
	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrSessionExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fields)
			pipe.Expire(ctx, key, r.ttl)
			return nil
		})
		return err
	}

	if err := r.rdb.Watch(ctx, txf, key); err != nil {
		if errors.Is(err, ErrSessionExists) || errors.Is(err, redis.TxFailedErr) {
			return nil, ErrSessionExists
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create session")
		return nil, fmt.Errorf("failed to create session in redis: %w", err)
	}

	return &SessionState{ID: id, State: state, UpdatedAt: now}, nil
}

// FindByID retrieves the current game state from Redis.
func (r *redisGameRepository) FindByID(ctx context.Context, id string) (*SessionState, error) {
	ctx, span := tracer.Start(ctx, "GameRepository.FindByID")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", id))

	data, err := r.rdb.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to read session")
		return nil, fmt.Errorf("failed to get game state from redis: %w", err)
	}
	return decodeState(id, data)
}

// Apply runs the transition inside WATCH/MULTI and retries when another writer
// got there first.
func (r *redisGameRepository) Apply(ctx context.Context, id string, event game.Event) (*SessionState, bool, error) {
	ctx, span := tracer.Start(ctx, "GameRepository.Apply")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", id),
		attribute.String("event.kind", string(event.Kind)),
	)

	key := sessionKey(id)
	var (
		result   *SessionState
		accepted bool
	)

	txf := func(tx *redis.Tx) error {
		data, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		current, err := decodeState(id, data)
		if err != nil {
			return err
		}

		next, ok := game.Apply(current.State, event)
		if !ok {
			result, accepted = current, false
			return nil
		}

		now := time.Now().UTC()
		fields, err := encodeState(next, now)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fields)
			pipe.Expire(ctx, key, r.ttl)
			return nil
		})
		if err != nil {
			return err
		}

		result, accepted = &SessionState{ID: id, State: next, UpdatedAt: now}, true
		return nil
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := r.rdb.Watch(ctx, txf, key)
		switch {
		case err == nil:
			span.SetAttributes(attribute.Bool("event.accepted", accepted))
			return result, accepted, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrSessionNotFound):
			return nil, false, err
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to apply event")
			return nil, false, fmt.Errorf("failed to apply %s to session %s: %w", event.Kind, id, err)
		}
	}

	span.SetStatus(codes.Error, "Too many concurrent writers")
	return nil, false, ErrContention
}

// Delete removes the session's game.
func (r *redisGameRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "GameRepository.Delete")
	defer span.End()

	if err := r.rdb.Del(ctx, sessionKey(id)).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to delete session")
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

func encodeState(state game.State, updatedAt time.Time) (map[string]interface{}, error) {
	boardJSON, err := json.Marshal(state.Board)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal board: %w", err)
	}
	return map[string]interface{}{
		FieldBoard:     string(boardJSON),
		FieldNextTurn:  string(state.CurrentTurn),
		FieldUpdatedAt: updatedAt.Format(time.RFC3339Nano),
	}, nil
}

func decodeState(id string, data map[string]string) (*SessionState, error) {
	if len(data) == 0 || data[FieldBoard] == "" {
		return nil, ErrSessionNotFound
	}

	var board game.Board
	if err := json.Unmarshal([]byte(data[FieldBoard]), &board); err != nil {
		return nil, fmt.Errorf("failed to unmarshal board: %w", err)
	}

	updatedAt, err := time.Parse(time.RFC3339Nano, data[FieldUpdatedAt])
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", FieldUpdatedAt, err)
	}

	return &SessionState{
		ID: id,
		State: game.State{
			Board:       board,
			CurrentTurn: game.PlayerMark(data[FieldNextTurn]),
		},
		UpdatedAt: updatedAt,
	}, nil
}
