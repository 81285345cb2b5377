package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"ctchen222/hotseat-tictactoe/internal/game"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGameRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryGameRepository(time.Hour)

	// Given: a freshly created session
	created, err := repo.Create(ctx, "s1")
	require.NoError(t, err)

	// When: looking it up
	found, err := repo.FindByID(ctx, "s1")

	// Then: it holds an empty board with X to move
	require.NoError(t, err)
	assert.Equal(t, game.NewState(), found.State)
	assert.Equal(t, created.State, found.State)
	assert.Equal(t, game.InProgress, found.Status().Kind)
}

func TestMemoryGameRepository_CreateTwice(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryGameRepository(time.Hour)

	_, err := repo.Create(ctx, "s1")
	require.NoError(t, err)

	_, err = repo.Create(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionExists)
}

func TestMemoryGameRepository_FindMissing(t *testing.T) {
	_, err := NewMemoryGameRepository(time.Hour).FindByID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryGameRepository_Apply(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryGameRepository(time.Hour)
	_, err := repo.Create(ctx, "s1")
	require.NoError(t, err)

	t.Run("Accepted move is stored", func(t *testing.T) {
		got, accepted, err := repo.Apply(ctx, "s1", game.Move(4))
		require.NoError(t, err)
		assert.True(t, accepted)
		assert.Equal(t, game.PlayerX, got.State.Board[4])
		assert.Equal(t, game.PlayerO, got.State.CurrentTurn)

		stored, err := repo.FindByID(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, got.State, stored.State)
	})

	t.Run("Rejected move leaves state alone", func(t *testing.T) {
		before, err := repo.FindByID(ctx, "s1")
		require.NoError(t, err)

		got, accepted, err := repo.Apply(ctx, "s1", game.Move(4))
		require.NoError(t, err)
		assert.False(t, accepted)
		assert.Equal(t, before.State, got.State)
	})

	t.Run("Reset restores the initial state", func(t *testing.T) {
		got, accepted, err := repo.Apply(ctx, "s1", game.Reset())
		require.NoError(t, err)
		assert.True(t, accepted)
		assert.Equal(t, game.NewState(), got.State)
	})

	t.Run("Unknown session", func(t *testing.T) {
		_, _, err := repo.Apply(ctx, "missing", game.Move(0))
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestMemoryGameRepository_Expiry(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryGameRepository(time.Minute).(*memoryGameRepository)

	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return clock }

	_, err := repo.Create(ctx, "s1")
	require.NoError(t, err)

	// Activity keeps the session alive
	clock = clock.Add(50 * time.Second)
	_, accepted, err := repo.Apply(ctx, "s1", game.Move(0))
	require.NoError(t, err)
	require.True(t, accepted)

	clock = clock.Add(50 * time.Second)
	_, err = repo.FindByID(ctx, "s1")
	require.NoError(t, err)

	// Past the TTL it is gone
	clock = clock.Add(2 * time.Minute)
	_, err = repo.FindByID(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// And the id can be reused
	_, err = repo.Create(ctx, "s1")
	assert.NoError(t, err)
}

func TestMemoryGameRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryGameRepository(0)
	_, err := repo.Create(ctx, "s1")
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, "s1"))
	require.NoError(t, repo.Delete(ctx, "s1"), "deleting twice is fine")

	_, err = repo.FindByID(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryGameRepository_CreateSweepsExpired(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryGameRepository(time.Minute).(*memoryGameRepository)

	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return clock }

	// Given: many sessions nobody ever reads again
	for i := 0; i < 1000; i++ {
		_, err := repo.Create(ctx, fmt.Sprintf("abandoned-%d", i))
		require.NoError(t, err)
	}
	require.Len(t, repo.sessions, 1000)

	// When: they all expire and a new session is created
	clock = clock.Add(2 * time.Minute)
	_, err := repo.Create(ctx, "fresh")
	require.NoError(t, err)

	// Then: only the new one is held
	assert.Len(t, repo.sessions, 1)
	assert.Contains(t, repo.sessions, "fresh")
}

func TestMemoryGameRepository_SweepKeepsLiveSessions(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryGameRepository(time.Minute).(*memoryGameRepository)

	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return clock }

	_, err := repo.Create(ctx, "old")
	require.NoError(t, err)
	clock = clock.Add(90 * time.Second)
	_, err = repo.Create(ctx, "active")
	require.NoError(t, err)

	clock = clock.Add(30 * time.Second)
	_, err = repo.Create(ctx, "new")
	require.NoError(t, err)

	assert.NotContains(t, repo.sessions, "old")
	assert.Contains(t, repo.sessions, "active")
	assert.Contains(t, repo.sessions, "new")
}
