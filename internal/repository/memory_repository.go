package repository

import (
	"context"
	"sync"
	"time"

	"ctchen222/hotseat-tictactoe/internal/game"
)

type memoryEntry struct {
	state     game.State
	updatedAt time.Time
}

type memoryGameRepository struct {
	mu       sync.Mutex
	sessions map[string]*memoryEntry
	ttl      time.Duration
	now      func() time.Time

	lastSweep time.Time
}

// NewMemoryGameRepository keeps sessions in process memory. Entries untouched for
// longer than ttl are treated as gone; ttl <= 0 keeps them forever.
func NewMemoryGameRepository(ttl time.Duration) GameRepository {
	return &memoryGameRepository{
		sessions: make(map[string]*memoryEntry),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (r *memoryGameRepository) Create(ctx context.Context, id string) (*SessionState, error) {
	_, span := tracer.Start(ctx, "MemoryGameRepository.Create")
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sweep()
	if _, ok := r.lookup(id); ok {
		return nil, ErrSessionExists
	}
	entry := &memoryEntry{state: game.NewState(), updatedAt: r.now()}
	r.sessions[id] = entry
	return entry.snapshot(id), nil
}

func (r *memoryGameRepository) FindByID(ctx context.Context, id string) (*SessionState, error) {
	_, span := tracer.Start(ctx, "MemoryGameRepository.FindByID")
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.lookup(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return entry.snapshot(id), nil
}

func (r *memoryGameRepository) Apply(ctx context.Context, id string, event game.Event) (*SessionState, bool, error) {
	_, span := tracer.Start(ctx, "MemoryGameRepository.Apply")
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.lookup(id)
	if !ok {
		return nil, false, ErrSessionNotFound
	}

	next, accepted := game.Apply(entry.state, event)
	if accepted {
		entry.state = next
		entry.updatedAt = r.now()
	}
	return entry.snapshot(id), accepted, nil
}

func (r *memoryGameRepository) Delete(ctx context.Context, id string) error {
	_, span := tracer.Start(ctx, "MemoryGameRepository.Delete")
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	return nil
}

// lookup returns a live entry and evicts an expired one. Callers hold r.mu.
func (r *memoryGameRepository) lookup(id string) (*memoryEntry, bool) {
	entry, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	if r.ttl > 0 && r.now().Sub(entry.updatedAt) > r.ttl {
		delete(r.sessions, id)
		return nil, false
	}
	return entry, true
}

// sweep evicts every expired entry, at most once per ttl. Callers hold r.mu.
func (r *memoryGameRepository) sweep() {
	if r.ttl <= 0 {
		return
	}
	now := r.now()
	if now.Sub(r.lastSweep) < r.ttl {
		return
	}
	r.lastSweep = now
	for id, entry := range r.sessions {
		if now.Sub(entry.updatedAt) > r.ttl {
			delete(r.sessions, id)
		}
	}
}

func (e *memoryEntry) snapshot(id string) *SessionState {
	return &SessionState{ID: id, State: e.state, UpdatedAt: e.updatedAt}
}
