package hub

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"ctchen222/hotseat-tictactoe/internal/client"
	"ctchen222/hotseat-tictactoe/internal/events"
	"ctchen222/hotseat-tictactoe/internal/game"
	"ctchen222/hotseat-tictactoe/internal/hub/types"
	"ctchen222/hotseat-tictactoe/internal/repository"
	"ctchen222/hotseat-tictactoe/pkg/proto"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

type fakeConn struct {
	done chan struct{}

	mu     sync.Mutex
	out    [][]byte
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{done: make(chan struct{})}
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return websocket.ErrCloseSent
	}
	if messageType == websocket.TextMessage {
		f.out = append(f.out, data)
	}
	return nil
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.done
	return 0, nil, &websocket.CloseError{Code: websocket.CloseGoingAway}
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.done)
	}
	return nil
}

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.out)
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) last(t *testing.T, v any) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.out)
	require.NoError(t, json.Unmarshal(f.out[len(f.out)-1], v))
}

func newTestHub(t *testing.T, opts Options) (*Hub, repository.GameRepository) {
	t.Helper()
	repo := repository.NewMemoryGameRepository(time.Hour)
	if opts.Origin == "" {
		opts.Origin = "proc-a"
	}
	h := NewHub(repo, events.NopPublisher{}, nil, nil, opts)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return h, repo
}

func createSession(t *testing.T, repo repository.GameRepository, id string) {
	t.Helper()
	_, err := repo.Create(context.Background(), id)
	require.NoError(t, err)
}

func register(t *testing.T, h *Hub, id, sessionID string) *fakeConn {
	t.Helper()
	conn := newFakeConn()
	err := h.Register(context.Background(), &types.RegistrationRequest{
		Client:    client.New(id, conn),
		SessionID: sessionID,
		Ctx:       context.Background(),
	})
	require.NoError(t, err)
	return conn
}

func TestHub_RegisterAttachesView(t *testing.T) {
	h, repo := newTestHub(t, Options{})
	createSession(t, repo, "s1")

	conn := register(t, h, "view-1", "s1")

	require.Eventually(t, func() bool { return conn.count() == 1 }, waitFor, 5*time.Millisecond)
	var snap proto.SnapshotMessage
	conn.last(t, &snap)
	assert.Equal(t, proto.TypeSnapshot, snap.Type)
	assert.Equal(t, "s1", snap.SessionID)
	assert.Equal(t, 1, h.SessionCount())
}

func TestHub_RegisterAfterStop(t *testing.T) {
	h := NewHub(repository.NewMemoryGameRepository(time.Hour), events.NopPublisher{}, nil, nil, Options{Origin: "proc-a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.Run(ctx)

	// Given: a hub that has stopped
	req := &types.RegistrationRequest{Client: client.New("view-1", newFakeConn()), SessionID: "s1"}

	// When: a view registers with no deadline
	done := make(chan error, 1)
	go func() { done <- h.Register(context.Background(), req) }()

	// Then: it is refused instead of blocking
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(waitFor):
		t.Fatal("Register blocked on a stopped hub")
	}
}

func TestHub_RegisterHonoursContext(t *testing.T) {
	// A hub that is never run reads nothing from its register channel
	h := NewHub(repository.NewMemoryGameRepository(time.Hour), events.NopPublisher{}, nil, nil, Options{Origin: "proc-a"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := h.Register(ctx, &types.RegistrationRequest{Client: client.New("view-1", newFakeConn()), SessionID: "s1"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHub_RegisterUnknownSession(t *testing.T) {
	h, _ := newTestHub(t, Options{})

	conn := register(t, h, "view-1", "missing")

	require.Eventually(t, conn.isClosed, waitFor, 5*time.Millisecond)
	var msg proto.ErrorMessage
	conn.last(t, &msg)
	assert.Equal(t, proto.TypeError, msg.Type)
	assert.Equal(t, "session not found", msg.Reason)
	assert.Equal(t, 0, h.SessionCount())
}

// stallingRepo holds FindByID until release is closed.
type stallingRepo struct {
	repository.GameRepository
	entered chan struct{}
	release chan struct{}
}

func (r *stallingRepo) FindByID(ctx context.Context, id string) (*repository.SessionState, error) {
	select {
	case r.entered <- struct{}{}:
	default:
	}
	<-r.release
	return r.GameRepository.FindByID(ctx, id)
}

func TestHub_EnsureDoesNotHoldLockDuringLookup(t *testing.T) {
	repo := &stallingRepo{
		GameRepository: repository.NewMemoryGameRepository(time.Hour),
		entered:        make(chan struct{}, 2),
		release:        make(chan struct{}),
	}
	createSession(t, repo, "s1")
	h := NewHub(repo, events.NopPublisher{}, nil, nil, Options{Origin: "proc-a"})
	t.Cleanup(h.closeAll)

	// Given: two callers stuck in the store lookup for the same session
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := h.ensure(context.Background(), "s1")
			results <- err
		}()
	}
	for i := 0; i < 2; i++ {
		select {
		case <-repo.entered:
		case <-time.After(waitFor):
			t.Fatal("lookup not reached")
		}
	}

	// When: the hub is queried meanwhile
	counted := make(chan int, 1)
	go func() { counted <- h.SessionCount() }()

	// Then: it answers without waiting for the store
	select {
	case n := <-counted:
		assert.Equal(t, 0, n)
	case <-time.After(waitFor):
		t.Fatal("SessionCount blocked behind a store lookup")
	}

	// And both callers end up sharing one loop
	close(repo.release)
	for i := 0; i < 2; i++ {
		require.NoError(t, <-results)
	}
	assert.Equal(t, 1, h.SessionCount())
}

func TestHub_Dispatch(t *testing.T) {
	h, repo := newTestHub(t, Options{})
	createSession(t, repo, "s1")
	ctx := context.Background()

	t.Run("Starts the loop lazily and applies the event", func(t *testing.T) {
		state, accepted, err := h.Dispatch(ctx, "s1", game.Move(4))
		require.NoError(t, err)
		assert.True(t, accepted)
		assert.Equal(t, game.PlayerX, state.State.Board[4])
		assert.Equal(t, 1, h.SessionCount())
	})

	t.Run("Views see dispatched events", func(t *testing.T) {
		conn := register(t, h, "view-1", "s1")
		require.Eventually(t, func() bool { return conn.count() == 1 }, waitFor, 5*time.Millisecond)

		_, accepted, err := h.Dispatch(ctx, "s1", game.Move(0))
		require.NoError(t, err)
		require.True(t, accepted)

		require.Eventually(t, func() bool { return conn.count() == 2 }, waitFor, 5*time.Millisecond)
		var snap proto.SnapshotMessage
		conn.last(t, &snap)
		assert.Equal(t, game.PlayerO, snap.Board[0])
		assert.Equal(t, game.PlayerX, snap.Next)
	})

	t.Run("Unknown session", func(t *testing.T) {
		_, _, err := h.Dispatch(ctx, "missing", game.Reset())
		assert.ErrorIs(t, err, repository.ErrSessionNotFound)
	})

	t.Run("Closed loop is replaced", func(t *testing.T) {
		h.Close("s1")
		assert.Equal(t, 0, h.SessionCount())

		state, accepted, err := h.Dispatch(ctx, "s1", game.Reset())
		require.NoError(t, err)
		assert.True(t, accepted)
		assert.Equal(t, game.NewState(), state.State)
	})
}

func TestHub_DepartureDetachesView(t *testing.T) {
	h, repo := newTestHub(t, Options{})
	createSession(t, repo, "s1")

	conn := register(t, h, "view-1", "s1")
	require.Eventually(t, func() bool { return conn.count() == 1 }, waitFor, 5*time.Millisecond)

	require.NoError(t, conn.Close())

	h.mu.Lock()
	s := h.sessions["s1"]
	h.mu.Unlock()
	require.NotNil(t, s)
	assert.Eventually(t, func() bool { return s.ClientCount() == 0 }, waitFor, 5*time.Millisecond)
}

func TestHub_CleanupIdleSessions(t *testing.T) {
	h, repo := newTestHub(t, Options{IdleTimeout: time.Minute})
	createSession(t, repo, "idle")
	createSession(t, repo, "watched")
	ctx := context.Background()

	_, _, err := h.Dispatch(ctx, "idle", game.Move(0))
	require.NoError(t, err)

	conn := register(t, h, "view-1", "watched")
	require.Eventually(t, func() bool { return conn.count() == 1 }, waitFor, 5*time.Millisecond)
	require.Equal(t, 2, h.SessionCount())

	// Nothing is old enough yet
	h.cleanupIdleSessions(ctx, time.Now())
	assert.Equal(t, 2, h.SessionCount())

	h.cleanupIdleSessions(ctx, time.Now().Add(2*time.Minute))
	assert.Equal(t, 1, h.SessionCount())
	assert.False(t, conn.isClosed())

	// The stored game outlives the loop
	stored, err := repo.FindByID(ctx, "idle")
	require.NoError(t, err)
	assert.Equal(t, game.PlayerX, stored.State.Board[0])
}

func TestHub_HandleEvent(t *testing.T) {
	h, repo := newTestHub(t, Options{Origin: "proc-a"})
	createSession(t, repo, "s1")
	ctx := context.Background()

	conn := register(t, h, "view-1", "s1")
	require.Eventually(t, func() bool { return conn.count() == 1 }, waitFor, 5*time.Millisecond)

	publish := func(eventType, origin string) {
		event, err := events.NewSessionEvent(eventType, "s1", origin)
		require.NoError(t, err)
		raw, err := json.Marshal(event)
		require.NoError(t, err)
		h.handleEvent(ctx, raw)
	}

	t.Run("Own echo is ignored", func(t *testing.T) {
		publish(events.TypeSessionUpdated, "proc-a")
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, 1, conn.count())
	})

	t.Run("Update from another process is pushed to views", func(t *testing.T) {
		_, _, err := repo.Apply(ctx, "s1", game.Move(2))
		require.NoError(t, err)

		publish(events.TypeSessionUpdated, "proc-b")

		require.Eventually(t, func() bool { return conn.count() == 2 }, waitFor, 5*time.Millisecond)
		var snap proto.SnapshotMessage
		conn.last(t, &snap)
		assert.Equal(t, game.PlayerX, snap.Board[2])
	})

	t.Run("Garbage is dropped", func(t *testing.T) {
		h.handleEvent(ctx, []byte("not json"))
		h.handleEvent(ctx, []byte(`{"event":"session_updated","payload":"nope"}`))
		assert.Equal(t, 1, h.SessionCount())
	})

	t.Run("Delete from another process closes the loop", func(t *testing.T) {
		publish(events.TypeSessionDeleted, "proc-b")
		assert.Equal(t, 0, h.SessionCount())
		assert.Eventually(t, conn.isClosed, waitFor, 5*time.Millisecond)
	})
}
