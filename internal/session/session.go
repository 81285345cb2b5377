package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"ctchen222/hotseat-tictactoe/internal/client"
	"ctchen222/hotseat-tictactoe/internal/events"
	"ctchen222/hotseat-tictactoe/internal/game"
	"ctchen222/hotseat-tictactoe/internal/hub/types"
	"ctchen222/hotseat-tictactoe/internal/repository"
	"ctchen222/hotseat-tictactoe/internal/telemetry"

	"go.opentelemetry.io/otel"
)

const defaultHeartbeatInterval = 10 * time.Second

var tracer = otel.Tracer("session")

// ErrClosed is returned for events submitted to a session whose loop has stopped.
var ErrClosed = errors.New("session closed")

// Result is the outcome of one event as seen by the loop.
type Result struct {
	State    *repository.SessionState
	Accepted bool
	Err      error
}

// command is one event queued for the loop. from is the view that sent it, nil
// for events arriving over HTTP.
type command struct {
	ctx   context.Context
	event game.Event
	from  *client.Client
	reply chan Result
}

type outgoing struct {
	to  *client.Client
	msg any
}

// Options tunes a Session.
type Options struct {
	// Origin tags published events so this process can skip its own echoes.
	Origin            string
	HeartbeatInterval time.Duration
}

// Session owns the game of one browser session. Every event, every view change
// and every write to a view connection happens on the run goroutine.
type Session struct {
	ID        string
	repo      repository.GameRepository
	publisher events.Publisher
	metrics   *telemetry.GameMetrics
	opts      Options

	// clients is only touched by run.
	clients map[string]*client.Client

	commands   chan *command
	attach     chan *client.Client
	detach     chan *client.Client
	direct     chan outgoing
	refresh    chan struct{}
	unregister chan<- *types.Departure

	clientCount atomic.Int32
	lastActive  atomic.Int64

	closeOnce sync.Once
	Done      chan struct{}
	stopped   chan struct{}
}

// New creates a session loop for id. publisher and metrics may be nil.
func New(id string, repo repository.GameRepository, publisher events.Publisher, metrics *telemetry.GameMetrics, opts Options) *Session {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = defaultHeartbeatInterval
	}
	s := &Session{
		ID:        id,
		repo:      repo,
		publisher: publisher,
		metrics:   metrics,
		opts:      opts,
		clients:   make(map[string]*client.Client),
		commands:  make(chan *command, 16),
		attach:    make(chan *client.Client),
		detach:    make(chan *client.Client),
		direct:    make(chan outgoing, 16),
		refresh:   make(chan struct{}, 1),
		Done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	s.touch()
	return s
}

// Start launches the loop. Views whose connection drops are reported on unregister.
func (s *Session) Start(unregister chan<- *types.Departure) {
	s.unregister = unregister
	s.metrics.SessionOpened(context.Background())
	go s.run()
}

// Close stops the loop and closes every attached view. It waits for the loop to exit.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.Done) })
	<-s.stopped
}

// Submit queues event and waits for the loop to apply it.
func (s *Session) Submit(ctx context.Context, event game.Event) (*repository.SessionState, bool, error) {
	reply := make(chan Result, 1)
	if err := s.enqueue(ctx, &command{ctx: ctx, event: event, reply: reply}); err != nil {
		return nil, false, err
	}
	select {
	case res := <-reply:
		return res.State, res.Accepted, res.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case <-s.Done:
		return nil, false, ErrClosed
	}
}

// Attach adds a view; the loop greets it with the current snapshot and starts reading from it.
func (s *Session) Attach(c *client.Client) error {
	select {
	case s.attach <- c:
		return nil
	case <-s.Done:
		return ErrClosed
	}
}

// Detach removes a view whose connection is gone.
func (s *Session) Detach(c *client.Client) {
	select {
	case s.detach <- c:
	case <-s.Done:
	}
}

// Refresh asks the loop to reload the stored state and push it to every view.
func (s *Session) Refresh() {
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

// ClientCount is the number of attached views.
func (s *Session) ClientCount() int {
	return int(s.clientCount.Load())
}

// IdleSince reports when the session last saw activity and whether it is idle,
// i.e. has no attached views.
func (s *Session) IdleSince() (time.Time, bool) {
	return time.Unix(0, s.lastActive.Load()), s.ClientCount() == 0
}

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

func (s *Session) enqueue(ctx context.Context, cmd *command) error {
	select {
	case s.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.Done:
		return ErrClosed
	}
}

// run is the main loop of the session.
func (s *Session) run() {
	ctx := context.Background()
	pingTicker := time.NewTicker(s.opts.HeartbeatInterval)

	defer func() {
		pingTicker.Stop()
		for id, c := range s.clients {
			c.MarkDisconnected()
			_ = c.Conn.Close()
			delete(s.clients, id)
		}
		s.clientCount.Store(0)
		s.metrics.SessionClosed(ctx)
		close(s.stopped)
	}()

	for {
		select {
		case <-s.Done:
			slog.Info("Session loop stopping", "session.id", s.ID)
			return

		case cmd := <-s.commands:
			s.touch()
			s.handleCommand(cmd)

		case c := <-s.attach:
			s.touch()
			s.handleAttach(ctx, c)

		case c := <-s.detach:
			s.touch()
			if _, ok := s.clients[c.ID]; ok {
				delete(s.clients, c.ID)
				s.clientCount.Store(int32(len(s.clients)))
				slog.InfoContext(ctx, "View detached", "session.id", s.ID, "client.id", c.ID)
			}

		case out := <-s.direct:
			s.send(ctx, out.to, out.msg)

		case <-s.refresh:
			s.handleRefresh(ctx)

		case <-pingTicker.C:
			for _, c := range s.clients {
				if c.Status() != client.StatusConnected {
					continue
				}
				if err := c.Conn.WriteMessage(pingMessage, nil); err != nil {
					slog.Warn("Failed to send ping to view, assuming disconnect", "client.id", c.ID, "error", err)
					s.drop(c)
				}
			}
		}
	}
}
