package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"ctchen222/hotseat-tictactoe/internal/events"
	"ctchen222/hotseat-tictactoe/internal/hub/types"
	"ctchen222/hotseat-tictactoe/internal/repository"
	"ctchen222/hotseat-tictactoe/internal/session"
	"ctchen222/hotseat-tictactoe/internal/telemetry"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("hub")

// ErrStopped is returned when registering with a hub whose Run has returned.
var ErrStopped = errors.New("hub stopped")

// Options tunes the hub.
type Options struct {
	// Origin identifies this process on the events channel.
	Origin            string
	IdleTimeout       time.Duration
	HeartbeatInterval time.Duration
	CleanupInterval   time.Duration
}

// Hub manages the live session loops of this process.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]*session.Session

	register   chan *types.RegistrationRequest
	unregister chan *types.Departure
	stopped    chan struct{}

	repo      repository.GameRepository
	publisher events.Publisher
	rdb       *redis.Client
	metrics   *telemetry.GameMetrics
	opts      Options
}

// NewHub creates a new hub. rdb may be nil, in which case no other process is
// listened to.
func NewHub(repo repository.GameRepository, publisher events.Publisher, rdb *redis.Client, metrics *telemetry.GameMetrics, opts Options) *Hub {
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = time.Minute
	}
	return &Hub{
		sessions:   make(map[string]*session.Session),
		register:   make(chan *types.RegistrationRequest),
		unregister: make(chan *types.Departure, 16),
		stopped:    make(chan struct{}),
		repo:       repo,
		publisher:  publisher,
		rdb:        rdb,
		metrics:    metrics,
		opts:       opts,
	}
}

// Run starts the hub. It returns when ctx is cancelled, after closing every session.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb != nil {
		go h.runEventSubscriber(ctx)
	}

	cleanupTicker := time.NewTicker(h.opts.CleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Hub stopping, closing sessions", "sessions.count", h.SessionCount())
			h.closeAll()
			close(h.stopped)
			return

		case req := <-h.register:
			h.handleRegistration(req)

		case d := <-h.unregister:
			h.handleDeparture(d)

		case <-cleanupTicker.C:
			h.cleanupIdleSessions(ctx, time.Now())
		}
	}
}

// Register hands a view to the hub loop. It gives up when ctx ends or the hub
// has stopped; the caller then still owns the view.
func (h *Hub) Register(ctx context.Context, req *types.RegistrationRequest) error {
	select {
	case h.register <- req:
		return nil
	case <-h.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
