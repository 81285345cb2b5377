package service

import (
	"context"
	"fmt"
	"log/slog"

	"ctchen222/hotseat-tictactoe/internal/api/models"
	"ctchen222/hotseat-tictactoe/internal/auth"
	"ctchen222/hotseat-tictactoe/internal/events"
	"ctchen222/hotseat-tictactoe/internal/game"
	"ctchen222/hotseat-tictactoe/internal/repository"
	"ctchen222/hotseat-tictactoe/pkg/proto"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("api/service")

// Dispatcher serialises events through the session's loop.
type Dispatcher interface {
	Dispatch(ctx context.Context, id string, event game.Event) (*repository.SessionState, bool, error)
	Close(id string)
}

// SessionService defines the business logic behind the session endpoints.
type SessionService interface {
	Create(ctx context.Context) (*models.CreateSessionResponse, error)
	Get(ctx context.Context, id string) (*proto.SnapshotMessage, error)
	Move(ctx context.Context, id string, cell int) (*proto.SnapshotMessage, error)
	Reset(ctx context.Context, id string) (*proto.SnapshotMessage, error)
	Delete(ctx context.Context, id string) error
}

type sessionService struct {
	repo       repository.GameRepository
	dispatcher Dispatcher
	issuer     *auth.Issuer
	publisher  events.Publisher
	origin     string
	newID      func() string
}

// NewSessionService creates a new SessionService.
func NewSessionService(repo repository.GameRepository, dispatcher Dispatcher, issuer *auth.Issuer, publisher events.Publisher, origin string) SessionService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &sessionService{
		repo:       repo,
		dispatcher: dispatcher,
		issuer:     issuer,
		publisher:  publisher,
		origin:     origin,
		newID:      func() string { return uuid.New().String() },
	}
}

// Create starts a fresh game and issues the token that guards it.
func (s *sessionService) Create(ctx context.Context) (*models.CreateSessionResponse, error) {
	ctx, span := tracer.Start(ctx, "SessionService.Create")
	defer span.End()

	id := s.newID()
	span.SetAttributes(attribute.String("session.id", id))

	state, err := s.repo.Create(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create session")
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	token, err := s.issuer.Issue(id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to issue token")
		return nil, err
	}

	slog.InfoContext(ctx, "Session created", "session.id", id)
	return &models.CreateSessionResponse{
		SessionID: id,
		Token:     token,
		Snapshot:  proto.NewSnapshot(id, state.State, nil),
	}, nil
}

func (s *sessionService) Get(ctx context.Context, id string) (*proto.SnapshotMessage, error) {
	ctx, span := tracer.Start(ctx, "SessionService.Get")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", id))

	state, err := s.repo.FindByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to read session")
		return nil, err
	}
	return proto.NewSnapshot(id, state.State, nil), nil
}

func (s *sessionService) Move(ctx context.Context, id string, cell int) (*proto.SnapshotMessage, error) {
	return s.apply(ctx, id, game.Move(cell))
}

func (s *sessionService) Reset(ctx context.Context, id string) (*proto.SnapshotMessage, error) {
	return s.apply(ctx, id, game.Reset())
}

func (s *sessionService) apply(ctx context.Context, id string, event game.Event) (*proto.SnapshotMessage, error) {
	ctx, span := tracer.Start(ctx, "SessionService.apply")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", id),
		attribute.String("event.kind", string(event.Kind)),
	)

	state, accepted, err := s.dispatcher.Dispatch(ctx, id, event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to apply event")
		return nil, err
	}
	span.SetAttributes(attribute.Bool("event.accepted", accepted))
	return proto.NewSnapshot(id, state.State, &accepted), nil
}

// Delete drops the game, stops the local loop and tells other processes.
func (s *sessionService) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "SessionService.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", id))

	if err := s.repo.Delete(ctx, id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to delete session")
		return err
	}
	s.dispatcher.Close(id)

	event, err := events.NewSessionEvent(events.TypeSessionDeleted, id, s.origin)
	if err == nil {
		err = s.publisher.Publish(ctx, event)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to publish session_deleted event", "session.id", id, "error", err)
		span.RecordError(err)
	}

	slog.InfoContext(ctx, "Session deleted", "session.id", id)
	return nil
}
