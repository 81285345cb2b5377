package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"ctchen222/hotseat-tictactoe/internal/api/controller"
	"ctchen222/hotseat-tictactoe/internal/api/response"
	"ctchen222/hotseat-tictactoe/internal/auth"
	"ctchen222/hotseat-tictactoe/internal/client"
	"ctchen222/hotseat-tictactoe/internal/hub"
	"ctchen222/hotseat-tictactoe/internal/hub/types"
	"ctchen222/hotseat-tictactoe/web"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("server")

type Server struct {
	hub      *hub.Hub
	sessions *controller.SessionController
	issuer   *auth.Issuer
	upgrader websocket.Upgrader
	engine   *gin.Engine
}

func NewServer(h *hub.Hub, sessions *controller.SessionController, issuer *auth.Issuer) *Server {
	s := &Server{
		hub:      h,
		sessions: sessions,
		issuer:   issuer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.engine = s.routes()
	return s
}

// Engine returns the gin engine serving every route.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", web.Index)
	})
	r.GET("/healthz", func(c *gin.Context) {
		response.SuccessResponse(c, gin.H{"status": "ok", "sessions": s.hub.SessionCount()})
	})
	r.GET("/ws", s.handleWebSocket)

	api := r.Group("/api")
	api.POST("/sessions", s.sessions.Create)

	owned := api.Group("/sessions/:id", auth.Middleware(s.issuer, "id"))
	owned.GET("", s.sessions.Get)
	owned.DELETE("", s.sessions.Delete)
	owned.POST("/moves", s.sessions.Move)
	owned.POST("/reset", s.sessions.Reset)

	return r
}

// handleWebSocket checks the session token, upgrades the connection and hands
// the view to the hub.
func (s *Server) handleWebSocket(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "server.handleWebSocket", trace.WithAttributes(
		attribute.String("http.url", c.Request.URL.String()),
		attribute.String("http.method", c.Request.Method),
	))
	defer span.End()

	sessionID := c.Query("session")
	span.SetAttributes(attribute.String("session.id", sessionID))
	if sessionID == "" {
		response.ErrorResponse(c, http.StatusBadRequest, "missing session")
		return
	}
	if err := s.issuer.VerifyFor(c.Query("token"), sessionID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid session token")
		response.ErrorResponse(c, http.StatusUnauthorized, err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to upgrade connection", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to upgrade connection")
		return
	}

	view := client.New(uuid.New().String(), conn)
	span.SetAttributes(attribute.String("client.id", view.ID))

	// The request context ends with this handler; the hub works past it.
	err = s.hub.Register(ctx, &types.RegistrationRequest{
		Client:    view,
		SessionID: sessionID,
		Ctx:       context.WithoutCancel(ctx),
	})
	if err != nil {
		slog.WarnContext(ctx, "Failed to register view", "client.id", view.ID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to register view")
		_ = conn.Close()
	}
}

// requestLogger logs each request and any error a handler attached to it.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"http.method", c.Request.Method,
			"http.route", c.FullPath(),
			"http.status", c.Writer.Status(),
			"duration", time.Since(start),
		}
		if len(c.Errors) > 0 {
			slog.ErrorContext(c.Request.Context(), "Request failed", append(attrs, "error", c.Errors.String())...)
			return
		}
		slog.DebugContext(c.Request.Context(), "Request served", attrs...)
	}
}
