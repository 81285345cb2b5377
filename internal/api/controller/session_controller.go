package controller

import (
	"context"
	"net/http"

	"ctchen222/hotseat-tictactoe/internal/api/models"
	"ctchen222/hotseat-tictactoe/internal/api/response"
	"ctchen222/hotseat-tictactoe/internal/api/service"
	"ctchen222/hotseat-tictactoe/internal/repository"
	"ctchen222/hotseat-tictactoe/internal/session"

	"github.com/gin-gonic/gin"
)

var errorStatuses = []response.StatusMapping{
	{Err: repository.ErrSessionNotFound, Code: http.StatusNotFound},
	{Err: repository.ErrContention, Code: http.StatusConflict},
	{Err: session.ErrClosed, Code: http.StatusServiceUnavailable},
	{Err: context.DeadlineExceeded, Code: http.StatusGatewayTimeout},
}

// SessionController handles the session endpoints.
type SessionController struct {
	sessionService service.SessionService
}

// NewSessionController creates a new SessionController.
func NewSessionController(sessionService service.SessionService) *SessionController {
	return &SessionController{
		sessionService: sessionService,
	}
}

// Create handles POST /api/sessions.
func (sc *SessionController) Create(c *gin.Context) {
	res, err := sc.sessionService.Create(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.CreatedResponse(c, res)
}

// Get handles GET /api/sessions/:id.
func (sc *SessionController) Get(c *gin.Context) {
	snap, err := sc.sessionService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.SuccessResponse(c, snap)
}

// Move handles POST /api/sessions/:id/moves. A move the engine rejects is not
// an HTTP error; the snapshot carries accepted=false.
func (sc *SessionController) Move(c *gin.Context) {
	var req models.MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := sc.sessionService.Move(c.Request.Context(), c.Param("id"), *req.Cell)
	if err != nil {
		fail(c, err)
		return
	}
	response.SuccessResponse(c, snap)
}

// Reset handles POST /api/sessions/:id/reset.
func (sc *SessionController) Reset(c *gin.Context) {
	snap, err := sc.sessionService.Reset(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.SuccessResponse(c, snap)
}

// Delete handles DELETE /api/sessions/:id.
func (sc *SessionController) Delete(c *gin.Context) {
	if err := sc.sessionService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	response.SuccessResponse(c, gin.H{"message": "Session deleted"})
}

func fail(c *gin.Context, err error) {
	apiErr := response.FromError(err, errorStatuses...)
	if apiErr.Code == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	response.AbortWithError(c, apiErr)
}
