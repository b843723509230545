package handraise

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/classlive/backend/internal/live"
	"github.com/classlive/backend/internal/middleware"
	"github.com/classlive/backend/pkg/response"
)

// Handler handles hand-raise HTTP endpoints.
type Handler struct {
	orch *live.Orchestrator
}

// NewHandler creates a hand-raise handler.
func NewHandler(orch *live.Orchestrator) *Handler {
	return &Handler{orch: orch}
}

// Raise handles POST /sessions/:id/hands (viewer only).
func (h *Handler) Raise(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	p := middleware.PrincipalFrom(c)

	req, err := h.orch.RaiseHand(p, sessionID)
	if err != nil {
		response.Error(c, live.ErrorStatus(err), err.Error())
		return
	}
	response.Created(c, req)
}

// List handles GET /sessions/:id/hands (professor only).
func (h *Handler) List(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	p := middleware.PrincipalFrom(c)

	list, err := h.orch.ListHandRequests(p, sessionID)
	if err != nil {
		response.Error(c, live.ErrorStatus(err), err.Error())
		return
	}
	response.OK(c, list)
}

// Grant handles PUT /sessions/:id/hands/:requestId/grant (professor only).
// Granting supersedes any previously granted hand.
func (h *Handler) Grant(c *gin.Context) {
	sessionID, requestID, ok := h.ids(c)
	if !ok {
		return
	}
	p := middleware.PrincipalFrom(c)

	if err := h.orch.GrantHand(p, sessionID, requestID); err != nil {
		response.Error(c, live.ErrorStatus(err), err.Error())
		return
	}
	response.OK(c, gin.H{"status": "granted"})
}

// Revoke handles PUT /sessions/:id/hands/:requestId/revoke (professor only).
func (h *Handler) Revoke(c *gin.Context) {
	sessionID, requestID, ok := h.ids(c)
	if !ok {
		return
	}
	p := middleware.PrincipalFrom(c)

	if err := h.orch.RevokeHand(p, sessionID, requestID); err != nil {
		response.Error(c, live.ErrorStatus(err), err.Error())
		return
	}
	response.OK(c, gin.H{"status": "revoked"})
}

func (h *Handler) ids(c *gin.Context) (sessionID, requestID uuid.UUID, ok bool) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return uuid.Nil, uuid.Nil, false
	}
	requestID, err = uuid.Parse(c.Param("requestId"))
	if err != nil {
		response.BadRequest(c, "invalid request id")
		return uuid.Nil, uuid.Nil, false
	}
	return sessionID, requestID, true
}
