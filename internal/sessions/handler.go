package sessions

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/classlive/backend/internal/live"
	"github.com/classlive/backend/internal/middleware"
	"github.com/classlive/backend/internal/models"
	"github.com/classlive/backend/pkg/response"
)

// CreateRequest is the body for POST /sessions.
type CreateRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
}

// UpdateRequest is the body for PATCH /sessions/:id.
type UpdateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status" binding:"omitempty,oneof=active paused ended"`
}

// Handler handles session HTTP endpoints.
type Handler struct {
	orch *live.Orchestrator
}

// NewHandler creates a sessions handler.
func NewHandler(orch *live.Orchestrator) *Handler {
	return &Handler{orch: orch}
}

// Create handles POST /sessions (professor only).
func (h *Handler) Create(c *gin.Context) {
	p := middleware.PrincipalFrom(c)

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	s, err := h.orch.CreateSession(p, req.Title, req.Description)
	if err != nil {
		response.Error(c, live.ErrorStatus(err), err.Error())
		return
	}
	response.Created(c, s)
}

// ListActive handles GET /sessions.
func (h *Handler) ListActive(c *gin.Context) {
	response.OK(c, h.orch.ListActiveSessions())
}

// GetByID handles GET /sessions/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	s, err := h.orch.GetSession(id)
	if err != nil {
		response.Error(c, live.ErrorStatus(err), "session not found")
		return
	}
	response.OK(c, s)
}

// Update handles PATCH /sessions/:id (professor only).
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	p := middleware.PrincipalFrom(c)

	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	upd := live.SessionUpdate{Title: req.Title, Description: req.Description}
	if req.Status != nil {
		status := models.SessionStatus(*req.Status)
		upd.Status = &status
	}

	s, err := h.orch.UpdateSession(p, id, upd)
	if err != nil {
		response.Error(c, live.ErrorStatus(err), err.Error())
		return
	}
	response.OK(c, s)
}

// AudienceCounter reports how many clients are connected to a session room.
type AudienceCounter interface {
	AudienceCount(sessionID uuid.UUID) int
}

// Audience handles GET /sessions/:id/audience.
func (h *Handler) Audience(counter AudienceCounter) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.BadRequest(c, "invalid session id")
			return
		}
		if _, err := h.orch.GetSession(id); err != nil {
			response.Error(c, live.ErrorStatus(err), "session not found")
			return
		}
		response.OK(c, gin.H{"session_id": id, "audience_count": counter.AudienceCount(id)})
	}
}

// End handles POST /sessions/:id/end (professor only).
func (h *Handler) End(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	p := middleware.PrincipalFrom(c)

	s, err := h.orch.EndSession(p, id)
	if err != nil {
		response.Error(c, live.ErrorStatus(err), err.Error())
		return
	}
	response.OK(c, s)
}
