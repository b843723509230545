package comments

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/classlive/backend/internal/live"
	"github.com/classlive/backend/internal/middleware"
	"github.com/classlive/backend/pkg/response"
)

// PostRequest is the body for POST /sessions/:id/comments.
type PostRequest struct {
	Content string `json:"content" binding:"required"`
}

// Handler handles comment HTTP endpoints.
type Handler struct {
	orch *live.Orchestrator
}

// NewHandler creates a comments handler.
func NewHandler(orch *live.Orchestrator) *Handler {
	return &Handler{orch: orch}
}

// Post handles POST /sessions/:id/comments.
func (h *Handler) Post(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	p := middleware.PrincipalFrom(c)

	var req PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	comment, err := h.orch.PostComment(p, sessionID, req.Content)
	if err != nil {
		response.Error(c, live.ErrorStatus(err), err.Error())
		return
	}
	response.Created(c, comment)
}

// List handles GET /sessions/:id/comments. Hidden comments come back flagged.
func (h *Handler) List(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	list, err := h.orch.ListComments(sessionID)
	if err != nil {
		response.Error(c, live.ErrorStatus(err), "session not found")
		return
	}
	response.OK(c, list)
}

// Hide handles PUT /sessions/:id/comments/:commentId/hide (professor only).
func (h *Handler) Hide(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	commentID, err := uuid.Parse(c.Param("commentId"))
	if err != nil {
		response.BadRequest(c, "invalid comment id")
		return
	}
	p := middleware.PrincipalFrom(c)

	comment, err := h.orch.HideComment(p, sessionID, commentID)
	if err != nil {
		response.Error(c, live.ErrorStatus(err), err.Error())
		return
	}
	response.OK(c, comment)
}
