package quizzes

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/classlive/backend/internal/live"
	"github.com/classlive/backend/internal/middleware"
	"github.com/classlive/backend/pkg/response"
)

// CreateRequest is the body for POST /sessions/:id/quizzes.
type CreateRequest struct {
	Question      string   `json:"question" binding:"required"`
	Options       []string `json:"options" binding:"required,min=2"`
	CorrectAnswer string   `json:"correct_answer" binding:"required"`
}

// RespondRequest is the body for POST /sessions/:id/quizzes/:quizId/responses.
type RespondRequest struct {
	Answer string `json:"answer" binding:"required"`
}

// Handler handles quiz HTTP endpoints.
type Handler struct {
	orch *live.Orchestrator
}

// NewHandler creates a quizzes handler.
func NewHandler(orch *live.Orchestrator) *Handler {
	return &Handler{orch: orch}
}

// Create handles POST /sessions/:id/quizzes (professor only).
func (h *Handler) Create(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	p := middleware.PrincipalFrom(c)

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	quiz, err := h.orch.CreateQuiz(p, sessionID, req.Question, req.Options, req.CorrectAnswer)
	if err != nil {
		response.Error(c, live.ErrorStatus(err), err.Error())
		return
	}
	response.Created(c, quiz)
}

// Respond handles POST /sessions/:id/quizzes/:quizId/responses (viewer only).
func (h *Handler) Respond(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	quizID, err := uuid.Parse(c.Param("quizId"))
	if err != nil {
		response.BadRequest(c, "invalid quiz id")
		return
	}
	p := middleware.PrincipalFrom(c)

	var req RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	resp, err := h.orch.RespondQuiz(p, sessionID, quizID, req.Answer)
	if err != nil {
		response.Error(c, live.ErrorStatus(err), err.Error())
		return
	}
	response.Created(c, resp)
}
