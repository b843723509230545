package streaming

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"

	"github.com/classlive/backend/internal/live"
	"github.com/classlive/backend/internal/middleware"
	"github.com/classlive/backend/internal/streams"
	"github.com/classlive/backend/pkg/response"
)

// OfferRequest carries an SDP offer to broadcast to the room.
type OfferRequest struct {
	Offer webrtc.SessionDescription `json:"offer" binding:"required"`
}

// AnswerRequest carries an SDP answer addressed to one peer.
type AnswerRequest struct {
	Answer webrtc.SessionDescription `json:"answer" binding:"required"`
	ToUser uuid.UUID                 `json:"to_user" binding:"required"`
}

// CandidateRequest carries a trickle ICE candidate addressed to one peer.
type CandidateRequest struct {
	Candidate webrtc.ICECandidateInit `json:"candidate" binding:"required"`
	ToUser    uuid.UUID               `json:"to_user" binding:"required"`
}

// Handler handles streaming HTTP endpoints.
type Handler struct {
	orch  *live.Orchestrator
	cache *streams.Cache
}

// NewHandler creates a streaming handler.
func NewHandler(orch *live.Orchestrator, cache *streams.Cache) *Handler {
	return &Handler{orch: orch, cache: cache}
}

// Get handles GET /sessions/:id/stream. The cached locator is checked first;
// the session snapshot is the fallback when the cache entry expired.
func (h *Handler) Get(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	s, err := h.orch.GetSession(sessionID)
	if err != nil {
		response.Error(c, live.ErrorStatus(err), "session not found")
		return
	}

	if url := h.cache.Locator(sessionID); url != "" {
		response.OK(c, gin.H{"session_id": sessionID, "playlist_url": url})
		return
	}
	if s.Stream != nil {
		response.OK(c, gin.H{"session_id": sessionID, "playlist_url": s.Stream.PlaylistURL})
		return
	}
	response.NotFound(c, "no active stream for this session")
}

// Start handles POST /sessions/:id/stream/start (professor only). It
// allocates the session's stream key and endpoints and announces them
// to the room.
func (h *Handler) Start(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	p := middleware.PrincipalFrom(c)

	info, err := h.orch.StartStream(p, sessionID)
	if err != nil {
		response.Error(c, live.ErrorStatus(err), err.Error())
		return
	}
	response.OK(c, info)
}

// Stop handles POST /sessions/:id/stream/stop (professor only).
func (h *Handler) Stop(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	p := middleware.PrincipalFrom(c)

	if err := h.orch.StopStream(p, sessionID); err != nil {
		response.Error(c, live.ErrorStatus(err), err.Error())
		return
	}
	response.OK(c, gin.H{"status": "stopped"})
}

// Offer handles POST /sessions/:id/stream/offer. Only the professor or
// the current hand holder may publish an offer.
func (h *Handler) Offer(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	p := middleware.PrincipalFrom(c)

	var req OfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	if err := h.orch.PublishOffer(p, sessionID, req.Offer); err != nil {
		response.Error(c, live.ErrorStatus(err), err.Error())
		return
	}
	response.OK(c, gin.H{"status": "sent"})
}

// Answer handles POST /sessions/:id/stream/answer.
func (h *Handler) Answer(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	p := middleware.PrincipalFrom(c)

	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	if err := h.orch.SendAnswer(p, sessionID, req.Answer, req.ToUser); err != nil {
		response.Error(c, live.ErrorStatus(err), err.Error())
		return
	}
	response.OK(c, gin.H{"status": "sent"})
}

// Candidate handles POST /sessions/:id/stream/candidate.
func (h *Handler) Candidate(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	p := middleware.PrincipalFrom(c)

	var req CandidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	if err := h.orch.SendIceCandidate(p, sessionID, req.Candidate, req.ToUser); err != nil {
		response.Error(c, live.ErrorStatus(err), err.Error())
		return
	}
	response.OK(c, gin.H{"status": "sent"})
}
