// Package live is the session orchestrator: the single entry point for every
// externally triggered action, shared by the HTTP handlers and the WebSocket
// event loop. Each action validates preconditions, applies the state change
// through the owning component, hands the new entity to the record store and
// emits the resulting room events.
package live

import (
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/classlive/backend/internal/arbiter"
	"github.com/classlive/backend/internal/models"
	"github.com/classlive/backend/internal/registry"
	"github.com/classlive/backend/internal/signaling"
)

// Broadcaster fans events out to a session room or to one participant.
type Broadcaster interface {
	BroadcastToSession(sessionID uuid.UUID, event string, payload interface{})
	SendToUser(userID uuid.UUID, event string, payload interface{})
}

// Recorder persists durable copies of entities, fire-and-forget. In-memory
// transitions are committed before and independent of these calls; failures
// are logged by the implementation and never surface here.
type Recorder interface {
	SaveSession(s *models.Session)
	SaveComment(c *models.Comment)
	SaveHandRequest(h *models.HandRequest)
	SaveQuiz(q *models.Quiz)
	SaveQuizResponse(qr *models.QuizResponse)
}

// StreamCache keeps the current stream locator of a session in shared cache
// so edge players can resolve it without hitting this process.
type StreamCache interface {
	CacheLocator(sessionID uuid.UUID, playlistURL string) error
	DropLocator(sessionID uuid.UUID) error
}

// StreamEndpoints builds locators for a session's stream on the external
// media plane.
type StreamEndpoints struct {
	IngestBaseURL   string
	PlaylistBaseURL string
}

// Locator returns the stream locator for a session.
func (e StreamEndpoints) Locator(sessionID uuid.UUID) *models.StreamInfo {
	key := "live/session_" + sessionID.String()
	return &models.StreamInfo{
		StreamKey:   key,
		IngestURL:   e.IngestBaseURL,
		PlaylistURL: e.PlaylistBaseURL + "/" + key + ".m3u8",
	}
}

// Orchestrator ties the session registry, turn arbiter, broadcaster and
// signaling relay together behind one facade.
type Orchestrator struct {
	registry  *registry.Registry
	arbiter   *arbiter.Arbiter
	relay     *signaling.Relay
	hub       Broadcaster
	recorder  Recorder
	cache     StreamCache
	endpoints StreamEndpoints
	logger    *zap.Logger
}

// New creates the orchestrator.
func New(
	reg *registry.Registry,
	arb *arbiter.Arbiter,
	relay *signaling.Relay,
	hub Broadcaster,
	recorder Recorder,
	cache StreamCache,
	endpoints StreamEndpoints,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		registry:  reg,
		arbiter:   arb,
		relay:     relay,
		hub:       hub,
		recorder:  recorder,
		cache:     cache,
		endpoints: endpoints,
		logger:    logger,
	}
}

// CreateSession opens a new Active session owned by the calling professor.
func (o *Orchestrator) CreateSession(p models.Principal, title, description string) (*models.Session, error) {
	if !p.IsProfessor() {
		return nil, models.ErrUnauthorized
	}
	if title == "" {
		return nil, models.ErrInvalidInput
	}
	s := o.registry.Create(p, title, description)
	o.recorder.SaveSession(s)
	return s, nil
}

// GetSession returns a snapshot of one session.
func (o *Orchestrator) GetSession(id uuid.UUID) (*models.Session, error) {
	return o.registry.Get(id)
}

// ListActiveSessions returns all Active sessions.
func (o *Orchestrator) ListActiveSessions() []models.Session {
	return o.registry.ListActive()
}

// SessionUpdate carries the optional fields of an update action.
type SessionUpdate struct {
	Title       *string
	Description *string
	Status      *models.SessionStatus
}

// UpdateSession updates title, description or status. Professor only.
// A status change to Ended goes through the full end-session path, events
// included.
func (o *Orchestrator) UpdateSession(p models.Principal, id uuid.UUID, upd SessionUpdate) (*models.Session, error) {
	if upd.Status != nil {
		switch *upd.Status {
		case models.SessionActive, models.SessionPaused, models.SessionEnded:
		default:
			return nil, models.ErrInvalidInput
		}
	}
	var snap models.Session
	err := o.registry.WithSession(id, func(s *models.Session) error {
		if !p.Presides(s) {
			return models.ErrUnauthorized
		}
		if s.Ended() {
			return models.ErrSessionNotActive
		}
		if upd.Title != nil {
			if *upd.Title == "" {
				return models.ErrInvalidInput
			}
			s.Title = *upd.Title
		}
		if upd.Description != nil {
			s.Description = *upd.Description
		}
		if upd.Status != nil && *upd.Status != models.SessionEnded {
			s.Status = *upd.Status
		}
		snap = *s
		return nil
	})
	if err != nil {
		return nil, err
	}
	if upd.Status != nil && *upd.Status == models.SessionEnded {
		return o.EndSession(p, id)
	}
	o.recorder.SaveSession(&snap)
	return &snap, nil
}

// EndSession moves the session to its terminal status, stops the stream and
// notifies the room. Clients are expected to leave on session_ended; the room
// itself stays populated until they do.
func (o *Orchestrator) EndSession(p models.Principal, id uuid.UUID) (*models.Session, error) {
	var snap models.Session
	err := o.registry.WithSession(id, func(s *models.Session) error {
		if !p.Presides(s) {
			return models.ErrUnauthorized
		}
		if s.Ended() {
			return models.ErrSessionNotActive
		}
		now := time.Now().UTC()
		s.Status = models.SessionEnded
		s.EndTime = &now
		s.Stream = nil
		snap = *s
		return nil
	})
	if err != nil {
		return nil, err
	}
	o.recorder.SaveSession(&snap)
	if err := o.cache.DropLocator(id); err != nil {
		o.logger.Warn("drop stream locator", zap.String("session_id", id.String()), zap.Error(err))
	}

	o.hub.BroadcastToSession(id, "session_ended", map[string]interface{}{
		"session_id": snap.ID,
		"title":      snap.Title,
	})
	o.hub.BroadcastToSession(id, "stream_stop", map[string]interface{}{
		"session_id": snap.ID,
	})
	o.logger.Info("session ended", zap.String("session_id", id.String()))
	return &snap, nil
}

// PostComment appends a comment to an Active session's feed and broadcasts it.
func (o *Orchestrator) PostComment(p models.Principal, sessionID uuid.UUID, content string) (*models.Comment, error) {
	if content == "" {
		return nil, models.ErrInvalidInput
	}
	c, err := o.registry.AddComment(sessionID, p, content)
	if err != nil {
		return nil, err
	}
	o.recorder.SaveComment(c)
	o.hub.BroadcastToSession(sessionID, "new_comment", map[string]interface{}{
		"id":         c.ID,
		"content":    c.Content,
		"user_name":  c.UserName,
		"created_at": c.CreatedAt,
	})
	return c, nil
}

// ListComments returns the session feed in creation order. Hidden comments
// are included with the flag set; callers decide whether to badge or drop
// them.
func (o *Orchestrator) ListComments(sessionID uuid.UUID) ([]models.Comment, error) {
	return o.registry.Comments(sessionID)
}

// HideComment flags a comment. Professor only; the comment stays stored.
func (o *Orchestrator) HideComment(p models.Principal, sessionID, commentID uuid.UUID) (*models.Comment, error) {
	s, err := o.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if !p.Presides(s) {
		return nil, models.ErrUnauthorized
	}
	c, err := o.registry.HideComment(sessionID, commentID)
	if err != nil {
		return nil, err
	}
	o.recorder.SaveComment(c)
	return c, nil
}

// RaiseHand creates a Pending hand request and notifies the room.
func (o *Orchestrator) RaiseHand(p models.Principal, sessionID uuid.UUID) (*models.HandRequest, error) {
	req, err := o.arbiter.Raise(sessionID, p)
	if err != nil {
		return nil, err
	}
	o.recorder.SaveHandRequest(req)
	o.hub.BroadcastToSession(sessionID, "new_hand_request", map[string]interface{}{
		"id":           req.ID,
		"user_id":      req.UserID,
		"user_name":    req.UserName,
		"requested_at": req.RequestedAt,
	})
	return req, nil
}

// ListHandRequests returns all hand requests of a session. Professor only.
func (o *Orchestrator) ListHandRequests(p models.Principal, sessionID uuid.UUID) ([]models.HandRequest, error) {
	s, err := o.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if !p.Presides(s) {
		return nil, models.ErrUnauthorized
	}
	return o.arbiter.List(sessionID)
}

// GrantHand gives the turn to a pending request. When an earlier holder is
// superseded, the room sees its hand_revoked before the new hand_granted;
// both transitions committed as one arbiter action.
func (o *Orchestrator) GrantHand(p models.Principal, sessionID, requestID uuid.UUID) error {
	res, err := o.arbiter.Grant(sessionID, p, requestID)
	if err != nil {
		return err
	}
	if res.Revoked != nil {
		o.recorder.SaveHandRequest(res.Revoked)
		o.hub.BroadcastToSession(sessionID, "hand_revoked", handPayload(res.Revoked))
	}
	o.recorder.SaveHandRequest(res.Granted)
	o.hub.BroadcastToSession(sessionID, "hand_granted", handPayload(res.Granted))
	o.hub.BroadcastToSession(sessionID, "stream_switch", map[string]interface{}{
		"user_id": res.Granted.UserID,
		"reason":  "switching to viewer stream",
	})
	return nil
}

// RevokeHand takes the turn back and reverts the room to the professor's
// stream.
func (o *Orchestrator) RevokeHand(p models.Principal, sessionID, requestID uuid.UUID) error {
	req, err := o.arbiter.Revoke(sessionID, p, requestID)
	if err != nil {
		return err
	}
	o.recorder.SaveHandRequest(req)
	o.hub.BroadcastToSession(sessionID, "hand_revoked", handPayload(req))
	o.hub.BroadcastToSession(sessionID, "stream_switch", map[string]interface{}{
		"user_id": p.ID,
		"reason":  "switching back to professor stream",
	})
	return nil
}

func handPayload(req *models.HandRequest) map[string]interface{} {
	return map[string]interface{}{
		"request_id": req.ID,
		"user_id":    req.UserID,
		"user_name":  req.UserName,
	}
}

// StartStream attaches a stream locator to an Active session, caches it and
// announces it to the room. Professor only.
func (o *Orchestrator) StartStream(p models.Principal, sessionID uuid.UUID) (*models.StreamInfo, error) {
	s, err := o.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if !p.Presides(s) {
		return nil, models.ErrUnauthorized
	}
	stream := o.endpoints.Locator(sessionID)
	snap, err := o.registry.SetStream(sessionID, stream)
	if err != nil {
		return nil, err
	}
	o.recorder.SaveSession(snap)
	if err := o.cache.CacheLocator(sessionID, stream.PlaylistURL); err != nil {
		o.logger.Warn("cache stream locator", zap.String("session_id", sessionID.String()), zap.Error(err))
	}

	o.hub.BroadcastToSession(sessionID, "stream_started", map[string]interface{}{
		"session_id":   sessionID,
		"ingest_url":   stream.IngestURL,
		"playlist_url": stream.PlaylistURL,
	})
	o.logger.Info("stream started", zap.String("session_id", sessionID.String()))
	return stream, nil
}

// StopStream clears the stream locator and tells the room. Professor only.
func (o *Orchestrator) StopStream(p models.Principal, sessionID uuid.UUID) error {
	s, err := o.registry.Get(sessionID)
	if err != nil {
		return err
	}
	if !p.Presides(s) {
		return models.ErrUnauthorized
	}
	snap, err := o.registry.SetStream(sessionID, nil)
	if err != nil {
		return err
	}
	o.recorder.SaveSession(snap)
	if err := o.cache.DropLocator(sessionID); err != nil {
		o.logger.Warn("drop stream locator", zap.String("session_id", sessionID.String()), zap.Error(err))
	}

	o.hub.BroadcastToSession(sessionID, "stream_stopped", map[string]interface{}{
		"session_id": sessionID,
	})
	o.logger.Info("stream stopped", zap.String("session_id", sessionID.String()))
	return nil
}

// CreateQuiz broadcasts a new quiz to the room. Professor only, Active
// session only. The correct answer never leaves the backend.
func (o *Orchestrator) CreateQuiz(p models.Principal, sessionID uuid.UUID, question string, options []string, correctAnswer string) (*models.Quiz, error) {
	s, err := o.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if !p.Presides(s) {
		return nil, models.ErrUnauthorized
	}
	if question == "" || len(options) < 2 || correctAnswer == "" {
		return nil, models.ErrInvalidInput
	}
	q, err := o.registry.AddQuiz(sessionID, question, options, correctAnswer)
	if err != nil {
		return nil, err
	}
	o.recorder.SaveQuiz(q)
	o.hub.BroadcastToSession(sessionID, "new_quiz", map[string]interface{}{
		"quiz_id":    q.ID,
		"session_id": q.SessionID,
		"question":   q.Question,
		"options":    q.Options,
		"created_at": q.CreatedAt,
	})
	return q, nil
}

// RespondQuiz records a participant's answer and relays it to the professor
// only, keeping responses private between viewers.
func (o *Orchestrator) RespondQuiz(p models.Principal, sessionID, quizID uuid.UUID, answer string) (*models.QuizResponse, error) {
	if answer == "" {
		return nil, models.ErrInvalidInput
	}
	s, err := o.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if s.Status != models.SessionActive {
		return nil, models.ErrSessionNotActive
	}
	q, err := o.registry.GetQuiz(sessionID, quizID)
	if err != nil {
		return nil, err
	}
	resp := &models.QuizResponse{
		ID:          uuid.New(),
		QuizID:      q.ID,
		SessionID:   sessionID,
		UserID:      p.ID,
		UserName:    p.Name,
		Answer:      answer,
		Correct:     answer == q.CorrectAnswer,
		SubmittedAt: time.Now().UTC(),
	}
	o.recorder.SaveQuizResponse(resp)
	o.hub.SendToUser(s.ProfessorID, "quiz_response", map[string]interface{}{
		"quiz_id":      resp.QuizID,
		"user_id":      resp.UserID,
		"user_name":    resp.UserName,
		"answer":       resp.Answer,
		"correct":      resp.Correct,
		"submitted_at": resp.SubmittedAt,
	})
	return resp, nil
}

// PublishOffer relays a publisher SDP offer through the signaling relay.
func (o *Orchestrator) PublishOffer(p models.Principal, sessionID uuid.UUID, offer webrtc.SessionDescription) error {
	return o.relay.PublishOffer(p, sessionID, offer)
}

// SendAnswer relays an SDP answer to one participant.
func (o *Orchestrator) SendAnswer(p models.Principal, sessionID uuid.UUID, answer webrtc.SessionDescription, toUserID uuid.UUID) error {
	return o.relay.SendAnswer(p, sessionID, answer, toUserID)
}

// SendIceCandidate relays an ICE candidate to one participant.
func (o *Orchestrator) SendIceCandidate(p models.Principal, sessionID uuid.UUID, candidate webrtc.ICECandidateInit, toUserID uuid.UUID) error {
	return o.relay.SendIceCandidate(p, sessionID, candidate, toUserID)
}
