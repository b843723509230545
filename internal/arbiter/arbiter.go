// Package arbiter tracks hand-raise requests and enforces that at most one
// participant holds the speaking turn per session.
package arbiter

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classlive/backend/internal/models"
	"github.com/classlive/backend/internal/registry"
)

// requests is the turn state for one session. It is only touched inside the
// registry's per-session critical section, so session status checks and
// request transitions are serialized under one lock.
type requests struct {
	byID    map[uuid.UUID]*models.HandRequest
	order   []uuid.UUID
	granted uuid.UUID // id of the Granted request, uuid.Nil when none
}

// GrantResult reports the transitions of one grant action. Revoked is set
// when an earlier holder was superseded; both transitions commit inside the
// same critical section.
type GrantResult struct {
	Granted *models.HandRequest
	Revoked *models.HandRequest
}

// Arbiter is the per-session hand-raise state machine.
type Arbiter struct {
	registry *registry.Registry
	mu       sync.Mutex
	sessions map[uuid.UUID]*requests
	logger   *zap.Logger
}

// New creates a turn arbiter backed by the session registry.
func New(reg *registry.Registry, logger *zap.Logger) *Arbiter {
	return &Arbiter{
		registry: reg,
		sessions: make(map[uuid.UUID]*requests),
		logger:   logger,
	}
}

// forSession returns the request table for a session, creating it lazily.
// The arbiter mutex guards only the outer map; the table itself is mutated
// under the registry's session lock.
func (a *Arbiter) forSession(id uuid.UUID) *requests {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.sessions[id]
	if !ok {
		t = &requests{byID: make(map[uuid.UUID]*models.HandRequest)}
		a.sessions[id] = t
	}
	return t
}

// Raise creates a new Pending request for the participant.
// Professors cannot raise; a participant with a Pending request must wait for
// it to resolve before raising again.
func (a *Arbiter) Raise(sessionID uuid.UUID, participant models.Principal) (*models.HandRequest, error) {
	if participant.IsProfessor() {
		return nil, models.ErrInvalidRole
	}
	t := a.forSession(sessionID)
	var out *models.HandRequest
	err := a.registry.WithSession(sessionID, func(s *models.Session) error {
		if s.Status != models.SessionActive {
			return models.ErrSessionNotActive
		}
		for _, id := range t.order {
			req := t.byID[id]
			if req.UserID == participant.ID && req.Status == models.HandPending {
				return models.ErrDuplicatePending
			}
		}
		req := &models.HandRequest{
			ID:          uuid.New(),
			SessionID:   sessionID,
			UserID:      participant.ID,
			UserName:    participant.Name,
			Status:      models.HandPending,
			RequestedAt: time.Now().UTC(),
		}
		t.byID[req.ID] = req
		t.order = append(t.order, req.ID)
		c := *req
		out = &c
		return nil
	})
	if err != nil {
		return nil, err
	}
	a.logger.Debug("hand raised",
		zap.String("session_id", sessionID.String()),
		zap.String("user_id", participant.ID.String()),
	)
	return out, nil
}

// Grant moves a Pending request to Granted. Any currently Granted request in
// the session is revoked first; both transitions commit atomically and the
// superseded request is reported so callers can broadcast it.
func (a *Arbiter) Grant(sessionID uuid.UUID, caller models.Principal, requestID uuid.UUID) (*GrantResult, error) {
	t := a.forSession(sessionID)
	var res GrantResult
	err := a.registry.WithSession(sessionID, func(s *models.Session) error {
		if !caller.Presides(s) {
			return models.ErrUnauthorized
		}
		if s.Status != models.SessionActive {
			return models.ErrSessionNotActive
		}
		req, ok := t.byID[requestID]
		if !ok {
			return models.ErrNotFound
		}
		if req.Status != models.HandPending {
			return models.ErrNotPending
		}
		if t.granted != uuid.Nil {
			prev := t.byID[t.granted]
			prev.Status = models.HandRevoked
			c := *prev
			res.Revoked = &c
		}
		now := time.Now().UTC()
		req.Status = models.HandGranted
		req.GrantedAt = &now
		t.granted = req.ID
		c := *req
		res.Granted = &c
		return nil
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info("hand granted",
		zap.String("session_id", sessionID.String()),
		zap.String("request_id", requestID.String()),
		zap.Bool("superseded", res.Revoked != nil),
	)
	return &res, nil
}

// Revoke moves a Granted request to Revoked, its terminal state.
func (a *Arbiter) Revoke(sessionID uuid.UUID, caller models.Principal, requestID uuid.UUID) (*models.HandRequest, error) {
	t := a.forSession(sessionID)
	var out *models.HandRequest
	err := a.registry.WithSession(sessionID, func(s *models.Session) error {
		if !caller.Presides(s) {
			return models.ErrUnauthorized
		}
		if s.Status != models.SessionActive {
			return models.ErrSessionNotActive
		}
		req, ok := t.byID[requestID]
		if !ok {
			return models.ErrNotFound
		}
		if req.Status != models.HandGranted {
			return models.ErrNotGranted
		}
		req.Status = models.HandRevoked
		if t.granted == req.ID {
			t.granted = uuid.Nil
		}
		c := *req
		out = &c
		return nil
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info("hand revoked",
		zap.String("session_id", sessionID.String()),
		zap.String("request_id", requestID.String()),
	)
	return out, nil
}

// CurrentHolder returns the participant currently holding the turn, or false
// when no hand is granted.
func (a *Arbiter) CurrentHolder(sessionID uuid.UUID) (uuid.UUID, bool) {
	t := a.forSession(sessionID)
	var holder uuid.UUID
	err := a.registry.WithSession(sessionID, func(*models.Session) error {
		if t.granted != uuid.Nil {
			holder = t.byID[t.granted].UserID
		}
		return nil
	})
	if err != nil || holder == uuid.Nil {
		return uuid.Nil, false
	}
	return holder, true
}

// List returns all hand requests for a session in raise order.
func (a *Arbiter) List(sessionID uuid.UUID) ([]models.HandRequest, error) {
	t := a.forSession(sessionID)
	var out []models.HandRequest
	err := a.registry.WithSession(sessionID, func(*models.Session) error {
		out = make([]models.HandRequest, 0, len(t.order))
		for _, id := range t.order {
			out = append(out, *t.byID[id])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
