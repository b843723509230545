// Package signaling relays WebRTC negotiation payloads between the publisher
// and viewers of a session. It authorizes senders and forwards; SDP and ICE
// payloads are never stored and never inspected beyond field presence.
package signaling

import (
	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/classlive/backend/internal/arbiter"
	"github.com/classlive/backend/internal/models"
	"github.com/classlive/backend/internal/registry"
)

// Sender delivers relay events, room-wide or addressed to one participant.
type Sender interface {
	BroadcastToSession(sessionID uuid.UUID, event string, payload interface{})
	SendToUser(userID uuid.UUID, event string, payload interface{})
}

// Relay brokers offer/answer/ICE between session participants.
type Relay struct {
	registry *registry.Registry
	arbiter  *arbiter.Arbiter
	sender   Sender
	logger   *zap.Logger
}

// NewRelay creates a signaling relay.
func NewRelay(reg *registry.Registry, arb *arbiter.Arbiter, sender Sender, logger *zap.Logger) *Relay {
	return &Relay{registry: reg, arbiter: arb, sender: sender, logger: logger}
}

// activeSession resolves the session and requires Active status.
func (r *Relay) activeSession(sessionID uuid.UUID) (*models.Session, error) {
	s, err := r.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if s.Status != models.SessionActive {
		return nil, models.ErrSessionNotActive
	}
	return s, nil
}

// PublishOffer broadcasts a publisher's SDP offer to the room. Only the
// session's professor or the current turn holder may publish.
func (r *Relay) PublishOffer(caller models.Principal, sessionID uuid.UUID, offer webrtc.SessionDescription) error {
	s, err := r.activeSession(sessionID)
	if err != nil {
		return err
	}
	if offer.SDP == "" || offer.Type != webrtc.SDPTypeOffer {
		return models.ErrInvalidInput
	}
	if !caller.Presides(s) {
		holder, ok := r.arbiter.CurrentHolder(sessionID)
		if !ok || holder != caller.ID {
			return models.ErrUnauthorized
		}
	}

	r.sender.BroadcastToSession(sessionID, "stream_offer", map[string]interface{}{
		"user_id":   caller.ID,
		"user_name": caller.Name,
		"sdp":       offer.SDP,
		"type":      offer.Type.String(),
	})
	r.logger.Debug("offer relayed",
		zap.String("session_id", sessionID.String()),
		zap.String("sender_id", caller.ID.String()),
	)
	return nil
}

// SendAnswer relays an SDP answer to one participant. Any participant of an
// Active session may answer.
func (r *Relay) SendAnswer(caller models.Principal, sessionID uuid.UUID, answer webrtc.SessionDescription, toUserID uuid.UUID) error {
	if _, err := r.activeSession(sessionID); err != nil {
		return err
	}
	if answer.SDP == "" || answer.Type != webrtc.SDPTypeAnswer || toUserID == uuid.Nil {
		return models.ErrInvalidInput
	}

	r.sender.SendToUser(toUserID, "stream_answer", map[string]interface{}{
		"user_id": caller.ID,
		"sdp":     answer.SDP,
		"type":    answer.Type.String(),
	})
	return nil
}

// SendIceCandidate relays an ICE candidate to one participant.
func (r *Relay) SendIceCandidate(caller models.Principal, sessionID uuid.UUID, candidate webrtc.ICECandidateInit, toUserID uuid.UUID) error {
	if _, err := r.activeSession(sessionID); err != nil {
		return err
	}
	if candidate.Candidate == "" || toUserID == uuid.Nil {
		return models.ErrInvalidInput
	}

	r.sender.SendToUser(toUserID, "ice_candidate", map[string]interface{}{
		"user_id":   caller.ID,
		"candidate": candidate,
	})
	return nil
}
