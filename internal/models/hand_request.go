package models

import (
	"time"

	"github.com/google/uuid"
)

// HandStatus is the lifecycle status of a hand-raise request.
// Pending may move to Granted or Revoked; Revoked is terminal. A participant
// who wants the turn again must raise a new request.
type HandStatus string

const (
	HandPending HandStatus = "pending"
	HandGranted HandStatus = "granted"
	HandRevoked HandStatus = "revoked"
)

// HandRequest is one viewer's request for the speaking turn in a session.
type HandRequest struct {
	ID          uuid.UUID  `json:"id"`
	SessionID   uuid.UUID  `json:"session_id"`
	UserID      uuid.UUID  `json:"user_id"`
	UserName    string     `json:"user_name"`
	Status      HandStatus `json:"status"`
	RequestedAt time.Time  `json:"requested_at"`
	GrantedAt   *time.Time `json:"granted_at,omitempty"`
}
