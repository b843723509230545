package models

import (
	"time"

	"github.com/google/uuid"
)

// Quiz is a professor-authored question broadcast to the session room.
// CorrectAnswer is never serialized to clients.
type Quiz struct {
	ID            uuid.UUID `json:"id"`
	SessionID     uuid.UUID `json:"session_id"`
	Question      string    `json:"question"`
	Options       []string  `json:"options"`
	CorrectAnswer string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

// QuizResponse is one participant's answer, relayed to the professor only.
type QuizResponse struct {
	ID          uuid.UUID `json:"id"`
	QuizID      uuid.UUID `json:"quiz_id"`
	SessionID   uuid.UUID `json:"session_id"`
	UserID      uuid.UUID `json:"user_id"`
	UserName    string    `json:"user_name"`
	Answer      string    `json:"answer"`
	Correct     bool      `json:"correct"`
	SubmittedAt time.Time `json:"submitted_at"`
}
