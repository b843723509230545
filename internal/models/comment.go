package models

import (
	"time"

	"github.com/google/uuid"
)

// Comment is a participant comment in a session. Hidden comments stay stored
// and appear flagged in feeds; only the owning professor may hide.
type Comment struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	UserID    uuid.UUID `json:"user_id"`
	UserName  string    `json:"user_name"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Hidden    bool      `json:"is_hidden"`
}
