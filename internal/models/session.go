package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle status of a live session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionPaused SessionStatus = "paused"
	SessionEnded  SessionStatus = "ended"
)

// StreamInfo is the locator for a running stream. The backend never touches
// media bytes; these URLs point at the external media plane.
type StreamInfo struct {
	StreamKey   string `json:"stream_key"`
	IngestURL   string `json:"ingest_url"`
	PlaylistURL string `json:"playlist_url"`
}

// Session represents a live classroom session owned by a professor.
type Session struct {
	ID            uuid.UUID     `json:"id"`
	Title         string        `json:"title"`
	Description   string        `json:"description,omitempty"`
	ProfessorID   uuid.UUID     `json:"professor_id"`
	ProfessorName string        `json:"professor_name"`
	Status        SessionStatus `json:"status"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       *time.Time    `json:"end_time,omitempty"`
	Stream        *StreamInfo   `json:"stream,omitempty"`
}

// Ended reports whether the session has reached its terminal status.
func (s *Session) Ended() bool { return s.Status == SessionEnded }
