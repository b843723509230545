package models

import (
	"time"

	"github.com/google/uuid"
)

// Resource is lecture material attached to a session, stored in S3 and
// served through presigned URLs.
type Resource struct {
	ID         uuid.UUID `json:"id"`
	SessionID  uuid.UUID `json:"session_id"`
	FileName   string    `json:"file_name"`
	FileType   string    `json:"file_type"`
	ObjectKey  string    `json:"-"`
	UploadedBy uuid.UUID `json:"uploaded_by"`
	UploadedAt time.Time `json:"uploaded_at"`
}
