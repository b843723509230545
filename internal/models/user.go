package models

import (
	"time"

	"github.com/google/uuid"
)

// Role represents user role in the platform.
type Role string

const (
	RoleProfessor Role = "professor"
	RoleViewer    Role = "viewer"
)

// User represents a platform user.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// UserPublic is User without sensitive fields for API responses.
type UserPublic struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// ToPublic converts User to UserPublic.
func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// Principal is the authenticated identity attached to every inbound action.
// It is the single identity convention shared by the HTTP and WebSocket entry
// points; handlers never look claims up a second time.
type Principal struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Role Role      `json:"role"`
}

// IsProfessor reports whether the principal holds the professor role.
func (p Principal) IsProfessor() bool { return p.Role == RoleProfessor }

// Presides reports whether the principal is the owning professor of s.
func (p Principal) Presides(s *Session) bool { return s != nil && s.ProfessorID == p.ID }
