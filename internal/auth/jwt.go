package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/classlive/backend/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
)

// ContextPrincipal is the gin context key the JWT middleware stores the
// authenticated principal under.
const ContextPrincipal = "principal"

// Claims holds JWT claims: one principal per token, id, name and role
// together so no action needs a second claims lookup.
type Claims struct {
	UserID uuid.UUID   `json:"user_id"`
	Name   string      `json:"name"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Principal converts the claims to the shared principal value.
func (c *Claims) Principal() models.Principal {
	return models.Principal{ID: c.UserID, Name: c.Name, Role: c.Role}
}

// JWTService handles token generation and validation.
type JWTService struct {
	secret      []byte
	expireHours int
}

// NewJWTService creates a JWT service.
func NewJWTService(secret string, expireHours int) *JWTService {
	return &JWTService{
		secret:      []byte(secret),
		expireHours: expireHours,
	}
}

// Generate creates a new JWT for the user.
func (s *JWTService) Generate(userID uuid.UUID, name string, role models.Role) (string, error) {
	claims := Claims{
		UserID: userID,
		Name:   name,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(s.expireHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and validates a JWT, returning claims or error.
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authenticate validates a token and yields the verified principal, the
// boundary the realtime layer consumes.
func (s *JWTService) Authenticate(token string) (models.Principal, error) {
	claims, err := s.Validate(token)
	if err != nil {
		return models.Principal{}, models.ErrUnauthenticated
	}
	return claims.Principal(), nil
}
