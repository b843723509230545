package models

import "errors"

// Domain errors shared across the session core. Transport layers map these to
// HTTP statuses or WebSocket error events with errors.Is; a failed
// precondition leaves no state change behind.
var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotFound         = errors.New("not found")
	ErrSessionNotActive = errors.New("session is not active")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidRole      = errors.New("invalid role for this action")
	ErrDuplicatePending = errors.New("a pending hand request already exists")
	ErrNotPending       = errors.New("hand request is not pending")
	ErrNotGranted       = errors.New("hand request is not granted")
)
