// Package registry is the authoritative in-memory table of live sessions.
// All session state transitions go through it; the record store only keeps a
// durable copy and is never read back during a live session.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classlive/backend/internal/models"
)

// entry bundles a session with its room-scoped feed state. The entry mutex is
// the single per-session lock: session status, stream locator, comments and
// quizzes for one session are only mutated while it is held. Entries for
// different sessions never share a lock.
type entry struct {
	mu       sync.Mutex
	session  models.Session
	comments []models.Comment
	quizzes  map[uuid.UUID]*models.Quiz
}

// Registry holds all live sessions keyed by id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*entry
	logger   *zap.Logger
}

// New creates an empty session registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*entry),
		logger:   logger,
	}
}

// Create registers a new Active session owned by the professor.
func (r *Registry) Create(professor models.Principal, title, description string) *models.Session {
	s := models.Session{
		ID:            uuid.New(),
		Title:         title,
		Description:   description,
		ProfessorID:   professor.ID,
		ProfessorName: professor.Name,
		Status:        models.SessionActive,
		StartTime:     time.Now().UTC(),
	}
	r.mu.Lock()
	r.sessions[s.ID] = &entry{session: s, quizzes: make(map[uuid.UUID]*models.Quiz)}
	r.mu.Unlock()

	r.logger.Info("session created",
		zap.String("session_id", s.ID.String()),
		zap.String("professor_id", professor.ID.String()),
	)
	out := s
	return &out
}

func (r *Registry) entry(id uuid.UUID) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Get returns a snapshot of the session, or ErrNotFound. Callers must not
// hold the snapshot across actions; it reflects one point in time.
func (r *Registry) Get(id uuid.UUID) (*models.Session, error) {
	e := r.entry(id)
	if e == nil {
		return nil, models.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.session
	return &s, nil
}

// ListActive returns snapshots of all Active sessions, newest first.
func (r *Registry) ListActive() []models.Session {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	var out []models.Session
	for _, e := range entries {
		e.mu.Lock()
		if e.session.Status == models.SessionActive {
			out = append(out, e.session)
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out
}

// WithSession runs fn with exclusive access to the session's mutable state.
// It is the serialization point shared by every component that mutates
// per-session state: only one action per session is in its critical section
// at a time. fn receives the live session record; returning an error leaves
// whatever fn did uncommitted only if fn itself mutated nothing.
func (r *Registry) WithSession(id uuid.UUID, fn func(s *models.Session) error) error {
	e := r.entry(id)
	if e == nil {
		return models.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(&e.session)
}

// SetStatus transitions the session status. Ended is terminal: any further
// transition fails with ErrSessionNotActive rather than silently succeeding.
func (r *Registry) SetStatus(id uuid.UUID, status models.SessionStatus) (*models.Session, error) {
	var snap models.Session
	err := r.WithSession(id, func(s *models.Session) error {
		if s.Ended() {
			return models.ErrSessionNotActive
		}
		s.Status = status
		if status == models.SessionEnded {
			now := time.Now().UTC()
			s.EndTime = &now
			s.Stream = nil
		}
		snap = *s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// SetStream sets or clears the session's stream locator. Locators only exist
// on Active sessions.
func (r *Registry) SetStream(id uuid.UUID, stream *models.StreamInfo) (*models.Session, error) {
	var snap models.Session
	err := r.WithSession(id, func(s *models.Session) error {
		if s.Status != models.SessionActive {
			return models.ErrSessionNotActive
		}
		s.Stream = stream
		snap = *s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// AddComment appends a comment to the session feed under the session lock,
// preserving creation order for the listing query.
func (r *Registry) AddComment(sessionID uuid.UUID, author models.Principal, content string) (*models.Comment, error) {
	e := r.entry(sessionID)
	if e == nil {
		return nil, models.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.Status != models.SessionActive {
		return nil, models.ErrSessionNotActive
	}
	c := models.Comment{
		ID:        uuid.New(),
		SessionID: sessionID,
		UserID:    author.ID,
		UserName:  author.Name,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	e.comments = append(e.comments, c)
	out := c
	return &out, nil
}

// Comments returns the session feed in creation order, hidden ones included
// with the flag set so callers can exclude or badge them.
func (r *Registry) Comments(sessionID uuid.UUID) ([]models.Comment, error) {
	e := r.entry(sessionID)
	if e == nil {
		return nil, models.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.Comment, len(e.comments))
	copy(out, e.comments)
	return out, nil
}

// HideComment flags a comment as hidden. The comment is kept, never deleted.
func (r *Registry) HideComment(sessionID, commentID uuid.UUID) (*models.Comment, error) {
	e := r.entry(sessionID)
	if e == nil {
		return nil, models.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.comments {
		if e.comments[i].ID == commentID {
			e.comments[i].Hidden = true
			out := e.comments[i]
			return &out, nil
		}
	}
	return nil, models.ErrNotFound
}

// AddQuiz registers a quiz on the session.
func (r *Registry) AddQuiz(sessionID uuid.UUID, question string, options []string, correctAnswer string) (*models.Quiz, error) {
	e := r.entry(sessionID)
	if e == nil {
		return nil, models.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.Status != models.SessionActive {
		return nil, models.ErrSessionNotActive
	}
	q := models.Quiz{
		ID:            uuid.New(),
		SessionID:     sessionID,
		Question:      question,
		Options:       append([]string(nil), options...),
		CorrectAnswer: correctAnswer,
		CreatedAt:     time.Now().UTC(),
	}
	e.quizzes[q.ID] = &q
	out := q
	return &out, nil
}

// GetQuiz returns a quiz belonging to the session, or ErrNotFound.
func (r *Registry) GetQuiz(sessionID, quizID uuid.UUID) (*models.Quiz, error) {
	e := r.entry(sessionID)
	if e == nil {
		return nil, models.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	q, ok := e.quizzes[quizID]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := *q
	return &out, nil
}
