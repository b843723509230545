// Package store is the durable record store behind the live session core.
// Writes are fire-and-forget: entities are queued to a background worker and
// upserted into PostgreSQL for history and analytics. The live core never
// reads back from here; a failed write is logged, never rolled back into
// in-memory state.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/classlive/backend/internal/models"
)

const (
	queueSize    = 1024
	writeTimeout = 5 * time.Second
)

type job struct {
	entity string
	exec   func(ctx context.Context) error
}

// Store persists durable copies of live session entities.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	jobs   chan job
}

// New creates a record store writing to the given pool. Run must be started
// for queued writes to drain.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	return &Store{
		pool:   pool,
		logger: logger,
		jobs:   make(chan job, queueSize),
	}
}

// Run drains the write queue until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.jobs:
			jctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			if err := j.exec(jctx); err != nil {
				s.logger.Warn("record store write failed",
					zap.String("entity", j.entity),
					zap.Error(err),
				)
			}
			cancel()
		}
	}
}

// enqueue never blocks the caller; when the queue is full the write is
// dropped and reported, keeping persistence off the critical path.
func (s *Store) enqueue(entity string, exec func(ctx context.Context) error) {
	select {
	case s.jobs <- job{entity: entity, exec: exec}:
	default:
		s.logger.Warn("record store queue full, write dropped", zap.String("entity", entity))
	}
}

// SaveSession upserts a session snapshot.
func (s *Store) SaveSession(sess *models.Session) {
	snap := *sess
	s.enqueue("session", func(ctx context.Context) error {
		const q = `INSERT INTO sessions (id, title, description, professor_id, status, start_time, end_time, stream_url)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				title = EXCLUDED.title,
				description = EXCLUDED.description,
				status = EXCLUDED.status,
				end_time = EXCLUDED.end_time,
				stream_url = EXCLUDED.stream_url`
		var streamURL *string
		if snap.Stream != nil {
			streamURL = &snap.Stream.PlaylistURL
		}
		_, err := s.pool.Exec(ctx, q,
			snap.ID, snap.Title, snap.Description, snap.ProfessorID,
			string(snap.Status), snap.StartTime, snap.EndTime, streamURL)
		return err
	})
}

// SaveComment upserts a comment (upsert covers the hide transition).
func (s *Store) SaveComment(c *models.Comment) {
	snap := *c
	s.enqueue("comment", func(ctx context.Context) error {
		const q = `INSERT INTO comments (id, session_id, user_id, content, created_at, is_hidden)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET is_hidden = EXCLUDED.is_hidden`
		_, err := s.pool.Exec(ctx, q,
			snap.ID, snap.SessionID, snap.UserID, snap.Content, snap.CreatedAt, snap.Hidden)
		return err
	})
}

// SaveHandRequest upserts a hand request at its current status.
func (s *Store) SaveHandRequest(h *models.HandRequest) {
	snap := *h
	s.enqueue("hand_request", func(ctx context.Context) error {
		const q = `INSERT INTO hand_requests (id, session_id, user_id, status, requested_at, granted_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				status = EXCLUDED.status,
				granted_at = EXCLUDED.granted_at`
		_, err := s.pool.Exec(ctx, q,
			snap.ID, snap.SessionID, snap.UserID, string(snap.Status), snap.RequestedAt, snap.GrantedAt)
		return err
	})
}

// SaveQuiz inserts a quiz with its options as JSON.
func (s *Store) SaveQuiz(q *models.Quiz) {
	snap := *q
	s.enqueue("quiz", func(ctx context.Context) error {
		options, err := json.Marshal(snap.Options)
		if err != nil {
			return err
		}
		const query = `INSERT INTO quizzes (id, session_id, question, options, correct_answer, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING`
		_, err = s.pool.Exec(ctx, query,
			snap.ID, snap.SessionID, snap.Question, options, snap.CorrectAnswer, snap.CreatedAt)
		return err
	})
}

// SaveQuizResponse inserts a quiz response.
func (s *Store) SaveQuizResponse(r *models.QuizResponse) {
	snap := *r
	s.enqueue("quiz_response", func(ctx context.Context) error {
		const q = `INSERT INTO quiz_responses (id, quiz_id, user_id, answer, correct, submitted_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING`
		_, err := s.pool.Exec(ctx, q,
			snap.ID, snap.QuizID, snap.UserID, snap.Answer, snap.Correct, snap.SubmittedAt)
		return err
	})
}
