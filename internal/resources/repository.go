package resources

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classlive/backend/internal/models"
)

// Repository handles resource persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a resources repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a resource row.
func (r *Repository) Create(ctx context.Context, res *models.Resource) error {
	const q = `INSERT INTO resources (id, session_id, file_name, file_type, object_key, uploaded_by, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, q,
		res.ID, res.SessionID, res.FileName, res.FileType, res.ObjectKey, res.UploadedBy, res.UploadedAt)
	return err
}

// GetByID returns a resource by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Resource, error) {
	const q = `SELECT id, session_id, file_name, file_type, object_key, uploaded_by, uploaded_at
		FROM resources WHERE id = $1`
	var res models.Resource
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&res.ID, &res.SessionID, &res.FileName, &res.FileType, &res.ObjectKey, &res.UploadedBy, &res.UploadedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ListBySession returns all resources attached to a session, newest first.
func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Resource, error) {
	const q = `SELECT id, session_id, file_name, file_type, object_key, uploaded_by, uploaded_at
		FROM resources WHERE session_id = $1 ORDER BY uploaded_at DESC`
	rows, err := r.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]models.Resource, 0)
	for rows.Next() {
		var res models.Resource
		if err := rows.Scan(&res.ID, &res.SessionID, &res.FileName, &res.FileType, &res.ObjectKey, &res.UploadedBy, &res.UploadedAt); err != nil {
			return nil, err
		}
		list = append(list, res)
	}
	return list, rows.Err()
}

// Delete removes a resource row.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM resources WHERE id = $1`, id)
	return err
}
