package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/database"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CSRFTokenRepository holds one CSRF token per session in Postgres
type CSRFTokenRepository struct {
	pool *pgxpool.Pool
}

// NewCSRFTokenRepository creates a new CSRFTokenRepository
func NewCSRFTokenRepository(db *database.DB) *CSRFTokenRepository {
	return &CSRFTokenRepository{pool: db.Pool}
}

// GetOrCreate stores candidate unless the session already has a token and
// returns whichever value is live. The no-op update makes RETURNING yield the
// existing row on conflict.
func (r *CSRFTokenRepository) GetOrCreate(ctx context.Context, sessionID, candidate string, now time.Time) (string, error) {
	query := `
		INSERT INTO csrf_tokens (session_id, token, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO UPDATE SET session_id = EXCLUDED.session_id
		RETURNING token
	`

	var token string
	if err := r.pool.QueryRow(ctx, query, sessionID, candidate, now).Scan(&token); err != nil {
		return "", fmt.Errorf("failed to store csrf token: %w", database.MapPostgresError(err))
	}
	return token, nil
}

// Get returns the session's token or ErrNotFound
func (r *CSRFTokenRepository) Get(ctx context.Context, sessionID string) (string, error) {
	var token string
	err := r.pool.QueryRow(ctx, `SELECT token FROM csrf_tokens WHERE session_id = $1`, sessionID).Scan(&token)
	if err != nil {
		return "", fmt.Errorf("failed to get csrf token: %w", database.MapPostgresError(err))
	}
	return token, nil
}

// Delete drops the session's token
func (r *CSRFTokenRepository) Delete(ctx context.Context, sessionID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM csrf_tokens WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to delete csrf token: %w", database.MapPostgresError(err))
	}
	return nil
}

// DeleteOlderThan drops tokens of abandoned sessions
func (r *CSRFTokenRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM csrf_tokens WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune csrf tokens: %w", database.MapPostgresError(err))
	}
	return result.RowsAffected(), nil
}
