package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/database"
	"github.com/jackc/pgx/v5/pgxpool"
)

// rowScanner is satisfied by both pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// SessionRevocationRepository records sessions ended before their timeout
type SessionRevocationRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRevocationRepository(db *database.DB) *SessionRevocationRepository {
	return &SessionRevocationRepository{pool: db.Pool}
}

// Revoke adds a session to the revocation list. Revoking twice is a no-op.
func (r *SessionRevocationRepository) Revoke(ctx context.Context, sessionID string, revokedAt, expiresAt time.Time) error {
	query := `
		INSERT INTO revoked_sessions (session_id, revoked_at, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO NOTHING
	`

	if _, err := r.pool.Exec(ctx, query, sessionID, revokedAt, expiresAt); err != nil {
		return fmt.Errorf("failed to revoke session: %w", database.MapPostgresError(err))
	}
	return nil
}

// IsRevoked checks if a session is in the revocation list
func (r *SessionRevocationRepository) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_sessions WHERE session_id = $1)`, sessionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check session revocation: %w", database.MapPostgresError(err))
	}
	return exists, nil
}

// DeleteExpired removes entries for sessions that would have timed out anyway
func (r *SessionRevocationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM revoked_sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired revocations: %w", database.MapPostgresError(err))
	}
	return result.RowsAffected(), nil
}
