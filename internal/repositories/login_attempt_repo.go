package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/database"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LoginAttemptRepository stores the per-identity failure ledger in Postgres
type LoginAttemptRepository struct {
	pool *pgxpool.Pool
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{pool: db.Pool}
}

func scanLoginAttemptRow(row rowScanner) (*models.LoginAttemptRecord, error) {
	var rec models.LoginAttemptRecord
	if err := row.Scan(&rec.Identity, &rec.Attempts, &rec.LastAttemptAt, &rec.LockedUntil); err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &rec, nil
}

// RecordFailure increments the counter in one statement and, once the
// post-increment count reaches threshold, sets locked_until in that same
// statement. Concurrent failures for one identity serialize on the row lock.
func (r *LoginAttemptRepository) RecordFailure(ctx context.Context, identity models.Identity, now time.Time, threshold int, lockUntil time.Time) (*models.LoginAttemptRecord, error) {
	query := `
		INSERT INTO login_attempts (identity, attempts, last_attempt_at, locked_until)
		VALUES ($1, 1, $2, CASE WHEN 1 >= $3::int THEN $4::timestamptz ELSE NULL END)
		ON CONFLICT (identity) DO UPDATE SET
			attempts        = login_attempts.attempts + 1,
			last_attempt_at = EXCLUDED.last_attempt_at,
			locked_until    = CASE
				WHEN login_attempts.attempts + 1 >= $3::int THEN $4::timestamptz
				ELSE login_attempts.locked_until
			END
		RETURNING identity, attempts, last_attempt_at, locked_until
	`

	rec, err := scanLoginAttemptRow(r.pool.QueryRow(ctx, query, identity, now, threshold, lockUntil))
	if err != nil {
		return nil, fmt.Errorf("failed to record login failure: %w", err)
	}
	return rec, nil
}

// Get returns the ledger record or ErrNotFound
func (r *LoginAttemptRepository) Get(ctx context.Context, identity models.Identity) (*models.LoginAttemptRecord, error) {
	query := `
		SELECT identity, attempts, last_attempt_at, locked_until
		FROM login_attempts
		WHERE identity = $1
	`

	rec, err := scanLoginAttemptRow(r.pool.QueryRow(ctx, query, identity))
	if err != nil {
		return nil, fmt.Errorf("failed to get login attempts: %w", err)
	}
	return rec, nil
}

// Delete removes the record. Deleting an absent record is not an error.
func (r *LoginAttemptRepository) Delete(ctx context.Context, identity models.Identity) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM login_attempts WHERE identity = $1`, identity)
	if err != nil {
		return fmt.Errorf("failed to delete login attempts: %w", database.MapPostgresError(err))
	}
	return nil
}

// CountActiveSince counts identities with a failure at or after since
func (r *LoginAttemptRepository) CountActiveSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM login_attempts WHERE last_attempt_at >= $1`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count login attempts: %w", database.MapPostgresError(err))
	}
	return count, nil
}
