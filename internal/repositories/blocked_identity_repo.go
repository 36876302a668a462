package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/database"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BlockedIdentityRepository stores long-term blocks in Postgres
type BlockedIdentityRepository struct {
	pool *pgxpool.Pool
}

// NewBlockedIdentityRepository creates a new BlockedIdentityRepository
func NewBlockedIdentityRepository(db *database.DB) *BlockedIdentityRepository {
	return &BlockedIdentityRepository{pool: db.Pool}
}

func scanBlockRow(row rowScanner) (*models.BlockedIdentityRecord, error) {
	var rec models.BlockedIdentityRecord
	if err := row.Scan(&rec.Identity, &rec.Reason, &rec.BlockedUntil, &rec.CreatedAt); err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &rec, nil
}

func scanBlockRows(rows pgx.Rows) ([]*models.BlockedIdentityRecord, error) {
	defer rows.Close()

	blocks := make([]*models.BlockedIdentityRecord, 0)
	for rows.Next() {
		rec, err := scanBlockRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan blocked identity: %w", err)
		}
		blocks = append(blocks, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating blocked identity rows: %w", database.MapPostgresError(err))
	}
	return blocks, nil
}

// Upsert inserts or replaces the block for rec.Identity. A repeated block
// overwrites reason, expiry and creation time.
func (r *BlockedIdentityRepository) Upsert(ctx context.Context, rec *models.BlockedIdentityRecord) (*models.BlockedIdentityRecord, error) {
	query := `
		INSERT INTO blocked_identities (identity, reason, blocked_until, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (identity) DO UPDATE SET
			reason        = EXCLUDED.reason,
			blocked_until = EXCLUDED.blocked_until,
			created_at    = EXCLUDED.created_at
		RETURNING identity, reason, blocked_until, created_at
	`

	result, err := scanBlockRow(r.pool.QueryRow(ctx, query, rec.Identity, rec.Reason, rec.BlockedUntil, rec.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert block: %w", err)
	}
	return result, nil
}

// Get returns the block row, live or not, or ErrNotFound
func (r *BlockedIdentityRepository) Get(ctx context.Context, identity models.Identity) (*models.BlockedIdentityRecord, error) {
	query := `
		SELECT identity, reason, blocked_until, created_at
		FROM blocked_identities
		WHERE identity = $1
	`

	rec, err := scanBlockRow(r.pool.QueryRow(ctx, query, identity))
	if err != nil {
		return nil, fmt.Errorf("failed to get block: %w", err)
	}
	return rec, nil
}

// Delete removes the block row; ErrNotFound if there was none
func (r *BlockedIdentityRepository) Delete(ctx context.Context, identity models.Identity) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM blocked_identities WHERE identity = $1`, identity)
	if err != nil {
		return fmt.Errorf("failed to delete block: %w", database.MapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ListLive returns blocks in force at now, newest first; limit <= 0 returns all
func (r *BlockedIdentityRepository) ListLive(ctx context.Context, now time.Time, limit int) ([]*models.BlockedIdentityRecord, error) {
	// LIMIT NULL is no limit
	var maxRows *int
	if limit > 0 {
		maxRows = &limit
	}

	query := `
		SELECT identity, reason, blocked_until, created_at
		FROM blocked_identities
		WHERE blocked_until IS NULL OR blocked_until > $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, now, maxRows)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocks: %w", database.MapPostgresError(err))
	}
	return scanBlockRows(rows)
}

// CountLive counts blocks in force at now
func (r *BlockedIdentityRepository) CountLive(ctx context.Context, now time.Time) (int64, error) {
	query := `
		SELECT COUNT(*) FROM blocked_identities
		WHERE blocked_until IS NULL OR blocked_until > $1
	`

	var count int64
	if err := r.pool.QueryRow(ctx, query, now).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count blocks: %w", database.MapPostgresError(err))
	}
	return count, nil
}

// DeleteExpired removes rows whose expiry is at or before now
func (r *BlockedIdentityRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM blocked_identities WHERE blocked_until <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired blocks: %w", database.MapPostgresError(err))
	}
	return result.RowsAffected(), nil
}
