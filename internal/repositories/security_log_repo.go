package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/database"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

// SecurityLogRepository is the append-only security event store in Postgres
type SecurityLogRepository struct {
	pool *pgxpool.Pool
}

// NewSecurityLogRepository creates a new SecurityLogRepository
func NewSecurityLogRepository(db *database.DB) *SecurityLogRepository {
	return &SecurityLogRepository{pool: db.Pool}
}

func scanSecurityEventRow(row rowScanner) (*models.SecurityEvent, error) {
	var event models.SecurityEvent
	err := row.Scan(
		&event.ID, &event.OccurredAt, &event.Identity,
		&event.UserAgent, &event.Action, &event.Details,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &event, nil
}

func scanSecurityEventRows(rows pgx.Rows) ([]*models.SecurityEvent, error) {
	defer rows.Close()

	events := make([]*models.SecurityEvent, 0)
	for rows.Next() {
		event, err := scanSecurityEventRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating security event rows: %w", database.MapPostgresError(err))
	}
	return events, nil
}

// Append stores one event and fills in its ID
func (r *SecurityLogRepository) Append(ctx context.Context, event *models.SecurityEvent) error {
	query := `
		INSERT INTO security_logs (occurred_at, identity, user_agent, action, details)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := r.pool.QueryRow(ctx, query,
		event.OccurredAt, event.Identity, event.UserAgent, event.Action, event.Details,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to append security event: %w", database.MapPostgresError(err))
	}
	return nil
}

// Count returns the total number of stored events
func (r *SecurityLogRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM security_logs`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count security events: %w", database.MapPostgresError(err))
	}
	return count, nil
}

// Recent returns up to limit events, newest first; limit <= 0 returns none
func (r *SecurityLogRepository) Recent(ctx context.Context, limit int) ([]*models.SecurityEvent, error) {
	if limit <= 0 {
		return []*models.SecurityEvent{}, nil
	}

	query := `
		SELECT id, occurred_at, identity, user_agent, action, details
		FROM security_logs
		ORDER BY occurred_at DESC, id DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", database.MapPostgresError(err))
	}
	return scanSecurityEventRows(rows)
}

// CountByActionsSince counts events of the given actions at or after since
func (r *SecurityLogRepository) CountByActionsSince(ctx context.Context, actions []models.Action, since time.Time) (int64, error) {
	if len(actions) == 0 {
		return 0, nil
	}

	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = string(a)
	}

	query := `
		SELECT COUNT(*) FROM security_logs
		WHERE action = ANY($1) AND occurred_at >= $2
	`

	var count int64
	if err := r.pool.QueryRow(ctx, query, pq.Array(names), since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count security events: %w", database.MapPostgresError(err))
	}
	return count, nil
}

// DeleteOlderThan prunes events that occurred before cutoff
func (r *SecurityLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM security_logs WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune security events: %w", database.MapPostgresError(err))
	}
	return result.RowsAffected(), nil
}
