package database

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapPostgresError translates driver errors into model sentinels.
// Connection-class failures become ErrStorageUnavailable so callers can apply
// the configured fail-open/fail-closed policy without knowing the driver.
func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return models.ErrConflict
		case "23503", "23502": // foreign_key_violation, not_null_violation
			return models.ErrBadRequest
		}
		// Class 08: connection exception; 57P0x: admin shutdown / crash
		if strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P0") {
			return errors.Join(models.ErrStorageUnavailable, err)
		}
		return err
	}

	if isConnectionError(err) {
		return errors.Join(models.ErrStorageUnavailable, err)
	}

	return err
}

func isConnectionError(err error) bool {
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
