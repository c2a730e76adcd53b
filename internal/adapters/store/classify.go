package store

import (
	"context"
	"errors"
	"net"

	"branch-distance-service/internal/ports"

	"github.com/jackc/pgx/v5/pgconn"
)

// classify wraps store errors that are worth retrying (timeouts, dropped
// connections, serialization conflicts) as transient; everything else,
// schema violations included, passes through as permanent.
func classify(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &ports.TransientError{Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &ports.TransientError{Err: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exceptions. 40001/40P01: serialization
		// failure and deadlock. 57P03: server still starting up.
		switch {
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08":
			return &ports.TransientError{Err: err}
		case pgErr.Code == "40001", pgErr.Code == "40P01", pgErr.Code == "57P03":
			return &ports.TransientError{Err: err}
		}
	}

	return err
}
