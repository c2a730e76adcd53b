package ports

import "context"

// Port: operational alert channel for failures that exhaust their retries.
// Implementations must be best-effort; alerting must never fail the
// operation that triggered it.
type AlertSink interface {
	Alert(ctx context.Context, title, message string)
}
