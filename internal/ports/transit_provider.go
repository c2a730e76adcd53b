package ports

import (
	"context"

	"branch-distance-service/internal/domain"
)

// Port: single-pair time-in-transit lookups against the carrier service.
type TransitProvider interface {
	// Return business days in transit for one origin/destination pair.
	// A (nil, nil) return means the carrier had no answer for the pair,
	// which is distinct from a failed call.
	TimeInTransit(ctx context.Context, originZip, destinationZip string) (*domain.TransitResult, error)
}
