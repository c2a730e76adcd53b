package ports

import (
	"context"

	"branch-distance-service/internal/domain"
)

// Port: reads branch origin data from the distribution center table.
type OriginLookup interface {
	// Return the physical locations (coordinates or address) for the
	// given branches. Branches without a row are absent from the result.
	GetOrigins(ctx context.Context, branchNumbers []string) ([]domain.OriginLocation, error)

	// Return each branch's origin zip code for carrier lookups.
	GetOriginZips(ctx context.Context, branchNumbers []string) (map[string]string, error)
}
