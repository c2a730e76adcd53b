package ports

import (
	"context"

	"branch-distance-service/internal/domain"
)

// MatrixResult separates the three per-branch outcomes of a matrix lookup:
// a branch is in Resolved (provider returned a distance), in Failed (its
// batch exhausted retries), or in neither (provider answered but found no
// route). Callers can tell "no data" from "call failed" without inspecting
// errors.
type MatrixResult struct {
	Resolved map[string]float64
	Failed   []string
}

// Port: batched distance lookups against the mapping provider's matrix
// endpoint.
type DistanceProvider interface {
	// Resolve road distances from each origin to the destination zip.
	// Implementations split origins into provider-sized batches and may
	// issue them concurrently; a batch failure marks only its own
	// branches as Failed. The returned error covers invalid input, not
	// batch-level failures.
	GetDistances(ctx context.Context, destinationZip string, origins []domain.OriginLocation) (MatrixResult, error)
}
