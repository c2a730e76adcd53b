package maps

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"branch-distance-service/internal/domain"
	"branch-distance-service/internal/platform/obs"
	"branch-distance-service/internal/ports"

	"golang.org/x/sync/errgroup"
)

// The provider rejects matrix requests above this many origins.
const maxBatchSize = 100

// MatrixProvider implements DistanceProvider against the mapping
// provider's distance matrix endpoint.
//
// It coordinates:
//   - Origin formatting (coordinates preferred over street address)
//   - Splitting origins into provider-sized batches
//   - Concurrent batch calls with retry and final-attempt alerting
//
// The provider is safe for concurrent use.
type MatrixProvider struct {
	session *http.Client
	apiKey  string
	baseURL string
	region  string
	backoff time.Duration
	alerts  ports.AlertSink
}

func NewMatrixProvider(apiKey, baseURL string, backoff time.Duration, alerts ports.AlertSink) (*MatrixProvider, error) {
	if apiKey == "" {
		return nil, errors.New("maps api key is empty")
	}
	if baseURL == "" {
		baseURL = "https://maps.googleapis.com"
	}
	if backoff <= 0 {
		backoff = time.Minute
	}

	return &MatrixProvider{
		session: &http.Client{Timeout: 30 * time.Second},
		apiKey:  apiKey,
		baseURL: baseURL,
		region:  "us",
		backoff: backoff,
		alerts:  alerts,
	}, nil
}

// GetDistances resolves distances from each origin to the destination zip.
// Origins are split into batches of at most 100 and the batches are issued
// concurrently; a batch that exhausts its retries marks only its own
// branches as Failed. Results are keyed by branch number, so batch order
// never matters.
func (p *MatrixProvider) GetDistances(
	ctx context.Context,
	destinationZip string,
	origins []domain.OriginLocation,
) (_ ports.MatrixResult, err error) {
	defer obs.Time(ctx, "maps.GetDistances")(&err)

	result := ports.MatrixResult{Resolved: map[string]float64{}}

	if destinationZip == "" {
		return result, errors.New("get distances: destination zip must not be empty")
	}
	if len(origins) == 0 {
		return result, nil
	}

	batches := splitBatches(origins, maxBatchSize)

	type batchOutcome struct {
		resolved map[string]float64
		err      error
	}
	outcomes := make([]batchOutcome, len(batches))

	var g errgroup.Group
	for i, batch := range batches {
		g.Go(func() error {
			resolved, err := p.fetchBatch(ctx, destinationZip, batch)
			outcomes[i] = batchOutcome{resolved: resolved, err: err}
			return nil
		})
	}
	// Goroutines write disjoint outcome slots; no error is ever returned.
	_ = g.Wait()

	for i, out := range outcomes {
		if out.err != nil {
			log.Printf("req_id=%s matrix batch %d/%d failed for zip=%s: %v",
				obs.RequestID(ctx), i+1, len(batches), destinationZip, out.err)
			for _, o := range batches[i] {
				result.Failed = append(result.Failed, o.BranchNumber)
			}
			continue
		}
		for branch, meters := range out.resolved {
			result.Resolved[branch] = meters
		}
	}

	return result, nil
}

func splitBatches(origins []domain.OriginLocation, size int) [][]domain.OriginLocation {
	batches := make([][]domain.OriginLocation, 0, (len(origins)+size-1)/size)
	for start := 0; start < len(origins); start += size {
		end := start + size
		if end > len(origins) {
			end = len(origins)
		}
		batches = append(batches, origins[start:end])
	}
	return batches
}
