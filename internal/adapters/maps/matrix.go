package maps

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"branch-distance-service/internal/domain"
)

// Matrix element status the provider uses for a routable pair. Anything
// else ("NOT_FOUND", "ZERO_RESULTS") leaves the branch unresolved.
const statusOK = "OK"

type matrixResponse struct {
	Status string      `json:"status"`
	Rows   []matrixRow `json:"rows"`
}

type matrixRow struct {
	Elements []matrixElement `json:"elements"`
}

type matrixElement struct {
	Status   string `json:"status"`
	Distance struct {
		Value float64 `json:"value"`
	} `json:"distance"`
}

// The provider rejects addresses containing punctuation it cannot parse.
var addressCleaner = regexp.MustCompile(`[^a-zA-Z0-9_.]+`)

// originParam formats one origin for the matrix request: "lat,lng" when
// coordinates exist, otherwise the address tuple joined with "+".
func originParam(o domain.OriginLocation) string {
	if o.HasCoordinates() {
		return fmt.Sprintf("%v,%v", *o.Latitude, *o.Longitude)
	}

	address := addressCleaner.ReplaceAllString(o.Address1, "")
	return strings.Join([]string{address, o.City, o.State, o.Zip}, "+")
}

// fetchBatch issues one matrix call for up to maxBatchSize origins and one
// destination, and keys the per-origin results by branch number. Rows come
// back in request order, one per origin; only elements with an OK status
// become results.
func (p *MatrixProvider) fetchBatch(
	ctx context.Context,
	destinationZip string,
	batch []domain.OriginLocation,
) (map[string]float64, error) {
	if len(batch) == 0 {
		return map[string]float64{}, nil
	}

	originParams := make([]string, 0, len(batch))
	for _, o := range batch {
		originParams = append(originParams, originParam(o))
	}

	q := url.Values{}
	q.Set("region", p.region)
	q.Set("key", p.apiKey)
	q.Set("origins", strings.Join(originParams, "|"))
	q.Set("destinations", destinationZip)

	endpoint := fmt.Sprintf("%s/maps/api/distancematrix/json?%s", p.baseURL, q.Encode())

	resp, err := p.getWithRetry(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("matrix request: %w", err)
	}
	defer resp.Body.Close()

	var mr matrixResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return nil, fmt.Errorf("decode matrix response: %w", err)
	}

	if mr.Status != statusOK {
		return nil, fmt.Errorf("matrix response status %q", mr.Status)
	}
	if len(mr.Rows) != len(batch) {
		return nil, fmt.Errorf("matrix returned %d rows for %d origins", len(mr.Rows), len(batch))
	}

	out := make(map[string]float64, len(batch))
	for i, row := range mr.Rows {
		if len(row.Elements) == 0 {
			return nil, fmt.Errorf("matrix row %d has no elements", i)
		}

		element := row.Elements[0]
		if element.Status != statusOK {
			continue
		}

		out[batch[i].BranchNumber] = element.Distance.Value
	}

	return out, nil
}
