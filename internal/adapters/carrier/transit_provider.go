package carrier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"branch-distance-service/internal/domain"
)

// TimeInTransitProvider implements TransitProvider against the carrier's
// time-in-transit endpoint, one (origin zip, destination zip) pair per
// call. Safe for concurrent use; callers fan out per branch.
type TimeInTransitProvider struct {
	session *http.Client
	baseURL string
	apiKey  string
}

func NewTimeInTransitProvider(baseURL, apiKey string) (*TimeInTransitProvider, error) {
	if baseURL == "" {
		return nil, errors.New("carrier base url is empty")
	}

	return &TimeInTransitProvider{
		session: &http.Client{Timeout: 30 * time.Second},
		baseURL: baseURL,
		apiKey:  apiKey,
	}, nil
}

type timeInTransitResponse struct {
	BusinessTransitDays int  `json:"businessTransitDays"`
	SaturdayDelivery    bool `json:"saturdayDelivery"`
}

// TimeInTransit returns the carrier's answer for one pair. An empty
// response body means the carrier has no answer for the pair and yields
// (nil, nil); callers leave the branch unresolved without treating it as
// a failure.
func (p *TimeInTransitProvider) TimeInTransit(
	ctx context.Context,
	originZip string,
	destinationZip string,
) (*domain.TransitResult, error) {
	if originZip == "" || destinationZip == "" {
		return nil, errors.New("time in transit: origin and destination zips must be non-empty")
	}

	q := url.Values{}
	if p.apiKey != "" {
		q.Set("code", p.apiKey)
	}
	q.Set("originZip", originZip)
	q.Set("destinationZip", destinationZip)

	endpoint := fmt.Sprintf("%s/api/tnt?%s", p.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("time in transit: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.session.Do(req)
	if err != nil {
		return nil, fmt.Errorf("time in transit %s -> %s: %w", originZip, destinationZip, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("time in transit: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("time in transit %s -> %s: code %d: %s",
			originZip, destinationZip, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, nil
	}

	var tnt timeInTransitResponse
	if err := json.Unmarshal(body, &tnt); err != nil {
		return nil, fmt.Errorf("time in transit: decode response: %w", err)
	}

	return &domain.TransitResult{
		BusinessTransitDays: tnt.BusinessTransitDays,
		SaturdayDelivery:    tnt.SaturdayDelivery,
	}, nil
}
