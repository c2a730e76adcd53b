package maps

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"branch-distance-service/internal/platform/obs"
	"branch-distance-service/internal/platform/retry"
)

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("code %d: %s", e.Code, e.Body)
}

func (p *MatrixProvider) do(req *http.Request) (*http.Response, error) {
	resp, err := p.session.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &httpStatusError{
			Code: resp.StatusCode,
			Body: strings.TrimSpace(string(b)),
		}
	}
	return resp, nil
}

// getWithRetry issues the GET up to five times with a fixed backoff,
// matching the provider contract: warn on intermediate failures, alert on
// the final one. The provider has been flaky enough historically that
// every failure kind is treated as retryable.
func (p *MatrixProvider) getWithRetry(ctx context.Context, url string) (*http.Response, error) {
	var resp *http.Response

	policy := retry.Policy{
		MaxAttempts: 5,
		Backoff:     p.backoff,
		Notify: func(attempt int, final bool, err error) {
			if !final {
				log.Printf("req_id=%s matrix request attempt=%d failed, retrying: %v", obs.RequestID(ctx), attempt, err)
				return
			}
			log.Printf("req_id=%s matrix request failed after %d attempts: %v", obs.RequestID(ctx), attempt, err)
			if p.alerts != nil {
				p.alerts.Alert(ctx, "Distance matrix request failed",
					fmt.Sprintf("Request to the mapping provider failed after %d attempts: %v", attempt, err))
			}
		},
	}

	err := policy.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		r, err := p.do(req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}
