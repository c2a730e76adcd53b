package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"
)

// WebhookSink posts alert cards to an operations webhook. Delivery is
// best-effort: a failed post is logged and dropped, never propagated to
// the operation that raised the alert.
type WebhookSink struct {
	session *http.Client
	url     string
}

func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		session: &http.Client{Timeout: 10 * time.Second},
		url:     url,
	}
}

type card struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

func (s *WebhookSink) Alert(ctx context.Context, title, message string) {
	payload, err := json.Marshal(card{Title: title, Text: message})
	if err != nil {
		log.Printf("alert webhook: marshal: %v", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		log.Printf("alert webhook: create request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.session.Do(req)
	if err != nil {
		log.Printf("alert webhook: post: %v", err)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		log.Printf("alert webhook: post returned %d", resp.StatusCode)
	}
}

// NopSink discards alerts; used when no webhook is configured.
type NopSink struct{}

func (NopSink) Alert(context.Context, string, string) {}
