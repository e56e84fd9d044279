package performer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"actioner/internal/catalog"
	"actioner/internal/match"
)

const (
	SubtypeWebhookPost   = "WebhookPostActionPerformer"
	SubtypeWebhookGet    = "WebhookGetActionPerformer"
	SubtypeWebhookPut    = "WebhookPutActionPerformer"
	SubtypeWebhookDelete = "WebhookDeleteActionPerformer"
)

// WebhookFields is the stored shape of a webhook performer.
type WebhookFields struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Webhook calls an arbitrary endpoint. POST and PUT send the match message
// as the JSON body; GET and DELETE send no body.
type Webhook struct {
	name    string
	method  string
	url     string
	headers map[string]string
	client  *http.Client
}

func NewWebhookConstructor(method string) Constructor {
	return func(cfg catalog.PerformerConfig, client *http.Client) (Performer, error) {
		var f WebhookFields
		if err := json.Unmarshal(cfg.Fields, &f); err != nil {
			return nil, fmt.Errorf("performer %s has malformed fields: %w", cfg.Name, err)
		}
		u, err := url.Parse(f.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("performer %s has invalid url %q", cfg.Name, f.URL)
		}
		return &Webhook{
			name:    cfg.Name,
			method:  method,
			url:     f.URL,
			headers: f.Headers,
			client:  client,
		}, nil
	}
}

func (w *Webhook) Name() string {
	return w.name
}

func (w *Webhook) Method() string {
	return w.method
}

func (w *Webhook) Perform(ctx context.Context, m match.Message) Result {
	start := time.Now()
	result := Result{Performer: w.name}

	var body io.Reader
	if w.method == http.MethodPost || w.method == http.MethodPut {
		data, err := m.Encode()
		if err != nil {
			result.Err = fmt.Errorf("failed to encode match message: %w", err)
			return result
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, w.method, w.url, body)
	if err != nil {
		result.Err = fmt.Errorf("failed to create request: %w", err)
		return result
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	result.Duration = time.Since(start)
	if err != nil {
		result.Err = fmt.Errorf("webhook request failed: %w", err)
		return result
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	result.StatusCode = resp.StatusCode
	return result
}
