package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookSubscriber posts events as JSON to an external collaborator's
// endpoint (email service, CRM sync). Filter limits which event types are
// forwarded; a nil filter forwards everything.
type WebhookSubscriber struct {
	name   string
	url    string
	filter map[Type]bool
	http   *http.Client
}

// NewWebhookSubscriber creates a subscriber posting to url. Only the listed
// types are forwarded; with no types given, all events are.
func NewWebhookSubscriber(name, url string, types ...Type) *WebhookSubscriber {
	var filter map[Type]bool
	if len(types) > 0 {
		filter = make(map[Type]bool, len(types))
		for _, t := range types {
			filter[t] = true
		}
	}
	return &WebhookSubscriber{
		name:   name,
		url:    url,
		filter: filter,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Name identifies the subscriber in warning logs.
func (s *WebhookSubscriber) Name() string { return s.name }

// Handle posts the event. Non-2xx responses are errors; the publisher logs
// them and moves on.
func (s *WebhookSubscriber) Handle(ctx context.Context, ev Event) error {
	if s.filter != nil && !s.filter[ev.Type] {
		return nil
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook %s returned %s", s.url, resp.Status)
	}
	return nil
}
