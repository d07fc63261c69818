package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	webhookQueueSize   = 1024
	webhookAttempts    = 2
	webhookRetryDelay  = time.Second
	webhookSendTimeout = 10 * time.Second
)

// webhookEvent is the JSON payload POSTed to the external endpoint.
type webhookEvent struct {
	Event      string            `json:"event"`
	RecordID   string            `json:"record_id,omitempty"`
	RemoteAddr string            `json:"remote_addr,omitempty"`
	Timestamp  string            `json:"timestamp"`
	Attrs      map[string]string `json:"attrs,omitempty"`
}

// auditWebhook forwards audit events to an external HTTP endpoint, such as a
// SIEM collector. Events go through a bounded queue drained by one
// goroutine; when the queue is full new events are dropped.
type auditWebhook struct {
	url        string
	header     string
	value      string
	client     *http.Client
	logger     *slog.Logger
	retryDelay time.Duration
	events     chan webhookEvent
	wg         sync.WaitGroup
}

// newAuditWebhook starts a dispatcher for url. authHeader is either empty or
// "Name: value", e.g. "Authorization: Bearer xxx".
func newAuditWebhook(url, authHeader string) *auditWebhook {
	w := &auditWebhook{
		url:        url,
		client:     &http.Client{Timeout: webhookSendTimeout},
		logger:     slog.Default().With("component", "audit_webhook"),
		retryDelay: webhookRetryDelay,
		events:     make(chan webhookEvent, webhookQueueSize),
	}
	if name, value, ok := strings.Cut(authHeader, ":"); ok {
		w.header, w.value = strings.TrimSpace(name), strings.TrimSpace(value)
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

// enqueue never blocks.
func (w *auditWebhook) enqueue(evt webhookEvent) {
	select {
	case w.events <- evt:
	default:
		w.logger.Warn("queue full, dropping event", "event", evt.Event)
	}
}

// close drains queued events and stops the dispatcher.
func (w *auditWebhook) close() {
	close(w.events)
	w.wg.Wait()
}

func (w *auditWebhook) loop() {
	defer w.wg.Done()
	for evt := range w.events {
		if err := w.send(context.Background(), evt); err != nil {
			w.logger.Warn("delivery failed", "event", evt.Event, "error", err)
		}
	}
}

// send POSTs evt, retrying once on a transport error or 5xx response.
func (w *auditWebhook) send(ctx context.Context, evt webhookEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	backoff := retry.WithMaxRetries(webhookAttempts-1, retry.NewConstant(w.retryDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "Visica-Audit-Webhook/1.0")
		if w.header != "" {
			req.Header.Set(w.header, w.value)
		}

		resp, err := w.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("server error: %d", resp.StatusCode))
		default:
			return fmt.Errorf("rejected: %d", resp.StatusCode)
		}
	})
}
