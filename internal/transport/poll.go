// Package transport moves payloads between the VTN and the reconciliation
// handler: a polling client for pull mode and an HTTP listener for push mode.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gridsignal/oadr2ven/internal/engine"
	"github.com/gridsignal/oadr2ven/internal/oadr"
)

const contentTypeXML = "application/xml"

// Poller periodically asks the VTN for pending events and feeds the
// response through the handler. Replies produced by the handler are posted
// back on the same endpoint.
type Poller struct {
	url     string
	venID   string
	builder *oadr.Builder
	handler *engine.Handler
	client  *http.Client
	log     *slog.Logger
}

// NewPoller creates a poller against the VTN endpoint url.
func NewPoller(url, venID string, profile oadr.Profile, h *engine.Handler, log *slog.Logger) *Poller {
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		url:     url,
		venID:   venID,
		builder: oadr.NewBuilder(profile),
		handler: h,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

// Run polls on the given interval until the context is cancelled. Transport
// and handler errors are logged; the loop keeps going.
func (p *Poller) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := p.Poll(ctx); err != nil {
			p.log.Warn("poll failed", "url", p.url, "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll performs one request/reconcile/reply cycle.
func (p *Poller) Poll(ctx context.Context) error {
	req, err := p.builder.Marshal(p.builder.RequestEvent(p.venID))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	body, err := p.post(ctx, req)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	reply, err := p.handler.HandlePayload(ctx, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("handle distribute payload: %w", err)
	}
	if reply == nil {
		return nil
	}

	if _, err := p.post(ctx, reply); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

func (p *Poller) post(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentTypeXML)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return nil, fmt.Errorf("vtn returned status %d", resp.StatusCode)
	}
	return body, nil
}

const maxResponseSize = 4 * 1024 * 1024
