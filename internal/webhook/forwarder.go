package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/flemzord/tgbridge/internal/events"
)

// Forwarder defaults.
const (
	DefaultTimeout  = 10 * time.Second
	DefaultMaxTries = 5
)

// ForwarderConfig configures event delivery to the host.
type ForwarderConfig struct {
	URL      string
	Secret   string // empty sends unsigned requests
	Timeout  time.Duration
	MaxTries uint
	Client   *http.Client
	Logger   *slog.Logger
}

// Forwarder posts events to the host. Failed deliveries are retried with
// exponential backoff; 4xx answers other than 429 are not retried.
type Forwarder struct {
	cfg        ForwarderConfig
	newBackOff func() backoff.BackOff
}

// NewForwarder returns a Forwarder for cfg.
func NewForwarder(cfg ForwarderConfig) (*Forwarder, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook: forwarder requires a URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = DefaultMaxTries
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Forwarder{
		cfg:        cfg,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}, nil
}

// Run delivers events from ch until ctx is done or ch is closed.
func (f *Forwarder) Run(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := f.Deliver(ctx, ev); err != nil && ctx.Err() == nil {
				f.cfg.Logger.Error("webhook: delivery failed", "type", ev.Type, "error", err)
			}
		}
	}
}

// Deliver posts one event, retrying transient failures.
func (f *Forwarder) Deliver(ctx context.Context, ev events.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("webhook: encoding event: %w", err)
	}
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, f.post(ctx, body)
	},
		backoff.WithBackOff(f.newBackOff()),
		backoff.WithMaxTries(f.cfg.MaxTries),
	)
	return err
}

func (f *Forwarder) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.cfg.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(f.cfg.Secret, body))
	}

	resp, err := f.cfg.Client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("webhook: host answered %s", resp.Status)
	default:
		return backoff.Permanent(fmt.Errorf("webhook: host rejected event: %s", resp.Status))
	}
}
