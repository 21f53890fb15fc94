package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/roach88/evertag/internal/domain"
)

// MailerConfig configures an HTTPMailer.
type MailerConfig struct {
	APIURL      string
	APIKey      string
	From        string
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
}

// HTTPMailer posts confirmations to a transactional mail API as
// {from, to, subject, text} JSON with a bearer key.
type HTTPMailer struct {
	cfg    MailerConfig
	http   *http.Client
	logger *slog.Logger
}

// NewHTTPMailer creates an HTTPMailer. A nil logger uses slog.Default.
func NewHTTPMailer(cfg MailerConfig, logger *slog.Logger) *HTTPMailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPMailer{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

// Notify sends the confirmation for f.
func (m *HTTPMailer) Notify(ctx context.Context, f domain.Fulfillment) error {
	if f.Order.CustomerEmail == "" {
		return fmt.Errorf("order %s has no customer email", f.Order.ID)
	}
	msg, err := Compose(f, m.cfg.From, m.cfg.BaseURL)
	if err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, m.post(ctx, body)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(m.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			m.logger.Debug("mail delivery failed, retrying", "order_id", f.Order.ID, "error", err, "retry_in", next)
		}),
	)
	if err != nil {
		return fmt.Errorf("send confirmation for %s: %w", f.Order.ID, err)
	}
	return nil
}

func (m *HTTPMailer) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if m.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	}

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("mail API returned %d", resp.StatusCode)
	default:
		return backoff.Permanent(fmt.Errorf("mail API returned %d", resp.StatusCode))
	}
}
