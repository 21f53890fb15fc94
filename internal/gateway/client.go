package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/roach88/evertag/internal/domain"
)

const (
	DefaultTimeout         = 5 * time.Second
	DefaultMaxAttempts     = 3
	DefaultInitialInterval = 200 * time.Millisecond
	maxResponseBytes       = 1 << 20
)

// Config configures a Client.
type Config struct {
	BaseURL         string
	SecretKey       string
	Timeout         time.Duration
	MaxAttempts     int
	InitialInterval time.Duration
}

// Client verifies checkout sessions with the payment gateway's API.
type Client struct {
	baseURL         string
	secretKey       string
	http            *http.Client
	maxAttempts     uint
	initialInterval time.Duration
	logger          *slog.Logger
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewClient creates a Client. A nil logger uses slog.Default.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = DefaultInitialInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:         cfg.BaseURL,
		secretKey:       cfg.SecretKey,
		http:            &http.Client{Timeout: cfg.Timeout},
		maxAttempts:     uint(cfg.MaxAttempts),
		initialInterval: cfg.InitialInterval,
		logger:          logger,
	}
}

// VerifyPayment fetches the checkout session for reference. It reports
// what the gateway says; deciding whether that counts as paid is the
// caller's job.
//
// Transport failures, 429 and 5xx responses are retried with exponential
// backoff up to the configured attempt count. Other 4xx responses are
// final.
func (c *Client) VerifyPayment(ctx context.Context, reference string) (domain.PaymentDetails, error) {
	if c.secretKey == "" {
		return domain.PaymentDetails{}, fmt.Errorf("gateway secret key not set")
	}
	endpoint, err := url.JoinPath(c.baseURL, "v1", "checkout", "sessions", reference)
	if err != nil {
		return domain.PaymentDetails{}, fmt.Errorf("gateway url: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialInterval

	session, err := backoff.Retry(ctx, func() (Session, error) {
		return c.fetchSession(ctx, endpoint, reference)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(c.maxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("gateway verification failed, retrying", "reference", reference, "error", err, "retry_in", next)
		}),
	)
	if err != nil {
		return domain.PaymentDetails{}, fmt.Errorf("verify payment %s: %w", reference, err)
	}

	details, err := session.PaymentDetails()
	if err != nil {
		return details, err
	}
	if details.Reference == "" {
		details.Reference = reference
	}
	return details, nil
}

func (c *Client) fetchSession(ctx context.Context, endpoint, reference string) (Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Session{}, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Session{}, backoff.Permanent(err)
		}
		return Session{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Session{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := statusError(resp.StatusCode, body)
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return Session{}, backoff.Permanent(domain.NewNotFoundError("checkout session", reference))
		case resp.StatusCode == http.StatusTooManyRequests:
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
				return Session{}, backoff.RetryAfter(secs)
			}
			return Session{}, apiErr
		case resp.StatusCode >= 500:
			return Session{}, apiErr
		default:
			return Session{}, backoff.Permanent(apiErr)
		}
	}

	var session Session
	if err := json.Unmarshal(body, &session); err != nil {
		return Session{}, backoff.Permanent(fmt.Errorf("decode session: %w", err))
	}
	return session, nil
}

func statusError(status int, body []byte) error {
	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("gateway API error (%d): %s", status, apiErr.Error.Message)
	}
	return fmt.Errorf("gateway API error (%d): %s", status, string(body))
}
