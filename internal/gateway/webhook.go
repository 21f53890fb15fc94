package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/evertag/internal/domain"
)

// SignatureHeader carries the callback signature:
//
//	t=<unix seconds>,v1=<hex HMAC-SHA256(secret, "<t>.<body>")>
//
// More than one v1 entry may be present while the secret is rotated.
const SignatureHeader = "Gateway-Signature"

// Event types that complete a purchase.
const (
	EventCheckoutCompleted     = "checkout.session.completed"
	EventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
)

// DefaultTolerance is how old a signed timestamp may be.
const DefaultTolerance = 5 * time.Minute

var (
	errMissingSignature = errors.New("missing signature header")
	errMalformedHeader  = errors.New("malformed signature header")
	errTimestampSkew    = errors.New("signature timestamp outside tolerance")
	errNoMatch          = errors.New("no signature matches")
)

// Event is a gateway callback.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object Session `json:"object"`
	} `json:"data"`
}

// Completes reports whether the event type should trigger fulfillment.
func (e Event) Completes() bool {
	return e.Type == EventCheckoutCompleted || e.Type == EventAsyncPaymentSucceeded
}

// WebhookVerifier authenticates callback payloads.
type WebhookVerifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewWebhookVerifier creates a verifier. A non-positive tolerance uses
// DefaultTolerance; a nil now uses time.Now.
func NewWebhookVerifier(secret string, tolerance time.Duration, now func() time.Time) *WebhookVerifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if now == nil {
		now = time.Now
	}
	return &WebhookVerifier{secret: []byte(secret), tolerance: tolerance, now: now}
}

// Verify checks header against payload. Failures are INVALID_SIGNATURE.
func (v *WebhookVerifier) Verify(payload []byte, header string) error {
	if len(v.secret) == 0 {
		return domain.NewInvalidSignatureError(errors.New("webhook secret not configured"))
	}
	if strings.TrimSpace(header) == "" {
		return domain.NewInvalidSignatureError(errMissingSignature)
	}

	ts, sigs, err := parseSignatureHeader(header)
	if err != nil {
		return domain.NewInvalidSignatureError(err)
	}

	skew := v.now().Sub(time.Unix(ts, 0))
	if skew > v.tolerance || skew < -v.tolerance {
		return domain.NewInvalidSignatureError(errTimestampSkew)
	}

	expected := computeSignature(v.secret, ts, payload)
	for _, sig := range sigs {
		if hmac.Equal(expected, sig) {
			return nil
		}
	}
	return domain.NewInvalidSignatureError(errNoMatch)
}

// VerifyEvent authenticates payload and decodes it.
func (v *WebhookVerifier) VerifyEvent(payload []byte, header string) (Event, error) {
	if err := v.Verify(payload, header); err != nil {
		return Event{}, err
	}
	return ParseEvent(payload)
}

// ParseEvent decodes a callback payload without authenticating it.
func ParseEvent(payload []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return event, domain.NewInvalidArgumentError("malformed event payload: %v", err)
	}
	if event.Type == "" {
		return event, domain.NewInvalidArgumentError("event type is missing")
	}
	if event.Completes() && event.Data.Object.ID == "" {
		return event, domain.NewInvalidArgumentError("event %s has no session id", event.ID)
	}
	return event, nil
}

// Sign builds a signature header for payload at time t.
func Sign(secret string, t time.Time, payload []byte) string {
	ts := t.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(computeSignature([]byte(secret), ts, payload)))
}

func computeSignature(secret []byte, ts int64, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

func parseSignatureHeader(header string) (int64, [][]byte, error) {
	var (
		ts    int64
		hasTS bool
		sigs  [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return 0, nil, errMalformedHeader
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, errMalformedHeader
			}
			ts, hasTS = parsed, true
		case "v1":
			sig, err := hex.DecodeString(value)
			if err != nil {
				return 0, nil, errMalformedHeader
			}
			sigs = append(sigs, sig)
		}
	}
	if !hasTS || len(sigs) == 0 {
		return 0, nil, errMalformedHeader
	}
	return ts, sigs, nil
}
