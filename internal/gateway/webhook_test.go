package gateway

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/evertag/internal/domain"
)

var signedAt = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestVerifier() *WebhookVerifier {
	return NewWebhookVerifier("whsec_test", time.Minute, func() time.Time { return signedAt })
}

func completedPayload(t *testing.T) []byte {
	t.Helper()
	event := Event{ID: "evt_1", Type: EventCheckoutCompleted}
	event.Data.Object = paidSession(t, "cs_123")
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return payload
}

func TestWebhookVerifier_AcceptsValidSignature(t *testing.T) {
	payload := completedPayload(t)

	event, err := newTestVerifier().VerifyEvent(payload, Sign("whsec_test", signedAt, payload))
	require.NoError(t, err)
	assert.True(t, event.Completes())
	assert.Equal(t, "cs_123", event.Data.Object.ID)
}

func TestWebhookVerifier_Rejections(t *testing.T) {
	payload := completedPayload(t)
	valid := Sign("whsec_test", signedAt, payload)

	tests := []struct {
		name    string
		payload []byte
		header  string
	}{
		{"missing header", payload, ""},
		{"tampered body", append([]byte(" "), payload...), valid},
		{"wrong secret", payload, Sign("whsec_other", signedAt, payload)},
		{"too old", payload, Sign("whsec_test", signedAt.Add(-2*time.Minute), payload)},
		{"from the future", payload, Sign("whsec_test", signedAt.Add(2*time.Minute), payload)},
		{"no v1", payload, "t=1"},
		{"garbage", payload, "nonsense"},
		{"bad hex", payload, "t=1,v1=zz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newTestVerifier().Verify(tt.payload, tt.header)
			assert.True(t, domain.IsInvalidSignature(err), "got %v", err)
		})
	}
}

func TestWebhookVerifier_AcceptsAnyRotatedSignature(t *testing.T) {
	payload := completedPayload(t)
	ts := signedAt.Unix()
	header := fmt.Sprintf("t=%d,v1=%s,v1=%s", ts,
		hex.EncodeToString(computeSignature([]byte("whsec_old"), ts, payload)),
		hex.EncodeToString(computeSignature([]byte("whsec_test"), ts, payload)))

	assert.NoError(t, newTestVerifier().Verify(payload, header))
}

func TestWebhookVerifier_NoSecretRejectsEverything(t *testing.T) {
	payload := completedPayload(t)
	v := NewWebhookVerifier("", 0, nil)

	err := v.Verify(payload, Sign("", time.Now(), payload))
	assert.True(t, domain.IsInvalidSignature(err))
}

func TestParseEvent(t *testing.T) {
	_, err := ParseEvent([]byte("{"))
	assert.True(t, domain.IsInvalidArgument(err))

	_, err = ParseEvent([]byte(`{"id":"evt_1"}`))
	assert.True(t, domain.IsInvalidArgument(err))

	_, err = ParseEvent([]byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{}}}`))
	assert.True(t, domain.IsInvalidArgument(err))

	event, err := ParseEvent([]byte(`{"id":"evt_2","type":"charge.refunded","data":{"object":{}}}`))
	require.NoError(t, err)
	assert.False(t, event.Completes())
}
