package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/evertag/internal/domain"
)

func testFulfillment() domain.Fulfillment {
	return domain.Fulfillment{
		Order:      domain.Order{ID: "ord_1", OrderNumber: "ET-ABCD1234", CustomerEmail: "sam@example.com"},
		Memorial:   domain.Memorial{ID: "mem_1", Name: "Biscuit"},
		AccessCode: domain.AccessCode{Code: "TAG-0001"},
	}
}

func TestCompose(t *testing.T) {
	msg, err := Compose(testFulfillment(), "hello@evertag.example", "https://evertag.example/")
	require.NoError(t, err)

	assert.Equal(t, "sam@example.com", msg.To)
	assert.Equal(t, "Your memorial order ET-ABCD1234", msg.Subject)
	assert.Contains(t, msg.Text, `"Biscuit"`)
	assert.Contains(t, msg.Text, "TAG-0001")
	assert.Contains(t, msg.Text, "https://evertag.example/scan/TAG-0001")
}

func TestCompose_SyntheticCodeHidesCode(t *testing.T) {
	f := testFulfillment()
	f.AccessCode = domain.AccessCode{Code: "SYN-0123456789AB", Synthetic: true}

	msg, err := Compose(f, "hello@evertag.example", "https://evertag.example")
	require.NoError(t, err)
	assert.NotContains(t, msg.Text, "SYN-0123456789AB")
	assert.Contains(t, msg.Text, "prepared by hand")
}

func TestHTTPMailer_Sends(t *testing.T) {
	var got Message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer mk_test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	m := NewHTTPMailer(MailerConfig{APIURL: server.URL, APIKey: "mk_test", From: "hello@evertag.example"}, nil)
	require.NoError(t, m.Notify(context.Background(), testFulfillment()))
	assert.Equal(t, "sam@example.com", got.To)
	assert.Equal(t, "hello@evertag.example", got.From)
}

func TestHTTPMailer_RetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	m := NewHTTPMailer(MailerConfig{APIURL: server.URL, MaxAttempts: 2, Timeout: time.Second}, nil)
	err := m.Notify(context.Background(), testFulfillment())
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPMailer_RejectedIsPermanent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	m := NewHTTPMailer(MailerConfig{APIURL: server.URL, MaxAttempts: 3}, nil)
	require.Error(t, m.Notify(context.Background(), testFulfillment()))
	assert.Equal(t, int32(1), calls.Load())
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := LogNotifier{From: "hello@evertag.example", Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	require.NoError(t, n.Notify(context.Background(), testFulfillment()))
	assert.Contains(t, buf.String(), "to=sam@example.com")
	assert.Contains(t, buf.String(), "order_id=ord_1")
}
