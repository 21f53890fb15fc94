package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/evertag/internal/activation"
	"github.com/roach88/evertag/internal/codepool"
	"github.com/roach88/evertag/internal/domain"
	"github.com/roach88/evertag/internal/fulfillment"
	"github.com/roach88/evertag/internal/gateway"
	"github.com/roach88/evertag/internal/store"
	"github.com/roach88/evertag/internal/testutil"
)

const (
	webhookSecret = "whsec_test"
	adminSecret   = "admin-secret"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fixture struct {
	store    *store.Store
	gateway  *testutil.FakeGateway
	notifier *testutil.RecordingNotifier
	orch     *fulfillment.Orchestrator
	server   *Server
}

func newFixture(t *testing.T, codes ...string) *fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := testutil.NewFixedClock(testutil.Epoch)
	pool := codepool.New(codepool.WithClock(clock))
	if len(codes) > 0 {
		batch := make([]domain.AccessCode, len(codes))
		for i, c := range codes {
			batch[i] = domain.AccessCode{ID: "id-" + c, Code: c, CreatedAt: testutil.Epoch}
		}
		_, err := s.InsertAccessCodes(context.Background(), batch)
		require.NoError(t, err)
	}

	f := &fixture{
		store:    s,
		gateway:  testutil.NewFakeGateway(),
		notifier: &testutil.RecordingNotifier{},
	}
	f.orch = fulfillment.New(s, pool, f.gateway,
		fulfillment.WithNotifier(f.notifier),
		fulfillment.WithCartClearer(s),
		fulfillment.WithClock(clock),
	)
	t.Cleanup(f.orch.Wait)

	f.server = New(Deps{
		Fulfiller: f.orch,
		Scanner:   activation.NewHandler(s, pool, clock, nil),
		Codes: CodeGeneratorFunc(func(ctx context.Context, prefix string, count int) (codepool.Batch, error) {
			return pool.Generate(ctx, s, prefix, count)
		}),
		Webhooks: gateway.NewWebhookVerifier(webhookSecret, 0, nil),
		Admin:    AdminAuth{Secret: adminSecret, Issuer: "evertag"},
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body []byte, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func (f *fixture) webhook(t *testing.T, eventType string, details domain.PaymentDetails) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := gateway.NewEventPayload("evt_"+details.Reference, eventType, details)
	require.NoError(t, err)
	h := http.Header{}
	h.Set(gateway.SignatureHeader, gateway.Sign(webhookSecret, time.Now(), payload))
	return f.do(t, http.MethodPost, "/webhooks/payment", payload, h)
}

func (f *fixture) adminHeader(t *testing.T) http.Header {
	t.Helper()
	token, err := MintAdminToken(AdminAuth{Secret: adminSecret, Issuer: "evertag"}, "ops@evertag", time.Hour, time.Now())
	require.NoError(t, err)
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhook_FulfillsCompletedCheckout(t *testing.T) {
	f := newFixture(t, "A-0001")

	w := f.webhook(t, gateway.EventCheckoutCompleted, testutil.PaidSession("cs_1", "sam@example.com", "Biscuit"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "fulfilled", decode[map[string]string](t, w)["status"])

	order, err := f.store.GetOrderByReference(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.True(t, order.Linked())
	// The signed payload is trusted; the gateway is not asked again.
	assert.Equal(t, 0, f.gateway.Calls("cs_1"))
}

func TestWebhook_RedeliveryIsIdempotent(t *testing.T) {
	f := newFixture(t, "A-0001", "A-0002")
	details := testutil.PaidSession("cs_1", "sam@example.com", "Biscuit")

	for range 3 {
		w := f.webhook(t, gateway.EventCheckoutCompleted, details)
		require.Equal(t, http.StatusOK, w.Code)
	}
	f.orch.Wait()

	orders, err := f.store.ListOrders(context.Background(), store.OrderFilter{})
	require.NoError(t, err)
	assert.Len(t, orders, 1)
	assert.Len(t, f.notifier.Sent(), 1)
}

func TestWebhook_BadSignature(t *testing.T) {
	f := newFixture(t, "A-0001")
	payload, err := gateway.NewEventPayload("evt_1", gateway.EventCheckoutCompleted,
		testutil.PaidSession("cs_1", "sam@example.com", "Biscuit"))
	require.NoError(t, err)

	h := http.Header{}
	h.Set(gateway.SignatureHeader, gateway.Sign("whsec_wrong", time.Now(), payload))
	w := f.do(t, http.MethodPost, "/webhooks/payment", payload, h)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(domain.ErrCodeInvalidSignature), decode[errorResponse](t, w).Code)
	_, err = f.store.GetOrderByReference(context.Background(), "cs_1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWebhook_IgnoresOtherEvents(t *testing.T) {
	f := newFixture(t)
	w := f.webhook(t, "charge.refunded", testutil.PaidSession("cs_1", "sam@example.com", "Biscuit"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ignored", decode[statusResponse](t, w).Status)
}

func TestWebhook_UnpaidIsPending(t *testing.T) {
	f := newFixture(t, "A-0001")
	details := testutil.PaidSession("cs_1", "sam@example.com", "Biscuit")
	details.PaymentStatus = "unpaid"

	w := f.webhook(t, gateway.EventCheckoutCompleted, details)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pending", decode[statusResponse](t, w).Status)

	orders, err := f.store.ListOrders(context.Background(), store.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestConfirm_ReturnsTriad(t *testing.T) {
	f := newFixture(t, "A-0001")
	f.gateway.Complete(testutil.PaidSession("cs_1", "sam@example.com", "Biscuit"))

	body, _ := json.Marshal(confirmRequest{Reference: "cs_1"})
	w := f.do(t, http.MethodPost, "/orders/confirm", body, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got := decode[domain.Fulfillment](t, w)
	assert.Equal(t, domain.OrderID("cs_1"), got.Order.ID)
	assert.Equal(t, "A-0001", got.AccessCode.Code)
	assert.Equal(t, got.Memorial.ID, got.Order.MemorialID)
}

func TestConfirm_NotPaidIsProcessing(t *testing.T) {
	f := newFixture(t, "A-0001")

	body, _ := json.Marshal(confirmRequest{Reference: "cs_open"})
	w := f.do(t, http.MethodPost, "/orders/confirm", body, nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, processingMessage, decode[statusResponse](t, w).Message)
}

func TestConfirm_GatewayFailureIsUnavailable(t *testing.T) {
	f := newFixture(t, "A-0001")
	f.gateway.Fail("cs_1", errors.New("gateway down"))

	body, _ := json.Marshal(confirmRequest{Reference: "cs_1"})
	w := f.do(t, http.MethodPost, "/orders/confirm", body, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "processing", decode[statusResponse](t, w).Status)
}

func TestConfirm_RequiresReference(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/orders/confirm", []byte(`{}`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfirm_ConcurrentPollsCreateOneOrder(t *testing.T) {
	f := newFixture(t, "A-0001", "A-0002")
	f.gateway.Complete(testutil.PaidSession("cs_1", "sam@example.com", "Biscuit"))
	body, _ := json.Marshal(confirmRequest{Reference: "cs_1"})

	var wg sync.WaitGroup
	codes := make([]int, 6)
	for i := range codes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes[i] = f.do(t, http.MethodPost, "/orders/confirm", body, nil).Code
		}()
	}
	wg.Wait()
	f.orch.Wait()

	for _, c := range codes {
		assert.Equal(t, http.StatusOK, c)
	}
	counts, err := f.store.CountAccessCodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.CodeReserved])
	assert.Len(t, f.notifier.Sent(), 1)
}

func TestScan_ActivatesOnFirstScan(t *testing.T) {
	f := newFixture(t, "A-0001", "A-0002")
	f.gateway.Complete(testutil.PaidSession("cs_1", "sam@example.com", "Biscuit"))
	_, err := f.orch.Fulfill(context.Background(), fulfillment.Request{Reference: "cs_1"})
	require.NoError(t, err)

	w := f.do(t, http.MethodGet, "/scan/a-0001", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decode[activation.Result](t, w)
	assert.Equal(t, activation.StateActive, first.State)
	assert.True(t, first.Activated)
	require.NotNil(t, first.Memorial)
	assert.True(t, first.Memorial.IsActivated)

	second := decode[activation.Result](t, f.do(t, http.MethodGet, "/scan/A-0001", nil, nil))
	assert.Equal(t, activation.StateActive, second.State)
	assert.False(t, second.Activated)

	unsold := decode[activation.Result](t, f.do(t, http.MethodGet, "/scan/A-0002", nil, nil))
	assert.Equal(t, activation.StatePending, unsold.State)
}

func TestScan_UnknownCode(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/scan/NOPE-0001", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmin_RequiresToken(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/admin/codes/batches", []byte(`{"prefix":"TAG","count":2}`), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	h := http.Header{}
	h.Set("Authorization", "Bearer not-a-jwt")
	w = f.do(t, http.MethodPost, "/admin/codes/batches", []byte(`{"prefix":"TAG","count":2}`), h)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdmin_GenerateBatch(t *testing.T) {
	f := newFixture(t)
	h := f.adminHeader(t)

	w := f.do(t, http.MethodPost, "/admin/codes/batches", []byte(`{"prefix":"tag","count":3}`), h)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	got := decode[codepool.Batch](t, w)
	assert.Equal(t, 3, got.Created)
	assert.Equal(t, "TAG-0001", got.First)
	assert.Equal(t, "TAG-0003", got.Last)

	w = f.do(t, http.MethodPost, "/admin/codes/batches", []byte(`{"prefix":"TAG","count":3}`), h)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPost, "/admin/codes/batches", []byte(`{"prefix":"TAG","count":0}`), h)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdmin_Repair(t *testing.T) {
	f := newFixture(t, "A-0001")
	h := f.adminHeader(t)

	w := f.do(t, http.MethodPost, "/admin/orders/ord_missing/repair", nil, h)
	assert.Equal(t, http.StatusNotFound, w.Code)

	f.gateway.Complete(testutil.PaidSession("cs_1", "sam@example.com", "Biscuit"))
	res, err := f.orch.Fulfill(context.Background(), fulfillment.Request{Reference: "cs_1"})
	require.NoError(t, err)

	w = f.do(t, http.MethodPost, "/admin/orders/"+res.Order.ID+"/repair", nil, h)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[fulfillment.RepairResult](t, w)
	assert.False(t, got.Repaired)
	assert.Equal(t, res.Memorial.ID, got.Memorial.ID)
}

func TestAdmin_DisabledWithoutSecret(t *testing.T) {
	s := New(Deps{})
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/codes/batches", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
