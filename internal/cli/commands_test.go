package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/evertag/internal/activation"
	"github.com/roach88/evertag/internal/codepool"
	"github.com/roach88/evertag/internal/domain"
	"github.com/roach88/evertag/internal/fulfillment"
	"github.com/roach88/evertag/internal/httpapi"
	"github.com/roach88/evertag/internal/testutil"
)

type cliEnv struct {
	t        *testing.T
	db       string
	env      map[string]string
	gateway  *testutil.FakeGateway
	notifier *testutil.RecordingNotifier
	clock    *testutil.FixedClock
}

func newCLIEnv(t *testing.T) *cliEnv {
	return &cliEnv{
		t:        t,
		db:       filepath.Join(t.TempDir(), "cli.db"),
		env:      map[string]string{},
		gateway:  testutil.NewFakeGateway(),
		notifier: &testutil.RecordingNotifier{},
		clock:    testutil.NewFixedClock(testutil.Epoch),
	}
}

func (e *cliEnv) run(args ...string) (stdout, stderr string, code int) {
	e.t.Helper()
	opts := &RootOptions{
		Environment: e.env,
		Verifier:    e.gateway,
		Notifier:    e.notifier,
		Clock:       e.clock,
	}
	var out, errOut bytes.Buffer
	code = execute(context.Background(), opts, append([]string{"--db", e.db}, args...), &out, &errOut)
	return out.String(), errOut.String(), code
}

// runJSON runs a command with --format json and decodes the data payload.
func runJSON[T any](e *cliEnv, args ...string) (T, int) {
	e.t.Helper()
	var data T
	stdout, stderr, code := e.run(append([]string{"--format", "json"}, args...)...)

	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(e.t, json.Unmarshal([]byte(stdout), &resp), "stdout=%q stderr=%q", stdout, stderr)
	if resp.Status == "ok" {
		require.NoError(e.t, json.Unmarshal(resp.Data, &data))
	}
	return data, code
}

func TestCLI_FulfillScanLifecycle(t *testing.T) {
	e := newCLIEnv(t)
	e.gateway.Complete(testutil.PaidSession("cs_1", "sam@example.com", "Biscuit"))

	batch, code := runJSON[codepool.Batch](e, "codes", "generate", "--prefix", "tag", "--count", "3")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "TAG-0001", batch.First)
	assert.Equal(t, 3, batch.Created)

	f, code := runJSON[domain.Fulfillment](e, "fulfill", "cs_1")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, domain.OrderID("cs_1"), f.Order.ID)
	assert.Equal(t, "Biscuit", f.Memorial.Name)
	assert.Equal(t, "TAG-0001", f.AccessCode.Code)
	assert.Len(t, e.notifier.Sent(), 1)

	again, code := runJSON[domain.Fulfillment](e, "fulfill", "cs_1")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, f.Memorial.ID, again.Memorial.ID)
	assert.Len(t, e.notifier.Sent(), 1, "repeat must not notify")

	view, code := runJSON[orderView](e, "orders", "show", "cs_1")
	require.Equal(t, ExitSuccess, code)
	require.NotNil(t, view.Memorial)
	require.NotNil(t, view.AccessCode)
	assert.Equal(t, domain.CodeReserved, view.AccessCode.Status)

	scan, code := runJSON[activation.Result](e, "scan", "TAG-0001")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, activation.StateActive, scan.State)
	assert.True(t, scan.Activated)

	listing, code := runJSON[codeListing](e, "codes", "list", "--status", "available")
	require.Equal(t, ExitSuccess, code)
	assert.Len(t, listing.Codes, 2)
	assert.Equal(t, 1, listing.Counts[domain.CodeActivated])
}

func TestCLI_FulfillPendingPayment(t *testing.T) {
	e := newCLIEnv(t)

	_, stderr, code := e.run("fulfill", "cs_unpaid")
	assert.Equal(t, ExitPending, code)
	assert.Contains(t, stderr, "PAYMENT_NOT_CONFIRMED")
}

func TestCLI_EmptyPoolDegrades(t *testing.T) {
	e := newCLIEnv(t)
	e.gateway.Complete(testutil.PaidSession("cs_1", "sam@example.com", "Biscuit"))

	f, code := runJSON[domain.Fulfillment](e, "fulfill", "cs_1")
	require.Equal(t, ExitSuccess, code)
	assert.True(t, f.AccessCode.Synthetic)

	stdout, _, code := e.run("codes", "list", "--synthetic")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, f.AccessCode.Code+"*")
}

func TestCLI_GenerateConflict(t *testing.T) {
	e := newCLIEnv(t)

	_, _, code := e.run("codes", "generate", "--prefix", "TAG", "--count", "2")
	require.Equal(t, ExitSuccess, code)

	_, stderr, code := e.run("codes", "generate", "--prefix", "TAG", "--count", "5")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stderr, "CONFLICT")
}

func TestCLI_OrderStatus(t *testing.T) {
	e := newCLIEnv(t)
	e.gateway.Complete(testutil.PaidSession("cs_1", "sam@example.com", "Biscuit"))
	_, _, code := e.run("codes", "generate", "--prefix", "TAG", "--count", "1")
	require.Equal(t, ExitSuccess, code)
	f, code := runJSON[domain.Fulfillment](e, "fulfill", "cs_1")
	require.Equal(t, ExitSuccess, code)

	order, code := runJSON[domain.Order](e, "orders", "status", f.Order.ID, "processing")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, domain.OrderProcessing, order.Status)

	_, stderr, code := e.run("orders", "status", f.Order.ID, "paid")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stderr, "INVALID_TRANSITION")

	orders, code := runJSON[[]domain.Order](e, "orders", "list", "--status", "processing")
	require.Equal(t, ExitSuccess, code)
	assert.Len(t, orders, 1)
}

func TestCLI_RepairUnknownOrder(t *testing.T) {
	e := newCLIEnv(t)
	_, stderr, code := e.run("repair", "ord_missing")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stderr, "NOT_FOUND")
}

func TestCLI_Repair(t *testing.T) {
	e := newCLIEnv(t)
	e.gateway.Complete(testutil.PaidSession("cs_1", "sam@example.com", "Biscuit"))
	f, code := runJSON[domain.Fulfillment](e, "fulfill", "cs_1")
	require.Equal(t, ExitSuccess, code)

	res, code := runJSON[fulfillment.RepairResult](e, "repair", f.Order.ID)
	require.Equal(t, ExitSuccess, code)
	assert.False(t, res.Repaired)
	assert.Equal(t, f.Memorial.ID, res.Memorial.ID)
}

func TestCLI_Token(t *testing.T) {
	e := newCLIEnv(t)
	e.env["EVERTAG_ADMIN_JWT_SECRET"] = "s3cret"

	out, code := runJSON[tokenOutput](e, "token", "--subject", "ops", "--ttl", "30m")
	require.Equal(t, ExitSuccess, code)
	assert.True(t, testutil.Epoch.Add(30*time.Minute).Equal(out.ExpiresAt))

	claims, err := httpapi.ParseAdminToken(httpapi.AdminAuth{Secret: "s3cret", Issuer: "evertag"}, out.Token, testutil.Epoch)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
}

func TestCLI_TokenWithoutSecret(t *testing.T) {
	e := newCLIEnv(t)
	_, _, code := e.run("token", "--subject", "ops")
	assert.Equal(t, ExitCommandError, code)
}

func TestCLI_UsageErrors(t *testing.T) {
	e := newCLIEnv(t)

	_, _, code := e.run("fulfill")
	assert.Equal(t, ExitCommandError, code, "missing argument")

	_, _, code = e.run("--format", "yaml", "codes", "list")
	assert.Equal(t, ExitCommandError, code, "bad format")

	_, _, code = e.run("orders", "list", "--status", "lost")
	assert.Equal(t, ExitCommandError, code, "bad status")
}

func TestCLI_BadConfig(t *testing.T) {
	e := newCLIEnv(t)
	e.env["EVERTAG_LOG_LEVEL"] = "loud"

	_, stderr, code := e.run("codes", "list")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "failed to load config")
}
