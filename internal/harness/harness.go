package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/evertag/internal/activation"
	"github.com/roach88/evertag/internal/codepool"
	"github.com/roach88/evertag/internal/domain"
	"github.com/roach88/evertag/internal/fulfillment"
	"github.com/roach88/evertag/internal/store"
	"github.com/roach88/evertag/internal/testutil"
)

// OutcomeOK is the outcome of a call that returned no error.
const OutcomeOK = "ok"

// outcomeError is reported for errors that carry no domain code.
const outcomeError = "ERROR"

var errCrash = errors.New("simulated crash")

// faultLedger fails selected store calls a fixed number of times.
type faultLedger struct {
	*store.Store

	mu          sync.Mutex
	insertFails int
	txFails     int
}

func (l *faultLedger) InsertOrder(ctx context.Context, o domain.Order) error {
	l.mu.Lock()
	if l.insertFails > 0 && o.MemorialID != "" {
		l.insertFails--
		l.mu.Unlock()
		return errCrash
	}
	l.mu.Unlock()
	return l.Store.InsertOrder(ctx, o)
}

func (l *faultLedger) InTx(ctx context.Context, fn func(*store.Tx) error) error {
	l.mu.Lock()
	if l.txFails > 0 {
		l.txFails--
		l.mu.Unlock()
		return errCrash
	}
	l.mu.Unlock()
	return l.Store.InTx(ctx, fn)
}

func (l *faultLedger) arm(f Faults) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.insertFails = f.OrderInsert
	l.txFails = f.Reservation
}

// Harness drives the orchestrator and scan handler for one scenario.
type Harness struct {
	store    *store.Store
	ledger   *faultLedger
	gateway  *testutil.FakeGateway
	notifier *testutil.RecordingNotifier
	orch     *fulfillment.Orchestrator
	scans    *activation.Handler
	payments map[string]Payment
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// A fixed clock and a fake gateway make results reproducible.
//
// Execution flow:
// 1. Create fresh in-memory database and seed the pool
// 2. Register payments with the fake gateway
// 3. Execute steps, checking each against its expectation
// 4. Snapshot the final state and evaluate assertions
//
// An error is returned only when the scenario cannot be executed at all.
// Failed expectations and assertions are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	h, err := newHarness(ctx, st, scenario)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		ev, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
		}
		result.AddStep(ev)
		checkExpectation(result, result.Trace[len(result.Trace)-1], step)
	}

	state, err := h.snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot state: %w", err)
	}
	result.State = state

	actx := &AssertionContext{Store: st, Ctx: ctx, State: state}
	for _, errMsg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

func newHarness(ctx context.Context, st *store.Store, scenario *Scenario) (*Harness, error) {
	if len(scenario.Pool) > 0 {
		batch := make([]domain.AccessCode, len(scenario.Pool))
		for i, c := range scenario.Pool {
			batch[i] = domain.AccessCode{ID: "id-" + c, Code: c, Batch: "scenario", CreatedAt: testutil.Epoch}
		}
		if _, err := st.InsertAccessCodes(ctx, batch); err != nil {
			return nil, fmt.Errorf("failed to seed pool: %w", err)
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewFixedClock(testutil.Epoch)
	pool := codepool.New(codepool.WithClock(clock), codepool.WithLogger(logger))

	h := &Harness{
		store:    st,
		ledger:   &faultLedger{Store: st},
		gateway:  testutil.NewFakeGateway(),
		notifier: &testutil.RecordingNotifier{},
		payments: make(map[string]Payment, len(scenario.Payments)),
	}
	h.orch = fulfillment.New(h.ledger, pool, h.gateway,
		fulfillment.WithNotifier(h.notifier),
		fulfillment.WithCartClearer(st),
		fulfillment.WithClock(clock),
		fulfillment.WithLogger(logger),
	)
	h.scans = activation.NewHandler(st, pool, clock, logger)

	for _, p := range scenario.Payments {
		h.payments[p.Reference] = p
		details := paymentDetails(p)
		if p.Unpaid {
			details.Status = domain.SessionComplete
			details.PaymentStatus = "unpaid"
			h.gateway.Set(details)
			continue
		}
		h.gateway.Complete(details)
	}
	return h, nil
}

func paymentDetails(p Payment) domain.PaymentDetails {
	petName := p.PetName
	if petName == "" {
		petName = "Biscuit"
	}
	details := testutil.PaidSession(p.Reference, p.Email, petName)
	details.CartSessionID = p.CartID
	return details
}

// execute runs one step and records what happened.
func (h *Harness) execute(ctx context.Context, step Step) (TraceEvent, error) {
	h.ledger.arm(step.Faults)
	defer h.ledger.arm(Faults{})

	n := max(step.Concurrency, 1)
	ev := TraceEvent{Op: step.Op, Outcomes: map[string]int{}}

	switch step.Op {
	case OpPay:
		ev.Targets = step.References
		for _, ref := range step.References {
			h.gateway.Complete(paymentDetails(h.payments[ref]))
			ev.Calls++
			ev.Outcomes[OutcomeOK]++
		}
		return ev, nil

	case OpFulfill:
		ev.Targets = step.References
		degraded := map[string]bool{}
		var mu sync.Mutex
		h.fanOut(step.References, n, func(ref string) {
			res, err := h.orch.Fulfill(ctx, h.request(ref, step.Source))
			mu.Lock()
			defer mu.Unlock()
			ev.Outcomes[outcome(err)]++
			if err != nil {
				return
			}
			if res.Created {
				ev.Created++
			}
			if res.Degraded() {
				degraded[ref] = true
			}
		})
		ev.Calls = len(step.References) * n
		ev.Degraded = len(degraded)
		return ev, nil

	case OpRepair:
		ev.Targets = step.References
		var mu sync.Mutex
		h.fanOut(step.References, n, func(ref string) {
			res, err := h.orch.Repair(ctx, domain.OrderID(ref))
			mu.Lock()
			defer mu.Unlock()
			ev.Outcomes[outcome(err)]++
			if err == nil && res.Repaired {
				ev.Repaired++
			}
		})
		ev.Calls = len(step.References) * n
		return ev, nil

	case OpScan:
		code := step.Code
		if code == "" {
			var err error
			if code, err = h.boundCode(ctx, step.References[0]); err != nil {
				return ev, err
			}
			// Bound codes can be synthetic, so the trace names the reference.
			ev.Targets = step.References
		} else {
			ev.Targets = []string{code}
		}
		ev.States = map[string]int{}
		var mu sync.Mutex
		h.fanOut([]string{code}, n, func(code string) {
			res, err := h.scans.OnScan(ctx, code)
			mu.Lock()
			defer mu.Unlock()
			ev.Outcomes[outcome(err)]++
			if err != nil {
				return
			}
			ev.States[string(res.State)]++
			if res.Activated {
				ev.Activated++
			}
		})
		ev.Calls = n
		return ev, nil
	}
	return ev, fmt.Errorf("unknown op %q", step.Op)
}

// fanOut calls fn n times for every target, all at once, and waits for
// the calls and any notifications they started.
func (h *Harness) fanOut(targets []string, n int, fn func(string)) {
	var wg sync.WaitGroup
	for _, target := range targets {
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				fn(target)
			}()
		}
	}
	wg.Wait()
	h.orch.Wait()
}

func (h *Harness) request(ref, source string) fulfillment.Request {
	if source != string(fulfillment.SourceWebhook) {
		return fulfillment.Request{Reference: ref, Source: fulfillment.SourcePoll}
	}
	details, err := h.gateway.VerifyPayment(context.Background(), ref)
	if err != nil {
		return fulfillment.Request{Reference: ref, Source: fulfillment.SourceWebhook}
	}
	return fulfillment.Request{Reference: ref, Verified: &details, Source: fulfillment.SourceWebhook}
}

func (h *Harness) boundCode(ctx context.Context, ref string) (string, error) {
	m, err := h.store.GetMemorialByReference(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("no memorial for %s: %w", ref, err)
	}
	c, err := h.store.GetAccessCodeByMemorial(ctx, m.ID)
	if err != nil {
		return "", fmt.Errorf("no code for memorial of %s: %w", ref, err)
	}
	return c.Code, nil
}

func outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	if code := domain.CodeOf(err); code != "" {
		return string(code)
	}
	return outcomeError
}

func checkExpectation(result *Result, ev TraceEvent, step Step) {
	want := step.Expect
	if want == "" {
		want = OutcomeOK
	}
	for got, count := range ev.Outcomes {
		if got != want {
			result.AddError(fmt.Sprintf("step %d (%s): expected every call to be %s, %d were %s",
				ev.Seq, step.Op, want, count, got))
		}
	}
}

// snapshot reads the final state.
func (h *Harness) snapshot(ctx context.Context) (State, error) {
	state := State{
		Orders:     []OrderState{},
		Memorials:  []MemorialState{},
		CodeCounts: map[string]int{},
		Pool:       []CodeState{},
	}

	orders, err := h.store.ListOrders(ctx, store.OrderFilter{})
	if err != nil {
		return state, err
	}
	for _, o := range orders {
		state.Orders = append(state.Orders, OrderState{
			Reference: o.PaymentReference,
			Status:    string(o.Status),
			Linked:    o.Linked(),
		})
	}
	slices.SortFunc(state.Orders, func(a, b OrderState) int {
		return compareStrings(a.Reference, b.Reference)
	})

	memorials, err := h.store.ListMemorials(ctx)
	if err != nil {
		return state, err
	}
	for _, m := range memorials {
		ms := MemorialState{Reference: m.PaymentReference, Name: m.Name, Activated: m.IsActivated}
		c, err := h.store.GetAccessCodeByMemorial(ctx, m.ID)
		switch {
		case err == nil:
			ms.Degraded = c.Synthetic
		case !errors.Is(err, store.ErrNotFound):
			return state, err
		}
		state.Memorials = append(state.Memorials, ms)
	}
	slices.SortFunc(state.Memorials, func(a, b MemorialState) int {
		return compareStrings(a.Reference, b.Reference)
	})

	codes, err := h.store.ListAccessCodes(ctx, store.CodeFilter{})
	if err != nil {
		return state, err
	}
	for _, c := range codes {
		state.CodeCounts[string(c.Status)]++
		if c.Synthetic {
			state.CodeCounts["synthetic"]++
			continue
		}
		state.Pool = append(state.Pool, CodeState{Code: c.Code, Status: string(c.Status)})
	}

	state.Notifications = len(h.notifier.Sent())
	return state, nil
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
