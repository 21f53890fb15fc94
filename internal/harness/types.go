package harness

// TraceEvent records what one step did.
type TraceEvent struct {
	Seq int    `json:"seq"`
	Op  string `json:"op"`
	// Targets are the references or the code the step acted on.
	Targets []string `json:"targets"`
	// Calls is the number of calls the step made.
	Calls int `json:"calls"`
	// Outcomes counts calls per outcome ("ok" or an error code).
	Outcomes map[string]int `json:"outcomes"`

	// Created counts fulfill calls that created or linked an order.
	Created int `json:"created,omitempty"`
	// Degraded counts distinct fulfilled references holding a synthetic code.
	Degraded int `json:"degraded,omitempty"`
	// Repaired counts repair calls that linked a memorial.
	Repaired int `json:"repaired,omitempty"`
	// Activated counts scans that performed the activation.
	Activated int `json:"activated,omitempty"`
	// States counts scan results per reported state.
	States map[string]int `json:"states,omitempty"`
}

// OrderState is an order in the final state, without its generated IDs.
type OrderState struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Linked    bool   `json:"linked"`
}

// MemorialState is a memorial in the final state.
type MemorialState struct {
	Reference string `json:"reference"`
	Name      string `json:"name"`
	Activated bool   `json:"activated"`
	Degraded  bool   `json:"degraded"`
}

// CodeState is a pool code in the final state.
type CodeState struct {
	Code   string `json:"code"`
	Status string `json:"status"`
}

// State is the store after the last step. Synthetic code strings and
// which pool code went to which reference depend on scheduling, so the
// state records only what every interleaving agrees on.
type State struct {
	Orders    []OrderState    `json:"orders"`
	Memorials []MemorialState `json:"memorials"`
	// CodeCounts counts codes per status, plus "synthetic".
	CodeCounts map[string]int `json:"code_counts"`
	// Pool lists non-synthetic codes in code order.
	Pool          []CodeState `json:"pool"`
	Notifications int         `json:"notifications"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step met its expectation and every assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the final store state.
	State State `json:"state"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep appends a trace event, numbering it.
func (r *Result) AddStep(ev TraceEvent) {
	ev.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, ev)
}
