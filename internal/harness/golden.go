package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/evertag/internal/domain"
)

// Snapshot captures a scenario run for golden comparison.
// All fields use canonical JSON serialization for deterministic comparison.
type Snapshot struct {
	ScenarioName string       `json:"scenario"`
	Trace        []TraceEvent `json:"trace"`
	State        State        `json:"state"`
}

// toCanonicalMap converts a Snapshot to a map[string]any for canonical JSON serialization.
// domain.MarshalCanonical only handles primitives, slices and maps.
func (s *Snapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"seq":      ev.Seq,
			"op":       ev.Op,
			"targets":  append([]string{}, ev.Targets...),
			"calls":    ev.Calls,
			"outcomes": intMap(ev.Outcomes),
		}
		if ev.Created > 0 {
			m["created"] = ev.Created
		}
		if ev.Degraded > 0 {
			m["degraded"] = ev.Degraded
		}
		if ev.Repaired > 0 {
			m["repaired"] = ev.Repaired
		}
		if ev.Activated > 0 {
			m["activated"] = ev.Activated
		}
		if len(ev.States) > 0 {
			m["states"] = intMap(ev.States)
		}
		trace[i] = m
	}

	orders := make([]any, len(s.State.Orders))
	for i, o := range s.State.Orders {
		orders[i] = map[string]any{"reference": o.Reference, "status": o.Status, "linked": o.Linked}
	}
	memorials := make([]any, len(s.State.Memorials))
	for i, m := range s.State.Memorials {
		memorials[i] = map[string]any{
			"reference": m.Reference,
			"name":      m.Name,
			"activated": m.Activated,
			"degraded":  m.Degraded,
		}
	}
	pool := make([]any, len(s.State.Pool))
	for i, c := range s.State.Pool {
		pool[i] = map[string]any{"code": c.Code, "status": c.Status}
	}

	return map[string]any{
		"scenario": s.ScenarioName,
		"trace":    trace,
		"state": map[string]any{
			"orders":        orders,
			"memorials":     memorials,
			"code_counts":   intMap(s.State.CodeCounts),
			"pool":          pool,
			"notifications": s.State.Notifications,
		},
	}
}

func intMap(in map[string]int) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// RunWithGolden executes a scenario and compares its trace and final
// state against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass and Errors.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return result, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := Snapshot{ScenarioName: scenarioName, Trace: result.Trace, State: result.State}
	data, err := domain.MarshalCanonical(snapshot.toCanonicalMap())
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
