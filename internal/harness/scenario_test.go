package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: "One fulfillment"
pool: [A-0001]
payments:
  - reference: pay_1
    email: sam@example.com
    pet_name: Biscuit
steps:
  - op: fulfill
    references: [pay_1]
    concurrency: 3
assertions:
  - type: fulfilled
    reference: pay_1
`

func TestLoadScenario_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minimal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario), 0644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "minimal", scenario.Name)
	assert.Equal(t, []string{"A-0001"}, scenario.Pool)
	require.Len(t, scenario.Payments, 1)
	assert.Equal(t, "Biscuit", scenario.Payments[0].PetName)
	require.Len(t, scenario.Steps, 1)
	assert.Equal(t, OpFulfill, scenario.Steps[0].Op)
	assert.Equal(t, 3, scenario.Steps[0].Concurrency)
	assert.Equal(t, AssertFulfilled, scenario.Assertions[0].Type)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(minimalScenario + "assertion: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_FaultsAndExpect(t *testing.T) {
	data := `
name: crash
description: "Crash then retry"
payments:
  - reference: pay_4
    email: sam@example.com
steps:
  - op: fulfill
    references: [pay_4]
    faults: { order_insert: 1, reservation: 2 }
    expect: ERROR
assertions:
  - type: count
    entity: orders
    count: 0
`
	scenario, err := ParseScenario([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, Faults{OrderInsert: 1, Reservation: 2}, scenario.Steps[0].Faults)
	assert.Equal(t, "ERROR", scenario.Steps[0].Expect)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing name",
			yaml:    "description: d\nsteps: [{op: pay, references: [p]}]\nassertions: [{type: distinct_codes}]",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: n\nsteps: [{op: pay, references: [p]}]\nassertions: [{type: distinct_codes}]",
			wantErr: "description is required",
		},
		{
			name:    "no steps",
			yaml:    "name: n\ndescription: d\nassertions: [{type: distinct_codes}]",
			wantErr: "steps list is required",
		},
		{
			name:    "no assertions",
			yaml:    "name: n\ndescription: d\npayments: [{reference: p}]\nsteps: [{op: pay, references: [p]}]",
			wantErr: "assertions list is required",
		},
		{
			name:    "unknown op",
			yaml:    "name: n\ndescription: d\nsteps: [{op: refund, references: [p]}]\nassertions: [{type: distinct_codes}]",
			wantErr: `unknown op "refund"`,
		},
		{
			name:    "undeclared payment",
			yaml:    "name: n\ndescription: d\nsteps: [{op: fulfill, references: [pay_9]}]\nassertions: [{type: distinct_codes}]",
			wantErr: `reference "pay_9" is not a declared payment`,
		},
		{
			name:    "duplicate payment",
			yaml:    "name: n\ndescription: d\npayments: [{reference: p}, {reference: p}]\nsteps: [{op: pay, references: [p]}]\nassertions: [{type: distinct_codes}]",
			wantErr: "duplicate reference",
		},
		{
			name:    "scan without target",
			yaml:    "name: n\ndescription: d\nsteps: [{op: scan}]\nassertions: [{type: distinct_codes}]",
			wantErr: "scan requires a code or exactly one reference",
		},
		{
			name:    "negative concurrency",
			yaml:    "name: n\ndescription: d\npayments: [{reference: p}]\nsteps: [{op: fulfill, references: [p], concurrency: -1}]\nassertions: [{type: distinct_codes}]",
			wantErr: "concurrency must not be negative",
		},
		{
			name:    "count without entity",
			yaml:    "name: n\ndescription: d\nsteps: [{op: scan, code: A-1}]\nassertions: [{type: count, count: 1}]",
			wantErr: "count needs entity",
		},
		{
			name:    "memorial without reference",
			yaml:    "name: n\ndescription: d\nsteps: [{op: scan, code: A-1}]\nassertions: [{type: memorial}]",
			wantErr: "memorial requires reference",
		},
		{
			name:    "unknown assertion",
			yaml:    "name: n\ndescription: d\nsteps: [{op: scan, code: A-1}]\nassertions: [{type: trace_contains}]",
			wantErr: `unknown type "trace_contains"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
