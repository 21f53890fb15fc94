package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is one end-to-end fulfillment run.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Pool lists codes that start out available.
	Pool []string `yaml:"pool,omitempty"`

	// Payments are the checkout sessions the fake gateway knows about.
	Payments []Payment `yaml:"payments,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Payment is a gateway checkout session.
type Payment struct {
	Reference string `yaml:"reference"`
	Email     string `yaml:"email"`
	PetName   string `yaml:"pet_name,omitempty"`
	CartID    string `yaml:"cart_id,omitempty"`
	// Unpaid creates the session completed but not yet paid.
	Unpaid bool `yaml:"unpaid,omitempty"`
}

// Step operations.
const (
	OpFulfill = "fulfill"
	OpRepair  = "repair"
	OpScan    = "scan"
	OpPay     = "pay"
)

// Step is one action against the system.
type Step struct {
	Op string `yaml:"op"`

	// References are the payment references the step acts on.
	References []string `yaml:"references,omitempty"`

	// Code is the code to scan. When empty, scan uses the code bound to
	// the memorial of References[0].
	Code string `yaml:"code,omitempty"`

	// Concurrency is how many simultaneous calls to make per reference
	// (or per code for scans). Defaults to 1.
	Concurrency int `yaml:"concurrency,omitempty"`

	// Source is "webhook" to hand the orchestrator already-verified
	// payment details, anything else to let it ask the gateway.
	Source string `yaml:"source,omitempty"`

	// Faults makes the next store calls fail.
	Faults Faults `yaml:"faults,omitempty"`

	// Expect is the outcome every call must have: "ok" or an error code.
	Expect string `yaml:"expect,omitempty"`
}

// Faults simulates crashes at step boundaries.
type Faults struct {
	// OrderInsert fails this many order inserts that carry a memorial,
	// as if the process died after the memorial committed.
	OrderInsert int `yaml:"order_insert,omitempty"`
	// Reservation fails this many reservation transactions.
	Reservation int `yaml:"reservation,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Entity is what count counts: orders, memorials, codes or notifications.
	Entity string `yaml:"entity,omitempty"`
	// Status narrows count to codes or orders in one status, and is the
	// expected status for code.
	Status string `yaml:"status,omitempty"`
	// Synthetic narrows a code count to synthetic or pool codes.
	Synthetic *bool `yaml:"synthetic,omitempty"`
	Count     int   `yaml:"count"`

	Reference string `yaml:"reference,omitempty"`
	Code      string `yaml:"code,omitempty"`

	Activated *bool `yaml:"activated,omitempty"`
	Degraded  *bool `yaml:"degraded,omitempty"`
}

// Assertion type constants.
const (
	AssertCount         = "count"
	AssertFulfilled     = "fulfilled"
	AssertUnlinked      = "unlinked"
	AssertDistinctCodes = "distinct_codes"
	AssertMemorial      = "memorial"
	AssertCode          = "code"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	payments := make(map[string]bool, len(s.Payments))
	for i, p := range s.Payments {
		if p.Reference == "" {
			return fmt.Errorf("payments[%d]: reference is required", i)
		}
		if payments[p.Reference] {
			return fmt.Errorf("payments[%d]: duplicate reference %q", i, p.Reference)
		}
		payments[p.Reference] = true
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step, payments); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step Step, payments map[string]bool) error {
	if step.Concurrency < 0 {
		return fmt.Errorf("steps[%d]: concurrency must not be negative", index)
	}
	switch step.Op {
	case OpFulfill, OpRepair, OpPay:
		if len(step.References) == 0 {
			return fmt.Errorf("steps[%d]: %s requires references", index, step.Op)
		}
	case OpScan:
		if step.Code == "" && len(step.References) != 1 {
			return fmt.Errorf("steps[%d]: scan requires a code or exactly one reference", index)
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, step.Op)
	}

	if step.Op == OpPay || step.Op == OpFulfill {
		for _, ref := range step.References {
			if !payments[ref] {
				return fmt.Errorf("steps[%d]: reference %q is not a declared payment", index, ref)
			}
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case AssertCount:
		switch a.Entity {
		case "orders", "memorials", "codes", "notifications":
		default:
			return fmt.Errorf("assertions[%d]: count needs entity orders, memorials, codes or notifications", index)
		}
	case AssertFulfilled, AssertUnlinked, AssertMemorial:
		if a.Reference == "" {
			return fmt.Errorf("assertions[%d]: %s requires reference", index, a.Type)
		}
	case AssertCode:
		if a.Code == "" || a.Status == "" {
			return fmt.Errorf("assertions[%d]: code requires code and status", index)
		}
	case AssertDistinctCodes:
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown type %q", index, a.Type)
	}
	return nil
}
