package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario exercising the sync
// protocol's HTTP surface end to end.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// TenantID and UserID are seeded before Setup/Flow run.
	TenantID string `yaml:"tenant_id"`
	UserID   string `yaml:"user_id"`

	// Setup contains steps run before Flow to establish initial state.
	// Setup steps are traced but not covered by trace_status_sequence.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow contains the steps under test.
	Flow []Step `yaml:"flow"`

	// Assertions validate the run's trace and final server state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step represents one HTTP exchange to drive: a sync overlay POST or a
// GET /sync or GET /sync/v2 pull.
type Step struct {
	// Op is one of "post_overlay", "get_sync", "get_sync_v2".
	Op string `yaml:"op"`

	// Overlay describes the POST /sync body, for op "post_overlay".
	Overlay *OverlaySpec `yaml:"overlay,omitempty"`

	// Query supplies URL query parameters for "get_sync"/"get_sync_v2".
	Query map[string]string `yaml:"query,omitempty"`

	// Expect validates the step's HTTP response. If nil, only a 2xx
	// status is implicitly required.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// OverlaySpec describes one overlay entry. The harness fills in
// created_at (from its deterministic clock, advancing one second per
// overlay) and computes previous_state_hash/state_hash by tracking the
// tenant's chain tip across steps, unless
// explicitly overridden here - overrides exist to construct the fork
// (S4) and tampered-hash (S5) scenarios, which must submit a hash the
// harness would not otherwise compute.
type OverlaySpec struct {
	ID         string         `yaml:"id"`
	ObjectID   string         `yaml:"object_id"`
	ObjectName string         `yaml:"object_name"`
	Changes    map[string]any `yaml:"changes"`

	// CreatedAt overrides the harness's auto-advancing clock when set.
	CreatedAt string `yaml:"created_at,omitempty"`

	// PreviousStateHash overrides the tracked chain tip when set.
	PreviousStateHash string `yaml:"previous_state_hash,omitempty"`

	// StateHash overrides the computed state hash when set (e.g. to
	// tamper with it for a hash-mismatch scenario).
	StateHash string `yaml:"state_hash,omitempty"`
}

// ExpectClause validates a step's HTTP response status and, optionally,
// a substring that must appear in the response body's message/error
// field and a list of keys that must be present in body.details (used
// by the hash-mismatch scenario to confirm the server echoes its own
// recomputed hash and canonical changes for client-side diagnosis).
type ExpectClause struct {
	Status        int      `yaml:"status"`
	ErrorContains string   `yaml:"error_contains,omitempty"`
	DetailsKeys   []string `yaml:"details_keys,omitempty"`
}

// Assertion validates the run's trace or final server state.
type Assertion struct {
	// Type is one of "trace_status_sequence", "final_pull_contains",
	// "final_pull_count", "replay_contains".
	Type string `yaml:"type"`

	// Statuses is the expected ordered list of flow step statuses, used
	// by trace_status_sequence.
	Statuses []int `yaml:"statuses,omitempty"`

	// ObjectName is the bundle/change-log kind name, used by
	// final_pull_contains, final_pull_count, and replay_contains.
	ObjectName string `yaml:"object_name,omitempty"`

	// RecordID is the record/object id to match, used by
	// final_pull_contains and replay_contains.
	RecordID string `yaml:"record_id,omitempty"`

	// Fields is a subset match against the record's data object, used by
	// final_pull_contains.
	Fields map[string]any `yaml:"fields,omitempty"`

	// Version and Status, when non-empty, check the record's top-level
	// version and status columns (outside the data object), used by
	// final_pull_contains.
	Version *int64 `yaml:"version,omitempty"`
	Status  string `yaml:"status,omitempty"`

	// Count is the expected exact record count, used by
	// final_pull_count.
	Count int `yaml:"count,omitempty"`

	// SinceHash is the anchor to replay from, used by replay_contains.
	// Defaults to the genesis hash when empty. May reference a
	// post_overlay step's computed hash as "overlay:<id>".
	SinceHash string `yaml:"since_hash,omitempty"`

	// ExpectStateHash and ExpectPreviousStateHash, when set, check the
	// matched replay entry's state_hash and previous_state_hash exactly
	// (literal hex digest or "overlay:<id>"), used by replay_contains.
	ExpectStateHash         string `yaml:"expect_state_hash,omitempty"`
	ExpectPreviousStateHash string `yaml:"expect_previous_state_hash,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceStatusSequence = "trace_status_sequence"
	AssertFinalPullContains   = "final_pull_contains"
	AssertFinalPullCount      = "final_pull_count"
	AssertReplayContains      = "replay_contains"
)

// LoadScenario reads and parses a scenario YAML file, rejecting unknown
// fields so a typo (e.g. "assertion:" for "assertions:") fails loudly
// instead of silently dropping the clause.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("harness: read scenario file: %w", err)
	}

	var scenario Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("harness: parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("harness: invalid scenario: %w", err)
	}

	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if s.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(s Step) error {
	switch s.Op {
	case "post_overlay":
		if s.Overlay == nil {
			return fmt.Errorf("op post_overlay requires an overlay clause")
		}
	case "get_sync", "get_sync_v2":
		// Query is optional.
	case "":
		return fmt.Errorf("op is required")
	default:
		return fmt.Errorf("unknown op %q", s.Op)
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertTraceStatusSequence:
		if len(a.Statuses) == 0 {
			return fmt.Errorf("statuses is required for %s", AssertTraceStatusSequence)
		}
	case AssertFinalPullContains:
		if a.ObjectName == "" || a.RecordID == "" {
			return fmt.Errorf("object_name and record_id are required for %s", AssertFinalPullContains)
		}
	case AssertFinalPullCount:
		if a.ObjectName == "" {
			return fmt.Errorf("object_name is required for %s", AssertFinalPullCount)
		}
	case AssertReplayContains:
		if a.ObjectName == "" || a.RecordID == "" {
			return fmt.Errorf("object_name and record_id are required for %s", AssertReplayContains)
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
