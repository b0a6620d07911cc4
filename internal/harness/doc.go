// Package harness provides a conformance testing framework for the sync
// protocol: Scenario/Harness/Result/Assertion types that drive real HTTP
// requests against an api.New handler wrapping a fresh temp-file SQLite
// store, the same way internal/api's end-to-end tests do. Scenarios never
// manufacture their own expected completions - a scenario only passes if
// the server's actual sync logic produces the expected behavior.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	tenant_id: t1
//	user_id: u1
//	setup:
//	  - op: post_overlay
//	    overlay:
//	      id: c1
//	      object_id: j1
//	      object_name: job
//	      changes: { job_number: "J-1" }
//	    expect:
//	      status: 200
//	flow:
//	  - op: post_overlay
//	    overlay:
//	      id: c2
//	      object_id: j1
//	      object_name: job
//	      changes: { status_note: "on site" }
//	    expect:
//	      status: 200
//	assertions:
//	  - type: final_pull_contains
//	    object_name: jobs
//	    record_id: j1
//	    fields: { status_note: "on site" }
//
// The harness computes each overlay's previous_state_hash and state_hash
// itself, tracking the tenant's chain tip across steps exactly as a
// conforming client would - scenario authors never hand-compute a hash.
// A step may override previous_state_hash or state_hash explicitly (see
// OverlaySpec) to construct fork (S4) or tampered-hash (S5) scenarios.
//
// # Assertion Types
//
//   - trace_status_sequence: every flow step's HTTP status, in order
//   - final_pull_contains: a GET /sync bundle record matches id/fields
//   - final_pull_count: a GET /sync bundle kind has an exact record count
//   - replay_contains: a GET /sync/v2 entry matches object_name/record_id
//
// # Determinism
//
// Each scenario runs against its own fresh temp-file SQLite store and a
// clock.DeterministicClock fixed at a constant instant, so server_time
// and bundle ordering are reproducible across runs.
package harness
