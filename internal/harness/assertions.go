package harness

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
)

// AssertionContext carries what assertion evaluation needs beyond the
// scenario itself: a handle on the running server for final-state
// queries, and the flow-only slice of the trace (setup steps are
// deliberately excluded from trace_status_sequence).
type AssertionContext struct {
	Server    *httptest.Server
	TenantID  string
	FlowTrace []TraceEvent

	// OverlayHash maps a post_overlay step's overlay id to its computed
	// state_hash, letting assertions reference a hash as "overlay:<id>"
	// instead of a literal hex digest.
	OverlayHash map[string]string
}

// resolveHash resolves ref to a literal hex digest: "overlay:<id>" looks
// up the hash computed for that overlay step; anything else (including
// empty, meaning genesis) passes through unchanged.
func (actx *AssertionContext) resolveHash(ref string) string {
	const prefix = "overlay:"
	if !strings.HasPrefix(ref, prefix) {
		return ref
	}
	id := strings.TrimPrefix(ref, prefix)
	return actx.OverlayHash[id]
}

// EvaluateAssertions evaluates every assertion and returns one failure
// message per assertion that did not hold.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceStatusSequence:
			err = assertTraceStatusSequence(actx.FlowTrace, a)
		case AssertFinalPullContains:
			err = assertFinalPullContains(actx, a)
		case AssertFinalPullCount:
			err = assertFinalPullCount(actx, a)
		case AssertReplayContains:
			err = assertReplayContains(actx, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d] (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

func assertTraceStatusSequence(trace []TraceEvent, a Assertion) error {
	if len(trace) != len(a.Statuses) {
		return fmt.Errorf("expected %d flow steps, got %d", len(a.Statuses), len(trace))
	}
	for i, want := range a.Statuses {
		if trace[i].Status != want {
			return fmt.Errorf("step %d: expected status %d, got %d", i, want, trace[i].Status)
		}
	}
	return nil
}

func assertFinalPullContains(actx *AssertionContext, a Assertion) error {
	bundle, err := fetchFinalPull(actx.Server, actx.TenantID)
	if err != nil {
		return err
	}

	records, ok := bundle.Data[a.ObjectName]
	if !ok {
		return fmt.Errorf("bundle has no kind %q", a.ObjectName)
	}

	for _, rec := range records {
		if rec.ID != a.RecordID {
			continue
		}
		if a.Version != nil && rec.Version != *a.Version {
			return fmt.Errorf("record %s: expected version %d, got %d", rec.ID, *a.Version, rec.Version)
		}
		if a.Status != "" {
			if rec.Status == nil || *rec.Status != a.Status {
				return fmt.Errorf("record %s: expected status %q, got %v", rec.ID, a.Status, rec.Status)
			}
		}
		if len(a.Fields) == 0 {
			return nil
		}
		var data map[string]any
		if err := json.Unmarshal(rec.Data, &data); err != nil {
			return fmt.Errorf("decode record %s data: %w", rec.ID, err)
		}
		if err := matchFieldSubset(data, a.Fields); err != nil {
			return fmt.Errorf("record %s: %w", rec.ID, err)
		}
		return nil
	}
	return fmt.Errorf("no record %s found in kind %q", a.RecordID, a.ObjectName)
}

func assertFinalPullCount(actx *AssertionContext, a Assertion) error {
	bundle, err := fetchFinalPull(actx.Server, actx.TenantID)
	if err != nil {
		return err
	}
	got := len(bundle.Data[a.ObjectName])
	if got != a.Count {
		return fmt.Errorf("expected %d records in kind %q, got %d", a.Count, a.ObjectName, got)
	}
	return nil
}

func assertReplayContains(actx *AssertionContext, a Assertion) error {
	entries, err := fetchReplay(actx.Server, actx.TenantID, actx.resolveHash(a.SinceHash))
	if err != nil {
		return err
	}

	if a.Count != 0 && len(entries) != a.Count {
		return fmt.Errorf("expected exactly %d replay entries, got %d", a.Count, len(entries))
	}

	for _, e := range entries {
		objectName, _ := e["object_name"].(string)
		recordID, _ := e["record_id"].(string)
		if objectName != a.ObjectName || recordID != a.RecordID {
			continue
		}
		if a.ExpectStateHash != "" {
			got, _ := e["state_hash"].(string)
			want := actx.resolveHash(a.ExpectStateHash)
			if got != want {
				return fmt.Errorf("entry %s/%s: expected state_hash %q, got %q", a.ObjectName, a.RecordID, want, got)
			}
		}
		if a.ExpectPreviousStateHash != "" {
			got, _ := e["previous_state_hash"].(string)
			want := actx.resolveHash(a.ExpectPreviousStateHash)
			if got != want {
				return fmt.Errorf("entry %s/%s: expected previous_state_hash %q, got %q", a.ObjectName, a.RecordID, want, got)
			}
		}
		return nil
	}
	return fmt.Errorf("no replay entry for %s/%s since %q", a.ObjectName, a.RecordID, a.SinceHash)
}

// matchFieldSubset checks that every key in expected is present in actual
// with an equal value (subset match - extra keys in actual are ignored).
// Numeric comparison tolerates the float64-vs-int mismatch that arises
// because both sides round-trip through encoding/json's untyped decode.
func matchFieldSubset(actual, expected map[string]any) error {
	for key, want := range expected {
		got, exists := actual[key]
		if !exists {
			return fmt.Errorf("field %q: expected %v, field absent", key, want)
		}
		if !valuesEqual(got, want) {
			return fmt.Errorf("field %q: expected %v, got %v", key, want, got)
		}
	}
	return nil
}

func valuesEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
