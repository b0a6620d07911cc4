package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fieldsync/syncd/internal/api"
	"github.com/fieldsync/syncd/internal/canon"
	"github.com/fieldsync/syncd/internal/clock"
	"github.com/fieldsync/syncd/internal/domain"
	"github.com/fieldsync/syncd/internal/store"
)

// chainKey identifies one tenant's hash chain; the server keeps a single
// chain head per tenant, shared by every object.
type chainKey struct {
	tenantID string
}

// Harness drives a scenario's setup and flow steps as real HTTP requests
// against an api.New handler over a fresh temp-file SQLite store.
type Harness struct {
	server *httptest.Server
	clk    *clock.DeterministicClock
	chain  map[chainKey]string

	// overlayHash records the computed state_hash for every post_overlay
	// step, keyed by the overlay's id, regardless of whether the server
	// accepted it - assertions reference these by "overlay:<id>" to
	// verify an exact hash (e.g. S6's "entry whose state_hash == H2 and
	// previous_state_hash == H1") without the scenario YAML having to
	// hand-compute a SHA-256 digest.
	overlayHash map[string]string
}

// Run executes scenario end to end: opens a fresh store, seeds the
// tenant and user, drives setup then flow steps, and evaluates the
// scenario's assertions against the server's actual final state.
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "syncd-harness-*")
	if err != nil {
		return nil, fmt.Errorf("harness: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "harness.db"))
	if err != nil {
		return nil, fmt.Errorf("harness: open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	if err := st.CreateTenant(ctx, scenario.TenantID, scenario.TenantID, canon.GenesisTime); err != nil {
		return nil, fmt.Errorf("harness: seed tenant: %w", err)
	}
	if err := seedUser(ctx, st, scenario.TenantID, scenario.UserID); err != nil {
		return nil, fmt.Errorf("harness: seed user: %w", err)
	}

	clk := clock.NewDeterministicClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	srv := api.New(st, clk)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	h := &Harness{server: ts, clk: clk, chain: make(map[chainKey]string), overlayHash: make(map[string]string)}

	result := NewResult()
	if err := h.runSteps(scenario, scenario.Setup, result); err != nil {
		return nil, fmt.Errorf("harness: setup: %w", err)
	}

	flowStart := len(result.Trace)
	if err := h.runSteps(scenario, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("harness: flow: %w", err)
	}
	flowTrace := result.Trace[flowStart:]

	actx := &AssertionContext{Server: ts, TenantID: scenario.TenantID, FlowTrace: flowTrace, OverlayHash: h.overlayHash}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

func seedUser(ctx context.Context, st *store.Store, tenantID, userID string) error {
	_, err := st.DB().ExecContext(ctx, `
		INSERT INTO users (id, tenant_id, object_name, object_type, status, version, created_by, modified_by, created_at, updated_at, data)
		VALUES (?, ?, 'user', 'user', 'active', 1, ?, ?, ?, ?, '{}')
		ON CONFLICT(id) DO NOTHING
	`, userID, tenantID, userID, userID, canon.GenesisTime, canon.GenesisTime)
	if err != nil {
		return fmt.Errorf("store: seed user: %w", err)
	}
	return nil
}

// runSteps drives each step in order against h.server, appending one
// TraceEvent per step to result and validating each step's ExpectClause.
func (h *Harness) runSteps(scenario *Scenario, steps []Step, result *Result) error {
	for i, step := range steps {
		status, body, err := h.doStep(scenario, step)
		if err != nil {
			return fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
		result.Trace = append(result.Trace, TraceEvent{Op: step.Op, Status: status, Body: body})

		if step.Expect != nil {
			if step.Expect.Status != 0 && status != step.Expect.Status {
				result.AddError(fmt.Sprintf("step %d (%s): expected status %d, got %d", i, step.Op, step.Expect.Status, status))
			}
			if step.Expect.ErrorContains != "" {
				if !bodyErrorContains(body, step.Expect.ErrorContains) {
					result.AddError(fmt.Sprintf("step %d (%s): expected error containing %q, got body %v", i, step.Op, step.Expect.ErrorContains, body))
				}
			}
			for _, key := range step.Expect.DetailsKeys {
				if !bodyDetailsHasKey(body, key) {
					result.AddError(fmt.Sprintf("step %d (%s): expected body.details to have key %q, got body %v", i, step.Op, key, body))
				}
			}
		} else if status >= 300 {
			result.AddError(fmt.Sprintf("step %d (%s): unexpected non-2xx status %d with no expect clause", i, step.Op, status))
		}
	}
	return nil
}

// bodyErrorContains checks for substr in either error body shape the
// HTTP surface uses: {"status":"error","message":...} from the pull and
// ingest paths, or {"error":"bootstrap_required","message":...} from the
// v2 replay path.
func bodyErrorContains(body any, substr string) bool {
	m, ok := body.(map[string]any)
	if !ok {
		return false
	}
	if msg, ok := m["message"].(string); ok && strings.Contains(msg, substr) {
		return true
	}
	if errField, ok := m["error"].(string); ok && strings.Contains(errField, substr) {
		return true
	}
	return false
}

func bodyDetailsHasKey(body any, key string) bool {
	m, ok := body.(map[string]any)
	if !ok {
		return false
	}
	details, ok := m["details"].(map[string]any)
	if !ok {
		return false
	}
	_, exists := details[key]
	return exists
}

func (h *Harness) doStep(scenario *Scenario, step Step) (int, any, error) {
	switch step.Op {
	case "post_overlay":
		return h.doPostOverlay(scenario, step.Overlay)
	case "get_sync":
		return h.doGet(scenario, "/sync", step.Query)
	case "get_sync_v2":
		return h.doGet(scenario, "/sync/v2", step.Query)
	default:
		return 0, nil, fmt.Errorf("unknown op %q", step.Op)
	}
}

func (h *Harness) doPostOverlay(scenario *Scenario, spec *OverlaySpec) (int, any, error) {
	changesJSON, err := json.Marshal(spec.Changes)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal changes: %w", err)
	}

	createdAt := spec.CreatedAt
	if createdAt == "" {
		createdAt = canon.FormatTime(h.clk.Now())
		h.clk.Advance(time.Second)
	}

	key := chainKey{tenantID: scenario.TenantID}
	previous := spec.PreviousStateHash
	if previous == "" {
		if tip, ok := h.chain[key]; ok {
			previous = tip
		} else {
			previous = canon.Genesis
		}
	}

	canonical, err := canon.CanonicalizeJSON(changesJSON)
	if err != nil {
		return 0, nil, fmt.Errorf("canonicalize changes: %w", err)
	}
	contentHash := canon.ContentHash(spec.ID, scenario.TenantID, scenario.UserID, createdAt, spec.ObjectName, spec.ObjectID, canonical)

	stateHash := spec.StateHash
	if stateHash == "" {
		stateHash = canon.StateHash(contentHash, previous)
	}
	h.overlayHash[spec.ID] = stateHash

	wire := []map[string]any{{
		"id":                  spec.ID,
		"tenant_id":           scenario.TenantID,
		"object_id":           spec.ObjectID,
		"object_name":         spec.ObjectName,
		"changes":             json.RawMessage(changesJSON),
		"created_at":          createdAt,
		"state_hash":          stateHash,
		"previous_state_hash": previous,
	}}

	raw, err := json.Marshal(wire)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal overlay batch: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, h.server.URL+"/sync", bytes.NewReader(raw))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", scenario.UserID)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := decodeBody(resp)
	if err != nil {
		return 0, nil, err
	}

	// Only a server-accepted overlay advances the tracked chain tip - a
	// rejected batch must leave the harness's view of the chain exactly
	// where the server left its own (Property 7: atomic batch failure).
	if resp.StatusCode == http.StatusOK {
		h.chain[key] = stateHash
	}

	return resp.StatusCode, body, nil
}

func (h *Harness) doGet(scenario *Scenario, path string, query map[string]string) (int, any, error) {
	req, err := http.NewRequest(http.MethodGet, h.server.URL+path, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	q := req.URL.Query()
	if _, ok := query["tenant_id"]; !ok {
		q.Set("tenant_id", scenario.TenantID)
	}
	for k, v := range query {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := decodeBody(resp)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func decodeBody(resp *http.Response) (any, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return body, nil
}

// fetchFinalPull pulls the full bundle for tenantID from the genesis
// instant, for assertions that check accumulated final state.
func fetchFinalPull(server *httptest.Server, tenantID string) (*domain.Bundle, error) {
	req, err := http.NewRequest(http.MethodGet, server.URL+"/sync", nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("tenant_id", tenantID)
	q.Set("since", canon.GenesisTime)
	req.URL.RawQuery = q.Encode()

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("final pull: unexpected status %d", resp.StatusCode)
	}

	var bundle domain.Bundle
	if err := json.NewDecoder(resp.Body).Decode(&bundle); err != nil {
		return nil, fmt.Errorf("final pull: decode: %w", err)
	}
	return &bundle, nil
}

// fetchReplay replays the change log for tenantID since sinceHash
// (genesis if empty), for assertions over the v2 delta surface.
func fetchReplay(server *httptest.Server, tenantID, sinceHash string) ([]map[string]any, error) {
	if sinceHash == "" {
		sinceHash = canon.Genesis
	}
	req, err := http.NewRequest(http.MethodGet, server.URL+"/sync/v2", nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("tenant_id", tenantID)
	q.Set("since_hash", sinceHash)
	req.URL.RawQuery = q.Encode()

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("replay: unexpected status %d", resp.StatusCode)
	}

	var entries []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("replay: decode: %w", err)
	}
	return entries, nil
}
