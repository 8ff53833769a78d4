package acceptance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/incuhub/roadmap-sync/internal/incubator"
	"github.com/incuhub/roadmap-sync/internal/roadmap"
	"github.com/incuhub/roadmap-sync/internal/service"
	"github.com/incuhub/roadmap-sync/internal/store"
)

// fakeBackend is an in-memory incubation backend speaking the wire format the
// HTTP client expects.
type fakeBackend struct {
	mu           sync.Mutex
	currentStage string
	progress     int
	down         bool
	withdrawals  []map[string]interface{}
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ideas/{ideaID}/roadmap", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.down {
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"roadmap": map[string]interface{}{
				"title":               "Solar Kiosk",
				"current_stage":       b.currentStage,
				"progress_percentage": b.progress,
			},
		})
	})
	mux.HandleFunc("GET /platform/roadmap-stages", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.down {
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
			return
		}
		stages := []map[string]string{
			{"name": "Idea Submission"},
			{"name": "Initial Evaluation"},
			{"name": "Funding"},
			{"name": "Launch"},
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"platform_roadmap_stages": stages})
	})
	mux.HandleFunc("GET /withdrawals", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]interface{}{"withdrawals": b.withdrawals})
	})
	mux.HandleFunc("POST /ideas/{ideaID}/withdraw", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Reason string `json:"reason"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		defer b.mu.Unlock()
		b.withdrawals = append(b.withdrawals, map[string]interface{}{
			"request": map[string]interface{}{
				"id":      "wr-1",
				"idea_id": r.PathValue("ideaID"),
				"reason":  body.Reason,
			},
			"committee_response": map[string]interface{}{
				"status": "pending",
			},
		})
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("POST /withdrawals/{requestID}/execute", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, entry := range b.withdrawals {
			req := entry["request"].(map[string]interface{})
			if req["id"] == r.PathValue("requestID") {
				entry["committee_response"].(map[string]interface{})["penalty_paid"] = true
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (b *fakeBackend) approve(requestID string, penalty float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, entry := range b.withdrawals {
		req := entry["request"].(map[string]interface{})
		if req["id"] == requestID {
			entry["committee_response"] = map[string]interface{}{
				"status":         "approved",
				"penalty_amount": penalty,
			}
		}
	}
}

func newStack(t *testing.T, backend *fakeBackend) (*service.Service, *roadmap.State, *store.MemoryStore) {
	t.Helper()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	client, err := incubator.NewHTTPClient(incubator.HTTPClientConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("client init: %v", err)
	}
	state := roadmap.NewState()
	history := store.NewMemoryStore()
	return service.New(client, state, history, service.Options{}), state, history
}

func TestSyncDegradeRecoverFlow(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{currentStage: "Initial Evaluation", progress: 20}
	svc, state, history := newStack(t, backend)

	if err := svc.Sync(ctx, "idea-1"); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	snap := state.Snapshot()
	if snap.RoadmapInfo == nil || snap.RoadmapInfo.CurrentStage != "Initial Evaluation" {
		t.Fatalf("unexpected roadmap info: %+v", snap.RoadmapInfo)
	}
	if len(snap.TimelineData) != 4 {
		t.Fatalf("expected 4 fetched stages, got %d", len(snap.TimelineData))
	}
	if !snap.TimelineData[1].IsCurrent || snap.TimelineData[1].ProgressPercent != 20 {
		t.Fatalf("stage 2 should be current at 20%%: %+v", snap.TimelineData[1])
	}

	// Backend outage: the state degrades to a populated fallback, error set.
	backend.mu.Lock()
	backend.down = true
	backend.mu.Unlock()
	if err := svc.Sync(ctx, "idea-1"); err == nil {
		t.Fatal("sync during outage should report an error")
	}
	snap = state.Snapshot()
	if snap.Err == "" {
		t.Fatal("degraded state must carry the error")
	}
	if len(snap.TimelineData) == 0 {
		t.Fatal("degraded state must keep a populated timeline")
	}

	// Recovery with a stage transition; history records every cycle.
	backend.mu.Lock()
	backend.down = false
	backend.currentStage = "Funding"
	backend.progress = 10
	backend.mu.Unlock()
	if err := svc.Sync(ctx, "idea-1"); err != nil {
		t.Fatalf("sync after recovery: %v", err)
	}
	snap = state.Snapshot()
	if snap.Err != "" {
		t.Fatalf("error should clear on recovery, got %q", snap.Err)
	}
	if !snap.TimelineData[2].IsCurrent || snap.TimelineData[1].Status != "completed" {
		t.Fatalf("timeline not re-derived after transition: %+v", snap.TimelineData)
	}

	snaps, err := history.ListSnapshots(ctx, "idea-1", 0)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("expected 3 recorded cycles, got %d", len(snaps))
	}
}

func TestWithdrawalLifecycleFlow(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{currentStage: "Funding", progress: 40}
	svc, _, history := newStack(t, backend)

	if err := svc.RequestWithdrawal(ctx, "idea-1", "pivoting to hardware"); err != nil {
		t.Fatalf("request withdrawal: %v", err)
	}
	if svc.CanRequestWithdrawal("idea-1") {
		t.Fatal("pending request must gate further requests")
	}
	if err := svc.RequestWithdrawal(ctx, "idea-1", "again"); err != service.ErrWithdrawalPending {
		t.Fatalf("expected ErrWithdrawalPending, got %v", err)
	}
	if !svc.CanRequestWithdrawal("idea-2") {
		t.Fatal("gating is per idea")
	}

	// Not approved yet.
	if err := svc.ExecuteWithdrawal(ctx, "idea-1", "wr-1"); err != service.ErrWithdrawalNotApproved {
		t.Fatalf("expected ErrWithdrawalNotApproved, got %v", err)
	}

	backend.approve("wr-1", 500)
	if err := svc.ExecuteWithdrawal(ctx, "idea-1", "wr-1"); err != nil {
		t.Fatalf("execute withdrawal: %v", err)
	}

	withdrawals := svc.Withdrawals("idea-1")
	if len(withdrawals) != 1 || !withdrawals[0].CommitteeResponse.PenaltyPaid {
		t.Fatalf("penalty should be marked paid: %+v", withdrawals)
	}
	if err := svc.ExecuteWithdrawal(ctx, "idea-1", "wr-1"); err != service.ErrWithdrawalAlreadyPaid {
		t.Fatalf("expected ErrWithdrawalAlreadyPaid, got %v", err)
	}

	actions, err := history.ListWithdrawalActions(ctx, "idea-1")
	if err != nil {
		t.Fatalf("list actions: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("expected requested+executed audit rows, got %d", len(actions))
	}
}
