package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/auditmesh/auditmesh/internal/handler"
	"github.com/auditmesh/auditmesh/internal/ledger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func setupRouter(t *testing.T) (*gin.Engine, *ledger.MemoryLedger) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	l := ledger.NewMemoryLedger()
	h := handler.NewLedgerHandler(l, zap.NewNop())
	v1 := r.Group("/api/v1")
	h.Register(v1)
	return r, l
}

func TestRecordEvent_201(t *testing.T) {
	router, _ := setupRouter(t)

	body := `{
		"actor_type": "user",
		"actor_id": "42",
		"entity_type": "Task",
		"entity_id": "t-9",
		"action": "ASSIGN",
		"after": {"worker": 42}
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	hash, _ := resp["event_hash"].(string)
	if len(hash) != 64 {
		t.Errorf("event_hash length: got %d, want 64", len(hash))
	}
	if resp["in_block"] != false {
		t.Errorf("expected in_block=false, got %v", resp["in_block"])
	}
}

func TestRecordEvent_400_missingFields(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(`{"actor_type":"user"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestVerify_200_emptyChain(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger/verify", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["ok"] != true {
		t.Errorf("expected ok=true, got %v", resp["ok"])
	}
}

func TestGetBlock_200_afterSeal(t *testing.T) {
	router, l := setupRouter(t)

	for i := 0; i < 3; i++ {
		if _, err := l.Record(context.Background(), ledger.RecordInput{
			ActorType: "system", EntityType: "Cargo", EntityID: "c-1", Action: "MOVE",
		}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := l.Seal(context.Background(), 512); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger/blocks/0", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Block       ledger.Block        `json:"block"`
		Memberships []ledger.Membership `json:"memberships"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Block.Index != 0 {
		t.Errorf("block index: got %d, want 0", resp.Block.Index)
	}
	if len(resp.Memberships) != 3 {
		t.Errorf("memberships: got %d, want 3", len(resp.Memberships))
	}
}

func TestGetBlock_404(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger/blocks/99", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGetBlock_400_invalidIdx(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger/blocks/abc", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestOverview_countsUnsealed(t *testing.T) {
	router, l := setupRouter(t)

	for i := 0; i < 2; i++ {
		if _, err := l.Record(context.Background(), ledger.RecordInput{
			ActorType: "system", EntityType: "Bin", EntityID: "b-1", Action: "CREATE",
		}); err != nil {
			t.Fatal(err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var stats ledger.Stats
	json.Unmarshal(w.Body.Bytes(), &stats)
	if stats.Events != 2 || stats.Unsealed != 2 || stats.Blocks != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
