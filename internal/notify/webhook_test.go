package notify_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/auditmesh/auditmesh/internal/ledger"
	"github.com/auditmesh/auditmesh/internal/notify"
	"go.uber.org/zap"
)

func sampleBlock() *ledger.Block {
	prev := "ab"
	return &ledger.Block{
		Index:         3,
		CreatedAt:     time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		PrevBlockHash: &prev,
		MerkleRoot:    "cd",
		BlockHash:     "ef",
	}
}

func TestWebhook_deliversSealedBlockSummary(t *testing.T) {
	var got notify.BlockSealedPayload
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := notify.NewWebhook(srv.URL, zap.NewNop())
	n.BlockSealed(context.Background(), sampleBlock(), 7)

	if contentType != "application/json" {
		t.Errorf("content type: got %q", contentType)
	}
	if got.Kind != "block.sealed" {
		t.Errorf("kind: got %q", got.Kind)
	}
	if got.Index != 3 || got.BlockHash != "ef" || got.MerkleRoot != "cd" || got.Events != 7 {
		t.Errorf("unexpected payload: %+v", got)
	}
	if got.DeliveryID == "" {
		t.Error("missing delivery id")
	}
}

func TestWebhook_failureDoesNotPanic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	n := notify.NewWebhook(srv.URL, zap.NewNop())
	n.BlockSealed(context.Background(), sampleBlock(), 1)

	srv.Close()
	// endpoint gone entirely
	n.BlockSealed(context.Background(), sampleBlock(), 1)
}

func TestNoopAndLogSatisfyNotifier(t *testing.T) {
	var _ ledger.Notifier = notify.NewNoop()
	var _ ledger.Notifier = notify.NewLog(zap.NewNop())

	notify.NewLog(zap.NewNop()).BlockSealed(context.Background(), sampleBlock(), 2)
}
