package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/auditmesh/auditmesh/internal/ledger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Webhook POSTs a JSON summary of every sealed block to a single
// endpoint. Delivery is best-effort: failures are logged and dropped,
// never retried, and never surfaced to the sealer — the chain itself is
// the durable record.
type Webhook struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewWebhook creates a Webhook notifier targeting url.
func NewWebhook(url string, logger *zap.Logger) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// BlockSealedPayload is the body of a sealed-block delivery.
type BlockSealedPayload struct {
	DeliveryID string    `json:"delivery_id"`
	Kind       string    `json:"kind"`
	Index      int64     `json:"index"`
	BlockHash  string    `json:"block_hash"`
	MerkleRoot string    `json:"merkle_root"`
	Events     int       `json:"events"`
	SealedAt   time.Time `json:"sealed_at"`
}

// BlockSealed implements ledger.Notifier.
func (n *Webhook) BlockSealed(ctx context.Context, b *ledger.Block, eventCount int) {
	payload := BlockSealedPayload{
		DeliveryID: uuid.NewString(),
		Kind:       "block.sealed",
		Index:      b.Index,
		BlockHash:  b.BlockHash,
		MerkleRoot: b.MerkleRoot,
		Events:     eventCount,
		SealedAt:   b.CreatedAt,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("marshal webhook payload", zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.logger.Error("build webhook request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("webhook delivery failed",
			zap.String("url", n.url),
			zap.Int64("index", b.Index),
			zap.Error(err),
		)
		return
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 300 {
		n.logger.Warn("webhook delivery rejected",
			zap.String("url", n.url),
			zap.Int64("index", b.Index),
			zap.Int("status", resp.StatusCode),
		)
		return
	}
	n.logger.Debug("webhook delivered",
		zap.Int64("index", b.Index),
		zap.String("delivery_id", payload.DeliveryID),
	)
}
