// Package notify delivers sealed-block announcements to operational
// collaborators. Implementations satisfy ledger.Notifier and are injected
// into the sealer; none of them may fail or stall a seal.
package notify

import (
	"context"

	"github.com/auditmesh/auditmesh/internal/ledger"
	"go.uber.org/zap"
)

// Noop discards every notification.
type Noop struct{}

// NewNoop creates a Noop notifier.
func NewNoop() *Noop { return &Noop{} }

// BlockSealed implements ledger.Notifier.
func (*Noop) BlockSealed(context.Context, *ledger.Block, int) {}

// Log writes a line per sealed block. The default when no webhook is
// configured.
type Log struct {
	logger *zap.Logger
}

// NewLog creates a Log notifier.
func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger}
}

// BlockSealed implements ledger.Notifier.
func (n *Log) BlockSealed(_ context.Context, b *ledger.Block, eventCount int) {
	n.logger.Info("sealed block announced",
		zap.Int64("index", b.Index),
		zap.String("block_hash", b.BlockHash),
		zap.String("merkle_root", b.MerkleRoot),
		zap.Int("events", eventCount),
	)
}
