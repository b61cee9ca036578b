package ledger

import (
	"time"

	"github.com/auditmesh/auditmesh/internal/canonical"
)

// ComputeBlockHash returns the fingerprint of a block header: the SHA-256
// of the canonical encoding of {index, created_at, prev, merkle}. prev is
// nil for the genesis block and hashes as null.
func ComputeBlockHash(index int64, createdAt time.Time, prev *string, merkleRoot string) (string, error) {
	var prevVal any
	if prev != nil {
		prevVal = *prev
	}
	return canonical.Hash(map[string]any{
		"index":      index,
		"created_at": isoFormat(createdAt),
		"prev":       prevVal,
		"merkle":     merkleRoot,
	})
}
