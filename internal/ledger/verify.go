package ledger

import "fmt"

// verifyOne checks a single block against its predecessor, its
// memberships ordered by leaf index, and the live events they reference.
// It returns nil when the block is intact, otherwise a failing Report
// naming the first mismatch. Checks run in the same order the chain was
// built: header hash, previous link, Merkle root, then per-event
// fingerprints.
func verifyOne(prev, b *Block, members []*Membership, eventsByID map[int64]*Event) (*Report, error) {
	expected, err := ComputeBlockHash(b.Index, b.CreatedAt, b.PrevBlockHash, b.MerkleRoot)
	if err != nil {
		return nil, fmt.Errorf("recompute block hash at index %d: %w", b.Index, err)
	}
	if expected != b.BlockHash {
		return &Report{Where: fmt.Sprintf("block_hash mismatch at index %d", b.Index)}, nil
	}

	switch {
	case prev == nil && b.PrevBlockHash != nil,
		prev != nil && (b.PrevBlockHash == nil || *b.PrevBlockHash != prev.BlockHash):
		return &Report{Where: fmt.Sprintf("prev_link mismatch at index %d", b.Index)}, nil
	}

	leaves := make([]string, len(members))
	for i, m := range members {
		leaves[i] = m.LeafHash
	}
	if MerkleRoot(leaves) != b.MerkleRoot {
		return &Report{Where: fmt.Sprintf("merkle_root mismatch at index %d", b.Index)}, nil
	}

	for _, m := range members {
		event, ok := eventsByID[m.EventID]
		if !ok {
			return nil, fmt.Errorf("membership for missing event %d in block %d", m.EventID, b.Index)
		}
		recomputed, err := recomputeEventHash(event)
		if err != nil {
			return nil, fmt.Errorf("recompute event %d hash: %w", event.ID, err)
		}
		if recomputed != event.EventHash || m.LeafHash != event.EventHash {
			return &Report{Where: fmt.Sprintf("event hash mismatch event#%d in block %d", event.ID, b.Index)}, nil
		}
	}
	return nil, nil
}
