package ledger

import (
	"context"
	"fmt"
	"sync"
)

// MemoryLedger is an in-memory, thread-safe Ledger implementation. It is
// primarily useful for testing and for single-process deployments that do
// not require durable persistence across restarts.
//
// One mutex stands in for both locking disciplines of the sealing
// protocol: within a single process, holding it for the whole Seal call
// makes claims disjoint and tip reads strictly sequential.
type MemoryLedger struct {
	mu          sync.RWMutex
	events      []*Event
	blocks      []*Block
	memberships []*Membership
	nextID      int64
	notifier    Notifier
}

// NewMemoryLedger creates an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{nextID: 1}
}

// SetNotifier installs the capability told about sealed blocks.
func (l *MemoryLedger) SetNotifier(n Notifier) {
	l.notifier = n
}

// Record implements Ledger.
func (l *MemoryLedger) Record(_ context.Context, in RecordInput) (*Event, error) {
	in, err := normalizeInput(in)
	if err != nil {
		return nil, err
	}
	createdAt := now()
	hash, err := ComputeEventHash(in, createdAt)
	if err != nil {
		return nil, fmt.Errorf("compute event hash: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	event := &Event{
		ID:         l.nextID,
		CreatedAt:  createdAt,
		ActorType:  in.ActorType,
		ActorID:    in.ActorID,
		EntityType: in.EntityType,
		EntityID:   in.EntityID,
		Action:     in.Action,
		Before:     in.Before,
		After:      in.After,
		Meta:       in.Meta,
		EventHash:  hash,
	}
	l.nextID++
	l.events = append(l.events, event)
	observeRecord()
	return event, nil
}

// Seal implements Ledger.
func (l *MemoryLedger) Seal(ctx context.Context, maxEvents int) (*Block, error) {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var batch []*Event
	for _, e := range l.events {
		if e.InBlock {
			continue
		}
		batch = append(batch, e)
		if len(batch) == maxEvents {
			break
		}
	}
	if len(batch) == 0 {
		observeSeal(0)
		return nil, nil
	}

	leaves := make([]string, len(batch))
	for i, e := range batch {
		leaves[i] = e.EventHash
	}
	root := MerkleRoot(leaves)

	var index int64
	var prev *string
	if n := len(l.blocks); n > 0 {
		tip := l.blocks[n-1]
		index = tip.Index + 1
		prev = &tip.BlockHash
	}

	createdAt := now()
	blockHash, err := ComputeBlockHash(index, createdAt, prev, root)
	if err != nil {
		return nil, fmt.Errorf("compute block hash: %w", err)
	}

	block := &Block{
		Index:         index,
		CreatedAt:     createdAt,
		PrevBlockHash: prev,
		MerkleRoot:    root,
		BlockHash:     blockHash,
	}
	l.blocks = append(l.blocks, block)
	for i, e := range batch {
		l.memberships = append(l.memberships, &Membership{
			BlockIndex: index,
			EventID:    e.ID,
			LeafIndex:  i,
			LeafHash:   e.EventHash,
		})
		e.InBlock = true
	}

	observeSeal(len(batch))
	if l.notifier != nil {
		l.notifier.BlockSealed(ctx, block, len(batch))
	}
	return block, nil
}

// Verify implements Ledger. It walks the chain by ascending index and
// stops at the first violation.
func (l *MemoryLedger) Verify(_ context.Context) (*Report, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	eventsByID := make(map[int64]*Event, len(l.events))
	for _, e := range l.events {
		eventsByID[e.ID] = e
	}

	var prev *Block
	for _, b := range l.blocks {
		members := l.membersOf(b.Index)
		report, err := verifyOne(prev, b, members, eventsByID)
		if err != nil {
			return nil, err
		}
		if report != nil {
			observeVerify(false)
			return report, nil
		}
		prev = b
	}
	observeVerify(true)
	return &Report{OK: true, Blocks: len(l.blocks)}, nil
}

// Block implements Ledger.
func (l *MemoryLedger) Block(_ context.Context, index int64) (*Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, b := range l.blocks {
		if b.Index == index {
			return b, nil
		}
	}
	return nil, fmt.Errorf("block %d not found", index)
}

// Memberships implements Ledger.
func (l *MemoryLedger) Memberships(_ context.Context, index int64) ([]*Membership, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.membersOf(index), nil
}

// Stats implements Ledger.
func (l *MemoryLedger) Stats(_ context.Context) (*Stats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := &Stats{Events: int64(len(l.events)), Blocks: int64(len(l.blocks))}
	for _, e := range l.events {
		if !e.InBlock {
			s.Unsealed++
		}
	}
	if n := len(l.blocks); n > 0 {
		s.TipHash = &l.blocks[n-1].BlockHash
	}
	return s, nil
}

// membersOf returns a block's memberships ordered by leaf index. Callers
// must hold l.mu.
func (l *MemoryLedger) membersOf(index int64) []*Membership {
	var out []*Membership
	for _, m := range l.memberships {
		if m.BlockIndex == index {
			out = append(out, m)
		}
	}
	// memberships are appended in leaf order, so out is already sorted
	return out
}
