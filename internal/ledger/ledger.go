package ledger

import (
	"context"
	"encoding/json"
	"time"
)

// DefaultMaxEvents is the batch bound used when Seal is called with a
// non-positive limit.
const DefaultMaxEvents = 512

// Event is a single immutable audit fact. No field is ever mutated after
// creation except InBlock, which flips to true exactly once when the
// event is sealed.
type Event struct {
	ID         int64           `json:"id"`
	CreatedAt  time.Time       `json:"created_at"`
	ActorType  string          `json:"actor_type"` // "user" | "system" | "scheduler"
	ActorID    *string         `json:"actor_id,omitempty"`
	EntityType string          `json:"entity_type"` // "Task" | "Shift" | "Cargo" | ...
	EntityID   string          `json:"entity_id"`
	Action     string          `json:"action"` // "CREATE" | "ASSIGN" | "UPDATE" | "CLOSE" | ...
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	Meta       json.RawMessage `json:"meta,omitempty"`
	EventHash  string          `json:"event_hash"`
	InBlock    bool            `json:"in_block"`
}

// RecordInput carries the fields of a fact to witness. Before, After and
// Meta are opaque JSON payloads; nil means absent and hashes as null.
type RecordInput struct {
	ActorType  string
	ActorID    *string
	EntityType string
	EntityID   string
	Action     string
	Before     json.RawMessage
	After      json.RawMessage
	Meta       json.RawMessage
}

// Block is a sealed batch header. PrevBlockHash is nil only for index 0.
type Block struct {
	Index         int64     `json:"index"`
	CreatedAt     time.Time `json:"created_at"`
	PrevBlockHash *string   `json:"prev_block_hash"`
	MerkleRoot    string    `json:"merkle_root"`
	BlockHash     string    `json:"block_hash"`
}

// Membership binds one sealed event to its block and its leaf position.
// LeafHash is a copy of the event's fingerprint taken at sealing time.
type Membership struct {
	BlockIndex int64  `json:"block_index"`
	EventID    int64  `json:"event_id"`
	LeafIndex  int    `json:"leaf_index"`
	LeafHash   string `json:"leaf_hash"`
}

// Report is the outcome of a full chain verification. An integrity
// violation is a terminal finding, not an error: Where names the first
// mismatch and its location.
type Report struct {
	OK     bool   `json:"ok"`
	Blocks int    `json:"blocks"`
	Where  string `json:"where,omitempty"`
}

// Stats summarises the ledger for operational tooling.
type Stats struct {
	Events   int64   `json:"events"`
	Unsealed int64   `json:"unsealed"`
	Blocks   int64   `json:"blocks"`
	TipHash  *string `json:"tip_hash"`
}

// Notifier is told about every durably sealed block. Implementations must
// not block the sealer for long and must never fail it.
type Notifier interface {
	BlockSealed(ctx context.Context, b *Block, eventCount int)
}

// Ledger is the interface for the append-only audit chain. Both
// MemoryLedger and PostgresLedger implement this interface.
type Ledger interface {
	// Record computes the fingerprint of a fact and persists it as a new
	// unsealed event. The creation timestamp is captured once and the
	// same instant is hashed and stored.
	Record(ctx context.Context, in RecordInput) (*Event, error)

	// Seal atomically batches up to maxEvents unsealed events into a new
	// block chained to the current tip. It returns (nil, nil) when there
	// is nothing to seal. Safe to call concurrently from any number of
	// processes: concurrent calls seal disjoint batches or nothing.
	Seal(ctx context.Context, maxEvents int) (*Block, error)

	// Verify walks the whole chain, recomputing every hash and link, and
	// stops at the first violation. Read-only. The returned error is
	// reserved for storage failures; integrity findings go in the Report.
	Verify(ctx context.Context) (*Report, error)

	// Block returns the block at the given index.
	Block(ctx context.Context, index int64) (*Block, error)

	// Memberships returns a block's memberships ordered by leaf index.
	Memberships(ctx context.Context, index int64) ([]*Membership, error)

	// Stats returns event, unsealed-event and block counts plus the tip hash.
	Stats(ctx context.Context) (*Stats, error)
}
