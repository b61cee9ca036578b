package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// sealLockKey is a stable PostgreSQL advisory lock key serialising the
// chain-tip read and block creation across all sealer processes. The
// value is arbitrary but must be consistent across every instance.
const sealLockKey = int64(7_841_220_904)

const eventColumns = `id, created_at, actor_type, actor_id, entity_type, entity_id,
	action, before, after, meta, event_hash, in_block`

// PostgresLedger persists the audit chain to a PostgreSQL database.
// It implements the Ledger interface.
type PostgresLedger struct {
	pool     *pgxpool.Pool
	logger   *zap.Logger
	notifier Notifier
}

// NewPostgresLedger creates a PostgresLedger backed by the given
// connection pool.
func NewPostgresLedger(pool *pgxpool.Pool, logger *zap.Logger) *PostgresLedger {
	return &PostgresLedger{pool: pool, logger: logger}
}

// SetNotifier installs the capability told about sealed blocks.
func (l *PostgresLedger) SetNotifier(n Notifier) {
	l.notifier = n
}

// Record implements Ledger. The timestamp is captured once and the same
// instant is both hashed and stored; re-reading the clock after hashing
// would silently break fingerprint reproducibility. Payloads are stored
// in their canonical form for the same reason: the verifier re-hashes
// the persisted bytes, not the bytes the caller sent.
func (l *PostgresLedger) Record(ctx context.Context, in RecordInput) (*Event, error) {
	in, err := normalizeInput(in)
	if err != nil {
		return nil, err
	}
	createdAt := now()
	hash, err := ComputeEventHash(in, createdAt)
	if err != nil {
		return nil, fmt.Errorf("compute event hash: %w", err)
	}

	event := &Event{
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
	if err := l.pool.QueryRow(ctx,
		`INSERT INTO audit_events
		   (created_at, actor_type, actor_id, entity_type, entity_id, action, before, after, meta, event_hash, in_block)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, false)
		 RETURNING id`,
		createdAt, in.ActorType, in.ActorID, in.EntityType, in.EntityID,
		in.Action, in.Before, in.After, in.Meta, hash,
	).Scan(&event.ID); err != nil {
		return nil, fmt.Errorf("insert audit event: %w", err)
	}

	observeRecord()
	l.logger.Debug("event recorded",
		zap.Int64("id", event.ID),
		zap.String("entity", in.EntityType+"#"+in.EntityID),
		zap.String("action", in.Action),
	)
	return event, nil
}

// Seal implements Ledger. The whole protocol runs in one transaction:
//
//  1. Claim up to maxEvents unsealed events in ascending id order with
//     FOR UPDATE SKIP LOCKED — rows claimed by a concurrent sealer are
//     skipped rather than waited for, so claims are always disjoint.
//  2. Take the advisory sealing lock, then read the chain tip. This step
//     blocks concurrent sealers, so no two can compute the same next
//     index or previous link (including two racing genesis attempts).
//  3. Insert the block and its memberships and flip the claimed events
//     to sealed. Any failure rolls everything back; no event is left
//     half-sealed and no orphan block or membership survives.
func (l *PostgresLedger) Seal(ctx context.Context, maxEvents int) (*Block, error) {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	events, err := claimUnsealed(ctx, tx, maxEvents)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		observeSeal(0)
		return nil, nil
	}

	leaves := make([]string, len(events))
	for i, e := range events {
		leaves[i] = e.EventHash
	}
	root := MerkleRoot(leaves)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", sealLockKey); err != nil {
		return nil, fmt.Errorf("acquire sealing lock: %w", err)
	}

	var index int64
	var prev *string
	var tipIndex int64
	var tipHash string
	err = tx.QueryRow(ctx,
		"SELECT idx, block_hash FROM audit_blocks ORDER BY idx DESC LIMIT 1",
	).Scan(&tipIndex, &tipHash)
	switch {
	case err == nil:
		index = tipIndex + 1
		prev = &tipHash
	case errors.Is(err, pgx.ErrNoRows):
		// genesis block: index 0, no previous link
	default:
		return nil, fmt.Errorf("read chain tip: %w", err)
	}

	createdAt := now()
	blockHash, err := ComputeBlockHash(index, createdAt, prev, root)
	if err != nil {
		return nil, fmt.Errorf("compute block hash: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO audit_blocks (idx, created_at, prev_block_hash, merkle_root, block_hash)
		 VALUES ($1, $2, $3, $4, $5)`,
		index, createdAt, prev, root, blockHash,
	); err != nil {
		return nil, fmt.Errorf("insert block %d: %w", index, err)
	}

	batch := &pgx.Batch{}
	ids := make([]int64, len(events))
	for i, e := range events {
		ids[i] = e.ID
		batch.Queue(
			`INSERT INTO audit_block_memberships (block_idx, event_id, leaf_idx, leaf_hash)
			 VALUES ($1, $2, $3, $4)`,
			index, e.ID, i, e.EventHash,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, fmt.Errorf("insert memberships for block %d: %w", index, err)
	}

	if _, err := tx.Exec(ctx,
		"UPDATE audit_events SET in_block = true WHERE id = ANY($1)", ids,
	); err != nil {
		return nil, fmt.Errorf("mark events sealed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit seal tx: %w", err)
	}

	block := &Block{
		Index:         index,
		CreatedAt:     createdAt,
		PrevBlockHash: prev,
		MerkleRoot:    root,
		BlockHash:     blockHash,
	}
	observeSeal(len(events))
	l.logger.Info("block sealed",
		zap.Int64("index", index),
		zap.Int("events", len(events)),
		zap.String("block_hash", blockHash),
		zap.String("merkle_root", root),
	)
	if l.notifier != nil {
		l.notifier.BlockSealed(ctx, block, len(events))
	}
	return block, nil
}

// claimUnsealed selects up to limit unsealed events in ascending id
// order, exclusively claiming them for this transaction. SKIP LOCKED
// makes the claim non-blocking: rows already claimed elsewhere simply
// shrink this batch.
func claimUnsealed(ctx context.Context, tx pgx.Tx, limit int) ([]*Event, error) {
	rows, err := tx.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM audit_events
		 WHERE in_block = false
		 ORDER BY id ASC
		 LIMIT $1
		 FOR UPDATE SKIP LOCKED`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim unsealed events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// Verify implements Ledger. It replays the full chain by ascending index,
// O(n) in events; may be slow for very large chains.
func (l *PostgresLedger) Verify(ctx context.Context) (*Report, error) {
	blocks, err := l.allBlocks(ctx)
	if err != nil {
		return nil, err
	}

	var prev *Block
	for _, b := range blocks {
		members, events, err := l.blockMembers(ctx, b.Index)
		if err != nil {
			return nil, err
		}
		report, err := verifyOne(prev, b, members, events)
		if err != nil {
			return nil, err
		}
		if report != nil {
			observeVerify(false)
			l.logger.Warn("chain integrity violation", zap.String("where", report.Where))
			return report, nil
		}
		prev = b
	}
	observeVerify(true)
	return &Report{OK: true, Blocks: len(blocks)}, nil
}

// Block implements Ledger.
func (l *PostgresLedger) Block(ctx context.Context, index int64) (*Block, error) {
	b := &Block{}
	if err := l.pool.QueryRow(ctx,
		`SELECT idx, created_at, prev_block_hash, merkle_root, block_hash
		 FROM audit_blocks WHERE idx = $1`, index,
	).Scan(&b.Index, &b.CreatedAt, &b.PrevBlockHash, &b.MerkleRoot, &b.BlockHash); err != nil {
		return nil, fmt.Errorf("get block %d: %w", index, err)
	}
	return b, nil
}

// Memberships implements Ledger.
func (l *PostgresLedger) Memberships(ctx context.Context, index int64) ([]*Membership, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT block_idx, event_id, leaf_idx, leaf_hash
		 FROM audit_block_memberships WHERE block_idx = $1 ORDER BY leaf_idx ASC`, index,
	)
	if err != nil {
		return nil, fmt.Errorf("query memberships for block %d: %w", index, err)
	}
	defer rows.Close()

	var out []*Membership
	for rows.Next() {
		m := &Membership{}
		if err := rows.Scan(&m.BlockIndex, &m.EventID, &m.LeafIndex, &m.LeafHash); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Stats implements Ledger.
func (l *PostgresLedger) Stats(ctx context.Context) (*Stats, error) {
	s := &Stats{}
	if err := l.pool.QueryRow(ctx,
		`SELECT count(*), count(*) FILTER (WHERE NOT in_block) FROM audit_events`,
	).Scan(&s.Events, &s.Unsealed); err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	if err := l.pool.QueryRow(ctx, "SELECT count(*) FROM audit_blocks").Scan(&s.Blocks); err != nil {
		return nil, fmt.Errorf("count blocks: %w", err)
	}

	var tip string
	err := l.pool.QueryRow(ctx,
		"SELECT block_hash FROM audit_blocks ORDER BY idx DESC LIMIT 1",
	).Scan(&tip)
	switch {
	case err == nil:
		s.TipHash = &tip
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return nil, fmt.Errorf("read chain tip: %w", err)
	}
	return s, nil
}

func (l *PostgresLedger) allBlocks(ctx context.Context) ([]*Block, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT idx, created_at, prev_block_hash, merkle_root, block_hash
		 FROM audit_blocks ORDER BY idx ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query blocks: %w", err)
	}
	defer rows.Close()

	var out []*Block
	for rows.Next() {
		b := &Block{}
		if err := rows.Scan(&b.Index, &b.CreatedAt, &b.PrevBlockHash, &b.MerkleRoot, &b.BlockHash); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// blockMembers loads a block's memberships in leaf order together with
// the live rows of the events they reference.
func (l *PostgresLedger) blockMembers(ctx context.Context, index int64) ([]*Membership, map[int64]*Event, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT m.block_idx, m.event_id, m.leaf_idx, m.leaf_hash,
		        e.id, e.created_at, e.actor_type, e.actor_id, e.entity_type, e.entity_id,
		        e.action, e.before, e.after, e.meta, e.event_hash, e.in_block
		 FROM audit_block_memberships m
		 JOIN audit_events e ON e.id = m.event_id
		 WHERE m.block_idx = $1
		 ORDER BY m.leaf_idx ASC`, index,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("query members for block %d: %w", index, err)
	}
	defer rows.Close()

	var members []*Membership
	events := make(map[int64]*Event)
	for rows.Next() {
		m := &Membership{}
		e := &Event{}
		if err := rows.Scan(
			&m.BlockIndex, &m.EventID, &m.LeafIndex, &m.LeafHash,
			&e.ID, &e.CreatedAt, &e.ActorType, &e.ActorID, &e.EntityType, &e.EntityID,
			&e.Action, &e.Before, &e.After, &e.Meta, &e.EventHash, &e.InBlock,
		); err != nil {
			return nil, nil, fmt.Errorf("scan member row: %w", err)
		}
		members = append(members, m)
		events[e.ID] = e
	}
	return members, events, rows.Err()
}

func scanEvents(rows pgx.Rows) ([]*Event, error) {
	var out []*Event
	for rows.Next() {
		e := &Event{}
		if err := rows.Scan(
			&e.ID, &e.CreatedAt, &e.ActorType, &e.ActorID, &e.EntityType, &e.EntityID,
			&e.Action, &e.Before, &e.After, &e.Meta, &e.EventHash, &e.InBlock,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
