// Package ledger implements a tamper-evident, append-only audit trail.
//
// Facts are recorded as immutable events, each carrying a SHA-256
// fingerprint of its canonical encoding. A periodic sealer batches
// unsealed events into blocks: every block stores the Merkle root of its
// members' fingerprints, the hash of the previous block, and a hash of
// its own header, forming a single unforkable chain. Verify replays the
// whole chain and reports the first hash, link, root or event mismatch.
//
// Two implementations of the Ledger interface are provided:
//   - MemoryLedger: in-process, for testing and development.
//   - PostgresLedger: durable, for production use.
package ledger
