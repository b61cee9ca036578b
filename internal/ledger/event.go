package ledger

import (
	"fmt"
	"time"

	"github.com/auditmesh/auditmesh/internal/canonical"
)

// isoFormat renders a timestamp the way the audit chain has always hashed
// it: UTC, seconds plus a fixed six-digit microsecond fraction when the
// instant is sub-second, and a "+00:00" offset. Timestamps are truncated
// to microseconds before hashing so the stored row reproduces the exact
// text that was hashed.
func isoFormat(t time.Time) string {
	t = t.UTC()
	if t.Nanosecond() == 0 {
		return t.Format("2006-01-02T15:04:05") + "+00:00"
	}
	return t.Format("2006-01-02T15:04:05.000000") + "+00:00"
}

// now returns the current UTC instant at microsecond resolution, the
// finest granularity both isoFormat and a timestamptz column can store.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// ComputeEventHash returns the content fingerprint of a fact: the SHA-256
// of the canonical encoding of all nine event fields. createdAt must be
// the exact instant stored with the event.
func ComputeEventHash(in RecordInput, createdAt time.Time) (string, error) {
	var actorID any
	if in.ActorID != nil {
		actorID = *in.ActorID
	}
	return canonical.Hash(map[string]any{
		"actor_type":  in.ActorType,
		"actor_id":    actorID,
		"entity_type": in.EntityType,
		"entity_id":   in.EntityID,
		"action":      in.Action,
		"before":      in.Before,
		"after":       in.After,
		"meta":        in.Meta,
		"created_at":  isoFormat(createdAt),
	})
}

// normalizeInput canonicalizes the opaque payloads before they are hashed
// and persisted. The stored bytes must be byte-identical to what the
// fingerprint covered: json columns keep the text as written, and the
// canonical form survives a decode/re-encode round trip unchanged, so
// verification over re-read rows reproduces the original digest.
// Canonical encoding is idempotent, so normalizing does not change the
// resulting hash.
func normalizeInput(in RecordInput) (RecordInput, error) {
	var err error
	if in.Before, err = canonical.Normalize(in.Before); err != nil {
		return in, fmt.Errorf("normalize before: %w", err)
	}
	if in.After, err = canonical.Normalize(in.After); err != nil {
		return in, fmt.Errorf("normalize after: %w", err)
	}
	if in.Meta, err = canonical.Normalize(in.Meta); err != nil {
		return in, fmt.Errorf("normalize meta: %w", err)
	}
	return in, nil
}

// recomputeEventHash re-derives an event's fingerprint from its stored
// fields, as the verifier does.
func recomputeEventHash(e *Event) (string, error) {
	return ComputeEventHash(RecordInput{
		ActorType:  e.ActorType,
		ActorID:    e.ActorID,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Action:     e.Action,
		Before:     e.Before,
		After:      e.After,
		Meta:       e.Meta,
	}, e.CreatedAt)
}
