// Package canonical implements the deterministic serialization every
// fingerprint in the ledger is computed over.
//
// Values encode as compact JSON with object keys sorted lexicographically
// at every nesting level, "," and ":" as the only separators, and
// non-ASCII characters written literally as UTF-8 rather than escaped.
// Two structurally equal values always encode to identical bytes, and any
// structural difference changes the bytes.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"unicode/utf8"
)

// Marshal returns the canonical encoding of v.
//
// v must be built from the tagged union this encoder understands:
// nil, bool, string, json.Number, the common integer and float types,
// []any, map[string]any, or json.RawMessage (decoded with UseNumber so
// numeric literals are preserved as written). Anything else is an error;
// the encoder never falls back to reflection or native map iteration
// order.
func Marshal(v any) ([]byte, error) {
	return appendValue(nil, v)
}

// Hash returns the lowercase 64-character hex SHA-256 digest of the
// canonical encoding of v.
func Hash(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Normalize re-encodes a raw JSON payload into its canonical form. An
// absent payload (nil or empty) stays nil. Persisting the normalized
// bytes guarantees that decoding and re-encoding the stored payload
// reproduces exactly the bytes a fingerprint was computed over.
func Normalize(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	b, err := Marshal(raw)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

func appendValue(dst []byte, v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return append(dst, "null"...), nil
	case bool:
		if x {
			return append(dst, "true"...), nil
		}
		return append(dst, "false"...), nil
	case string:
		return appendString(dst, x), nil
	case json.Number:
		return append(dst, string(x)...), nil
	case int:
		return strconv.AppendInt(dst, int64(x), 10), nil
	case int32:
		return strconv.AppendInt(dst, int64(x), 10), nil
	case int64:
		return strconv.AppendInt(dst, x, 10), nil
	case uint64:
		return strconv.AppendUint(dst, x, 10), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("canonical: cannot encode %v", x)
		}
		return strconv.AppendFloat(dst, x, 'g', -1, 64), nil
	case json.RawMessage:
		if len(x) == 0 {
			return append(dst, "null"...), nil
		}
		decoded, err := decodeRaw(x)
		if err != nil {
			return nil, fmt.Errorf("canonical: decode raw payload: %w", err)
		}
		return appendValue(dst, decoded)
	case []any:
		dst = append(dst, '[')
		for i, elem := range x {
			if i > 0 {
				dst = append(dst, ',')
			}
			var err error
			dst, err = appendValue(dst, elem)
			if err != nil {
				return nil, err
			}
		}
		return append(dst, ']'), nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		dst = append(dst, '{')
		for i, k := range keys {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = appendString(dst, k)
			dst = append(dst, ':')
			var err error
			dst, err = appendValue(dst, x[k])
			if err != nil {
				return nil, err
			}
		}
		return append(dst, '}'), nil
	default:
		return nil, fmt.Errorf("canonical: unsupported type %T", v)
	}
}

// appendString writes s as a JSON string, escaping only the quote, the
// backslash, and control characters. Non-ASCII runes pass through as
// literal UTF-8.
func appendString(dst []byte, s string) []byte {
	dst = append(dst, '"')
	for _, r := range s {
		switch r {
		case '"':
			dst = append(dst, '\\', '"')
		case '\\':
			dst = append(dst, '\\', '\\')
		case '\n':
			dst = append(dst, '\\', 'n')
		case '\r':
			dst = append(dst, '\\', 'r')
		case '\t':
			dst = append(dst, '\\', 't')
		default:
			if r < 0x20 {
				dst = append(dst, fmt.Sprintf(`\u%04x`, r)...)
			} else {
				dst = utf8.AppendRune(dst, r)
			}
		}
	}
	return append(dst, '"')
}

func decodeRaw(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
