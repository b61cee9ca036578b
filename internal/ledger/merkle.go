package ledger

import (
	"crypto/sha256"
	"encoding/hex"
)

// MerkleRoot reduces an ordered list of hex leaf digests to a single root
// digest.
//
// Each parent is the SHA-256 of the concatenated hex text of its two
// children (the textual digests, not decoded bytes). A level with an odd
// count pairs its last digest with itself; the odd node is never carried
// up unhashed or zero-padded. Chains already sealed under these rules
// only verify if they are reproduced exactly.
//
// An empty list yields the SHA-256 of the empty string. Sealing never
// produces an empty block, but the function is total.
func MerkleRoot(leaves []string) string {
	if len(leaves) == 0 {
		return sha256Hex(nil)
	}
	level := append([]string(nil), leaves...)
	for len(level) > 1 {
		level = pairUp(level)
	}
	return level[0]
}

func pairUp(level []string) []string {
	out := make([]string, 0, (len(level)+1)/2)
	for i := 0; i < len(level); i += 2 {
		a := level[i]
		b := a
		if i+1 < len(level) {
			b = level[i+1]
		}
		out = append(out, sha256Hex([]byte(a+b)))
	}
	return out
}

// sha256Hex returns the hex-encoded SHA-256 digest of data.
func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
