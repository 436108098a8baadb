package catl2

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// Hash256 is the 256-bit perma-cached hash stored beside every inner and
// leaf node, and the 256-bit fields of LedgerInfo. The trie's actual hash
// algorithm is an external concern (the SHAMap collaborator prescribes it,
// per spec §1); Hash256 is just the fixed-size container catl2 persists.
type Hash256 [32]byte

// IsZero reports whether h is the all-zero hash (the hash an empty
// shamap.Trie reports).
func (h Hash256) IsZero() bool { return h == Hash256{} }

// String renders h as lowercase hex.
func (h Hash256) String() string { return hex.EncodeToString(h[:]) }

// Bytes returns a copy of h's 32 bytes.
func (h Hash256) Bytes() []byte {
	b := make([]byte, 32)
	copy(b, h[:])
	return b
}

// Hasher computes the 256-bit digest catl2 stores as a node's perma-cached
// hash. Spec §1 describes the underlying algorithm as "a 512-bit digest,
// first 256 bits retained" and out of scope for this core; Hasher is the
// pluggable seam through which the SHAMap collaborator's algorithm (or, for
// tests, any stand-in) is supplied.
type Hasher interface {
	Sum256(data []byte) Hash256
}

// SHA3Hasher implements Hasher with SHA3-512, truncated to its first 256
// bits, matching the "512-bit digest, first 256 bits retained" contract.
// It is the default Hasher used by the reference shamap implementation.
type SHA3Hasher struct{}

// Sum256 implements Hasher.
func (SHA3Hasher) Sum256(data []byte) Hash256 {
	full := sha3.Sum512(data)
	var out Hash256
	copy(out[:], full[:32])
	return out
}

// DefaultHasher is the Hasher used when a caller does not supply one.
var DefaultHasher Hasher = SHA3Hasher{}
