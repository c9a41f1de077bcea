package chunk

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// EmptyFingerprint is the content address of the empty sequence.
const EmptyFingerprint = "0"

// Fingerprint derives the content address of a sequence: a 64-bit
// xxhash of each element identity, XOR-combined and rendered as 16
// lower-case hex digits. XOR makes the result independent of element
// order; duplicate elements cancel in pairs, which is acceptable for
// the deduplication use case (colliding fingerprints resolve to the
// same store key).
func Fingerprint(s Sequence) string {
	if len(s) == 0 {
		return EmptyFingerprint
	}
	var acc uint64
	for _, e := range s {
		acc ^= xxhash.Sum64String(e.identity())
	}
	return fmt.Sprintf("%016x", acc)
}
