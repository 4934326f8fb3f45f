package auditdb

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// leafHasher and nodeHasher split the two distinct hashing contracts the way
// the teacher's tree_hasher.go splits LeafHasher/NodeHasher: leaf hashing
// personalizes a single balance, node hashing binds a verifier key across
// two children. Keeping them as separate small functions (rather than one
// hash() with a mode flag) mirrors that separation of concerns.

// dataCode is the per-leaf personalization hook. The specification reserves
// the "%016x:%d" formatting contract for a future keyed derivation; for now
// it is a stub that always returns zero, exactly as the source's
// getDataCode does.
func dataCode(pos int) uint64 {
	return 0
}

// leafHash computes the double-SHA256 digest for the leaf at position pos
// holding value v: SHA256(SHA256("<code>:<value>")), where code is rendered
// as 16 lowercase hex digits and value as a signed base-10 integer.
func leafHash(pos int, v int64) [32]byte {
	s := fmt.Sprintf("%016x:%d", dataCode(pos), v)
	first := sha256.Sum256([]byte(s))
	return sha256.Sum256(first[:])
}

// nodeHash computes the parent digest and value for two children L, R,
// mixing in verifierKey at both hashing stages. The verifierKey segment is
// omitted entirely (not replaced by a zero-length sentinel write) when the
// key is empty, so an absent key and an empty key hash identically.
//
//	parent.value = L.value + R.value               (wrapping)
//	h1           = SHA256(LE8(parent.value) || key || L.digest || R.digest)
//	parent.digest = SHA256(h1 || key)
func nodeHash(verifierKey []byte, lDigest, rDigest [32]byte, lValue, rValue int64) (digest [32]byte, value int64) {
	value = lValue + rValue // wrapping signed addition; overflow is accepted per spec

	var le8 [8]byte
	binary.LittleEndian.PutUint64(le8[:], uint64(value))

	buf := make([]byte, 0, 8+len(verifierKey)+64)
	buf = append(buf, le8[:]...)
	if len(verifierKey) > 0 {
		buf = append(buf, verifierKey...)
	}
	buf = append(buf, lDigest[:]...)
	buf = append(buf, rDigest[:]...)
	h1 := sha256.Sum256(buf)

	buf2 := make([]byte, 0, 32+len(verifierKey))
	buf2 = append(buf2, h1[:]...)
	if len(verifierKey) > 0 {
		buf2 = append(buf2, verifierKey...)
	}
	digest = sha256.Sum256(buf2)

	return digest, value
}
