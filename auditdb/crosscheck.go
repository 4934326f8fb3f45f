package auditdb

import (
	"encoding/binary"
	"math/bits"

	"golang.org/x/crypto/blake2b"
)

// CrossCheckLeafOrder is an independent, off-wire check used by this
// package's tests: it folds the given leaf values into a single digest
// using BLAKE2b instead of the SHA-256 contract that actually goes on disk.
// Its purpose is not to double-check the hash *algorithm* -- it uses a
// different one on purpose -- but to give the test suite a second way of
// confirming that Construct read exactly these N values in exactly this
// order, independent of any bug that might be shared between the "build
// the tree" code path and a same-algorithm "recompute the root" helper.
// The result is never written to a tree file and is never compared against
// a node's Digest field.
//
// This is adapted from the teacher's Stack type (stack.go): the same
// append-and-merge-by-height discipline, generalized from Stack's
// externally supplied hash.Hash to a fixed BLAKE2b-256 instance, and with
// the leaf/node hash prefixes replaced by this package's own (unrelated to
// the wire format) domain separation bytes.
var (
	crossCheckLeafPrefix = []byte{0x00}
	crossCheckNodePrefix = []byte{0x01}
)

type crossCheckStack struct {
	stack []crossCheckSubtree
	used  uint64
}

type crossCheckSubtree struct {
	height int
	sum    [32]byte
}

func crossCheckLeafSum(value int64) [32]byte {
	var le8 [8]byte
	binary.LittleEndian.PutUint64(le8[:], uint64(value))
	buf := make([]byte, 0, 1+8)
	buf = append(buf, crossCheckLeafPrefix...)
	buf = append(buf, le8[:]...)
	return blake2b.Sum256(buf)
}

func crossCheckNodeSum(left, right [32]byte) [32]byte {
	buf := make([]byte, 0, 1+64)
	buf = append(buf, crossCheckNodePrefix...)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return blake2b.Sum256(buf)
}

func (s *crossCheckStack) appendAtHeight(sum [32]byte, height uint64) {
	i := height
	for ; s.used&(1<<i) != 0; i++ {
		sum = crossCheckNodeSum(s.stack[i].sum, sum)
	}
	if i >= uint64(len(s.stack)) {
		s.stack = append(s.stack, make([]crossCheckSubtree, 1+i-uint64(len(s.stack)))...)
	}
	s.stack[i] = crossCheckSubtree{height: int(i), sum: sum}
	s.used += 1 << height
}

func (s *crossCheckStack) push(value int64) {
	s.appendAtHeight(crossCheckLeafSum(value), 0)
}

// root returns the accumulated cross-check digest, or the zero digest if
// no values have been pushed.
func (s *crossCheckStack) root() [32]byte {
	if s.used == 0 {
		return [32]byte{}
	}
	i := bits.TrailingZeros64(s.used)
	root := s.stack[i]
	for i++; uint64(i) < uint64(len(s.stack)); i++ {
		if s.used&(1<<uint(i)) != 0 {
			root = crossCheckSubtree{height: i, sum: crossCheckNodeSum(s.stack[i].sum, root.sum)}
		}
	}
	return root.sum
}

// CrossCheckLeafOrder folds values[0], values[1], ... in order and returns
// the resulting digest.
func CrossCheckLeafOrder(values []int64) [32]byte {
	var s crossCheckStack
	for _, v := range values {
		s.push(v)
	}
	return s.root()
}
