package auditdb

import (
	"math/bits"

	"gitlab.com/NebulousLabs/errors"

	"github.com/krakenfx/auditdb/internal/binformat"
)

// GetRangeProof and VerifyRangeProof generalize the single-leaf proof chain
// (GetNodesByPosition/GetNodesByHash) to a contiguous range of leaves: one
// combined proof that every leaf in [start, end) is a summand of the root,
// instead of one proof chain per leaf.
//
// This is adapted from the teacher's range.go/diff.go bit-decomposition
// algorithm (BuildRangeProof): which subtree sizes belong in the proof is
// determined purely by the binary representations of start and end-1, the
// same way a Merkle path is determined by the binary representation of a
// single leaf index. The difference from the teacher's version is the data
// source: range.go recomputes each subtree root by hashing a stream of raw
// leaves through a SubtreeHasher, whereas here every subtree root of this
// complete power-of-two tree is already stored on disk (at the depth/index
// computed by subtreeRootAt), so the proof is built from direct reads
// instead of rehashing.

// subtreeRootAt returns the node that is the root of the complete subtree
// of `size` leaves starting at leaf index leafIndex. size must be a power
// of two and leafIndex must be a multiple of size.
func (db *DB) subtreeRootAt(leafIndex, size int) (binformat.Node, error) {
	height := bits.TrailingZeros(uint(size))
	indexAtDepth := leafIndex / size
	return db.nodeAt(height, indexAtDepth)
}

// nodeAt returns the node at the given depth (0 = leaf) and index within
// that depth's region, using the same depth-region accumulation as
// GetNodesByPosition.
func (db *DB) nodeAt(depth, indexAtDepth int) (binformat.Node, error) {
	depthLen := int(db.numRecords)
	depthPos := 0
	for d := 0; d < depth; d++ {
		depthPos += depthLen
		depthLen /= 2
	}
	offset := int64(binformat.HeaderSize) + int64(depthPos+indexAtDepth)*int64(binformat.NodeSize)
	buf := make([]byte, binformat.NodeSize)
	if err := db.file.ReadAt(offset, buf); err != nil {
		return binformat.Node{}, err
	}
	return binformat.DecodeNode(buf)
}

// GetRangeProof returns the minimal set of already-materialized subtree
// roots needed to verify that every leaf in [start, end) is part of the
// tree rooted at GetRoot's root, without including any node inside the
// range itself (the verifier is expected to supply or already know those
// leaves).
func (db *DB) GetRangeProof(start, end int) ([]binformat.Node, error) {
	if db.state != stateReady {
		return nil, errors.New("db is not ready")
	}
	n := int(db.numRecords)
	if start < 0 || start > end || end > n || start == end {
		return nil, errors.AddContext(ErrOutOfRange, "illegal proof range")
	}

	var proof []binformat.Node

	// Subtrees strictly to the left of start: one 1 bit in start's binary
	// representation per subtree, largest subtree first.
	leafIndex := 0
	for h := bits.TrailingZeros(uint(n)); h >= 0; h-- {
		size := 1 << uint(h)
		if size > n {
			continue
		}
		if start&size != 0 {
			node, err := db.subtreeRootAt(leafIndex, size)
			if err != nil {
				return nil, err
			}
			proof = append(proof, node)
			leafIndex += size
		}
	}

	// Subtrees strictly to the right of end-1: one 0 bit in (end-1)'s binary
	// representation per subtree, smallest subtree first, stopping once the
	// accumulated leaf index reaches n.
	leafIndex = end
	endMask := end - 1
	for h := 0; leafIndex < n; h++ {
		size := 1 << uint(h)
		if leafIndex+size > n {
			break
		}
		if endMask&size == 0 {
			node, err := db.subtreeRootAt(leafIndex, size)
			if err != nil {
				return nil, err
			}
			proof = append(proof, node)
			leafIndex += size
		}
	}

	return proof, nil
}

// VerifyRangeProof reconstructs the root from a range proof, the leaf
// values within [start, end), and the verifier key, and reports whether it
// matches root. rangeLeaves must hold exactly end-start values, one per
// leaf in the range, in order.
func VerifyRangeProof(numLeaves, start, end int, rangeLeaves []int64, proof []binformat.Node, verifierKey []byte, root binformat.Node) (bool, error) {
	if start < 0 || start > end || end > numLeaves || start == end {
		return false, errors.AddContext(ErrOutOfRange, "illegal proof range")
	}
	if len(rangeLeaves) != end-start {
		return false, errors.New("rangeLeaves length does not match [start, end)")
	}

	stack := newProofStack(verifierKey)

	proofIdx := 0
	for h := bits.TrailingZeros(uint(numLeaves)); h >= 0; h-- {
		size := 1 << uint(h)
		if size > numLeaves {
			continue
		}
		if start&size != 0 {
			if proofIdx >= len(proof) {
				return false, errors.New("range proof too short")
			}
			stack.push(h, proof[proofIdx])
			proofIdx++
		}
	}

	for i := start; i < end; i++ {
		v := rangeLeaves[i-start]
		stack.push(0, binformat.Node{Digest: leafHash(i, v), Value: v})
	}

	leafIndex := end
	endMask := end - 1
	for h := 0; leafIndex < numLeaves; h++ {
		size := 1 << uint(h)
		if leafIndex+size > numLeaves {
			break
		}
		if endMask&size == 0 {
			if proofIdx >= len(proof) {
				return false, errors.New("range proof too short")
			}
			stack.push(h, proof[proofIdx])
			proofIdx++
			leafIndex += size
		}
	}

	got := stack.root()
	return got.Digest == root.Digest && got.Value == root.Value, nil
}

// proofStack folds (height, node) entries pushed in left-to-right physical
// order into a single root, merging two adjacent equal-height entries into
// their parent as soon as they meet. This is the same merge-by-height
// discipline as the teacher's Tree type in merkletree-blake/tree.go
// (joinAllSubTrees/Root), generalized from Tree's single hash.Hash-based
// leafSum/nodeSum to this package's two-stage keyed nodeHash, and stripped
// of Tree's proof-bookkeeping fields since GetRangeProof already knows which
// subtree roots belong in the proof.
type proofStack struct {
	entries     []stackEntry
	verifierKey []byte
}

type stackEntry struct {
	height int
	node   binformat.Node
}

func newProofStack(verifierKey []byte) *proofStack {
	return &proofStack{verifierKey: verifierKey}
}

func (s *proofStack) push(height int, node binformat.Node) {
	s.entries = append(s.entries, stackEntry{height, node})
	for len(s.entries) > 1 && s.entries[len(s.entries)-1].height == s.entries[len(s.entries)-2].height {
		i, j := len(s.entries)-1, len(s.entries)-2
		left, right := s.entries[j], s.entries[i]
		digest, value := nodeHash(s.verifierKey, left.node.Digest, right.node.Digest, left.node.Value, right.node.Value)
		merged := stackEntry{height: left.height + 1, node: binformat.Node{Digest: digest, Value: value}}
		s.entries = append(s.entries[:j], merged)
	}
}

// root folds the remaining entries right-to-left, matching Tree.Root: the
// running accumulator starts as the last (smallest-height) entry and is
// repeatedly combined as the right child of each preceding, taller entry.
func (s *proofStack) root() binformat.Node {
	if len(s.entries) == 0 {
		return binformat.Node{}
	}
	current := s.entries[len(s.entries)-1]
	for i := len(s.entries) - 2; i >= 0; i-- {
		left := s.entries[i]
		digest, value := nodeHash(s.verifierKey, left.node.Digest, current.node.Digest, left.node.Value, current.node.Value)
		current = stackEntry{height: left.height + 1, node: binformat.Node{Digest: digest, Value: value}}
	}
	return current.node
}
