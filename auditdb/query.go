package auditdb

import (
	"bytes"
	"fmt"
	"io"

	"gitlab.com/NebulousLabs/errors"

	"github.com/krakenfx/auditdb/internal/binformat"
)

// dumpBlockSize is the number of nodes read per block by Dump and
// GetNodesByHash, matching the source's 512-entry stack buffer.
const dumpBlockSize = 512

// Dump streams every node's digest in file order to w, lowercase hex, one
// digest (64 hex characters) per line.
func (db *DB) Dump(w io.Writer) error {
	if db.state != stateReady {
		return errors.New("db is not ready")
	}
	total := int(db.numRecords)*2 - 1
	offset := int64(binformat.HeaderSize)

	for pos := 0; pos < total; pos += dumpBlockSize {
		n := dumpBlockSize
		if pos+n > total {
			n = total - pos
		}
		buf := make([]byte, n*binformat.NodeSize)
		if err := db.file.ReadAt(offset, buf); err != nil {
			return err
		}
		nodes, err := binformat.DecodeNodes(buf)
		if err != nil {
			return err
		}
		for _, node := range nodes {
			fmt.Fprintf(w, "%x\n", node.Digest)
		}
		offset += int64(len(buf))
	}
	return nil
}

// GetRoot returns the root's two children and the root itself, in that
// order. The layout guarantees that for any N >= 2, the last three node
// records in the file are exactly (root-left-child, root-right-child,
// root); construction preserves this.
func (db *DB) GetRoot() (left, right, root binformat.Node, err error) {
	if db.state != stateReady {
		return binformat.Node{}, binformat.Node{}, binformat.Node{}, errors.New("db is not ready")
	}
	total := int64(db.numRecords)*2 - 1
	offset := int64(binformat.HeaderSize) + (total-3)*int64(binformat.NodeSize)

	buf := make([]byte, 3*binformat.NodeSize)
	if err := db.file.ReadAt(offset, buf); err != nil {
		return binformat.Node{}, binformat.Node{}, binformat.Node{}, err
	}
	nodes, err := binformat.DecodeNodes(buf)
	if err != nil {
		return binformat.Node{}, binformat.Node{}, binformat.Node{}, err
	}
	return nodes[0], nodes[1], nodes[2], nil
}

// GetNodesByPosition returns the chain of nodes from leaf i up to and
// including the root, computed by pure arithmetic over the depth-region
// layout: no pointers, no index structure. The chain has exactly
// 1+log2(N) entries.
func (db *DB) GetNodesByPosition(i int) ([]binformat.Node, error) {
	if db.state != stateReady {
		return nil, errors.New("db is not ready")
	}
	if i < 0 || i >= int(db.numRecords) {
		return nil, errors.AddContext(ErrOutOfRange, fmt.Sprintf("position %d", i))
	}

	var chain []binformat.Node
	depthLen := int(db.numRecords)
	depthPos := 0
	pos := i
	for depthLen > 0 {
		offset := int64(binformat.HeaderSize) + int64(depthPos+pos)*int64(binformat.NodeSize)
		buf := make([]byte, binformat.NodeSize)
		if err := db.file.ReadAt(offset, buf); err != nil {
			return nil, err
		}
		node, err := binformat.DecodeNode(buf)
		if err != nil {
			return nil, err
		}
		chain = append(chain, node)

		pos /= 2
		depthPos += depthLen
		depthLen /= 2
	}
	return chain, nil
}

// GetNodesByHash scans the leaf region for the first leaf whose digest
// equals hash byte-for-byte, then returns GetNodesByPosition of that leaf.
// Leaf hashes are not guaranteed unique; when several leaves share a
// digest, the lowest index wins. ErrHashNotFound is returned if no leaf
// matches.
func (db *DB) GetNodesByHash(hash [32]byte) ([]binformat.Node, error) {
	if db.state != stateReady {
		return nil, errors.New("db is not ready")
	}
	total := int(db.numRecords)
	offset := int64(binformat.HeaderSize)

	for pos := 0; pos < total; pos += dumpBlockSize {
		n := dumpBlockSize
		if pos+n > total {
			n = total - pos
		}
		buf := make([]byte, n*binformat.NodeSize)
		if err := db.file.ReadAt(offset, buf); err != nil {
			return nil, err
		}
		nodes, err := binformat.DecodeNodes(buf)
		if err != nil {
			return nil, err
		}
		for i, node := range nodes {
			if bytes.Equal(node.Digest[:], hash[:]) {
				return db.GetNodesByPosition(pos + i)
			}
		}
		offset += int64(len(buf))
	}
	return nil, ErrHashNotFound
}
