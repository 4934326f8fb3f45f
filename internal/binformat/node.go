package binformat

import (
	"encoding/binary"

	"gitlab.com/NebulousLabs/errors"
)

// DigestSize is the length of a node's digest field.
const DigestSize = 32

// NodeSize is the encoded size of a Node in bytes: a 32-byte digest
// immediately followed by an 8-byte little-endian signed value, no padding.
const NodeSize = DigestSize + 8

// Node is the fixed-layout record shared by leaves and internal nodes. For a
// leaf, Value is the original balance; for an internal node, Value is the
// wrapping sum of its two children's values.
type Node struct {
	Digest [DigestSize]byte
	Value  int64
}

// Encode writes the node's 40-byte wire representation into buf, which must
// be at least NodeSize bytes.
func (n Node) Encode(buf []byte) {
	copy(buf[0:DigestSize], n.Digest[:])
	binary.LittleEndian.PutUint64(buf[DigestSize:NodeSize], uint64(n.Value))
}

// DecodeNode parses a NodeSize-byte buffer into a Node.
func DecodeNode(buf []byte) (Node, error) {
	if len(buf) < NodeSize {
		return Node{}, errors.New("short node buffer")
	}
	var n Node
	copy(n.Digest[:], buf[0:DigestSize])
	n.Value = int64(binary.LittleEndian.Uint64(buf[DigestSize:NodeSize]))
	return n, nil
}

// DecodeNodes parses a buffer holding a run of consecutive nodes.
func DecodeNodes(buf []byte) ([]Node, error) {
	if len(buf)%NodeSize != 0 {
		return nil, errors.New("node buffer is not a multiple of the node size")
	}
	count := len(buf) / NodeSize
	nodes := make([]Node, count)
	for i := 0; i < count; i++ {
		n, err := DecodeNode(buf[i*NodeSize : (i+1)*NodeSize])
		if err != nil {
			return nil, err
		}
		nodes[i] = n
	}
	return nodes, nil
}

// EncodeNodes serializes a run of nodes back-to-back.
func EncodeNodes(nodes []Node) []byte {
	buf := make([]byte, len(nodes)*NodeSize)
	for i, n := range nodes {
		n.Encode(buf[i*NodeSize : (i+1)*NodeSize])
	}
	return buf
}
