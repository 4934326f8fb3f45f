// Package binformat implements the fixed on-disk byte layout shared by the
// .data and .tree files: an 8-byte header followed by fixed-size records.
// All multi-byte integers are little-endian; there is no implicit padding
// anywhere in either record type, so every field is (de)serialized
// explicitly rather than through a language-level struct layout.
package binformat

import (
	"encoding/binary"

	"gitlab.com/NebulousLabs/errors"
)

// HeaderSize is the encoded size of a Header in bytes.
const HeaderSize = 8

// DataSignature marks a .data file: a header followed by N little-endian
// signed 64-bit balance records.
var DataSignature = [4]byte{'K', 'A', 'D', 'D'}

// TreeSignature marks a .tree file: a header followed by 2N-1 Node records
// laid out per the breadth-first, bottom-up array described in the package
// docs of auditdb.
var TreeSignature = [4]byte{'K', 'A', 'D', 'T'}

// Header is the fixed 8-byte record at the start of both file shapes.
type Header struct {
	Signature  [4]byte
	NumRecords uint32
}

// Encode writes the header's 8-byte wire representation into buf, which
// must be at least HeaderSize bytes.
func (h Header) Encode(buf []byte) {
	copy(buf[0:4], h.Signature[:])
	binary.LittleEndian.PutUint32(buf[4:8], h.NumRecords)
}

// DecodeHeader parses an 8-byte buffer into a Header.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, errors.New("short header buffer")
	}
	var h Header
	copy(h.Signature[:], buf[0:4])
	h.NumRecords = binary.LittleEndian.Uint32(buf[4:8])
	return h, nil
}

// IsPowerOfTwoAtLeastTwo reports whether n is a power of two and n >= 2, the
// constraint every well-formed numrecords field must satisfy.
func IsPowerOfTwoAtLeastTwo(n uint32) bool {
	return n >= 2 && n&(n-1) == 0
}
