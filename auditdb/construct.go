package auditdb

import (
	"encoding/binary"
	"fmt"
	"os"

	"gitlab.com/NebulousLabs/errors"

	"github.com/krakenfx/auditdb/internal/binformat"
)

// Construct builds the tree file at treeOutPath from the data file at
// dataInPath, per the construction algorithm: validate the data file,
// create the tree file exclusively, write the leaves, then fold pairs of
// already-written nodes into parents until a single root remains. The
// output is the file itself used as scratch, and the input is read one
// value at a time through a positioned read -- construction never holds
// more than a handful of node-sized buffers in memory, matching the
// source's O(1)-beyond-the-file memory budget (§4.2.3: this is the whole
// point of streaming construction, not an incidental property of it).
//
// On any failure after the tree file has been created, the partial file is
// closed and removed so that construction is atomic with respect to visible
// successful completion.
//
// verifierKey distinguishes "no key supplied" from "an empty key supplied":
// a nil slice means the caller never passed key=... at all and construction
// fails with ErrMissingVerifierKey; a non-nil empty slice is a legitimate
// (if unusual) zero-length key, matching the source's distinction between
// a NULL verifykey_ pointer and a verifykey_ pointing at "".
func Construct(dataInPath, treeOutPath string, verifierKey []byte) error {
	if verifierKey == nil {
		return ErrMissingVerifierKey
	}

	in, numRecords, err := openDataFile(dataInPath)
	if err != nil {
		return err
	}
	defer in.Close()

	fmt.Fprintf(os.Stderr, "Generating tree file from %s\n", dataInPath)

	out, err := binformat.CreateExclusive(treeOutPath)
	if err != nil {
		return err
	}

	if err := constructInto(out, in, numRecords, verifierKey); err != nil {
		if removeErr := out.CloseAndRemove(); removeErr != nil {
			return errors.Compose(err, removeErr)
		}
		return err
	}

	return out.Close()
}

// openDataFile validates the data file's header and size and returns it
// open for positioned reads of individual records, leaving the reading of
// the N leaf values, one positioned read each, to the leaf pass in
// constructInto.
func openDataFile(path string) (*binformat.File, uint32, error) {
	in, err := binformat.OpenRead(path)
	if err != nil {
		return nil, 0, errors.AddContext(ErrMalformedData, err.Error())
	}

	headerBuf := make([]byte, binformat.HeaderSize)
	if err := in.ReadAt(0, headerBuf); err != nil {
		in.Close()
		return nil, 0, errors.AddContext(ErrMalformedData, "could not read input header")
	}
	header, err := binformat.DecodeHeader(headerBuf)
	if err != nil {
		in.Close()
		return nil, 0, errors.AddContext(ErrMalformedData, err.Error())
	}
	if header.Signature != binformat.DataSignature {
		in.Close()
		return nil, 0, errors.AddContext(ErrMalformedData, "invalid data file signature")
	}

	size, err := in.Size()
	if err != nil {
		in.Close()
		return nil, 0, err
	}
	wantSize := int64(binformat.HeaderSize) + int64(header.NumRecords)*8
	if !binformat.IsPowerOfTwoAtLeastTwo(header.NumRecords) || size != wantSize {
		in.Close()
		return nil, 0, errors.AddContext(ErrMalformedData, "invalid record count for data file")
	}

	return in, header.NumRecords, nil
}

// readValueAt reads the i-th leaf value directly from the data file via a
// positioned read, without ever materializing the other N-1 values.
func readValueAt(in *binformat.File, i int) (int64, error) {
	buf := make([]byte, 8)
	if err := in.ReadAt(int64(binformat.HeaderSize)+int64(i)*8, buf); err != nil {
		return 0, errors.AddContext(ErrMalformedData, "could not read record")
	}
	return int64(binary.LittleEndian.Uint64(buf)), nil
}

// constructInto writes the header, the N leaf nodes, then the N-1 internal
// nodes into out, in the exact order the layout in the package docs
// requires. Each leaf value is pulled from in with its own positioned read
// as the leaf pass reaches it; the internal pass only ever re-reads nodes
// already appended to out itself.
func constructInto(out *binformat.File, in *binformat.File, numRecords uint32, verifierKey []byte) error {
	header := binformat.Header{Signature: binformat.TreeSignature, NumRecords: numRecords}
	headerBuf := make([]byte, binformat.HeaderSize)
	header.Encode(headerBuf)
	if err := out.WriteAt(0, headerBuf); err != nil {
		return err
	}

	// Leaf pass: for i = 0..N-1, read the i-th value, hash it, and append it.
	for i := 0; i < int(numRecords); i++ {
		v, err := readValueAt(in, i)
		if err != nil {
			return err
		}
		if v < 0 {
			fmt.Fprintf(os.Stderr, "Notice: data %d contains a negative value of %d\n", i, v)
		}
		digest := leafHash(i, v)
		node := binformat.Node{Digest: digest, Value: v}
		if err := out.Append(binformat.EncodeNodes([]binformat.Node{node})); err != nil {
			return err
		}
	}

	// Internal pass: for j = 0..N-2, read the pair at node-area position 2j
	// (which, after each prior iteration, is always already written -- this
	// is what lets the depth regions interleave correctly without any
	// separate bookkeeping of depth boundaries) and append their parent.
	for j := 0; j < int(numRecords)-1; j++ {
		pairOffset := int64(binformat.HeaderSize) + int64(2*j)*int64(binformat.NodeSize)
		pairBuf := make([]byte, 2*binformat.NodeSize)
		if err := out.ReadAt(pairOffset, pairBuf); err != nil {
			return err
		}
		pair, err := binformat.DecodeNodes(pairBuf)
		if err != nil {
			return err
		}
		digest, value := nodeHash(verifierKey, pair[0].Digest, pair[1].Digest, pair[0].Value, pair[1].Value)
		parent := binformat.Node{Digest: digest, Value: value}
		if err := out.Append(binformat.EncodeNodes([]binformat.Node{parent})); err != nil {
			return err
		}
	}

	return nil
}
