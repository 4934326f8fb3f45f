// Package auditdb implements a keyed Merkle summation tree over an
// append-only file of signed balance records, for publishing a proof of
// solvency: a signed total plus, per record, an inclusion proof that the
// record is a summand of that total.
//
// A DB owns an open tree file, the database name, and optionally a verifier
// key. It carries no in-memory mirror of the tree: every query is served by
// positioned reads against the file. Callers must externally serialize
// access to a single DB; two DBs opened on the same tree file may be used
// concurrently since each owns an independent file descriptor and position.
//
// A tree file is an 8-byte header (signature KADT, then N as a little-endian
// uint32, with N >= 2 a power of two) followed by 2N-1 40-byte nodes in a
// flat, breadth-first, bottom-up array: the N leaves first, then the N/2
// nodes of depth 1, then the N/4 nodes of depth 2, and so on, ending with
// the root. A well-formed tree file is therefore exactly 8 + 40*(2N-1)
// bytes, and its last three nodes are the root's two children and the root.
package auditdb

import (
	"fmt"
	"os"

	"gitlab.com/NebulousLabs/errors"

	"github.com/krakenfx/auditdb/internal/binformat"
)

// state tracks the handle's lifecycle: Closed -> Opening -> {Ready, Failed}.
// There is no transition back to Opening; Close moves any state to Closed.
type state int

const (
	stateClosed state = iota
	stateOpening
	stateReady
	stateFailed
)

// DB is a handle to a single audit tree. Its lifetime bounds the underlying
// file descriptor's lifetime: Close releases both.
type DB struct {
	file        *binformat.File
	dbname      string
	verifierKey []byte
	numRecords  uint32
	state       state
}

func dataPath(dbname string) string { return dbname + ".data" }
func treePath(dbname string) string { return dbname + ".tree" }

// Open opens dbname's tree, constructing it from dbname's data file first if
// the tree does not yet exist. verifierKey may be nil; it is required only
// when construction is triggered.
func Open(dbname string, verifierKey []byte) (*DB, error) {
	db := &DB{
		dbname:      dbname,
		verifierKey: verifierKey,
		state:       stateOpening,
	}

	if _, statErr := os.Stat(treePath(dbname)); os.IsNotExist(statErr) {
		if err := Construct(dataPath(dbname), treePath(dbname), verifierKey); err != nil {
			db.state = stateFailed
			return nil, err
		}
	}

	f, err := binformat.OpenRead(treePath(dbname))
	if err != nil {
		db.state = stateFailed
		return nil, err
	}

	numRecords, err := validateTreeFile(f)
	if err != nil {
		f.Close()
		db.state = stateFailed
		return nil, err
	}

	db.file = f
	db.numRecords = numRecords
	db.state = stateReady
	fmt.Fprintf(os.Stdout, "Using db %s\n", dbname)
	return db, nil
}

// validateTreeFile reads and validates the header of an open tree file per
// the layout invariants in the package docs: signature KADT, N>=2 a power
// of two, and file size exactly 8 + 40*(2N-1).
func validateTreeFile(f *binformat.File) (uint32, error) {
	buf := make([]byte, binformat.HeaderSize)
	if err := f.ReadAt(0, buf); err != nil {
		return 0, errors.AddContext(ErrMalformedTree, "could not read header")
	}
	header, err := binformat.DecodeHeader(buf)
	if err != nil {
		return 0, errors.AddContext(ErrMalformedTree, err.Error())
	}

	size, err := f.Size()
	if err != nil {
		return 0, err
	}

	wantSize := int64(binformat.HeaderSize) + int64(header.NumRecords)*2*int64(binformat.NodeSize) - int64(binformat.NodeSize)
	if header.Signature != binformat.TreeSignature ||
		!binformat.IsPowerOfTwoAtLeastTwo(header.NumRecords) ||
		size != wantSize {
		return 0, errors.AddContext(ErrMalformedTree, "bad tree file")
	}

	return header.NumRecords, nil
}

// NumRecords returns N, the number of leaves in the opened tree.
func (db *DB) NumRecords() int { return int(db.numRecords) }

// Close releases the handle's file descriptor, moving the handle to Closed
// from any prior state.
func (db *DB) Close() error {
	db.state = stateClosed
	if db.file == nil {
		return nil
	}
	return db.file.Close()
}
