package auditdb

import (
	"gitlab.com/NebulousLabs/errors"

	"github.com/krakenfx/auditdb/internal/binformat"
)

// Error taxonomy per the engine's error handling design: every distinct
// failure condition is a sentinel error that AddContext wraps as it
// propagates, and that callers can test for with errors.Contains.
var (
	// ErrIo is binformat's I/O error kind, re-exported. Read, write and
	// stat failures are not wrapped in it: they surface as the underlying
	// os error with context added, or as binformat.ErrShortRead or
	// binformat.ErrShortWrite.
	ErrIo = binformat.ErrIo
	// ErrMalformedData means the .data file's header, size, or record
	// count failed validation.
	ErrMalformedData = errors.New("malformed data file")
	// ErrMalformedTree means the .tree file's header, size, or record
	// count failed validation.
	ErrMalformedTree = errors.New("malformed tree file")
	// ErrMissingVerifierKey means a tree needed to be constructed but no
	// verifier key was supplied.
	ErrMissingVerifierKey = errors.New("no verifier key to generate tree with")
	// ErrOutOfRange means a requested leaf index falls outside [0, N).
	ErrOutOfRange = errors.New("leaf index out of range")
	// ErrHashNotFound means no leaf in the tree has the queried digest.
	ErrHashNotFound = errors.New("hash not found")
	// ErrAlreadyExists means the tree file already exists where Construct
	// was asked to create one exclusively.
	ErrAlreadyExists = binformat.ErrAlreadyExists
)
