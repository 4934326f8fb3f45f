package binformat

import "gitlab.com/NebulousLabs/errors"

// Sentinel error kinds shared by the binary file layer and the tree engine
// built on top of it (see auditdb's error taxonomy, which re-exports these).
var (
	// ErrIo is the I/O error kind. The File methods in this package do not
	// return it: they return the underlying os error with context added, or
	// ErrShortRead / ErrShortWrite for a short transfer.
	ErrIo = errors.New("i/o error")
	// ErrAlreadyExists is returned when an exclusive create finds a file
	// already present at the target path.
	ErrAlreadyExists = errors.New("file already exists")
)
