package binformat

import (
	"io"
	"os"

	"gitlab.com/NebulousLabs/errors"
)

// ErrShortRead is returned when a positioned read returns fewer bytes than
// requested, which for a well-formed file should never happen short of
// truncation or corruption.
var ErrShortRead = errors.New("short read")

// ErrShortWrite is returned when a positioned write commits fewer bytes
// than requested.
var ErrShortWrite = errors.New("short write")

// File is a thin, single-threaded positioned-I/O wrapper around *os.File.
// It carries none of the concurrency guarantees a general-purpose storage
// layer might (no internal locking): the engine built on top of it is
// documented as single-threaded, externally-serialized access, so adding a
// mutex here would advertise a guarantee the rest of the system does not
// provide.
type File struct {
	f    *os.File
	path string
}

// OpenRead opens an existing file read-only.
func OpenRead(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.AddContext(err, "could not open "+path)
	}
	return &File{f: f, path: path}, nil
}

// CreateExclusive creates path for reading and writing. It fails if path
// already exists, mirroring the source's "wx"/O_CREAT|O_EXCL semantics for
// both the generated tree file and the synthetic data file.
func CreateExclusive(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, errors.AddContext(ErrAlreadyExists, path)
		}
		return nil, errors.AddContext(err, "could not create "+path)
	}
	return &File{f: f, path: path}, nil
}

// ReadAt reads exactly len(buf) bytes starting at offset. A short read is
// reported as ErrShortRead rather than silently returning partial data.
func (f *File) ReadAt(offset int64, buf []byte) error {
	n, err := f.f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return errors.AddContext(err, "read failed")
	}
	if n != len(buf) {
		return errors.AddContext(ErrShortRead, f.path)
	}
	return nil
}

// WriteAt writes buf at offset.
func (f *File) WriteAt(offset int64, buf []byte) error {
	n, err := f.f.WriteAt(buf, offset)
	if err != nil {
		return errors.AddContext(err, "write failed")
	}
	if n != len(buf) {
		return errors.AddContext(ErrShortWrite, f.path)
	}
	return nil
}

// Append writes buf at the current end of the file.
func (f *File) Append(buf []byte) error {
	info, err := f.f.Stat()
	if err != nil {
		return errors.AddContext(err, "stat failed")
	}
	return f.WriteAt(info.Size(), buf)
}

// Size returns the current file size in bytes.
func (f *File) Size() (int64, error) {
	info, err := f.f.Stat()
	if err != nil {
		return 0, errors.AddContext(err, "stat failed")
	}
	return info.Size(), nil
}

// Close releases the underlying file descriptor.
func (f *File) Close() error {
	return f.f.Close()
}

// CloseAndRemove closes the file and unlinks it, used to make construction
// atomic with respect to visible successful completion: any failure partway
// through leaves no partial .tree file behind.
func (f *File) CloseAndRemove() error {
	closeErr := f.f.Close()
	removeErr := os.Remove(f.path)
	if closeErr != nil || removeErr != nil {
		return errors.Compose(closeErr, removeErr)
	}
	return nil
}
