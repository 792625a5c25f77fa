// Package localfs supplies the file-backed byte sinks and sources the
// CLI hands to a session.  Downloads are written to a temporary file in
// the destination directory and only renamed into place once the server
// confirms the transfer, so a failed download never leaves a truncated
// file behind.
package localfs

import (
	"os"
	"path/filepath"

	ftperr "goftp/internal/errors"
)

var errIsDir = ftperr.New("is a directory")

// FileSink is an io.Writer that becomes the file at its path only on
// Commit.
type FileSink struct {
	path string
	f    *os.File
	done bool
}

// CreateSink opens a temporary file next to path.
func CreateSink(path string) (*FileSink, error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, "."+base+".part-*")
	if err != nil {
		return nil, &ftperr.LocalIOError{Op: "create", Path: path, Err: err}
	}
	return &FileSink{path: path, f: f}, nil
}

// Path is the final destination.
func (s *FileSink) Path() string { return s.path }

func (s *FileSink) Write(p []byte) (int, error) {
	return s.f.Write(p)
}

// Commit closes the temporary file and renames it over the destination.
func (s *FileSink) Commit() error {
	if s.done {
		return nil
	}
	s.done = true
	tmp := s.f.Name()
	if err := s.f.Close(); err != nil {
		os.Remove(tmp)
		return &ftperr.LocalIOError{Op: "commit", Path: s.path, Err: err}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return &ftperr.LocalIOError{Op: "commit", Path: s.path, Err: err}
	}
	return nil
}

// Discard closes and removes the temporary file.  It is a no-op after
// Commit, so it can be deferred.
func (s *FileSink) Discard() error {
	if s.done {
		return nil
	}
	s.done = true
	s.f.Close()
	if err := os.Remove(s.f.Name()); err != nil && !os.IsNotExist(err) {
		return &ftperr.LocalIOError{Op: "discard", Path: s.path, Err: err}
	}
	return nil
}

// OpenSource opens path for an upload and returns its size.
func OpenSource(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, &ftperr.LocalIOError{Op: "open", Path: path, Err: err}
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, &ftperr.LocalIOError{Op: "open", Path: path, Err: err}
	}
	if fi.IsDir() {
		f.Close()
		return nil, 0, &ftperr.LocalIOError{Op: "open", Path: path, Err: errIsDir}
	}
	return f, fi.Size(), nil
}
