package atomicfile

import (
	"errors"
	"io"
	"os"
	"path/filepath"
)

var (
	// ErrAborted is returned by calls made after Abort()
	ErrAborted = errors.New("atomicfile: aborted")

	_ io.WriteCloser = &File{}
)

// File is a pending atomic replacement of dstPath
type File struct {
	dstPath string
	dir     string
	perm    os.FileMode
	tmp     *os.File
	tmpPath string
	// first error we saw, sticky
	err error
}

// New starts writing a replacement for path. The final file gets perm
// permissions.
func New(path string, perm os.FileMode) (*File, error) {
	dir, name := filepath.Split(path)
	if name == "" {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrInvalid}
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	// creating the temp file up front fails early if dir doesn't exist
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return nil, err
	}
	return &File{
		dstPath: path,
		dir:     dir,
		perm:    perm,
		tmp:     tmp,
		tmpPath: tmp.Name(),
	}, nil
}

func (f *File) closed() bool {
	return f.tmp == nil
}

func (f *File) fail(err error) error {
	if err == nil {
		return nil
	}
	if f.err == nil {
		f.err = err
	}
	_ = f.Close()
	return err
}

// Write writes to the temporary file. On error the write is abandoned.
func (f *File) Write(d []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	n, err := f.tmp.Write(d)
	return n, f.fail(err)
}

// Abort discards the temporary file if Close() wasn't called yet.
// Meant to be deferred right after New().
func (f *File) Abort() {
	if f == nil || f.closed() {
		return
	}
	f.err = ErrAborted
	_ = f.Close()
}

// Close commits the write by renaming the temporary file over the
// destination. It's safe to call multiple times, subsequent calls return
// the result of the first.
func (f *File) Close() error {
	if f.closed() {
		return f.err
	}
	tmp := f.tmp
	f.tmp = nil

	// https://www.joeshaw.org/dont-defer-close-on-writable-files/
	errSync := tmp.Sync()
	errClose := tmp.Close()

	renamed := false
	defer func() {
		if !renamed {
			_ = os.Remove(f.tmpPath)
		}
	}()

	if f.err != nil {
		return f.err
	}
	err := errSync
	if err == nil {
		err = errClose
	}
	if err == nil {
		err = os.Chmod(f.tmpPath, f.perm)
	}
	if err == nil {
		err = os.Rename(f.tmpPath, f.dstPath)
		renamed = err == nil
	}
	if renamed {
		// best effort, makes the rename durable
		if d, _ := os.Open(f.dir); d != nil {
			_ = d.Sync()
			_ = d.Close()
		}
	}
	f.err = err
	return err
}

// WriteFile atomically replaces path with d
func WriteFile(path string, d []byte, perm os.FileMode) error {
	f, err := New(path, perm)
	if err != nil {
		return err
	}
	defer f.Abort()
	if _, err = f.Write(d); err != nil {
		return err
	}
	return f.Close()
}
