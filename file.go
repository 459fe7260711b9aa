package encviewfs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sync"
	"time"

	"github.com/absfs/absfs"
)

// NoSegment marks a PlainFile that was not addressed through a segment
// suffix.
const NoSegment = -1

// PlainFile is a VirtualFile backed by a single physical file. Reads are
// serialized by a mutex because they seek the shared descriptor.
type PlainFile struct {
	keyMemo

	name    string
	segment int
	modTime time.Time

	mu   sync.Mutex
	base absfs.File
}

// OpenPlainFile opens name on fsys for reading. segment is the segment number
// the view addressed the file with, or NoSegment.
func OpenPlainFile(fsys absfs.FileSystem, name string, segment int) (*PlainFile, error) {
	if err := ValidateFilePath(name); err != nil {
		return nil, err
	}

	base, err := fsys.OpenFile(name, os.O_RDONLY, 0)
	if err != nil {
		return nil, NewIOError("open", name, err)
	}

	info, err := base.Stat()
	if err != nil {
		base.Close()
		return nil, NewIOError("stat", name, err)
	}
	if !info.Mode().IsRegular() {
		base.Close()
		return nil, fmt.Errorf("failed to open %s: %w", name, ErrInvalidPath)
	}

	return &PlainFile{
		name:    name,
		segment: segment,
		modTime: info.ModTime(),
		base:    base,
	}, nil
}

// Name returns the physical path
func (f *PlainFile) Name() string { return f.name }

// Basename returns the last element of the physical path
func (f *PlainFile) Basename() string { return path.Base(f.name) }

// ModTime returns the modification time observed when the file was opened
func (f *PlainFile) ModTime() time.Time { return f.modTime }

// Segment returns the segment number the file was opened with
func (f *PlainFile) Segment() (int, bool) {
	return f.segment, f.segment != NoSegment
}

// Size returns the current physical size
func (f *PlainFile) Size() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := f.base.Stat()
	if err != nil {
		return 0, NewIOError("stat", f.name, err)
	}
	return info.Size(), nil
}

// ReadAt seeks to offset and reads up to length bytes
func (f *PlainFile) ReadAt(offset int64, length int) ([]byte, error) {
	if err := ValidateOffset(offset, "offset"); err != nil {
		return nil, err
	}
	if err := ValidateSize(length, "length", 0, 0); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return readSeeker(f.base, f.name, offset, length)
}

// Close closes the physical file
func (f *PlainFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.base == nil {
		return nil
	}
	err := f.base.Close()
	f.base = nil
	if err != nil {
		return NewIOError("close", f.name, err)
	}
	return nil
}

// readSeeker performs one seek+read of at most the bytes the file holds past
// offset. Callers hold the lock guarding r.
func readSeeker(r absfs.File, name string, offset int64, length int) ([]byte, error) {
	if r == nil {
		return nil, NewIOError("read", name, os.ErrClosed)
	}
	info, err := r.Stat()
	if err != nil {
		return nil, NewIOError("stat", name, err)
	}
	if offset >= info.Size() {
		return []byte{}, nil
	}
	if int64(length) > info.Size()-offset {
		length = int(info.Size() - offset)
	}

	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return nil, &IOError{Operation: "seek", Path: name, Offset: offset, Message: err.Error(), Err: err}
	}

	buf := make([]byte, length)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, &IOError{Operation: "read", Path: name, Offset: offset, Message: err.Error(), Err: err}
	}
	return buf[:n], nil
}
