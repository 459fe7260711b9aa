package encviewfs

import (
	"fmt"
	"os"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/absfs/absfs"
)

// segment is one lazily opened physical part of a SegmentedFile
type segment struct {
	name   string
	number int // NoSegment for a part without suffix

	mu   sync.Mutex
	base absfs.File
}

func (s *segment) readAt(fsys absfs.FileSystem, offset int64, length int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.base == nil {
		f, err := fsys.OpenFile(s.name, os.O_RDONLY, 0)
		if err != nil {
			return nil, NewIOError("open", s.name, err)
		}
		s.base = f
	}
	return readSeeker(s.base, s.name, offset, length)
}

func (s *segment) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.base == nil {
		return nil
	}
	err := s.base.Close()
	s.base = nil
	return err
}

// SegmentedFile presents the ordered parts base, base.0, base.1, ... of one
// logical file as a single byte range. Each part has its own lock, so reads
// into different parts do not serialize.
type SegmentedFile struct {
	keyMemo

	fsys        absfs.FileSystem
	name        string
	segmentSize int64
	segments    []*segment
}

// OpenSegmentedFile discovers the parts of name with one directory listing.
// An existing name without suffix is the sole part. Otherwise the parts must
// be numbered without gaps from 0, or ErrMalformedInput is returned.
//
// segmentSize is the fixed size of every part but the last; it is ignored
// for a single part. When it is zero and several parts exist, the size of
// the first part is used.
func OpenSegmentedFile(fsys absfs.FileSystem, name string, segmentSize int64) (*SegmentedFile, error) {
	if fsys == nil {
		return nil, ErrNilFileSystem
	}
	if err := ValidateFilePath(name); err != nil {
		return nil, err
	}
	if err := ValidateSegmentSize(segmentSize); err != nil {
		return nil, err
	}

	segments, err := findSegments(fsys, name)
	if err != nil {
		return nil, err
	}
	switch {
	case len(segments) == 1:
		segmentSize = 0
	case segmentSize == 0:
		info, err := fsys.Stat(segments[0].name)
		if err != nil {
			return nil, NewIOError("stat", segments[0].name, err)
		}
		segmentSize = info.Size()
	}

	return &SegmentedFile{
		fsys:        fsys,
		name:        name,
		segmentSize: segmentSize,
		segments:    segments,
	}, nil
}

func findSegments(fsys absfs.FileSystem, name string) ([]*segment, error) {
	base, _, ok := SplitSegment(path.Base(name))
	if !ok {
		if info, err := fsys.Stat(name); err == nil {
			if !info.Mode().IsRegular() {
				return nil, fmt.Errorf("failed to open %s: %w", name, ErrInvalidPath)
			}
			return []*segment{{name: name, number: NoSegment}}, nil
		}
	}

	dir := path.Dir(name)
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, NewIOError("readdir", dir, err)
	}

	var segments []*segment
	for _, entry := range entries {
		entryBase, n, ok := SplitSegment(entry.Name())
		if entryBase != base || entry.IsDir() {
			continue
		}
		if !ok {
			n = NoSegment
		}
		segments = append(segments, &segment{name: path.Join(dir, entry.Name()), number: n})
	}
	if len(segments) == 0 {
		return nil, notFound("open", name)
	}

	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].number < segments[j].number
	})

	// parts must be numbered 0..k-1, a part without suffix counting as 0
	for i, seg := range segments {
		n := seg.number
		if n == NoSegment {
			n = 0
		}
		if n != i {
			return nil, NewCorruptionError(name, fmt.Sprintf("part %s is out of sequence", path.Base(seg.name)))
		}
	}
	return segments, nil
}

// Name returns the path the file was opened with
func (f *SegmentedFile) Name() string { return f.name }

// Basename returns the last element of the path the file was opened with
func (f *SegmentedFile) Basename() string { return path.Base(f.name) }

// ModTime returns the modification time of the first part
func (f *SegmentedFile) ModTime() time.Time {
	info, err := f.fsys.Stat(f.segments[0].name)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// SegmentCount returns the number of discovered parts
func (f *SegmentedFile) SegmentCount() int { return len(f.segments) }

// Size returns (parts-1)*segmentSize plus the size of the last part, or the
// size of the sole part when no segment size is configured.
func (f *SegmentedFile) Size() (int64, error) {
	last := f.segments[len(f.segments)-1]
	info, err := f.fsys.Stat(last.name)
	if err != nil {
		return 0, NewIOError("stat", last.name, err)
	}
	if f.segmentSize == 0 {
		return info.Size(), nil
	}
	return int64(len(f.segments)-1)*f.segmentSize + info.Size(), nil
}

// ReadAt starts in part offset/segmentSize and walks forward until length
// bytes are collected or the parts are exhausted.
func (f *SegmentedFile) ReadAt(offset int64, length int) ([]byte, error) {
	if err := ValidateOffset(offset, "offset"); err != nil {
		return nil, err
	}
	if err := ValidateSize(length, "length", 0, 0); err != nil {
		return nil, err
	}

	first := 0
	segOffset := offset
	if f.segmentSize > 0 {
		first = int(offset / f.segmentSize)
		segOffset = offset - int64(first)*f.segmentSize
	}
	if first >= len(f.segments) {
		return []byte{}, nil
	}
	size, err := f.Size()
	if err != nil {
		return nil, err
	}
	if offset >= size {
		return []byte{}, nil
	}
	if int64(length) > size-offset {
		length = int(size - offset)
	}

	data := make([]byte, 0, length)
	for _, seg := range f.segments[first:] {
		remaining := length - len(data)
		if remaining <= 0 {
			break
		}
		chunk, err := seg.readAt(f.fsys, segOffset, remaining)
		if err != nil {
			return nil, err
		}
		data = append(data, chunk...)
		segOffset = 0
	}
	return data, nil
}

// Close closes every opened part
func (f *SegmentedFile) Close() error {
	var firstErr error
	for _, seg := range f.segments {
		if err := seg.close(); err != nil && firstErr == nil {
			firstErr = NewIOError("close", seg.name, err)
		}
	}
	return firstErr
}
