package encviewfs

import (
	"errors"
	"fmt"
	"io"
)

// ContentReader streams the transformed content of a file. It implements
// io.Reader, io.ReaderAt, io.Seeker and io.Closer. ReadAt may be called
// concurrently; Read and Seek share the stream offset and may not.
type ContentReader struct {
	read   func(offset int64, length int) ([]byte, error)
	close  func() error
	size   int64
	offset int64
}

var (
	_ io.ReadSeekCloser = (*ContentReader)(nil)
	_ io.ReaderAt       = (*ContentReader)(nil)
)

// NewContentReader reads vf encrypted (Encrypt) or decrypted (Decrypt) with
// codec. Closing the reader closes vf.
func NewContentReader(codec *Codec, vf VirtualFile, dir Direction) (*ContentReader, error) {
	switch dir {
	case Encrypt:
		size, err := vf.Size()
		if err != nil {
			return nil, err
		}
		return &ContentReader{
			read: func(offset int64, length int) ([]byte, error) {
				return codec.EncryptedContent(vf, offset, length)
			},
			close: vf.Close,
			size:  EncryptedFileSize(size),
		}, nil
	case Decrypt:
		size, err := codec.DecryptedFileSize(vf)
		if err != nil {
			return nil, err
		}
		return &ContentReader{
			read: func(offset int64, length int) ([]byte, error) {
				return codec.DecryptedContent(vf, offset, length)
			},
			close: vf.Close,
			size:  size,
		}, nil
	}
	return nil, NewValidationError("direction", dir, "unknown direction")
}

// OpenViewReader opens name in v and streams it through the view's own read
// path. Closing the reader releases the handle.
func OpenViewReader(v View, name string) (*ContentReader, error) {
	info, err := v.Getattr(name)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("failed to open %s: %w", name, ErrInvalidPath)
	}

	fh, err := v.Open(name, 0)
	if err != nil {
		return nil, err
	}
	return &ContentReader{
		read: func(offset int64, length int) ([]byte, error) {
			return v.Read(name, fh, offset, length)
		},
		close: func() error { return v.Release(fh) },
		size:  info.Size(),
	}, nil
}

// Size returns the size of the transformed content
func (r *ContentReader) Size() int64 { return r.size }

// Read reads from the current offset
func (r *ContentReader) Read(p []byte) (int, error) {
	n, err := r.ReadAt(p, r.offset)
	r.offset += int64(n)
	if n > 0 && errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err
}

// ReadAt fills p from off. It returns io.EOF when p could not be filled.
func (r *ContentReader) ReadAt(p []byte, off int64) (int, error) {
	if err := ValidateOffset(off, "offset"); err != nil {
		return 0, err
	}

	n := 0
	for n < len(p) {
		pos := off + int64(n)
		if pos >= r.size {
			return n, io.EOF
		}
		data, err := r.read(pos, int(min(int64(len(p)-n), r.size-pos)))
		if err != nil {
			return n, err
		}
		if len(data) == 0 {
			return n, io.ErrUnexpectedEOF
		}
		n += copy(p[n:], data)
	}
	return n, nil
}

// Seek sets the offset for the next Read
func (r *ContentReader) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.offset + offset
	case io.SeekEnd:
		abs = r.size + offset
	default:
		return 0, NewValidationError("whence", whence, "invalid whence")
	}
	if err := ValidateOffset(abs, "offset"); err != nil {
		return 0, err
	}
	r.offset = abs
	return abs, nil
}

// Close releases the underlying file
func (r *ContentReader) Close() error {
	if r.close == nil {
		return nil
	}
	err := r.close()
	r.close = nil
	return err
}
