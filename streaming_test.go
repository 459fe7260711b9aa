package encviewfs

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestContentReaderEncrypt(t *testing.T) {
	c := testCodec(t)
	content := []byte(strings.Repeat("stream ", 50))

	r, err := NewContentReader(c, newBytesFile("/s", content), Encrypt)
	if err != nil {
		t.Fatalf("NewContentReader() error = %v", err)
	}
	defer r.Close()

	if r.Size() != EncryptedFileSize(int64(len(content))) {
		t.Errorf("Size() = %d, want %d", r.Size(), EncryptedFileSize(int64(len(content))))
	}

	streamed, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	direct, err := c.EncryptedContent(newBytesFile("/s", content), 0, int(r.Size()))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(streamed, direct) {
		t.Error("streamed ciphertext differs from EncryptedContent")
	}

	d, err := NewContentReader(c, newBytesFile("/enc", streamed), Decrypt)
	if err != nil {
		t.Fatalf("NewContentReader(Decrypt) error = %v", err)
	}
	plain, err := io.ReadAll(d)
	if err != nil || !bytes.Equal(plain, content) {
		t.Errorf("decrypted stream = %d bytes, %v", len(plain), err)
	}
}

func TestContentReaderReadAt(t *testing.T) {
	c := testCodec(t)
	content := []byte("0123456789abcdefghijklmnopqrstuvwxyz")
	enc, _ := c.EncryptedContent(newBytesFile("/f", content), 0, 1024)

	r, err := NewContentReader(c, newBytesFile("/enc", enc), Decrypt)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		off     int64
		size    int
		want    string
		wantErr error
	}{
		{"start", 0, 10, "0123456789", nil},
		{"unaligned", 13, 7, "defghij", nil},
		{"to end", 30, 6, "uvwxyz", nil},
		{"past end", 30, 10, "uvwxyz", io.EOF},
		{"at end", 36, 4, "", io.EOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, tt.size)
			n, err := r.ReadAt(buf, tt.off)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ReadAt() error = %v, want %v", err, tt.wantErr)
			}
			if string(buf[:n]) != tt.want {
				t.Errorf("ReadAt() = %q, want %q", buf[:n], tt.want)
			}
		})
	}

	if _, err := r.ReadAt(make([]byte, 1), -1); !errors.Is(err, ErrNegativeOffset) {
		t.Errorf("ReadAt(-1) error = %v, want ErrNegativeOffset", err)
	}
}

func TestContentReaderSeek(t *testing.T) {
	c := testCodec(t)
	content := []byte("seekable content")
	r, err := NewContentReader(c, newBytesFile("/f", content), Encrypt)
	if err != nil {
		t.Fatal(err)
	}
	full, _ := c.EncryptedContent(newBytesFile("/f", content), 0, 1024)

	tests := []struct {
		offset int64
		whence int
		want   int64
	}{
		{10, io.SeekStart, 10},
		{5, io.SeekCurrent, 15},
		{-4, io.SeekEnd, int64(len(full)) - 4},
	}
	for _, tt := range tests {
		pos, err := r.Seek(tt.offset, tt.whence)
		if err != nil || pos != tt.want {
			t.Errorf("Seek(%d, %d) = %d, %v, want %d", tt.offset, tt.whence, pos, err, tt.want)
		}
	}

	rest, err := io.ReadAll(r)
	if err != nil || !bytes.Equal(rest, full[len(full)-4:]) {
		t.Errorf("read after Seek = %x, %v", rest, err)
	}

	if _, err := r.Seek(-1, io.SeekStart); !errors.Is(err, ErrNegativeOffset) {
		t.Errorf("Seek(-1) error = %v", err)
	}
	if _, err := r.Seek(0, 42); !IsValidationError(err) {
		t.Errorf("Seek(whence 42) error = %v", err)
	}
}

func TestContentReaderDirection(t *testing.T) {
	if _, err := NewContentReader(testCodec(t), newBytesFile("/f", nil), Direction(9)); !IsValidationError(err) {
		t.Errorf("NewContentReader(bad direction) error = %v", err)
	}
	if _, err := NewContentReader(testCodec(t), newBytesFile("/f", []byte("short")), Decrypt); !IsMalformedInput(err) {
		t.Errorf("NewContentReader(malformed) error = %v", err)
	}
}

func TestOpenViewReader(t *testing.T) {
	root := newTestRoot(t, map[string]string{"dir/f": "view reader"})
	v := newEncrypted(t, root, 0)

	r, err := OpenViewReader(v, encPath(t, "/dir/f"))
	if err != nil {
		t.Fatalf("OpenViewReader() error = %v", err)
	}
	if v.OpenHandles() != 1 {
		t.Errorf("OpenHandles() = %d, want 1", v.OpenHandles())
	}
	data, err := io.ReadAll(r)
	if err != nil || int64(len(data)) != r.Size() || r.Size() != 32 {
		t.Errorf("ReadAll() = %d bytes, %v", len(data), err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if v.OpenHandles() != 0 {
		t.Errorf("OpenHandles() = %d after Close", v.OpenHandles())
	}

	if _, err := OpenViewReader(v, encPath(t, "/dir")); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("OpenViewReader(dir) error = %v, want ErrInvalidPath", err)
	}
}
