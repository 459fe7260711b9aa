package encviewfs

import (
	"bytes"
	"crypto/aes"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"math"
	"path"
	"strings"
	"testing"
	"time"
)

const testSecret = "correct horse battery staple"

var testModTime = time.Unix(1700000000, 500)

// bytesFile is an in-memory VirtualFile
type bytesFile struct {
	keyMemo
	name string
	data []byte
}

func newBytesFile(name string, data []byte) *bytesFile {
	return &bytesFile{name: name, data: data}
}

func (f *bytesFile) Name() string         { return f.name }
func (f *bytesFile) Basename() string     { return path.Base(f.name) }
func (f *bytesFile) ModTime() time.Time   { return testModTime }
func (f *bytesFile) Size() (int64, error) { return int64(len(f.data)), nil }
func (f *bytesFile) Close() error         { return nil }

func (f *bytesFile) ReadAt(offset int64, length int) ([]byte, error) {
	if offset >= int64(len(f.data)) {
		return []byte{}, nil
	}
	end := min(offset+int64(length), int64(len(f.data)))
	return append([]byte(nil), f.data[offset:end]...), nil
}

func testCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec([]byte(testSecret), nil)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	return c
}

func TestNewCodec(t *testing.T) {
	if _, err := NewCodec(nil, nil); !errors.Is(err, ErrEmptySecret) {
		t.Errorf("NewCodec(nil) error = %v, want ErrEmptySecret", err)
	}

	secret := []byte("mutable")
	c, err := NewCodec(secret, nil)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	before, _ := c.EncryptFilename("x")
	secret[0] = 'M'
	after, _ := c.EncryptFilename("x")
	if before != after {
		t.Error("codec should not share the caller's secret slice")
	}
}

func TestEncryptFilename(t *testing.T) {
	c := testCodec(t)
	tests := []struct {
		name      string
		plaintext string
	}{
		{"single byte", "a"},
		{"with extension", "file.txt"},
		{"one block", "sixteen-bytes-xx"},
		{"unicode", "文件名.txt"},
		{"spaces", "my holiday photo.jpg"},
		{"long name", strings.Repeat("long-", 40)},
		{"dots", ".hidden..name."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encrypted, err := c.EncryptFilename(tt.plaintext)
			if err != nil {
				t.Fatalf("EncryptFilename() error = %v", err)
			}
			if strings.ContainsAny(encrypted, "./") {
				t.Errorf("EncryptFilename() = %q, contains a dot or slash", encrypted)
			}

			again, _ := c.EncryptFilename(tt.plaintext)
			if again != encrypted {
				t.Error("EncryptFilename() is not deterministic")
			}

			raw, err := base64.URLEncoding.DecodeString(encrypted)
			if err != nil {
				t.Fatalf("encrypted name is not url-safe base64: %v", err)
			}
			sum := sha256.Sum256([]byte(tt.plaintext))
			if !bytes.Equal(raw[:NameKeyAdditionSize], sum[:NameKeyAdditionSize]) {
				t.Error("encrypted name does not start with its key addition")
			}
			if want := NameKeyAdditionSize + (len(tt.plaintext)/BlockSize+1)*BlockSize; len(raw) != want {
				t.Errorf("encrypted name decodes to %d bytes, want %d", len(raw), want)
			}

			decrypted, err := c.DecryptFilename(encrypted)
			if err != nil {
				t.Fatalf("DecryptFilename() error = %v", err)
			}
			if decrypted != tt.plaintext {
				t.Errorf("DecryptFilename() = %q, want %q", decrypted, tt.plaintext)
			}
		})
	}
}

func TestEncryptFilenameWithSalt(t *testing.T) {
	c := testCodec(t)
	a, err := c.EncryptFilenameWithSalt("report.pdf", "salt-a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.EncryptFilenameWithSalt("report.pdf", "salt-b")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("different salts should give different names")
	}
	for _, enc := range []string{a, b} {
		if got, err := c.DecryptFilename(enc); err != nil || got != "report.pdf" {
			t.Errorf("DecryptFilename(%q) = %q, %v", enc, got, err)
		}
	}
}

func TestDecryptFilenameMalformed(t *testing.T) {
	c := testCodec(t)
	slash, _ := c.EncryptFilename("a/b")
	dotdot, _ := c.EncryptFilename("..")
	keyAddOnly := base64.URLEncoding.EncodeToString(make([]byte, NameKeyAdditionSize))
	unaligned := base64.URLEncoding.EncodeToString(make([]byte, NameKeyAdditionSize+15))

	tests := []struct {
		name       string
		ciphertext string
	}{
		{"empty", ""},
		{"plain name", "hello.txt"},
		{"bad base64", "abc"},
		{"key addition only", keyAddOnly},
		{"unaligned ciphertext", unaligned},
		{"decrypts to slash", slash},
		{"decrypts to dotdot", dotdot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.DecryptFilename(tt.ciphertext)
			if err == nil {
				t.Fatal("DecryptFilename() should fail")
			}
			if !IsMalformedInput(err) {
				t.Errorf("DecryptFilename() error = %v, want malformed input", err)
			}
		})
	}
}

func TestDecryptFilenameWrongSecret(t *testing.T) {
	enc, _ := testCodec(t).EncryptFilename("secret-plans.txt")
	other, err := NewCodec([]byte("another secret"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got, err := other.DecryptFilename(enc); err == nil && got == "secret-plans.txt" {
		t.Error("a different secret should not recover the name")
	}
}

func TestEncryptPath(t *testing.T) {
	c := testCodec(t)
	tests := []string{"/", "", "/a", "/a/b/c.txt", "relative/name", "/dir/", "/ünïcödé/ファイル"}

	for _, p := range tests {
		t.Run(p, func(t *testing.T) {
			enc, err := c.EncryptPath(p)
			if err != nil {
				t.Fatalf("EncryptPath() error = %v", err)
			}
			if strings.Count(enc, "/") != strings.Count(p, "/") {
				t.Errorf("EncryptPath(%q) = %q, separators changed", p, enc)
			}
			for _, elem := range strings.Split(p, "/") {
				if len(elem) > 3 && strings.Contains(enc, elem) {
					t.Errorf("EncryptPath(%q) = %q leaks %q", p, enc, elem)
				}
			}
			dec, err := c.DecryptPath(enc)
			if err != nil {
				t.Fatalf("DecryptPath() error = %v", err)
			}
			if dec != p {
				t.Errorf("DecryptPath() = %q, want %q", dec, p)
			}
		})
	}

	first, _ := c.EncryptFilename("a")
	if _, err := c.DecryptPath("/" + first + "/not-encrypted/x"); !IsMalformedInput(err) {
		t.Errorf("DecryptPath() error = %v, want malformed input", err)
	}
}

func TestEncryptedFileSize(t *testing.T) {
	tests := []struct {
		plain int64
		want  int64
	}{
		{0, 32},
		{1, 32},
		{3, 32},
		{15, 32},
		{16, 48},
		{17, 48},
		{100, 128},
		{1 << 20, 1<<20 + 32},
	}
	for _, tt := range tests {
		if got := EncryptedFileSize(tt.plain); got != tt.want {
			t.Errorf("EncryptedFileSize(%d) = %d, want %d", tt.plain, got, tt.want)
		}
	}
}

func TestEncryptedContentLayout(t *testing.T) {
	c := testCodec(t)
	vf := newBytesFile("/docs/abc.txt", []byte("abc"))

	full, err := c.EncryptedContent(vf, 0, 1000)
	if err != nil {
		t.Fatalf("EncryptedContent() error = %v", err)
	}
	if len(full) != 32 {
		t.Fatalf("EncryptedContent() length = %d, want 32", len(full))
	}

	// header: key addition from the default mtime-name salt
	salt := sha256.Sum256([]byte("1700000000abc.txt"))
	if !bytes.Equal(full[:16], salt[:16]) {
		t.Errorf("header = %x, want %x", full[:16], salt[:16])
	}

	// body: AES-256 under SHA256(header || secret) of the padded content
	key := sha256.Sum256(append(append([]byte(nil), salt[:16]...), testSecret...))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		t.Fatal(err)
	}
	want := make([]byte, 16)
	block.Encrypt(want, Pad([]byte("abc"), BlockSize))
	if !bytes.Equal(full[16:], want) {
		t.Errorf("body = %x, want %x", full[16:], want)
	}

	enc := newBytesFile("/x", full)
	size, err := c.DecryptedFileSize(enc)
	if err != nil || size != 3 {
		t.Errorf("DecryptedFileSize() = %d, %v, want 3", size, err)
	}
	plain, err := c.DecryptedContent(enc, 0, 100)
	if err != nil || string(plain) != "abc" {
		t.Errorf("DecryptedContent() = %q, %v, want abc", plain, err)
	}
}

func TestContentRandomAccess(t *testing.T) {
	c := testCodec(t)
	lengths := []int{0, 1, 5, 15, 16, 17, 40, 200}

	for _, size := range []int{0, 1, 15, 16, 17, 33, 100} {
		plain := make([]byte, size)
		for i := range plain {
			plain[i] = byte('a' + i%26)
		}
		vf := newBytesFile("/file.bin", plain)
		total := EncryptedFileSize(int64(size))

		full, err := c.EncryptedContent(vf, 0, int(total))
		if err != nil {
			t.Fatalf("EncryptedContent(size %d) error = %v", size, err)
		}
		if int64(len(full)) != total {
			t.Fatalf("EncryptedContent(size %d) length = %d, want %d", size, len(full), total)
		}

		for offset := int64(0); offset <= total+2; offset++ {
			for _, length := range lengths {
				got, err := c.EncryptedContent(vf, offset, length)
				if err != nil {
					t.Fatalf("EncryptedContent(%d, %d) error = %v", offset, length, err)
				}
				want := full[min(offset, total):min(offset+int64(length), total)]
				if !bytes.Equal(got, want) {
					t.Fatalf("size %d: EncryptedContent(%d, %d) = %x, want %x", size, offset, length, got, want)
				}
			}
		}

		enc := newBytesFile("/enc", full)
		if n, err := c.DecryptedFileSize(enc); err != nil || n != int64(size) {
			t.Fatalf("DecryptedFileSize() = %d, %v, want %d", n, err, size)
		}
		for offset := int64(0); offset <= int64(size)+2; offset++ {
			for _, length := range lengths {
				got, err := c.DecryptedContent(enc, offset, length)
				if err != nil {
					t.Fatalf("DecryptedContent(%d, %d) error = %v", offset, length, err)
				}
				p := int64(size)
				want := plain[min(offset, p):min(offset+int64(length), p)]
				if !bytes.Equal(got, want) {
					t.Fatalf("size %d: DecryptedContent(%d, %d) = %q, want %q", size, offset, length, got, want)
				}
			}
		}

		// requests larger than the file are clamped to it
		for _, length := range []int{math.MaxInt, math.MaxInt - 15, math.MaxInt32} {
			if got, err := c.DecryptedContent(enc, 0, length); err != nil || !bytes.Equal(got, plain) {
				t.Fatalf("size %d: DecryptedContent(0, %d) = %q, %v, want %q", size, length, got, err, plain)
			}
			if got, err := c.EncryptedContent(vf, 0, length); err != nil || !bytes.Equal(got, full) {
				t.Fatalf("size %d: EncryptedContent(0, %d) = %x, %v", size, length, got, err)
			}
		}
		for _, offset := range []int64{math.MaxInt64 - 4, math.MaxInt64} {
			if got, err := c.DecryptedContent(enc, offset, 4); err != nil || len(got) != 0 {
				t.Fatalf("DecryptedContent(%d, 4) = %q, %v, want empty", offset, got, err)
			}
			if got, err := c.EncryptedContent(vf, offset, 4); err != nil || len(got) != 0 {
				t.Fatalf("EncryptedContent(%d, 4) = %x, %v, want empty", offset, got, err)
			}
		}
	}
}

func TestEncryptedContentSaltProviders(t *testing.T) {
	vf := func() *bytesFile { return newBytesFile("/dir/a.txt", []byte("same content")) }
	headers := map[string]string{}
	for _, id := range FileSaltIDs() {
		salt, err := FileSaltProvider(id)
		if err != nil {
			t.Fatal(err)
		}
		c, err := NewCodec([]byte(testSecret), salt)
		if err != nil {
			t.Fatal(err)
		}
		header, err := c.EncryptedContent(vf(), 0, FileKeyAdditionSize)
		if err != nil {
			t.Fatalf("EncryptedContent(%s) error = %v", id, err)
		}
		headers[id] = string(header)
	}

	name := sha256.Sum256([]byte("a.txt"))
	mtime := sha256.Sum256([]byte("1700000000.0000005"))
	if headers["name"] != string(name[:16]) {
		t.Error("name salt header mismatch")
	}
	if headers["mtime"] != string(mtime[:16]) {
		t.Error("mtime salt header mismatch")
	}
}

func TestDecryptedContentMalformed(t *testing.T) {
	c := testCodec(t)
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"header only", make([]byte, 16)},
		{"unaligned", make([]byte, 40)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vf := newBytesFile("/bad", tt.data)
			if _, err := c.DecryptedFileSize(vf); !IsMalformedInput(err) {
				t.Errorf("DecryptedFileSize() error = %v, want malformed input", err)
			}
			if _, err := c.DecryptedContent(vf, 0, 10); !IsMalformedInput(err) {
				t.Errorf("DecryptedContent() error = %v, want malformed input", err)
			}
		})
	}
}

func TestContentInvalidArguments(t *testing.T) {
	c := testCodec(t)
	vf := newBytesFile("/f", []byte("data"))
	if _, err := c.EncryptedContent(vf, -1, 4); !errors.Is(err, ErrNegativeOffset) {
		t.Errorf("EncryptedContent(-1) error = %v", err)
	}
	if _, err := c.EncryptedContent(vf, 0, -4); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("EncryptedContent(len -4) error = %v", err)
	}
	if _, err := c.DecryptedContent(vf, -1, 4); !errors.Is(err, ErrNegativeOffset) {
		t.Errorf("DecryptedContent(-1) error = %v", err)
	}
}

func TestKeyMaterialMemoized(t *testing.T) {
	c := testCodec(t)
	vf := newBytesFile("/f", []byte("memo"))
	if _, err := c.EncryptedContent(vf, 0, 32); err != nil {
		t.Fatal(err)
	}
	first := vf.km
	if first == nil {
		t.Fatal("key material was not memoized")
	}
	if _, err := c.EncryptedContent(vf, 16, 16); err != nil {
		t.Fatal(err)
	}
	if vf.km != first {
		t.Error("key material was derived twice")
	}
}
