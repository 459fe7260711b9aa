package encviewfs

import (
	"io/fs"
	"path"

	"github.com/absfs/absfs"
)

// NewEncryptedView shows the plaintext tree fsys with encrypted names,
// contents and sizes. With cfg.SegmentSize set, files whose encrypted form
// is larger are shown as name.0, name.1, ... parts of at most that size.
func NewEncryptedView(fsys absfs.FileSystem, cfg *Config) (*ViewFS, error) {
	s, err := setupView(fsys, cfg)
	if err != nil {
		return nil, err
	}
	nameSalt, err := NameSaltProvider(cfg.NameSalt)
	if err != nil {
		return nil, err
	}

	v := &encryptVariant{
		fsys:        fsys,
		codec:       s.codec,
		names:       s.names,
		nameSalt:    nameSalt,
		segmentSize: cfg.SegmentSize,
	}
	return newViewFS(fsys, s.log, s.secret, v), nil
}

type encryptVariant struct {
	fsys        absfs.FileSystem
	codec       *Codec
	names       *cachedFilenameEncryptor
	nameSalt    SaltProvider
	segmentSize int64
}

func (e *encryptVariant) direction() Direction { return Encrypt }

// lookup decrypts the path without its segment suffix. Encrypted names never
// contain a dot, so a trailing .N is always a suffix.
func (e *encryptVariant) lookup(name string) (*target, error) {
	dir, last := path.Split(name)
	base, n, ok := SplitSegment(last)
	if !ok {
		n = NoSegment
	} else if e.segmentSize == 0 {
		return nil, notFound("lookup", name)
	}

	physical, err := e.names.DecryptPath(dir + base)
	if err != nil {
		return nil, err
	}
	info, err := e.fsys.Stat(physical)
	if err != nil {
		return nil, err
	}

	t := &target{physical: physical, segment: n, info: info}
	if info.IsDir() {
		if ok {
			return nil, notFound("lookup", name)
		}
		t.size = info.Size()
		return t, nil
	}
	if !info.Mode().IsRegular() {
		return nil, notFound("lookup", name)
	}

	size, found := PartSize(EncryptedFileSize(info.Size()), e.segmentSize, n)
	if !found {
		return nil, notFound("lookup", name)
	}
	t.size = size
	return t, nil
}

func (e *encryptVariant) open(t *target) (VirtualFile, error) {
	return OpenPlainFile(e.fsys, t.physical, t.segment)
}

// read maps a read of part N to the range N*segmentSize+offset of the whole
// encrypted file, never crossing the end of the part.
func (e *encryptVariant) read(vf VirtualFile, offset int64, length int) ([]byte, error) {
	if err := ValidateOffset(offset, "offset"); err != nil {
		return nil, err
	}

	if pf, ok := vf.(*PlainFile); ok {
		if n, ok := pf.Segment(); ok {
			realOffset := int64(n)*e.segmentSize + offset
			realLength := max(0, min(int64(length), e.segmentSize-offset))
			return e.codec.EncryptedContent(vf, realOffset, int(realLength))
		}
	}
	return e.codec.EncryptedContent(vf, offset, length)
}

func (e *encryptVariant) expand(dir string, entry fs.DirEntry) ([]string, error) {
	// Stat instead of entry.Info so that symlinks resolve the way lookup
	// resolves them.
	info, err := e.fsys.Stat(path.Join(dir, entry.Name()))
	if err != nil {
		return nil, err
	}
	if !info.IsDir() && !info.Mode().IsRegular() {
		return nil, nil
	}

	salt, err := e.nameSalt.SaltFor(entry.Name(), info.ModTime(), info.IsDir())
	if err != nil {
		return nil, err
	}
	encrypted, err := e.names.EncryptFilenameWithSalt(entry.Name(), salt)
	if err != nil {
		return nil, err
	}

	if info.IsDir() {
		return []string{encrypted}, nil
	}
	k := PartCount(EncryptedFileSize(info.Size()), e.segmentSize)
	if k == 0 {
		return []string{encrypted}, nil
	}
	parts := make([]string, k)
	for i := range parts {
		parts[i] = JoinSegment(encrypted, i, true)
	}
	return parts, nil
}

// PartCount returns the number of parts an encrypted file of encSize bytes is
// split into, or zero when it is shown unsplit.
func PartCount(encSize, segmentSize int64) int {
	if segmentSize <= 0 || encSize <= segmentSize {
		return 0
	}
	return int((encSize + segmentSize - 1) / segmentSize)
}

// PartSize returns the size of part n (NoSegment for the unsplit name) of an
// encrypted file of encSize bytes, and whether that part exists.
func PartSize(encSize, segmentSize int64, n int) (int64, bool) {
	k := PartCount(encSize, segmentSize)
	switch {
	case n == NoSegment:
		return encSize, k == 0
	case n < 0 || n >= k:
		return 0, false
	case n < k-1:
		return segmentSize, true
	default:
		return encSize - int64(k-1)*segmentSize, true
	}
}
