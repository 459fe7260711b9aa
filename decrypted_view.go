package encviewfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/absfs/absfs"
	lru "github.com/hashicorp/golang-lru"
)

// NewDecryptedView shows the encrypted tree fsys as plaintext. Split files
// are joined back into one. Only the filename name salt can be used, since
// no other salt can be computed from a plaintext path.
func NewDecryptedView(fsys absfs.FileSystem, cfg *Config) (*ViewFS, error) {
	s, err := setupView(fsys, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.NameSalt != "" && cfg.NameSalt != DefaultNameSalt {
		return nil, &ValidationError{
			Field:   "filenameSalt",
			Value:   cfg.NameSalt,
			Message: fmt.Sprintf("the decrypt view only supports the %q name salt", DefaultNameSalt),
			Err:     ErrUnknownSalt,
		}
	}

	v := &decryptVariant{
		fsys:        fsys,
		codec:       s.codec,
		names:       s.names,
		segmentSize: cfg.SegmentSize,
	}
	if size := cfg.cacheSize(); size > 0 {
		if v.sizes, err = lru.New2Q(size); err != nil {
			return nil, fmt.Errorf("failed to create size cache: %w", err)
		}
	}
	return newViewFS(fsys, s.log, s.secret, v), nil
}

type decryptVariant struct {
	fsys        absfs.FileSystem
	codec       *Codec
	names       *cachedFilenameEncryptor
	segmentSize int64

	// physical path, size and mtime -> plaintext size
	sizes *lru.TwoQueueCache
}

func (d *decryptVariant) direction() Direction { return Decrypt }

// lookup encrypts the path. A file that only exists split is found through
// its first part.
func (d *decryptVariant) lookup(name string) (*target, error) {
	physical, err := d.names.EncryptPath(name)
	if err != nil {
		return nil, err
	}

	info, err := d.fsys.Stat(physical)
	if errors.Is(err, os.ErrNotExist) {
		info, err = d.fsys.Stat(JoinSegment(physical, 0, true))
	}
	if err != nil {
		return nil, err
	}

	t := &target{physical: physical, segment: NoSegment, info: info}
	if info.IsDir() {
		t.size = info.Size()
		return t, nil
	}
	if !info.Mode().IsRegular() {
		return nil, notFound("lookup", name)
	}

	vf, err := OpenSegmentedFile(d.fsys, physical, d.segmentSize)
	if err != nil {
		return nil, err
	}
	defer vf.Close()

	if t.size, err = d.plainSize(vf); err != nil {
		return nil, err
	}
	return t, nil
}

func (d *decryptVariant) plainSize(vf *SegmentedFile) (int64, error) {
	if d.sizes == nil {
		return d.codec.DecryptedFileSize(vf)
	}

	physicalSize, err := vf.Size()
	if err != nil {
		return 0, err
	}
	key := fmt.Sprintf("%s\x00%d\x00%d", vf.Name(), physicalSize, vf.ModTime().UnixNano())
	if v, ok := d.sizes.Get(key); ok {
		return v.(int64), nil
	}

	size, err := d.codec.DecryptedFileSize(vf)
	if err != nil {
		return 0, err
	}
	d.sizes.Add(key, size)
	return size, nil
}

func (d *decryptVariant) open(t *target) (VirtualFile, error) {
	return OpenSegmentedFile(d.fsys, t.physical, d.segmentSize)
}

func (d *decryptVariant) read(vf VirtualFile, offset int64, length int) ([]byte, error) {
	return d.codec.DecryptedContent(vf, offset, length)
}

// expand shows only the first part of a split file. Names that do not
// decrypt are reported so the listing can skip them.
func (d *decryptVariant) expand(dir string, entry fs.DirEntry) ([]string, error) {
	base, n, ok := SplitSegment(entry.Name())
	if ok && n != 0 {
		return nil, nil
	}
	plain, err := d.names.DecryptFilename(base)
	if err != nil {
		return nil, err
	}
	return []string{plain}, nil
}
