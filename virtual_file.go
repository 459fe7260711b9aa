package encviewfs

import (
	"sync"
	"time"
)

// VirtualFile is a random-access read surface over one or more physical
// files.
type VirtualFile interface {
	// Name returns the physical path the file was opened with
	Name() string

	// Basename returns the last element of Name
	Basename() string

	// ModTime returns the modification time of the (first) physical file
	ModTime() time.Time

	// Size returns the current size in bytes
	Size() (int64, error)

	// ReadAt returns up to length bytes starting at offset. Fewer bytes are
	// returned only at end of file.
	ReadAt(offset int64, length int) ([]byte, error)

	// KeyMaterial returns the memoized key material of the file, calling
	// init on first use. A failed init is not memoized.
	KeyMaterial(init func() (*KeyMaterial, error)) (*KeyMaterial, error)

	// Close releases every physical file
	Close() error
}

// KeyMaterial is the per-file key state that content transforms reuse for
// the lifetime of a handle.
type KeyMaterial struct {
	Engine      *BlockEngine
	KeyAddition []byte
}

// keyMemo is embedded by VirtualFile implementations. The slot is written at
// most once.
type keyMemo struct {
	mu sync.Mutex
	km *KeyMaterial
}

func (m *keyMemo) KeyMaterial(init func() (*KeyMaterial, error)) (*KeyMaterial, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.km != nil {
		return m.km, nil
	}
	km, err := init()
	if err != nil {
		return nil, err
	}
	m.km = km
	return km, nil
}
