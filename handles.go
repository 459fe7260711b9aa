package encviewfs

import (
	"fmt"
	"sync"
)

// DirectoryHandle is returned for directory opens. It is never assigned to a
// VirtualFile and unregistering it is a no-op.
const DirectoryHandle uint64 = 0

// Opener builds the VirtualFile for a view path
type Opener func(name string) (VirtualFile, error)

// HandleRegistry maps small integer handles to open VirtualFiles. Freed
// handles are reused before new ones are allocated.
type HandleRegistry struct {
	open Opener

	mu      sync.Mutex
	handles map[uint64]VirtualFile
	free    []uint64
}

// NewHandleRegistry creates a registry that opens files with open
func NewHandleRegistry(open Opener) *HandleRegistry {
	return &HandleRegistry{
		open:    open,
		handles: make(map[uint64]VirtualFile),
	}
}

// Register opens name and returns its new handle
func (r *HandleRegistry) Register(name string) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	vf, err := r.open(name)
	if err != nil {
		return 0, err
	}

	fh := r.nextHandle()
	r.handles[fh] = vf
	return fh, nil
}

// nextHandle pops the smallest freed handle, or else the next unused one.
// While the free list is empty the live handles are exactly 1..len.
func (r *HandleRegistry) nextHandle() uint64 {
	if len(r.free) == 0 {
		return uint64(len(r.handles)) + 1
	}

	lowest := 0
	for i, fh := range r.free {
		if fh < r.free[lowest] {
			lowest = i
		}
	}
	fh := r.free[lowest]
	r.free[lowest] = r.free[len(r.free)-1]
	r.free = r.free[:len(r.free)-1]
	return fh
}

// Get returns the VirtualFile registered under fh
func (r *HandleRegistry) Get(fh uint64) (VirtualFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	vf, ok := r.handles[fh]
	if !ok {
		return nil, fmt.Errorf("handle %d: %w", fh, ErrInvalidHandle)
	}
	return vf, nil
}

// Unregister removes fh and closes its VirtualFile. The caller must make sure
// no read on fh is still in flight.
func (r *HandleRegistry) Unregister(fh uint64) error {
	if fh == DirectoryHandle {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	vf, ok := r.handles[fh]
	if !ok {
		return fmt.Errorf("handle %d: %w", fh, ErrInvalidHandle)
	}
	delete(r.handles, fh)
	r.free = append(r.free, fh)
	return vf.Close()
}

// Len returns the number of registered handles
func (r *HandleRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// CloseAll unregisters every handle and returns the first close error
func (r *HandleRegistry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for fh, vf := range r.handles {
		if err := vf.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.handles, fh)
	}
	r.free = nil
	return firstErr
}
