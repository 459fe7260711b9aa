package encviewfs

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/absfs/absfs"
)

// Usage reports the capacity of the filesystem backing a view
type Usage struct {
	BlockSize    uint64
	FragmentSize uint64
	Blocks       uint64
	BlocksFree   uint64
	BlocksAvail  uint64
	Files        uint64
	FilesFree    uint64
	NameMax      uint64
}

// Accessor is implemented by backing filesystems that can check access
// permissions the way access(2) does
type Accessor interface {
	Access(name string, mode uint32) error
}

// Statfser is implemented by backing filesystems that can report usage
type Statfser interface {
	Statfs(name string) (*Usage, error)
}

// OSRoot is a read-only absfs.FileSystem over a directory of the host
// filesystem. Paths are slash separated and relative to the root; they can
// never leave it.
type OSRoot struct {
	absfs.FileSystem
	filer *osFiler
}

// NewOSRoot creates a read-only filesystem rooted at dir
func NewOSRoot(dir string) (*OSRoot, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, NewValidationError("root", dir, "not a directory")
	}

	filer := &osFiler{root: abs}
	return &OSRoot{FileSystem: absfs.ExtendFiler(filer), filer: filer}, nil
}

// Root returns the host path of the root directory
func (r *OSRoot) Root() string { return r.filer.root }

// Access checks mode (R_OK=4, W_OK=2, X_OK=1) for name
func (r *OSRoot) Access(name string, mode uint32) error {
	return access(r.filer.real(name), mode)
}

// Statfs reports the usage of the filesystem holding the root
func (r *OSRoot) Statfs(name string) (*Usage, error) {
	return statfs(r.filer.real(name))
}

// osFiler implements absfs.Filer on the host filesystem and refuses every
// modification
type osFiler struct {
	root string
}

func (f *osFiler) real(name string) string {
	return filepath.Join(f.root, filepath.FromSlash(path.Clean("/"+name)))
}

func denied(op, name string) error {
	return &os.PathError{Op: op, Path: name, Err: os.ErrPermission}
}

func (f *osFiler) OpenFile(name string, flag int, perm os.FileMode) (absfs.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_APPEND|os.O_TRUNC) != 0 {
		return nil, denied("open", name)
	}
	file, err := os.OpenFile(f.real(name), flag, perm)
	if err != nil {
		return nil, err
	}
	return file, nil
}

func (f *osFiler) Mkdir(name string, perm os.FileMode) error { return denied("mkdir", name) }

func (f *osFiler) Remove(name string) error { return denied("remove", name) }

func (f *osFiler) Rename(oldpath, newpath string) error {
	return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: os.ErrPermission}
}

func (f *osFiler) Stat(name string) (os.FileInfo, error) { return os.Stat(f.real(name)) }

func (f *osFiler) Chmod(name string, mode os.FileMode) error { return denied("chmod", name) }

func (f *osFiler) Chtimes(name string, atime time.Time, mtime time.Time) error {
	return denied("chtimes", name)
}

func (f *osFiler) Chown(name string, uid, gid int) error { return denied("chown", name) }

func (f *osFiler) ReadDir(name string) ([]fs.DirEntry, error) { return os.ReadDir(f.real(name)) }

func (f *osFiler) ReadFile(name string) ([]byte, error) { return os.ReadFile(f.real(name)) }

func (f *osFiler) Sub(dir string) (fs.FS, error) { return os.DirFS(f.real(dir)), nil }
