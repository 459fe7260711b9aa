package encviewfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"syscall"
	"time"

	"github.com/absfs/absfs"
	"github.com/sirupsen/logrus"
)

// Access mode bits as used by access(2)
const (
	AccessRead  uint32 = 4
	AccessWrite uint32 = 2
	AccessExec  uint32 = 1
)

// View is a read-only filesystem surface that transforms the tree it wraps.
// Paths are slash separated and absolute within the view.
type View interface {
	// Direction reports which way the view transforms
	Direction() Direction

	// Open registers name for reading and returns its handle. Directories
	// get DirectoryHandle.
	Open(name string, flags int) (uint64, error)

	// Read returns up to length bytes at offset of the open file fh
	Read(name string, fh uint64, offset int64, length int) ([]byte, error)

	// Release closes fh
	Release(fh uint64) error

	// Getattr returns the attributes of name as shown by the view
	Getattr(name string) (os.FileInfo, error)

	// Readdir returns the names of the entries of the directory name
	Readdir(name string) ([]string, error)

	// Access checks mode against name. Write access is always denied.
	Access(name string, mode uint32) error

	// Statfs reports the usage of the backing filesystem
	Statfs(name string) (*Usage, error)

	// Close releases every open handle
	Close() error

	Mkdir(name string, perm os.FileMode) error
	Unlink(name string) error
	Rmdir(name string) error
	Rename(oldname, newname string) error
	Chmod(name string, mode os.FileMode) error
	Chown(name string, uid, gid int) error
	Truncate(name string, size int64) error
	Write(name string, fh uint64, data []byte, offset int64) (int, error)
	Create(name string, flags int, perm os.FileMode) (uint64, error)
	Link(oldname, newname string) error
	Symlink(target, newname string) error
}

var _ View = (*ViewFS)(nil)

// target is a view path resolved against the backing filesystem
type target struct {
	physical string
	segment  int
	info     os.FileInfo
	size     int64
}

// variant holds the steps in which the two directions differ
type variant interface {
	direction() Direction

	// lookup resolves a cleaned view path other than the root
	lookup(name string) (*target, error)

	// open builds the VirtualFile of a resolved regular file
	open(t *target) (VirtualFile, error)

	// read serves a read of an open VirtualFile
	read(vf VirtualFile, offset int64, length int) ([]byte, error)

	// expand returns the view names of one entry of the physical directory
	// dir. A nil result hides the entry.
	expand(dir string, entry fs.DirEntry) ([]string, error)
}

var errDirectory = errors.New("is a directory")

// ViewFS implements View over an absfs.FileSystem
type ViewFS struct {
	fsys     absfs.FileSystem
	variant  variant
	handles  *HandleRegistry
	log      logrus.FieldLogger
	secretID string
}

func newViewFS(fsys absfs.FileSystem, log logrus.FieldLogger, secret []byte, v variant) *ViewFS {
	vfs := &ViewFS{
		fsys:     fsys,
		variant:  v,
		secretID: SecretFingerprint(secret),
	}
	vfs.log = log.WithFields(logrus.Fields{
		"direction": v.direction().String(),
		"secret":    vfs.secretID,
	})
	vfs.handles = NewHandleRegistry(vfs.openFile)
	return vfs
}

// viewSetup is the state shared by both constructors
type viewSetup struct {
	secret []byte
	codec  *Codec
	names  *cachedFilenameEncryptor
	log    logrus.FieldLogger
}

func setupView(fsys absfs.FileSystem, cfg *Config) (*viewSetup, error) {
	if fsys == nil {
		return nil, ErrNilFileSystem
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	secret, err := cfg.Secret.Secret()
	if err != nil {
		return nil, fmt.Errorf("failed to get secret: %w", err)
	}
	fileSalt, err := FileSaltProvider(cfg.FileSalt)
	if err != nil {
		return nil, err
	}
	codec, err := NewCodec(secret, fileSalt)
	if err != nil {
		return nil, err
	}
	if err := codec.SetParallel(cfg.parallel()); err != nil {
		return nil, err
	}
	names, err := newCachedFilenameEncryptor(codec, cfg.cacheSize())
	if err != nil {
		return nil, err
	}
	return &viewSetup{secret: secret, codec: codec, names: names, log: cfg.logger()}, nil
}

// FileSystem returns the backing filesystem
func (v *ViewFS) FileSystem() absfs.FileSystem { return v.fsys }

// Direction reports which way the view transforms
func (v *ViewFS) Direction() Direction { return v.variant.direction() }

// SecretID returns the fingerprint of the secret the view was built with
func (v *ViewFS) SecretID() string { return v.secretID }

// OpenHandles returns the number of registered file handles
func (v *ViewFS) OpenHandles() int { return v.handles.Len() }

func (v *ViewFS) lookup(name string) (*target, error) {
	name = path.Clean("/" + name)
	if name == "/" {
		info, err := v.fsys.Stat("/")
		if err != nil {
			return nil, err
		}
		return &target{physical: "/", segment: NoSegment, info: info, size: info.Size()}, nil
	}

	t, err := v.variant.lookup(name)
	if err != nil {
		if IsMalformedInput(err) {
			v.log.WithError(err).WithField("path", name).Debug("undecodable path")
			return nil, notFound("lookup", name)
		}
		return nil, err
	}
	return t, nil
}

// openFile is the Opener of the handle registry
func (v *ViewFS) openFile(name string) (VirtualFile, error) {
	t, err := v.lookup(name)
	if err != nil {
		return nil, err
	}
	if t.info.IsDir() {
		return nil, errDirectory
	}
	return v.variant.open(t)
}

// Open registers name for reading. Any flag that could modify the file fails
// with ErrReadOnly before anything is opened.
func (v *ViewFS) Open(name string, flags int) (uint64, error) {
	if flags&(os.O_CREATE|os.O_APPEND|os.O_RDWR|os.O_WRONLY|os.O_TRUNC) != 0 {
		return 0, &os.PathError{Op: "open", Path: name, Err: ErrReadOnly}
	}

	fh, err := v.handles.Register(name)
	if errors.Is(err, errDirectory) {
		return DirectoryHandle, nil
	}
	if err != nil {
		return 0, err
	}
	v.log.WithFields(logrus.Fields{"path": name, "fh": fh}).Debug("open")
	return fh, nil
}

// Read returns up to length bytes at offset of the open file fh
func (v *ViewFS) Read(name string, fh uint64, offset int64, length int) ([]byte, error) {
	vf, err := v.handles.Get(fh)
	if err != nil {
		return nil, err
	}
	return v.variant.read(vf, offset, length)
}

// Release closes fh. Releasing DirectoryHandle does nothing.
func (v *ViewFS) Release(fh uint64) error {
	return v.handles.Unregister(fh)
}

// Getattr returns the attributes of name with the transformed size and
// without write permission bits.
func (v *ViewFS) Getattr(name string) (os.FileInfo, error) {
	t, err := v.lookup(name)
	if err != nil {
		return nil, err
	}
	return &fileInfo{
		name:    path.Base(path.Clean("/" + name)),
		size:    t.size,
		mode:    t.info.Mode() &^ 0222,
		modTime: t.info.ModTime(),
		sys:     t.info.Sys(),
	}, nil
}

// Readdir lists the directory name. Entries that cannot be shown are skipped.
func (v *ViewFS) Readdir(name string) ([]string, error) {
	t, err := v.lookup(name)
	if err != nil {
		return nil, err
	}
	if !t.info.IsDir() {
		return nil, &os.PathError{Op: "readdir", Path: name, Err: syscall.ENOTDIR}
	}

	entries, err := v.fsys.ReadDir(t.physical)
	if err != nil {
		return nil, NewIOError("readdir", t.physical, err)
	}

	seen := make(map[string]bool, len(entries))
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		expanded, err := v.variant.expand(t.physical, entry)
		if err != nil {
			v.log.WithError(err).WithField("entry", path.Join(t.physical, entry.Name())).Debug("skipping entry")
			continue
		}
		for _, n := range expanded {
			if seen[n] {
				continue
			}
			seen[n] = true
			names = append(names, n)
		}
	}
	return names, nil
}

// Access denies write access and otherwise defers to the backing filesystem
// when it implements Accessor.
func (v *ViewFS) Access(name string, mode uint32) error {
	if mode&AccessWrite != 0 {
		return &os.PathError{Op: "access", Path: name, Err: ErrAccessDenied}
	}
	t, err := v.lookup(name)
	if err != nil {
		return err
	}
	if a, ok := v.fsys.(Accessor); ok {
		return a.Access(t.physical, mode)
	}
	return nil
}

// Statfs reports the usage of the filesystem holding the backing root
func (v *ViewFS) Statfs(name string) (*Usage, error) {
	s, ok := v.fsys.(Statfser)
	if !ok {
		return nil, ErrNotSupported
	}
	return s.Statfs("/")
}

// Close releases every open handle
func (v *ViewFS) Close() error {
	return v.handles.CloseAll()
}

func readOnly(op, name string) error {
	return &os.PathError{Op: op, Path: name, Err: ErrReadOnly}
}

func (v *ViewFS) Mkdir(name string, perm os.FileMode) error    { return readOnly("mkdir", name) }
func (v *ViewFS) Unlink(name string) error                     { return readOnly("unlink", name) }
func (v *ViewFS) Rmdir(name string) error                      { return readOnly("rmdir", name) }
func (v *ViewFS) Rename(oldname, newname string) error         { return readOnly("rename", oldname) }
func (v *ViewFS) Chmod(name string, mode os.FileMode) error    { return readOnly("chmod", name) }
func (v *ViewFS) Chown(name string, uid, gid int) error        { return readOnly("chown", name) }
func (v *ViewFS) Truncate(name string, size int64) error       { return readOnly("truncate", name) }
func (v *ViewFS) Link(oldname, newname string) error           { return readOnly("link", newname) }
func (v *ViewFS) Symlink(target, newname string) error         { return readOnly("symlink", newname) }
func (v *ViewFS) Create(name string, flags int, perm os.FileMode) (uint64, error) {
	return 0, readOnly("create", name)
}
func (v *ViewFS) Write(name string, fh uint64, data []byte, offset int64) (int, error) {
	return 0, readOnly("write", name)
}

// fileInfo is the os.FileInfo returned by Getattr
type fileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
	sys     any
}

func (fi *fileInfo) Name() string       { return fi.name }
func (fi *fileInfo) Size() int64        { return fi.size }
func (fi *fileInfo) Mode() os.FileMode  { return fi.mode }
func (fi *fileInfo) ModTime() time.Time { return fi.modTime }
func (fi *fileInfo) IsDir() bool        { return fi.mode.IsDir() }
func (fi *fileInfo) Sys() any           { return fi.sys }
