// Package mount serves an encviewfs.View over FUSE.
package mount

import (
	"errors"
	"os"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/absfs/encviewfs"
	"github.com/arvados/cgofuse/fuse"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

var invalidFH = ^uint64(0)

// Config holds the settings of one mount
type Config struct {
	View     encviewfs.View
	Logger   logrus.FieldLogger
	Registry prometheus.Registerer
	Uid      int
	Gid      int
}

// FS implements cgofuse's FileSystemInterface on top of a View. Every
// modifying operation fails with EROFS.
type FS struct {
	fuse.FileSystemBase

	view    encviewfs.View
	logger  logrus.FieldLogger
	metrics *metrics
	uid     int
	gid     int
	id      string

	host  *fuse.FileSystemHost
	ready chan struct{}
}

var _ fuse.FileSystemInterface = (*FS)(nil)

// New creates the FUSE filesystem for cfg.View
func New(cfg Config) *FS {
	id := uuid.NewString()
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	direction := cfg.View.Direction().String()
	return &FS{
		view:    cfg.View,
		logger:  logger.WithFields(logrus.Fields{"mount": id, "direction": direction}),
		metrics: newMetrics(cfg.Registry, id, direction),
		uid:     cfg.Uid,
		gid:     cfg.Gid,
		id:      id,
		ready:   make(chan struct{}),
	}
}

// ID returns the random identifier of this mount
func (fs *FS) ID() string { return fs.id }

// Ready is closed once the kernel has initialized the mount
func (fs *FS) Ready() <-chan struct{} { return fs.ready }

// Mount mounts the filesystem at dir with the given FUSE arguments and
// blocks until it is unmounted.
func (fs *FS) Mount(dir string, args []string) error {
	fs.host = fuse.NewFileSystemHost(fs)
	fs.logger.WithField("dir", dir).Info("mounting")
	if !fs.host.Mount(dir, args) {
		return errors.New("mount failed")
	}
	return nil
}

// Unmount unmounts a filesystem mounted with Mount. It is only safe to call
// after Ready is closed.
func (fs *FS) Unmount() bool {
	if fs.host == nil {
		return false
	}
	return fs.host.Unmount()
}

func (fs *FS) Init() {
	defer fs.debugPanics()
	close(fs.ready)
}

func (fs *FS) Destroy() {
	defer fs.debugPanics()
	if err := fs.view.Close(); err != nil {
		fs.logger.WithError(err).Warn("error closing handles")
	}
	fs.metrics.handles.Set(0)
}

// errCode maps view errors to negated errno values
func (fs *FS) errCode(err error) int {
	var errno syscall.Errno
	switch {
	case err == nil:
		return 0
	case errors.Is(err, encviewfs.ErrReadOnly):
		return -fuse.EROFS
	case errors.Is(err, encviewfs.ErrAccessDenied), errors.Is(err, os.ErrPermission):
		return -fuse.EACCES
	case errors.Is(err, encviewfs.ErrInvalidHandle):
		return -fuse.EBADF
	case errors.Is(err, os.ErrNotExist), errors.Is(err, encviewfs.ErrInvalidPath), encviewfs.IsMalformedInput(err):
		return -fuse.ENOENT
	case errors.Is(err, encviewfs.ErrNotSupported):
		return -fuse.ENOSYS
	case errors.As(err, &errno):
		return -int(errno)
	}
	return -fuse.EIO
}

// track records one served operation. errc is the value returned to FUSE.
func (fs *FS) track(op string, start time.Time, errc int) {
	result := "ok"
	if errc < 0 {
		result = syscall.Errno(-errc).Error()
	}
	fs.metrics.ops.WithLabelValues(op, result).Inc()
	fs.metrics.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (fs *FS) Open(path string, flags int) (errc int, fh uint64) {
	defer fs.debugPanics()
	defer func(t time.Time) { fs.track("open", t, errc) }(time.Now())

	fh, err := fs.view.Open(path, flags)
	if err != nil {
		fs.logger.WithError(err).WithField("path", path).Debug("open failed")
		return fs.errCode(err), invalidFH
	}
	if fh != encviewfs.DirectoryHandle {
		fs.metrics.handles.Inc()
	}
	return 0, fh
}

func (fs *FS) Opendir(path string) (errc int, fh uint64) {
	defer fs.debugPanics()
	fi, err := fs.view.Getattr(path)
	if err != nil {
		return fs.errCode(err), invalidFH
	}
	if !fi.IsDir() {
		return -fuse.ENOTDIR, invalidFH
	}
	return 0, encviewfs.DirectoryHandle
}

func (fs *FS) Releasedir(path string, fh uint64) (errc int) {
	defer fs.debugPanics()
	return fs.errCode(fs.view.Release(encviewfs.DirectoryHandle))
}

func (fs *FS) Release(path string, fh uint64) (errc int) {
	defer fs.debugPanics()
	defer func(t time.Time) { fs.track("release", t, errc) }(time.Now())

	if err := fs.view.Release(fh); err != nil {
		fs.logger.WithError(err).WithField("path", path).Warn("release failed")
		return fs.errCode(err)
	}
	if fh != encviewfs.DirectoryHandle {
		fs.metrics.handles.Dec()
	}
	return 0
}

func (fs *FS) Getattr(path string, stat *fuse.Stat_t, fh uint64) (errc int) {
	defer fs.debugPanics()
	defer func(t time.Time) { fs.track("getattr", t, errc) }(time.Now())

	fi, err := fs.view.Getattr(path)
	if err != nil {
		return fs.errCode(err)
	}
	fs.fillStat(stat, fi)
	return 0
}

func (fs *FS) fillStat(stat *fuse.Stat_t, fi os.FileInfo) {
	defer fs.debugPanics()
	var m uint32
	if fi.IsDir() {
		m = m | fuse.S_IFDIR
	} else {
		m = m | fuse.S_IFREG
	}
	m = m | uint32(fi.Mode()&os.ModePerm)
	stat.Mode = m
	stat.Nlink = 1
	stat.Size = fi.Size()
	t := fuse.NewTimespec(fi.ModTime())
	stat.Mtim = t
	stat.Birthtim = t
	atime, ctime := fileTimes(fi)
	stat.Atim = fuse.NewTimespec(atime)
	stat.Ctim = fuse.NewTimespec(ctime)
	stat.Blksize = 4096
	stat.Blocks = (stat.Size + 511) / 512
	uid, gid := fs.uid, fs.gid
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		uid, gid = int(st.Uid), int(st.Gid)
		stat.Nlink = uint32(st.Nlink)
	}
	if uid > 0 && int64(uid) < 1<<31 {
		stat.Uid = uint32(uid)
	}
	if gid > 0 && int64(gid) < 1<<31 {
		stat.Gid = uint32(gid)
	}
}

func (fs *FS) Read(path string, buf []byte, ofst int64, fh uint64) (n int) {
	defer fs.debugPanics()
	defer func(t time.Time) { fs.track("read", t, n) }(time.Now())

	data, err := fs.view.Read(path, fh, ofst, len(buf))
	if err != nil {
		fs.logger.WithError(err).WithFields(logrus.Fields{"path": path, "offset": ofst}).Warn("read failed")
		return fs.errCode(err)
	}
	n = copy(buf, data)
	fs.metrics.readBytes.Add(float64(n))
	return n
}

func (fs *FS) Readdir(path string,
	fill func(name string, stat *fuse.Stat_t, ofst int64) bool,
	ofst int64,
	fh uint64) (errc int) {
	defer fs.debugPanics()
	defer func(t time.Time) { fs.track("readdir", t, errc) }(time.Now())

	names, err := fs.view.Readdir(path)
	if err != nil {
		return fs.errCode(err)
	}
	fill(".", nil, 0)
	fill("..", nil, 0)
	for _, name := range names {
		if !fill(name, nil, 0) {
			break
		}
	}
	return 0
}

func (fs *FS) Access(path string, mask uint32) (errc int) {
	defer fs.debugPanics()
	return fs.errCode(fs.view.Access(path, mask))
}

func (fs *FS) Statfs(path string, stat *fuse.Statfs_t) (errc int) {
	defer fs.debugPanics()
	u, err := fs.view.Statfs(path)
	if err != nil {
		return fs.errCode(err)
	}
	stat.Bsize = u.BlockSize
	stat.Frsize = u.FragmentSize
	stat.Blocks = u.Blocks
	stat.Bfree = u.BlocksFree
	stat.Bavail = u.BlocksAvail
	stat.Files = u.Files
	stat.Ffree = u.FilesFree
	stat.Favail = u.FilesFree
	stat.Namemax = u.NameMax
	return 0
}

func (fs *FS) Mkdir(path string, mode uint32) int {
	defer fs.debugPanics()
	return fs.errCode(fs.view.Mkdir(path, os.FileMode(mode)))
}

func (fs *FS) Unlink(path string) int {
	defer fs.debugPanics()
	return fs.errCode(fs.view.Unlink(path))
}

func (fs *FS) Rmdir(path string) int {
	defer fs.debugPanics()
	return fs.errCode(fs.view.Rmdir(path))
}

func (fs *FS) Rename(oldpath, newpath string) int {
	defer fs.debugPanics()
	return fs.errCode(fs.view.Rename(oldpath, newpath))
}

func (fs *FS) Chmod(path string, mode uint32) int {
	defer fs.debugPanics()
	return fs.errCode(fs.view.Chmod(path, os.FileMode(mode)))
}

func (fs *FS) Chown(path string, uid uint32, gid uint32) int {
	defer fs.debugPanics()
	return fs.errCode(fs.view.Chown(path, int(uid), int(gid)))
}

func (fs *FS) Truncate(path string, size int64, fh uint64) int {
	defer fs.debugPanics()
	return fs.errCode(fs.view.Truncate(path, size))
}

func (fs *FS) Write(path string, buf []byte, ofst int64, fh uint64) int {
	defer fs.debugPanics()
	_, err := fs.view.Write(path, fh, buf, ofst)
	return fs.errCode(err)
}

func (fs *FS) Create(path string, flags int, mode uint32) (int, uint64) {
	defer fs.debugPanics()
	_, err := fs.view.Create(path, flags, os.FileMode(mode))
	return fs.errCode(err), invalidFH
}

func (fs *FS) Link(oldpath, newpath string) int {
	defer fs.debugPanics()
	return fs.errCode(fs.view.Link(oldpath, newpath))
}

func (fs *FS) Symlink(target, newpath string) int {
	defer fs.debugPanics()
	return fs.errCode(fs.view.Symlink(target, newpath))
}

func (fs *FS) Mknod(path string, mode uint32, dev uint64) int {
	return -fuse.EROFS
}

func (fs *FS) Utimens(path string, tmsp []fuse.Timespec) int {
	return -fuse.EROFS
}

// debugPanics (when deferred by FS handlers) logs an error and stack trace
// when a handler crashes. Without this, cgofuse recovers from panics
// silently and returns EIO.
func (fs *FS) debugPanics() {
	if err := recover(); err != nil {
		fs.logger.WithField("panic", err).Errorf("(%T) %v\n%s", err, err, debug.Stack())
		panic(err)
	}
}
