//go:build linux || darwin

package mount

import (
	"os"
	"path/filepath"
	"time"

	"github.com/absfs/encviewfs"
	"github.com/absfs/encviewfs/internal/ctxlog"
	"github.com/arvados/cgofuse/fuse"
	"github.com/prometheus/client_golang/prometheus"
	. "gopkg.in/check.v1"
)

func (s *FSSuite) TestGetattrTimes(c *C) {
	dir := c.MkDir()
	host := filepath.Join(dir, "f")
	c.Assert(os.WriteFile(host, []byte("times"), 0644), IsNil)
	atime := time.Date(2001, 2, 3, 4, 5, 6, 0, time.UTC)
	mtime := time.Date(2002, 3, 4, 5, 6, 7, 0, time.UTC)
	c.Assert(os.Chtimes(host, atime, mtime), IsNil)

	root, err := encviewfs.NewOSRoot(dir)
	c.Assert(err, IsNil)
	view, err := encviewfs.NewEncryptedView(root, &encviewfs.Config{
		Secret: encviewfs.StaticSecret("mount secret"),
		Logger: ctxlog.TestLogger(c),
	})
	c.Assert(err, IsNil)
	defer view.Close()
	fs := New(Config{View: view, Logger: ctxlog.TestLogger(c), Registry: prometheus.NewRegistry()})

	name, err := s.codec.EncryptFilename("f")
	c.Assert(err, IsNil)
	var stat fuse.Stat_t
	c.Assert(fs.Getattr("/"+name, &stat, invalidFH), Equals, 0)
	c.Check(stat.Mtim, Equals, fuse.NewTimespec(mtime))
	c.Check(stat.Atim, Equals, fuse.NewTimespec(atime))
	// the change time is set by Chtimes itself, so it is after mtime
	c.Check(stat.Ctim.Sec > stat.Mtim.Sec, Equals, true)
}
