package mount

import (
	"os"
	"syscall"
	"time"
)

// fileTimes returns the access and change times of fi, or its modification
// time when the backing filesystem does not report them.
func fileTimes(fi os.FileInfo) (atime, ctime time.Time) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return fi.ModTime(), fi.ModTime()
	}
	return time.Unix(st.Atim.Unix()), time.Unix(st.Ctim.Unix())
}
