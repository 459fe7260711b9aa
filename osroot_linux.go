package encviewfs

import (
	"os"

	"golang.org/x/sys/unix"
)

func access(name string, mode uint32) error {
	if err := unix.Access(name, mode); err != nil {
		return &os.PathError{Op: "access", Path: name, Err: err}
	}
	return nil
}

func statfs(name string) (*Usage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(name, &st); err != nil {
		return nil, &os.PathError{Op: "statfs", Path: name, Err: err}
	}
	return &Usage{
		BlockSize:    uint64(st.Bsize),
		FragmentSize: uint64(st.Frsize),
		Blocks:       st.Blocks,
		BlocksFree:   st.Bfree,
		BlocksAvail:  st.Bavail,
		Files:        st.Files,
		FilesFree:    st.Ffree,
		NameMax:      uint64(st.Namelen),
	}, nil
}
