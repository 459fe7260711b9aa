//go:build !linux

package encviewfs

import (
	"os"
)

// access falls back to a plain existence check
func access(name string, mode uint32) error {
	_, err := os.Stat(name)
	return err
}

func statfs(name string) (*Usage, error) {
	return nil, ErrNotSupported
}
