package encviewfs

import (
	"fmt"
	"sort"
	"time"
)

// SaltProvider computes the salt that a key addition is derived from.
type SaltProvider interface {
	// ID is the name used to select the provider in mount options
	ID() string

	// SaltFor returns the salt for an entry with the given base name and
	// modification time
	SaltFor(name string, modTime time.Time, isDir bool) (string, error)
}

// Default salt provider identifiers
const (
	DefaultFileSalt = "mtime-name"
	DefaultNameSalt = "filename"
)

type mtimeNameSalt struct{}

func (mtimeNameSalt) ID() string { return "mtime-name" }

func (mtimeNameSalt) SaltFor(name string, modTime time.Time, isDir bool) (string, error) {
	return unixSeconds(modTime) + name, nil
}

type mtimeFileSalt struct{}

func (mtimeFileSalt) ID() string { return "mtime" }

func (mtimeFileSalt) SaltFor(name string, modTime time.Time, isDir bool) (string, error) {
	if isDir {
		return "", NewValidationError("path", name, "file salt requires a regular file")
	}
	return fractionalSeconds(modTime), nil
}

type nameSalt struct{ id string }

func (s nameSalt) ID() string { return s.id }

func (nameSalt) SaltFor(name string, modTime time.Time, isDir bool) (string, error) {
	return name, nil
}

// mtimeNameFilenameSalt salts directories with their name and files with
// their modification time.
type mtimeNameFilenameSalt struct{}

func (mtimeNameFilenameSalt) ID() string { return "mtime" }

func (mtimeNameFilenameSalt) SaltFor(name string, modTime time.Time, isDir bool) (string, error) {
	if isDir {
		return name, nil
	}
	return fractionalSeconds(modTime), nil
}

var (
	fileSalts = registry(mtimeNameSalt{}, mtimeFileSalt{}, nameSalt{id: "name"})
	nameSalts = registry(nameSalt{id: "filename"}, mtimeNameFilenameSalt{})
)

func registry(providers ...SaltProvider) map[string]SaltProvider {
	m := make(map[string]SaltProvider, len(providers))
	for _, p := range providers {
		m[p.ID()] = p
	}
	return m
}

// FileSaltProvider returns the content salt provider registered as id. An
// empty id selects the default.
func FileSaltProvider(id string) (SaltProvider, error) {
	return lookupSalt(fileSalts, id, DefaultFileSalt)
}

// NameSaltProvider returns the name salt provider registered as id. An empty
// id selects the default.
func NameSaltProvider(id string) (SaltProvider, error) {
	return lookupSalt(nameSalts, id, DefaultNameSalt)
}

// FileSaltIDs lists the registered content salt providers
func FileSaltIDs() []string { return ids(fileSalts) }

// NameSaltIDs lists the registered name salt providers
func NameSaltIDs() []string { return ids(nameSalts) }

func lookupSalt(m map[string]SaltProvider, id, def string) (SaltProvider, error) {
	if id == "" {
		id = def
	}
	p, ok := m[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownSalt, id, ids(m))
	}
	return p, nil
}

func ids(m map[string]SaltProvider) []string {
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
