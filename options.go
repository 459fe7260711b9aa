package encviewfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

// MountOptions is the parsed form of a mount command line:
// device dir -o key[=value],...
type MountOptions struct {
	// Device is the absolute path of the tree to show
	Device string

	// Dir is the absolute path of the mountpoint
	Dir string

	// Secret is nil when neither secret= nor secretfile= was given
	Secret SecretProvider

	SegmentSize int64
	FileSalt    string
	NameSalt    string

	// Other holds the options that are passed through to FUSE, in order
	Other []string
}

// ParseMountOptions parses a comma separated -o option list. secret= wins
// over secretfile= when both are given.
func ParseMountOptions(options string) (*MountOptions, error) {
	mo := &MountOptions{}
	if options == "" {
		return mo, nil
	}

	var secretFile string
	for _, option := range strings.Split(options, ",") {
		key, value, isPair, err := splitOption(option)
		if err != nil {
			return nil, err
		}

		switch {
		case isPair && key == "secret":
			mo.Secret = StaticSecret(value)
		case isPair && key == "secretfile":
			secretFile = value
		case isPair && key == "segmentsize":
			size, err := humanize.ParseBytes(value)
			if err != nil {
				return nil, &ValidationError{Field: "segmentsize", Value: value, Message: err.Error(), Err: ErrInvalidSize}
			}
			mo.SegmentSize = int64(size)
		case isPair && key == "fileSalt":
			mo.FileSalt = value
		case isPair && key == "filenameSalt":
			mo.NameSalt = value
		default:
			mo.Other = append(mo.Other, option)
		}
	}

	if mo.Secret == nil && secretFile != "" {
		mo.Secret = NewFileSecretProvider(secretFile)
	}
	if _, err := FileSaltProvider(mo.FileSalt); err != nil {
		return nil, &ValidationError{Field: "fileSalt", Value: mo.FileSalt, Message: "the file salt provider is invalid", Err: err}
	}
	if _, err := NameSaltProvider(mo.NameSalt); err != nil {
		return nil, &ValidationError{Field: "filenameSalt", Value: mo.NameSalt, Message: "the filename salt provider is invalid", Err: err}
	}
	return mo, nil
}

func splitOption(option string) (key, value string, isPair bool, err error) {
	if option == "" {
		return "", "", false, NewValidationError("options", option, "empty options are not allowed (check your commas)")
	}

	parts := strings.Split(option, "=")
	switch {
	case len(parts) > 2:
		return "", "", false, NewValidationError("options", option, "option has more than one '='")
	case len(parts) == 1:
		return option, "", false, nil
	case parts[0] == "":
		return "", "", false, NewValidationError("options", option, "key must not be empty")
	case parts[1] == "":
		return "", "", false, NewValidationError("options", option, "value must not be empty")
	}
	return parts[0], parts[1], true, nil
}

// ParseMountArgs parses the positional device and mountpoint and the -o
// option list. Both positionals must be existing directories.
func ParseMountArgs(device, dir, options string) (*MountOptions, error) {
	mo, err := ParseMountOptions(options)
	if err != nil {
		return nil, err
	}
	if mo.Device, err = existingDir("device", device); err != nil {
		return nil, err
	}
	if mo.Dir, err = existingDir("dir", dir); err != nil {
		return nil, err
	}
	return mo, nil
}

func existingDir(field, dir string) (string, error) {
	if strings.HasPrefix(dir, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, dir[2:])
		}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", NewValidationError(field, dir, fmt.Sprintf("%s is not a directory", dir))
	}
	return abs, nil
}

// Config builds the view configuration. CacheSize and Logger are left for
// the caller to set.
func (mo *MountOptions) Config() *Config {
	return &Config{
		Secret:      mo.Secret,
		SegmentSize: mo.SegmentSize,
		FileSalt:    mo.FileSalt,
		NameSalt:    mo.NameSalt,
	}
}

// FuseArgs returns the pass-through options as -o arguments
func (mo *MountOptions) FuseArgs() []string {
	if len(mo.Other) == 0 {
		return nil
	}
	return []string{"-o", strings.Join(mo.Other, ",")}
}
