package encviewfs

import (
	"github.com/sirupsen/logrus"
)

// DefaultCacheSize is the number of entries kept in the name and size caches
// when Config.CacheSize is zero
const DefaultCacheSize = 4096

// Direction selects which way a view transforms the tree it wraps
type Direction uint8

const (
	// Encrypt shows a plaintext tree in encrypted form
	Encrypt Direction = iota
	// Decrypt shows an encrypted tree in plaintext form
	Decrypt
)

// String returns the string representation of the direction
func (d Direction) String() string {
	switch d {
	case Encrypt:
		return "encrypt"
	case Decrypt:
		return "decrypt"
	default:
		return "unknown"
	}
}

// Config contains configuration for a view. It is read once when the view is
// created.
type Config struct {
	// Secret supplies the secret all keys are derived from
	Secret SecretProvider

	// SegmentSize is the maximum size of one physical part of a file. Zero
	// disables splitting.
	SegmentSize int64

	// FileSalt selects the salt provider for content key additions
	FileSalt string

	// NameSalt selects the salt provider for name key additions
	NameSalt string

	// CacheSize is the number of entries in the name and size caches. Zero
	// selects DefaultCacheSize, a negative value disables caching.
	CacheSize int

	// Parallel configures parallel processing of large content ranges. Nil
	// selects DefaultParallelConfig.
	Parallel *ParallelConfig

	// Logger receives debug output; nil uses the standard logrus logger
	Logger logrus.FieldLogger
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if c.Secret == nil {
		return ErrNilSecret
	}
	if err := ValidateSegmentSize(c.SegmentSize); err != nil {
		return err
	}
	if _, err := FileSaltProvider(c.FileSalt); err != nil {
		return &ValidationError{Field: "fileSalt", Value: c.FileSalt, Message: err.Error(), Err: err}
	}
	if _, err := NameSaltProvider(c.NameSalt); err != nil {
		return &ValidationError{Field: "filenameSalt", Value: c.NameSalt, Message: err.Error(), Err: err}
	}
	if c.Parallel != nil {
		if err := c.Parallel.Validate(); err != nil {
			return NewValidationError("parallel", *c.Parallel, err.Error())
		}
	}
	return nil
}

func (c *Config) parallel() ParallelConfig {
	if c.Parallel == nil {
		return DefaultParallelConfig()
	}
	return *c.Parallel
}

func (c *Config) cacheSize() int {
	if c.CacheSize == 0 {
		return DefaultCacheSize
	}
	return c.CacheSize
}

func (c *Config) logger() logrus.FieldLogger {
	if c.Logger == nil {
		return logrus.StandardLogger()
	}
	return c.Logger
}
