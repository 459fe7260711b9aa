package encviewfs

import (
	"errors"
	"fmt"
	"os"
)

// ValidationError represents a configuration or parameter validation error
type ValidationError struct {
	Field   string // The field or parameter that failed validation
	Value   any    // The invalid value
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// EncryptionError represents an encryption or decryption failure
type EncryptionError struct {
	Operation string // "encrypt" or "decrypt"
	Path      string // File or entry name, if applicable
	Offset    int64  // Byte offset of the failing range, -1 if not applicable
	Message   string // Human-readable error message
	Err       error  // Underlying error
}

func (e *EncryptionError) Error() string {
	if e.Path != "" && e.Offset >= 0 {
		return fmt.Sprintf("%s error: %s at offset %d: %s", e.Operation, e.Path, e.Offset, e.Message)
	} else if e.Path != "" {
		return fmt.Sprintf("%s error: %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Operation, e.Message)
}

func (e *EncryptionError) Unwrap() error {
	return e.Err
}

// IOError represents a file system I/O error
type IOError struct {
	Operation string // "read", "seek", "open", "close", "stat", "readdir"
	Path      string // File path
	Offset    int64  // File offset, if applicable
	Message   string // Human-readable error message
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" && e.Offset >= 0 {
		return fmt.Sprintf("io error: %s %s at offset %d: %s", e.Operation, e.Path, e.Offset, e.Message)
	} else if e.Path != "" {
		return fmt.Sprintf("io error: %s %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("io error: %s: %s", e.Operation, e.Message)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// CorruptionError reports ciphertext that cannot be decoded. It always
// matches ErrMalformedInput with errors.Is.
type CorruptionError struct {
	Path    string // File or entry name
	Message string // Human-readable error message
	Err     error  // Underlying error
}

func (e *CorruptionError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("corruption error: %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("corruption error: %s", e.Message)
}

func (e *CorruptionError) Unwrap() error {
	if e.Err == nil {
		return ErrMalformedInput
	}
	return e.Err
}

// Is reports ErrMalformedInput for every corruption error, whatever it wraps.
func (e *CorruptionError) Is(target error) bool {
	return target == ErrMalformedInput
}

// Common sentinel errors
var (
	ErrMalformedInput = errors.New("malformed encrypted input")
	ErrInvalidHandle  = errors.New("invalid file handle")
	ErrInvalidPath    = errors.New("path does not name a regular file")
	ErrReadOnly       = errors.New("view is read-only")
	ErrAccessDenied   = errors.New("access denied")
	ErrNotSupported   = errors.New("operation not supported by the backing filesystem")
	ErrInvalidKey     = errors.New("invalid encryption key")
	ErrUnalignedInput = errors.New("input is not a multiple of the block size")
	ErrUnknownSalt    = errors.New("unknown salt provider")
	ErrNilConfig      = errors.New("config cannot be nil")
	ErrNilSecret      = errors.New("secret provider cannot be nil")
	ErrEmptySecret    = errors.New("secret cannot be empty")
	ErrNilFileSystem  = errors.New("filesystem cannot be nil")
	ErrNegativeOffset = errors.New("negative offset not allowed")
	ErrInvalidSize    = errors.New("invalid size parameter")
)

// NewValidationError creates a new validation error
func NewValidationError(field string, value any, message string) error {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// NewEncryptionError creates a new encryption error
func NewEncryptionError(operation, path string, err error) error {
	return &EncryptionError{
		Operation: operation,
		Path:      path,
		Offset:    -1,
		Message:   err.Error(),
		Err:       err,
	}
}

// NewIOError creates a new I/O error
func NewIOError(operation, path string, err error) error {
	return &IOError{
		Operation: operation,
		Path:      path,
		Offset:    -1,
		Message:   err.Error(),
		Err:       err,
	}
}

// NewCorruptionError creates a new corruption error
func NewCorruptionError(path string, message string) error {
	return &CorruptionError{
		Path:    path,
		Message: message,
	}
}

// notFound builds the error a view returns for entries that do not exist in
// the view, even though something may exist on disk.
func notFound(op, name string) error {
	return &os.PathError{Op: op, Path: name, Err: os.ErrNotExist}
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsEncryptionError checks if an error is an encryption error
func IsEncryptionError(err error) bool {
	var ee *EncryptionError
	return errors.As(err, &ee)
}

// IsIOError checks if an error is an I/O error
func IsIOError(err error) bool {
	var ie *IOError
	return errors.As(err, &ie)
}

// IsCorruptionError checks if an error is a corruption error
func IsCorruptionError(err error) bool {
	var ce *CorruptionError
	return errors.As(err, &ce)
}

// IsMalformedInput reports whether err was caused by undecodable ciphertext.
func IsMalformedInput(err error) bool {
	return errors.Is(err, ErrMalformedInput)
}
