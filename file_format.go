package encviewfs

import (
	"crypto/sha256"
	"math"
	"strconv"
	"strings"
	"time"
)

// Layout constants of encrypted files and names. Changing any of them makes
// existing encrypted trees unreadable.
const (
	// BlockSize is the AES block size
	BlockSize = 16

	// NameKeyAdditionSize is the length of the key addition prefixed to
	// encrypted names
	NameKeyAdditionSize = 8

	// FileKeyAdditionSize is the length of the header of an encrypted file
	FileKeyAdditionSize = 16
)

// EncryptedFileSize returns the size of the encrypted form of a plaintext
// file: the header plus the padded ciphertext.
func EncryptedFileSize(plainSize int64) int64 {
	return FileKeyAdditionSize + (plainSize/BlockSize+1)*BlockSize
}

// nameKeyAddition derives the key addition of an entry name from its salt.
func nameKeyAddition(salt string) []byte {
	sum := sha256.Sum256([]byte(salt))
	return sum[:NameKeyAdditionSize]
}

// fileKeyAddition derives the header of an encrypted file from its salt.
func fileKeyAddition(salt string) []byte {
	sum := sha256.Sum256([]byte(salt))
	return sum[:FileKeyAdditionSize]
}

// mtimeFloat widens a modification time to fractional unix seconds the way
// stat timestamps are widened to a double: sec + nsec*1e-9.
func mtimeFloat(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())*1e-9
}

// unixSeconds formats the whole seconds of a modification time. The
// fractional value is truncated toward zero, so rounding of the double can
// carry into the next second.
func unixSeconds(t time.Time) string {
	return strconv.FormatInt(int64(mtimeFloat(t)), 10)
}

// fractionalSeconds formats a modification time as the shortest decimal that
// round-trips its fractional value, e.g. "1700000000.5" or "1700000000.0".
// Exponent notation is used outside [1e-4, 1e16).
func fractionalSeconds(t time.Time) string {
	f := mtimeFloat(t)
	if a := math.Abs(f); a != 0 && (a < 1e-4 || a >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
