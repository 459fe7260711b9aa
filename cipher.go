package encviewfs

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"
)

// BlockEngine encrypts and decrypts data one AES block at a time without
// chaining, so any block can be processed without its neighbours.
type BlockEngine struct {
	block    cipher.Block
	parallel ParallelConfig
}

// NewBlockEngine creates a block engine for a 32-byte AES-256 key
func NewBlockEngine(key []byte) (*BlockEngine, error) {
	if err := ValidateKey(key, sha256.Size); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	return &BlockEngine{block: block}, nil
}

// WithParallel returns a copy of e that splits large inputs across workers
func (e *BlockEngine) WithParallel(p ParallelConfig) *BlockEngine {
	return &BlockEngine{block: e.block, parallel: p}
}

// deriveEngine builds the engine for SHA256(keyAddition || secret).
func deriveEngine(keyAddition, secret []byte) (*BlockEngine, error) {
	h := sha256.New()
	h.Write(keyAddition)
	h.Write(secret)
	return NewBlockEngine(h.Sum(nil))
}

// Encrypt encrypts data, padding it first when pad is set. Without padding
// the input must already be block aligned.
func (e *BlockEngine) Encrypt(data []byte, pad bool) ([]byte, error) {
	if pad {
		data = Pad(data, BlockSize)
	}
	if len(data)%BlockSize != 0 {
		return nil, fmt.Errorf("failed to encrypt %d bytes: %w", len(data), ErrUnalignedInput)
	}

	out := make([]byte, len(data))
	if err := e.cryptBlocks(out, data, e.block.Encrypt); err != nil {
		return nil, err
	}
	return out, nil
}

// Decrypt decrypts block aligned data and strips the padding when unpad is
// set.
func (e *BlockEngine) Decrypt(data []byte, unpad bool) ([]byte, error) {
	if len(data)%BlockSize != 0 {
		return nil, &CorruptionError{
			Message: fmt.Sprintf("ciphertext length %d is not block aligned", len(data)),
			Err:     ErrUnalignedInput,
		}
	}

	out := make([]byte, len(data))
	if err := e.cryptBlocks(out, data, e.block.Decrypt); err != nil {
		return nil, err
	}
	if unpad {
		return Unpad(out, BlockSize)
	}
	return out, nil
}

// Pad applies PKCS#7 padding. A block aligned input gains a whole block.
func Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	out := make([]byte, len(data), len(data)+n)
	copy(out, data)
	return append(out, bytes.Repeat([]byte{byte(n)}, n)...)
}

// Unpad removes PKCS#7 padding after checking every padding byte.
func Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, NewCorruptionError("", fmt.Sprintf("padded data length %d is not block aligned", len(data)))
	}

	n := int(data[len(data)-1])
	if n < 1 || n > blockSize {
		return nil, NewCorruptionError("", "padding is incorrect")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, NewCorruptionError("", "padding is incorrect")
		}
	}
	return data[:len(data)-n], nil
}
