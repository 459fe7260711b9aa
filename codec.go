package encviewfs

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Codec converts names, paths, sizes and byte ranges between their plaintext
// and encrypted forms. It is safe for concurrent use.
type Codec struct {
	secret   []byte
	fileSalt SaltProvider
	parallel ParallelConfig
}

// NewCodec creates a codec for secret. fileSalt computes the content key
// addition of plaintext files; nil selects the default provider.
func NewCodec(secret []byte, fileSalt SaltProvider) (*Codec, error) {
	if err := ValidateSecret(secret); err != nil {
		return nil, err
	}
	if fileSalt == nil {
		var err error
		if fileSalt, err = FileSaltProvider(""); err != nil {
			return nil, err
		}
	}

	s := make([]byte, len(secret))
	copy(s, secret)
	return &Codec{secret: s, fileSalt: fileSalt}, nil
}

// SetParallel enables parallel processing of large content ranges. It must
// be called before the codec is shared.
func (c *Codec) SetParallel(p ParallelConfig) error {
	if err := p.Validate(); err != nil {
		return NewValidationError("parallel", p, err.Error())
	}
	c.parallel = p
	return nil
}

// contentEngine derives the engine of a file's content
func (c *Codec) contentEngine(keyAddition []byte) (*BlockEngine, error) {
	engine, err := deriveEngine(keyAddition, c.secret)
	if err != nil {
		return nil, err
	}
	if c.parallel.Enabled {
		engine = engine.WithParallel(c.parallel)
	}
	return engine, nil
}

// EncryptFilename encrypts a single name, salted with the name itself
func (c *Codec) EncryptFilename(plaintext string) (string, error) {
	return c.EncryptFilenameWithSalt(plaintext, plaintext)
}

// EncryptFilenameWithSalt encrypts a single name with the key addition
// derived from salt. The key addition travels in the encrypted name, so
// DecryptFilename does not need the salt.
func (c *Codec) EncryptFilenameWithSalt(plaintext, salt string) (string, error) {
	keyAddition := nameKeyAddition(salt)
	engine, err := deriveEngine(keyAddition, c.secret)
	if err != nil {
		return "", NewEncryptionError("encrypt", plaintext, err)
	}

	ciphertext, err := engine.Encrypt([]byte(plaintext), true)
	if err != nil {
		return "", NewEncryptionError("encrypt", plaintext, err)
	}

	buf := make([]byte, 0, len(keyAddition)+len(ciphertext))
	buf = append(buf, keyAddition...)
	buf = append(buf, ciphertext...)
	return base64.URLEncoding.EncodeToString(buf), nil
}

// DecryptFilename decrypts a single name. Anything that is not an encrypted
// name fails with ErrMalformedInput.
func (c *Codec) DecryptFilename(ciphertext string) (string, error) {
	data, err := base64.URLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", &CorruptionError{Path: ciphertext, Message: "name is not url-safe base64", Err: err}
	}
	if len(data) <= NameKeyAdditionSize || (len(data)-NameKeyAdditionSize)%BlockSize != 0 {
		return "", NewCorruptionError(ciphertext, "name has an invalid length")
	}

	engine, err := deriveEngine(data[:NameKeyAdditionSize], c.secret)
	if err != nil {
		return "", NewEncryptionError("decrypt", ciphertext, err)
	}
	plaintext, err := engine.Decrypt(data[NameKeyAdditionSize:], true)
	if err != nil {
		return "", NewEncryptionError("decrypt", ciphertext, err)
	}

	name := string(plaintext)
	if !utf8.ValidString(name) || name == "" || name == "." || name == ".." || strings.Contains(name, "/") {
		return "", NewCorruptionError(ciphertext, "name does not decrypt to a valid entry name")
	}
	return name, nil
}

// EncryptPath encrypts every non-empty element of a slash separated path
func (c *Codec) EncryptPath(plaintext string) (string, error) {
	return mapPath(plaintext, c.EncryptFilename)
}

// DecryptPath decrypts every non-empty element of a slash separated path. It
// fails on the first element that is not an encrypted name.
func (c *Codec) DecryptPath(ciphertext string) (string, error) {
	return mapPath(ciphertext, c.DecryptFilename)
}

func mapPath(p string, fn func(string) (string, error)) (string, error) {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		converted, err := fn(part)
		if err != nil {
			return "", err
		}
		parts[i] = converted
	}
	return strings.Join(parts, "/"), nil
}

// plainKey memoizes the content key of a plaintext file, derived from its
// salt.
func (c *Codec) plainKey(vf VirtualFile) (*KeyMaterial, error) {
	return vf.KeyMaterial(func() (*KeyMaterial, error) {
		salt, err := c.fileSalt.SaltFor(vf.Basename(), vf.ModTime(), false)
		if err != nil {
			return nil, err
		}
		keyAddition := fileKeyAddition(salt)
		engine, err := c.contentEngine(keyAddition)
		if err != nil {
			return nil, err
		}
		return &KeyMaterial{Engine: engine, KeyAddition: keyAddition}, nil
	})
}

// headerKey memoizes the content key of an encrypted file, derived from its
// header.
func (c *Codec) headerKey(vf VirtualFile) (*KeyMaterial, error) {
	return vf.KeyMaterial(func() (*KeyMaterial, error) {
		keyAddition, err := vf.ReadAt(0, FileKeyAdditionSize)
		if err != nil {
			return nil, err
		}
		if len(keyAddition) < FileKeyAdditionSize {
			return nil, NewCorruptionError(vf.Name(), "file is shorter than its header")
		}
		engine, err := c.contentEngine(keyAddition)
		if err != nil {
			return nil, err
		}
		return &KeyMaterial{Engine: engine, KeyAddition: keyAddition}, nil
	})
}

// encryptedSize checks that vf has the shape of an encrypted file and returns
// its physical size.
func encryptedSize(vf VirtualFile) (int64, error) {
	size, err := vf.Size()
	if err != nil {
		return 0, err
	}
	if size%BlockSize != 0 || size < FileKeyAdditionSize+BlockSize {
		return 0, NewCorruptionError(vf.Name(), fmt.Sprintf("size %d is not a valid encrypted size", size))
	}
	return size, nil
}

// DecryptedFileSize returns the plaintext size of an encrypted file. Only the
// header and the last block are read.
func (c *Codec) DecryptedFileSize(vf VirtualFile) (int64, error) {
	size, err := encryptedSize(vf)
	if err != nil {
		return 0, err
	}

	last, err := vf.ReadAt(size-BlockSize, BlockSize)
	if err != nil {
		return 0, err
	}
	if len(last) != BlockSize {
		return 0, NewCorruptionError(vf.Name(), "short read of the last block")
	}

	km, err := c.headerKey(vf)
	if err != nil {
		return 0, err
	}
	tail, err := km.Engine.Decrypt(last, true)
	if err != nil {
		return 0, &EncryptionError{Operation: "decrypt", Path: vf.Name(), Offset: size - BlockSize, Message: err.Error(), Err: err}
	}
	return size - FileKeyAdditionSize - BlockSize + int64(len(tail)), nil
}

// EncryptedContent returns length bytes at offset of the encrypted form of
// the plaintext file vf. Only the block aligned plaintext range covering the
// request is read and encrypted. Requests past the encrypted size are
// truncated.
func (c *Codec) EncryptedContent(vf VirtualFile, offset int64, length int) ([]byte, error) {
	if err := ValidateOffset(offset, "offset"); err != nil {
		return nil, err
	}
	if err := ValidateSize(length, "length", 0, 0); err != nil {
		return nil, err
	}

	size, err := vf.Size()
	if err != nil {
		return nil, err
	}
	total := EncryptedFileSize(size)
	if offset >= total {
		return []byte{}, nil
	}
	if int64(length) > total-offset {
		length = int(total - offset)
	}

	km, err := c.plainKey(vf)
	if err != nil {
		return nil, NewEncryptionError("encrypt", vf.Name(), err)
	}

	// header part [keyAdditionOffset, keyAdditionOffset+keyAdditionLength)
	var keyAdditionOffset, keyAdditionLength int
	dataOffset := offset - FileKeyAdditionSize
	dataLength := length
	if offset < FileKeyAdditionSize {
		keyAdditionOffset = int(offset)
		keyAdditionLength = min(length, FileKeyAdditionSize-int(offset))
		dataOffset = 0
		dataLength = max(0, int(offset)+length-FileKeyAdditionSize)
	}

	out := make([]byte, 0, length)
	out = append(out, km.KeyAddition[keyAdditionOffset:keyAdditionOffset+keyAdditionLength]...)
	if dataLength == 0 {
		return out, nil
	}

	blockedOffset := dataOffset / BlockSize * BlockSize
	diff := int(dataOffset - blockedOffset)
	blockedLength := (dataLength + diff + BlockSize - 1) / BlockSize * BlockSize

	data, err := vf.ReadAt(blockedOffset, blockedLength)
	if err != nil {
		return nil, err
	}
	pad := blockedOffset+int64(blockedLength) > size
	encrypted, err := km.Engine.Encrypt(data, pad)
	if err != nil {
		return nil, &EncryptionError{Operation: "encrypt", Path: vf.Name(), Offset: blockedOffset, Message: err.Error(), Err: err}
	}

	end := min(diff+dataLength, len(encrypted))
	if diff < end {
		out = append(out, encrypted[diff:end]...)
	}
	return out, nil
}

// DecryptedContent returns length bytes at offset of the plaintext of the
// encrypted file vf. Padding is only removed when the aligned range reaches
// the physical end of the file.
func (c *Codec) DecryptedContent(vf VirtualFile, offset int64, length int) ([]byte, error) {
	if err := ValidateOffset(offset, "offset"); err != nil {
		return nil, err
	}
	if err := ValidateSize(length, "length", 0, 0); err != nil {
		return nil, err
	}

	size, err := encryptedSize(vf)
	if err != nil {
		return nil, err
	}
	if offset >= size-FileKeyAdditionSize {
		return []byte{}, nil
	}
	realOffset := offset + FileKeyAdditionSize
	if int64(length) > size-realOffset {
		length = int(size - realOffset)
	}

	blockedOffset := realOffset / BlockSize * BlockSize
	diff := int(realOffset - blockedOffset)
	blockedLength := ((length+diff)/BlockSize + 1) * BlockSize

	km, err := c.headerKey(vf)
	if err != nil {
		return nil, err
	}

	data, err := vf.ReadAt(blockedOffset, blockedLength)
	if err != nil {
		return nil, err
	}
	unpad := blockedOffset+int64(len(data)) >= size
	plaintext, err := km.Engine.Decrypt(data, unpad)
	if err != nil {
		return nil, &EncryptionError{Operation: "decrypt", Path: vf.Name(), Offset: blockedOffset, Message: err.Error(), Err: err}
	}

	end := min(diff+length, len(plaintext))
	if diff >= end {
		return []byte{}, nil
	}
	return plaintext[diff:end], nil
}
