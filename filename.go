package encviewfs

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

// FilenameEncryptor handles encryption and decryption of filenames
type FilenameEncryptor interface {
	// EncryptFilename encrypts a filename
	EncryptFilename(plaintext string) (string, error)

	// DecryptFilename decrypts a filename
	DecryptFilename(ciphertext string) (string, error)

	// EncryptPath encrypts a full path (including directory separators)
	EncryptPath(plaintext string) (string, error)

	// DecryptPath decrypts a full path
	DecryptPath(ciphertext string) (string, error)
}

var _ FilenameEncryptor = (*Codec)(nil)
var _ FilenameEncryptor = (*cachedFilenameEncryptor)(nil)

// cachedFilenameEncryptor memoizes name conversions of a Codec. Listings and
// lookups convert the same names over and over, and every conversion costs a
// key derivation.
type cachedFilenameEncryptor struct {
	codec *Codec
	enc   *lru.TwoQueueCache // salt + "\x00" + plaintext -> ciphertext
	dec   *lru.TwoQueueCache // ciphertext -> plaintext
}

// newCachedFilenameEncryptor wraps codec with caches of size entries each.
// A negative size disables caching.
func newCachedFilenameEncryptor(codec *Codec, size int) (*cachedFilenameEncryptor, error) {
	c := &cachedFilenameEncryptor{codec: codec}
	if size < 0 {
		return c, nil
	}

	var err error
	if c.enc, err = lru.New2Q(size); err != nil {
		return nil, fmt.Errorf("failed to create name cache: %w", err)
	}
	if c.dec, err = lru.New2Q(size); err != nil {
		return nil, fmt.Errorf("failed to create name cache: %w", err)
	}
	return c, nil
}

func (c *cachedFilenameEncryptor) EncryptFilename(plaintext string) (string, error) {
	return c.EncryptFilenameWithSalt(plaintext, plaintext)
}

func (c *cachedFilenameEncryptor) EncryptFilenameWithSalt(plaintext, salt string) (string, error) {
	if c.enc == nil {
		return c.codec.EncryptFilenameWithSalt(plaintext, salt)
	}

	key := salt + "\x00" + plaintext
	if v, ok := c.enc.Get(key); ok {
		return v.(string), nil
	}
	encrypted, err := c.codec.EncryptFilenameWithSalt(plaintext, salt)
	if err != nil {
		return "", err
	}
	c.enc.Add(key, encrypted)
	c.dec.Add(encrypted, plaintext)
	return encrypted, nil
}

func (c *cachedFilenameEncryptor) DecryptFilename(ciphertext string) (string, error) {
	if c.dec == nil {
		return c.codec.DecryptFilename(ciphertext)
	}

	if v, ok := c.dec.Get(ciphertext); ok {
		return v.(string), nil
	}
	plaintext, err := c.codec.DecryptFilename(ciphertext)
	if err != nil {
		return "", err
	}
	c.dec.Add(ciphertext, plaintext)
	return plaintext, nil
}

func (c *cachedFilenameEncryptor) EncryptPath(plaintext string) (string, error) {
	return mapPath(plaintext, c.EncryptFilename)
}

func (c *cachedFilenameEncryptor) DecryptPath(ciphertext string) (string, error) {
	return mapPath(ciphertext, c.DecryptFilename)
}
