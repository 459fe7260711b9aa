package encviewfs

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/term"
)

// SecretProvider supplies the mount secret
type SecretProvider interface {
	// Secret returns the secret bytes
	Secret() ([]byte, error)
}

// StaticSecret is a secret given directly, e.g. with the secret= option
type StaticSecret []byte

// Secret returns the secret
func (s StaticSecret) Secret() ([]byte, error) {
	if err := ValidateSecret(s); err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// FileSecretProvider reads the secret from a file. Surrounding whitespace,
// including the trailing newline, is stripped.
type FileSecretProvider struct {
	path string
}

// NewFileSecretProvider creates a new file secret provider
func NewFileSecretProvider(path string) *FileSecretProvider {
	return &FileSecretProvider{path: path}
}

// Secret reads and returns the secret
func (p *FileSecretProvider) Secret() ([]byte, error) {
	info, err := os.Stat(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, NewValidationError("secretfile", p.path, "secret file is not a regular file")
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret file: %w", err)
	}
	secret := []byte(strings.TrimSpace(string(data)))
	if err := ValidateSecret(secret); err != nil {
		return nil, err
	}
	return secret, nil
}

// EnvSecretProvider reads the secret from an environment variable
type EnvSecretProvider struct {
	envVar string
}

// NewEnvSecretProvider creates a new environment variable secret provider
func NewEnvSecretProvider(envVar string) *EnvSecretProvider {
	return &EnvSecretProvider{envVar: envVar}
}

// Secret returns the value of the environment variable
func (e *EnvSecretProvider) Secret() ([]byte, error) {
	v := os.Getenv(e.envVar)
	if v == "" {
		return nil, fmt.Errorf("environment variable %s not set", e.envVar)
	}
	return []byte(v), nil
}

// PromptSecretProvider asks for the secret on a terminal without echo
type PromptSecretProvider struct {
	in  *os.File
	out io.Writer
}

// NewPromptSecretProvider creates a provider prompting on in, writing the
// prompt to out
func NewPromptSecretProvider(in *os.File, out io.Writer) *PromptSecretProvider {
	return &PromptSecretProvider{in: in, out: out}
}

// Secret prompts for the secret
func (p *PromptSecretProvider) Secret() ([]byte, error) {
	fd := int(p.in.Fd())
	if !term.IsTerminal(fd) {
		return nil, NewValidationError("secret", nil, "no secret given and stdin is not a terminal")
	}

	fmt.Fprint(p.out, "Secret: ")
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}
	if err := ValidateSecret(secret); err != nil {
		return nil, err
	}
	return secret, nil
}

// SecretFingerprint returns a short identifier of a secret that can be
// logged. Equal fingerprints mean equal secrets; the secret cannot be
// recovered from it.
func SecretFingerprint(secret []byte) string {
	sum := blake2b.Sum256(append([]byte("encviewfs fingerprint\x00"), secret...))
	return hex.EncodeToString(sum[:8])
}
