// Package credentials seals browser sessions at rest. The vault only loads, saves and
// clears opaque blobs; it knows nothing about what a session contains.
package credentials

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/xkilldash9x/socialpilot/api/schemas"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrNotFound is returned when no session is stored for a platform.
	ErrNotFound = errors.New("credentials: no stored session")
	// ErrCorrupt is returned when a stored blob fails authentication or decoding.
	ErrCorrupt = errors.New("credentials: stored session is corrupt or was sealed with a different key")
)

// Backend persists sealed blobs keyed by platform.
type Backend interface {
	LoadSessionBlob(ctx context.Context, platform string) ([]byte, error)
	SaveSessionBlob(ctx context.Context, platform string, blob []byte) error
	DeleteSessionBlob(ctx context.Context, platform string) error
}

// Vault encrypts sessions with XChaCha20-Poly1305 before handing them to a Backend.
// The platform name is bound as associated data so a blob cannot be replayed under
// another platform.
type Vault struct {
	key     []byte
	backend Backend
}

// NewVault creates a vault with a 32 byte key.
func NewVault(key []byte, backend Backend) (*Vault, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("credentials: key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &Vault{key: append([]byte(nil), key...), backend: backend}, nil
}

// Load returns the stored session for p, or ErrNotFound.
func (v *Vault) Load(ctx context.Context, p schemas.Platform) (*schemas.BrowserSession, error) {
	blob, err := v.backend.LoadSessionBlob(ctx, string(p))
	if err != nil {
		return nil, err
	}
	plain, err := v.open(p, blob)
	if err != nil {
		return nil, err
	}
	var session schemas.BrowserSession
	if err := json.Unmarshal(plain, &session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &session, nil
}

// Save seals and stores a session, replacing any previous one for the same platform.
func (v *Vault) Save(ctx context.Context, session *schemas.BrowserSession) error {
	plain, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("credentials: failed to encode session: %w", err)
	}
	blob, err := v.seal(session.Platform, plain)
	if err != nil {
		return err
	}
	return v.backend.SaveSessionBlob(ctx, string(session.Platform), blob)
}

// Clear removes the stored session for p. Clearing a missing session succeeds.
func (v *Vault) Clear(ctx context.Context, p schemas.Platform) error {
	err := v.backend.DeleteSessionBlob(ctx, string(p))
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (v *Vault) seal(p schemas.Platform, plain []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return nil, fmt.Errorf("credentials: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("credentials: failed to generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plain, []byte(p)), nil
}

func (v *Vault) open(p schemas.Platform, blob []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return nil, fmt.Errorf("credentials: %w", err)
	}
	if len(blob) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrCorrupt
	}
	nonce, sealed := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, []byte(p))
	if err != nil {
		return nil, ErrCorrupt
	}
	return plain, nil
}

// LoadKey decodes a base64 key from configuration. When encoded is empty, a key file in
// dir is read, or created with a fresh random key on first use.
func LoadKey(encoded, dir string) ([]byte, error) {
	if encoded = strings.TrimSpace(encoded); encoded != "" {
		key, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("credentials: session key is not valid base64: %w", err)
		}
		if len(key) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("credentials: session key must decode to %d bytes, got %d", chacha20poly1305.KeySize, len(key))
		}
		return key, nil
	}

	dir, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("credentials: failed to expand key directory: %w", err)
	}
	path := filepath.Join(dir, "vault.key")
	if data, err := os.ReadFile(path); err == nil {
		return LoadKey(string(data), "")
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("credentials: failed to read key file: %w", err)
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("credentials: failed to generate key: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("credentials: failed to create key directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(base64.StdEncoding.EncodeToString(key)), 0o600); err != nil {
		return nil, fmt.Errorf("credentials: failed to write key file: %w", err)
	}
	return key, nil
}
