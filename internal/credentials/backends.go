package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/xkilldash9x/socialpilot/internal/store"
)

// FileBackend stores one sealed blob per platform in a directory only the owner can read.
type FileBackend struct {
	dir string
}

// NewFileBackend creates the directory if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("credentials: failed to expand session directory: %w", err)
	}
	if err := os.MkdirAll(expanded, 0o700); err != nil {
		return nil, fmt.Errorf("credentials: failed to create session directory: %w", err)
	}
	return &FileBackend{dir: expanded}, nil
}

func (f *FileBackend) path(platform string) string {
	return filepath.Join(f.dir, platform+".session")
}

func (f *FileBackend) LoadSessionBlob(_ context.Context, platform string) ([]byte, error) {
	data, err := os.ReadFile(f.path(platform))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("credentials: failed to read session file: %w", err)
	}
	return data, nil
}

// SaveSessionBlob writes through a temporary file so a crash never leaves a torn blob.
func (f *FileBackend) SaveSessionBlob(_ context.Context, platform string, blob []byte) error {
	tmp, err := os.CreateTemp(f.dir, platform+".*.tmp")
	if err != nil {
		return fmt.Errorf("credentials: failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return fmt.Errorf("credentials: failed to write session: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("credentials: failed to set session file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credentials: failed to close session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path(platform)); err != nil {
		return fmt.Errorf("credentials: failed to store session: %w", err)
	}
	return nil
}

func (f *FileBackend) DeleteSessionBlob(_ context.Context, platform string) error {
	err := os.Remove(f.path(platform))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("credentials: failed to delete session: %w", err)
	}
	return nil
}

// PostgresBackend adapts the shared store to the Backend contract.
type PostgresBackend struct {
	store *store.Store
}

// NewPostgresBackend wraps s.
func NewPostgresBackend(s *store.Store) *PostgresBackend {
	return &PostgresBackend{store: s}
}

func (p *PostgresBackend) LoadSessionBlob(ctx context.Context, platform string) ([]byte, error) {
	blob, err := p.store.LoadSessionBlob(ctx, platform)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return blob, err
}

func (p *PostgresBackend) SaveSessionBlob(ctx context.Context, platform string, blob []byte) error {
	return p.store.SaveSessionBlob(ctx, platform, blob)
}

func (p *PostgresBackend) DeleteSessionBlob(ctx context.Context, platform string) error {
	return p.store.DeleteSessionBlob(ctx, platform)
}
