// Package media resolves opaque media asset identifiers to local file paths for upload.
package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

var (
	// ErrAssetNotFound is returned when no file exists for an asset id.
	ErrAssetNotFound = errors.New("media asset not found")
	// ErrInvalidAssetID is returned for ids that are empty or would escape the media root.
	ErrInvalidAssetID = errors.New("invalid media asset id")
)

// Resolver maps asset ids to readable local files.
type Resolver interface {
	Resolve(ctx context.Context, assetIDs []string) ([]string, error)
}

// DirResolver looks assets up under a root directory, as <id> or <id>.<ext>.
type DirResolver struct {
	root   string
	logger *zap.Logger
}

// NewDirResolver creates a resolver rooted at dir ("~" is expanded).
func NewDirResolver(dir string, logger *zap.Logger) (*DirResolver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	root, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand media root: %w", err)
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve media root: %w", err)
	}
	return &DirResolver{root: root, logger: logger.Named("media")}, nil
}

// Root returns the absolute media directory.
func (d *DirResolver) Root() string { return d.root }

// Resolve returns one path per id, in order. It fails on the first id that cannot be resolved.
func (d *DirResolver) Resolve(ctx context.Context, assetIDs []string) ([]string, error) {
	paths := make([]string, 0, len(assetIDs))
	for _, id := range assetIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := d.resolveOne(id)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	if len(paths) > 0 {
		d.logger.Debug("Resolved media assets.", zap.Strings("paths", paths))
	}
	return paths, nil
}

func (d *DirResolver) resolveOne(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAssetID, id)
	}

	exact := filepath.Join(d.root, id)
	if isFile(exact) {
		return exact, nil
	}

	matches, err := filepath.Glob(filepath.Join(d.root, globEscape(id)+".*"))
	if err != nil {
		return "", fmt.Errorf("failed to search for media asset %q: %w", id, err)
	}
	sort.Strings(matches)
	for _, m := range matches {
		if isFile(m) {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrAssetNotFound, id)
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// globEscape escapes glob metacharacters so an id is matched literally.
func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
