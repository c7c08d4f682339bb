package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"aurax/internal/config"
	"aurax/internal/generation"
)

// Local writes payloads below a root directory.
type Local struct {
	root string
}

// NewLocal creates the root directory when missing.
func NewLocal(root string) (*Local, error) {
	if root == "" {
		return nil, errors.New("filestore: local storage directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: create %s: %w", root, err)
	}
	return &Local{root: root}, nil
}

func (l *Local) Backend() string { return config.StorageLocal }

// Put writes payload bytes to root/key atomically and returns the file path.
func (l *Local) Put(ctx context.Context, key string, payload generation.Payload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(payload.Data) == 0 {
		return "", fmt.Errorf("filestore: payload for %s has no data", key)
	}
	dest := filepath.Join(l.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("filestore: create directory for %s: %w", key, err)
	}
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, payload.Data, 0o644); err != nil {
		return "", fmt.Errorf("filestore: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("filestore: rename %s: %w", dest, err)
	}
	return dest, nil
}
