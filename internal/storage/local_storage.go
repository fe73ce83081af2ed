package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

type localStorage struct {
	dir string
}

// NewLocalStorage stores previews as files below dir, creating it if needed.
func NewLocalStorage(dir string) (PreviewStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create preview dir: %w", err)
	}
	return &localStorage{dir: dir}, nil
}

func (s *localStorage) Put(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean := sanitizeName(name)
	if clean == "" {
		return "", fmt.Errorf("invalid preview name %q", name)
	}

	target := filepath.Join(s.dir, clean)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write preview: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("write preview: %w", err)
	}
	return PreviewLocation(clean), nil
}

func (s *localStorage) Get(ctx context.Context, name string) ([]byte, error) {
	clean := sanitizeName(name)
	if clean == "" {
		return nil, ErrPreviewNotFound
	}
	data, err := os.ReadFile(filepath.Join(s.dir, clean))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrPreviewNotFound
	}
	return data, err
}
