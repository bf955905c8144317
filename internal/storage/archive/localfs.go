package archive

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalFS implements Storage on the local filesystem.
type LocalFS struct {
	basePath string
}

// NewLocalFS creates a LocalFS rooted at basePath, creating it if needed.
func NewLocalFS(basePath string) (*LocalFS, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("creating base path: %w", err)
	}
	return &LocalFS{basePath: basePath}, nil
}

func (l *LocalFS) fullPath(path string) string {
	return filepath.Join(l.basePath, path)
}

func (l *LocalFS) Write(_ context.Context, path string, data []byte) error {
	full := l.fullPath(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("creating directories: %w", err)
	}
	return os.WriteFile(full, data, 0o644)
}

func (l *LocalFS) Read(_ context.Context, path string) ([]byte, error) {
	return os.ReadFile(l.fullPath(path))
}

func (l *LocalFS) List(_ context.Context, prefix string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(l.fullPath(prefix), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, _ := filepath.Rel(l.basePath, path)
			paths = append(paths, rel)
		}
		return nil
	})
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	return paths, err
}

func (l *LocalFS) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(l.fullPath(path))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}
