// Package localstore is the filesystem implementation of
// objectstore.Store, grounded on media/store.go's LocalStorage.
package localstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/watchtower-nvr/core/objectstore"
)

// LocalStore stores objects as files under a base directory (DATA_DIR).
// Every resolved path is checked to still have basePath as a prefix
// after filepath.Clean/Abs, so a crafted key can't escape the root.
type LocalStore struct {
	basePath string
	log      *zap.SugaredLogger
}

var _ objectstore.Store = (*LocalStore)(nil)
var _ objectstore.PathResolver = (*LocalStore)(nil)

// New creates a LocalStore rooted at basePath, creating it if absent.
func New(basePath string, log *zap.SugaredLogger) (*LocalStore, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("localstore: invalid base path %q: %w", basePath, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("localstore: create base dir %q: %w", abs, err)
	}
	return &LocalStore{basePath: abs, log: log}, nil
}

func (s *LocalStore) resolve(key string) (string, error) {
	clean := filepath.Clean(key)
	full := filepath.Join(s.basePath, clean)
	abs, err := filepath.Abs(full)
	if err != nil {
		return "", fmt.Errorf("localstore: resolve %q: %w", key, err)
	}
	if abs != s.basePath && !strings.HasPrefix(abs, s.basePath+string(filepath.Separator)) {
		return "", fmt.Errorf("localstore: key %q resolves outside base path", key)
	}
	return abs, nil
}

func (s *LocalStore) Put(key string, data []byte) (string, error) {
	full, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("localstore: mkdir for %q: %w", key, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("localstore: write %q: %w", key, err)
	}
	if s.log != nil {
		s.log.Debugw("wrote object", "key", key, "bytes", len(data))
	}
	return filepath.ToSlash(key), nil
}

func (s *LocalStore) OpenForAppend(key string) (io.WriteCloser, error) {
	full, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("localstore: mkdir for %q: %w", key, err)
	}
	f, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("localstore: open %q: %w", key, err)
	}
	return f, nil
}

// ResolvePath implements objectstore.PathResolver.
func (s *LocalStore) ResolvePath(key string) (string, error) {
	full, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("localstore: mkdir for %q: %w", key, err)
	}
	return full, nil
}

func (s *LocalStore) Delete(key string) error {
	full, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("localstore: delete %q: %w", key, err)
	}
	return nil
}

func (s *LocalStore) SizeOf(key string) (int64, error) {
	full, err := s.resolve(key)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return 0, fmt.Errorf("localstore: stat %q: %w", key, err)
	}
	return info.Size(), nil
}
