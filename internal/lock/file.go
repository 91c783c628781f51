package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// FileLocker uses flock(2) on one file per key, suitable for several worker
// processes on one host.
type FileLocker struct {
	dir string
}

func NewFile(dir string) (*FileLocker, error) {
	if strings.TrimSpace(dir) == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("lock dir: %w", err)
	}
	return &FileLocker{dir: dir}, nil
}

func (l *FileLocker) Backend() string { return "file" }

func (l *FileLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	fl := flock.New(l.path(key))
	ok, err := fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("file lock: %w", err)
	}
	if !ok {
		return false, nil
	}
	defer func() { _ = fl.Unlock() }()

	return true, fn(ctx)
}

func (l *FileLocker) path(key string) string {
	safe := strings.NewReplacer(":", "_", "/", "_", "\\", "_").Replace(key)
	return filepath.Join(l.dir, "songgift-"+safe+".lock")
}
