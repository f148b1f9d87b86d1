package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalFiles reads original media from the library root on local disk.
type LocalFiles struct {
	Root string
}

// ReadFile implements FileSource.
func (l *LocalFiles) ReadFile(_ context.Context, _ string, path string) ([]byte, error) {
	full := filepath.Join(l.Root, filepath.Clean("/"+path))
	if !strings.HasPrefix(full, filepath.Clean(l.Root)+string(os.PathSeparator)) && full != filepath.Clean(l.Root) {
		return nil, fmt.Errorf("path escapes library root: %s", path)
	}
	return os.ReadFile(full)
}

// DirSink writes thumbnails under a cache directory, one subdirectory per
// media item.
type DirSink struct {
	Dir string
}

// Store implements ThumbnailSink. The reference returned is the file path.
func (d *DirSink) Store(_ context.Context, mediaID, size string, data []byte) (string, error) {
	dir := filepath.Join(d.Dir, mediaID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create thumbnail dir: %w", err)
	}
	path := filepath.Join(dir, size+".jpg")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write thumbnail: %w", err)
	}
	return path, nil
}
