package pipeline

import (
	"context"
	"os"
	"path/filepath"

	bili_archiver "bili-archiver"
)

// staging is a per-task temporary workspace; everything a task produces is
// assembled here before relocation into the library, and the whole tree is
// removed when the task ends.
type staging struct {
	dir string
}

func newStaging(baseTempDir string) (*staging, error) {
	if baseTempDir == "" {
		baseTempDir = os.TempDir()
	}
	if err := os.MkdirAll(baseTempDir, 0755); err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp(baseTempDir, "bili-archiver-*")
	if err != nil {
		return nil, err
	}
	return &staging{dir: dir}, nil
}

// Path joins elem onto the staging root.
func (s *staging) Path(elem ...string) string {
	return filepath.Join(append([]string{s.dir}, elem...)...)
}

// Mkdir creates (and returns) a directory under the staging root.
func (s *staging) Mkdir(elem ...string) (string, error) {
	dir := s.Path(elem...)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

func (s *staging) Close(ctx context.Context) {
	if err := os.RemoveAll(s.dir); err != nil {
		bili_archiver.Logger(ctx).Sugar().Warnf("failed to clean up staging dir %v: %v", s.dir, err)
	}
}
