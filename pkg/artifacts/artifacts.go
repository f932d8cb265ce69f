package artifacts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ErrEmptyArtifact reports a result file that exists but holds no data.
var ErrEmptyArtifact = errors.New("artifact is empty")

// Store lays out result files under a root directory, one subdirectory per
// request.
type Store struct {
	root string
}

// NewStore ensures the root directory exists.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact store %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Root returns the store's base directory.
func (s *Store) Root() string {
	return s.root
}

// RequestDir creates and returns the output directory for one request.
func (s *Store) RequestDir(requestID int64) (string, error) {
	dir := filepath.Join(s.root, strconv.FormatInt(requestID, 10))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return dir, nil
}

// SizeOf stats an artifact, rejecting empty files.
func SizeOf(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat artifact %s: %w", path, err)
	}
	if info.Size() == 0 {
		return 0, fmt.Errorf("%w: %s", ErrEmptyArtifact, path)
	}
	return info.Size(), nil
}

// Open opens an artifact for streaming to a client.
func Open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact %s: %w", path, err)
	}
	return f, nil
}
