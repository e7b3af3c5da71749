package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FilePersister stores the snapshot as JSON in <dir>/<namespace>.json
type FilePersister struct {
	path string
}

// NewFilePersister creates a file-backed persister. An empty dir means the
// current directory.
func NewFilePersister(dir, namespace string) (*FilePersister, error) {
	if namespace == "" {
		return nil, errEmptyNamespace
	}
	if dir == "" {
		dir = "."
	}
	// namespaces like persist:auth are not portable file names
	name := strings.NewReplacer(":", "_", "/", "_", `\`, "_").Replace(namespace)
	return &FilePersister{path: filepath.Join(dir, name+".json")}, nil
}

// Path returns the file the snapshot is written to
func (f *FilePersister) Path() string {
	return f.path
}

// Save writes the snapshot through a temp file and rename
func (f *FilePersister) Save(ctx context.Context, snap Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}
	return nil
}

// Load reads the snapshot file; a missing file is not an error
func (f *FilePersister) Load(ctx context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	return decodeSnapshot(data)
}

// Clear deletes the snapshot file
func (f *FilePersister) Clear(ctx context.Context) error {
	err := os.Remove(f.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove snapshot file: %w", err)
	}
	return nil
}

func (f *FilePersister) Close() error { return nil }
