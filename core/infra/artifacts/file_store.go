package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileStore writes artifacts as pretty-printed JSON files under a directory.
// The artifact name is used as the file name, so names must not contain path
// separators.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns a store over it.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("artifact directory required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create artifact directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the backing directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) Put(_ context.Context, name string, doc any, _ Metadata) error {
	path, err := s.pathFor(name)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact %s: %w", name, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write artifact %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write artifact %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) Get(_ context.Context, name string, out any) (Metadata, error) {
	path, err := s.pathFor(name)
	if err != nil {
		return Metadata{}, err
	}
	// #nosec G304 -- path is confined to the store directory by pathFor.
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("read artifact %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return Metadata{}, fmt.Errorf("decode artifact %s: %w", name, err)
	}
	meta := Metadata{SizeBytes: int64(len(data))}
	if info, err := os.Stat(path); err == nil {
		meta.CreatedAt = info.ModTime().UTC()
	}
	return meta, nil
}

func (s *FileStore) List(_ context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		if strings.HasPrefix(e.Name(), prefix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *FileStore) pathFor(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	return filepath.Join(s.dir, name), nil
}

// Timestamp formats t the way artifact names embed it.
func Timestamp(t time.Time) string {
	return t.UTC().Format("20060102_150405")
}
