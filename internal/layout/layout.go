// Package layout persists the web UI layout.
//
// The layout is the whole JSON document the browser keeps its device
// assignments, presets and finder settings in. It shares a file with the
// gateway's startup configuration; the UI reads the file back verbatim on
// every connect and replaces it wholesale when the user saves.
package layout

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// ErrInvalidLayout is returned by Save when the payload is not a JSON object.
var ErrInvalidLayout = errors.New("layout: configuration must be a JSON object")

// DefaultLayout is served when no layout has been saved yet.
var DefaultLayout = []byte(`{"devices": {}}`)

// indent matches the formatting of hand-edited configuration files.
const indent = "    "

// Store reads and replaces the layout file.
//
// Thread Safety: Save calls are serialised; Load may run concurrently.
type Store struct {
	path string
	mu   sync.Mutex
}

// New creates a Store for the file at path. The file need not exist.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the layout file path.
func (s *Store) Path() string {
	return s.path
}

// Load returns the layout file contents, or DefaultLayout if there is no file.
func (s *Store) Load() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return bytes.Clone(DefaultLayout), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading layout: %w", err)
	}
	return data, nil
}

// Save replaces the layout file with raw, pretty-printed.
//
// The new content is written to a temporary file in the same directory and
// renamed over the old one, so readers never see a partial file.
//
// Returns:
//   - error: ErrInvalidLayout if raw is not a JSON object, or the I/O error
func (s *Store) Save(raw json.RawMessage) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return ErrInvalidLayout
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, trimmed, "", indent); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidLayout, err)
	}
	buf.WriteByte('\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	return writeFileAtomic(s.path, buf.Bytes())
}

func writeFileAtomic(path string, data []byte) error {
	mode := fs.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating layout directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary layout file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing layout: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing layout: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing layout: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("setting layout permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing layout: %w", err)
	}
	return nil
}
