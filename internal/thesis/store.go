// store.go persists theses as one JSON document per id using atomic file
// replacement (write to .tmp, then rename) so a crash mid-save never leaves
// a torn document. Concurrent readers always observe the last fully written
// value.
package thesis

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store persists theses to JSON files in a designated directory.
type Store struct {
	dir string
	mu  sync.Mutex
}

// OpenStore creates a store backed by the given directory.
func OpenStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create thesis dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save atomically persists a thesis.
func (s *Store) Save(t *Thesis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal thesis %s: %w", t.ID, err)
	}

	path := s.path(t.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write thesis %s: %w", t.ID, err)
	}
	return os.Rename(tmp, path)
}

// Load reads one thesis by id. Returns nil, nil when absent.
func (s *Store) Load(id string) (*Thesis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read thesis %s: %w", id, err)
	}

	var t Thesis
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("unmarshal thesis %s: %w", id, err)
	}
	return &t, nil
}

// LoadAll scans the directory and returns every stored thesis. Unreadable
// documents are skipped with their error collected into errs.
func (s *Store) LoadAll() ([]*Thesis, []error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, []error{fmt.Errorf("scan thesis dir: %w", err)}
	}

	var out []*Thesis
	var errs []error
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", name, err))
			continue
		}
		var t Thesis
		if err := json.Unmarshal(data, &t); err != nil {
			errs = append(errs, fmt.Errorf("unmarshal %s: %w", name, err))
			continue
		}
		out = append(out, &t)
	}
	return out, errs
}

// Delete removes a thesis document. Missing files are not an error.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete thesis %s: %w", id, err)
	}
	return nil
}
