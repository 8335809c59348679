package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileStore keeps every entry in one JSON document, rewritten atomically on
// each Record.
type FileStore struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

type fileState struct {
	Entries []Entry `json:"entries"`
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: func() time.Time { return time.Now().UTC() }}
}

func (s *FileStore) Record(_ context.Context, e Entry) error {
	e, err := Prepare(e, s.now())
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		return err
	}
	replaced := false
	for i := range st.Entries {
		if st.Entries[i].ID == e.ID {
			e.CreatedAt = st.Entries[i].CreatedAt
			st.Entries[i] = e
			replaced = true
			break
		}
	}
	if !replaced {
		st.Entries = append(st.Entries, e)
	}
	return s.save(st)
}

func (s *FileStore) Get(_ context.Context, id string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load()
	if err != nil {
		return Entry{}, err
	}
	for _, e := range st.Entries {
		if e.ID == id || (e.TxHash != "" && e.TxHash == id) {
			return e, nil
		}
	}
	return Entry{}, ErrNotFound
}

func (s *FileStore) List(_ context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load()
	if err != nil {
		return nil, err
	}
	out := st.Entries
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) load() (fileState, error) {
	var st fileState
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, err
	}
	if err := json.Unmarshal(b, &st); err != nil {
		return st, fmt.Errorf("journal: decode %s: %w", s.path, err)
	}
	return st, nil
}

func (s *FileStore) save(st fileState) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("journal rename: %w", err)
	}
	return nil
}
