package pathmemory

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	json "github.com/json-iterator/go"

	"github.com/waypointlabs/waypoint/api/schemas"
)

// Persistence abstracts the durable backend for the path-memory document so
// the memory can be exercised against an in-memory fake in tests.
type Persistence interface {
	Load() (*schemas.PathStore, error)
	Save(store *schemas.PathStore) error
}

// FileStore persists the document as pretty-printed JSON at a fixed path.
// Writes go through a temp file and rename so a crash mid-save never leaves a
// torn document.
type FileStore struct {
	path string
}

// NewFileStore creates the store; the file itself is created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() (*schemas.PathStore, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return schemas.NewPathStore(), nil
		}
		return nil, fmt.Errorf("failed to read path memory file: %w", err)
	}

	store := schemas.NewPathStore()
	if err := json.Unmarshal(data, store); err != nil {
		return nil, fmt.Errorf("path memory file is corrupt: %w", err)
	}
	if store.LearnedPaths == nil {
		store.LearnedPaths = make(map[string]*schemas.LearnedPath)
	}
	if store.FailedPaths == nil {
		store.FailedPaths = make(map[string][][]string)
	}
	return store, nil
}

func (s *FileStore) Save(store *schemas.PathStore) error {
	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal path memory: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create path memory directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".paths-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write path memory: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace path memory file: %w", err)
	}
	return nil
}

// MemStore is the in-memory Persistence fake. It round-trips the document
// through JSON so tests see the same isolation a file would give.
type MemStore struct {
	mu    sync.Mutex
	data  []byte
	Saves int
}

func NewMemStore() *MemStore { return &MemStore{} }

func (s *MemStore) Load() (*schemas.PathStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return schemas.NewPathStore(), nil
	}
	store := schemas.NewPathStore()
	if err := json.Unmarshal(s.data, store); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *MemStore) Save(store *schemas.PathStore) error {
	data, err := json.Marshal(store)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	s.Saves++
	return nil
}

var (
	_ Persistence = (*FileStore)(nil)
	_ Persistence = (*MemStore)(nil)
)
