// internal/client/session/storage.go
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Storage is a tab-scoped key/value area. It must survive navigation inside
// one tab and must not be shared across tabs.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}

// ------------------------------------------------------------
// MemoryStorage
// ------------------------------------------------------------

// MemoryStorage keeps values in process memory.
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: map[string]string{}}
}

func (s *MemoryStorage) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *MemoryStorage) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

func (s *MemoryStorage) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// ------------------------------------------------------------
// FileStorage
// ------------------------------------------------------------

// FileStorage is a MemoryStorage written through to a YAML file after every
// change. One file plays the role of one tab.
type FileStorage struct {
	mem  *MemoryStorage
	path string
	log  *zap.Logger

	wmu sync.Mutex
}

type fileDoc struct {
	Values map[string]string `yaml:"session"`
}

// OpenFileStorage loads path, or starts empty if it does not exist yet.
func OpenFileStorage(path string, log *zap.Logger) (*FileStorage, error) {
	if log == nil {
		log = zap.NewNop()
	}
	fs := &FileStorage{
		mem:  NewMemoryStorage(),
		path: path,
		log:  log.Named("session_file"),
	}

	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: read %s: %w", path, err)
	}

	var doc fileDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("session: parse %s: %w", path, err)
	}
	for k, v := range doc.Values {
		fs.mem.data[k] = v
	}
	return fs, nil
}

func (s *FileStorage) Get(key string) (string, bool) {
	return s.mem.Get(key)
}

func (s *FileStorage) Set(key, value string) {
	s.mem.Set(key, value)
	s.flush()
}

func (s *FileStorage) Delete(key string) {
	s.mem.Delete(key)
	s.flush()
}

// Flush writes the current values to disk.
func (s *FileStorage) Flush() error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.mem.mu.RLock()
	doc := fileDoc{Values: make(map[string]string, len(s.mem.data))}
	for k, v := range s.mem.data {
		doc.Values[k] = v
	}
	s.mem.mu.RUnlock()

	b, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("session: mkdir %s: %w", dir, err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("session: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("session: rename %s: %w", tmp, err)
	}
	return nil
}

// Storage access has no error channel; write failures are logged and the
// in-memory value stays authoritative for this process.
func (s *FileStorage) flush() {
	if err := s.Flush(); err != nil {
		s.log.Warn("persist session storage failed", zap.String("path", s.path), zap.Error(err))
	}
}
