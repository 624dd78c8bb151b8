// Package modelstore persists model configuration records in a single
// YAML file. Records are keyed by an opaque unique key; commits are
// atomic (write to a sibling file, then rename) so a crash mid-write
// never corrupts the store.
package modelstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/heyross/InvokeAI/pkg/types"
)

// ConfigFileVersion is written into the store's metadata block.
const ConfigFileVersion = "3.1.0"

const metadataKey = "__metadata__"

type metadata struct {
	Version string `yaml:"version"`
}

// Store is a YAML-file-backed model config store.
type Store struct {
	mu       sync.RWMutex
	filename string
	models   map[string]types.ModelConfig
}

// Open loads the store at path, initializing a fresh file if none
// exists.
func Open(path string) (*Store, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	s := &Store{filename: abs, models: make(map[string]types.ModelConfig)}
	b, err := os.ReadFile(abs)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
		if err := s.commitLocked(); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse store: %w", err)
	}
	for key, node := range raw {
		if key == metadataKey {
			continue
		}
		var cfg types.ModelConfig
		if err := node.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("record %q: %w", key, err)
		}
		s.models[key] = cfg
	}
	return s, nil
}

// commitLocked writes the store atomically. Callers hold the write lock.
func (s *Store) commitLocked() error {
	out := make(map[string]any, len(s.models)+1)
	out[metadataKey] = metadata{Version: ConfigFileVersion}
	for key, cfg := range s.models {
		out[key] = cfg
	}
	b, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	newfile := s.filename + ".new"
	if err := os.WriteFile(newfile, b, 0o644); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	return os.Rename(newfile, s.filename)
}

// Add inserts a record under key. A key already in the store is a
// duplicate error.
func (s *Store) Add(key string, cfg types.ModelConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.models[key]; dup {
		return ErrDuplicateModel(key)
	}
	s.models[key] = cfg
	return s.commitLocked()
}

// Update replaces the record under key, which must exist.
func (s *Store) Update(key string, cfg types.ModelConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.models[key]; !ok {
		return ErrUnknownModel(key)
	}
	s.models[key] = cfg
	return s.commitLocked()
}

// Get fetches the record under key.
func (s *Store) Get(key string) (types.ModelConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.models[key]
	if !ok {
		return types.ModelConfig{}, ErrUnknownModel(key)
	}
	return cfg, nil
}

// Del removes the record under key, which must exist.
func (s *Store) Del(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.models[key]; !ok {
		return ErrUnknownModel(key)
	}
	delete(s.models, key)
	return s.commitLocked()
}

// Exists reports whether key is in the store.
func (s *Store) Exists(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.models[key]
	return ok
}

// List returns all records keyed by store key.
func (s *Store) List() map[string]types.ModelConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]types.ModelConfig, len(s.models))
	for k, v := range s.models {
		out[k] = v
	}
	return out
}
