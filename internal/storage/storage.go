// Package storage provides a file-backed JSON document store organized as
// collections of keyed records.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Store persists JSON documents under basePath/<collection>/<key>.json.
// Writes go through a temp file and rename so a crash never leaves a
// half-written record.
type Store struct {
	basePath string

	mu    sync.Mutex
	locks map[string]*fileLock
}

// New creates a store rooted at basePath.
func New(basePath string) *Store {
	return &Store{
		basePath: basePath,
		locks:    make(map[string]*fileLock),
	}
}

func (s *Store) recordPath(collection, key string) string {
	return filepath.Join(s.basePath, collection, key+".json")
}

// Get reads the record into v. Returns ErrNotFound when absent.
func (s *Store) Get(ctx context.Context, collection, key string, v any) error {
	data, err := os.ReadFile(s.recordPath(collection, key))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("read record: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

// Put upserts the record.
func (s *Store) Put(ctx context.Context, collection, key string, v any) error {
	path := s.recordPath(collection, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create collection dir: %w", err)
	}

	lock := s.lockFor(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock record: %w", err)
	}
	defer lock.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit record: %w", err)
	}
	return nil
}

// Delete removes the record. Deleting an absent record is not an error.
func (s *Store) Delete(ctx context.Context, collection, key string) error {
	path := s.recordPath(collection, key)

	lock := s.lockFor(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock record: %w", err)
	}
	defer lock.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// Exists reports whether the record is present.
func (s *Store) Exists(ctx context.Context, collection, key string) bool {
	_, err := os.Stat(s.recordPath(collection, key))
	return err == nil
}

// Keys lists the record keys of a collection. A missing collection yields
// an empty list.
func (s *Store) Keys(ctx context.Context, collection string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.basePath, collection))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read collection: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}
	return keys, nil
}

// Scan invokes fn for every record in the collection with its raw JSON.
func (s *Store) Scan(ctx context.Context, collection string, fn func(key string, data json.RawMessage) error) error {
	keys, err := s.Keys(ctx, collection)
	if err != nil {
		return err
	}
	for _, key := range keys {
		data, err := os.ReadFile(s.recordPath(collection, key))
		if err != nil {
			continue // record removed between listing and read
		}
		if err := fn(key, json.RawMessage(data)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) lockFor(path string) *fileLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[path]
	if !ok {
		lock = &fileLock{path: path}
		s.locks[path] = lock
	}
	return lock
}
