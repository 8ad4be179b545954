// Package store holds the state a syscontrol daemon serves: system
// properties, sysfs nodes and the boot environment. Backend composes them
// into a syscontrol.Service.
package store

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

var (
	ErrEmptyKey    = errors.New("store: empty key")
	ErrPathEscapes = errors.New("store: path escapes root")
	ErrNoSysfs     = errors.New("store: sysfs not configured")
)

// PropertyStore is a flat string key/value map. Get reports ok=false for a
// missing key; err is reserved for failures of the store itself.
type PropertyStore interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Keys() ([]string, error)
}

// MemoryStore is an in-process PropertyStore.
type MemoryStore struct {
	mu    sync.RWMutex
	store map[string]string
}

// NewMemoryStore returns a store holding a copy of initial.
func NewMemoryStore(initial map[string]string) *MemoryStore {
	s := &MemoryStore{store: make(map[string]string, len(initial))}
	for k, v := range initial {
		s.store[k] = v
	}
	return s
}

func (s *MemoryStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.store[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(key, value string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	s.store[key] = value
	s.mu.Unlock()
	return nil
}

// Keys returns the keys in sorted order.
func (s *MemoryStore) Keys() ([]string, error) {
	s.mu.RLock()
	keys := make([]string, 0, len(s.store))
	for k := range s.store {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys, nil
}
