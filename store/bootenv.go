package store

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// BootEnv is the boot loader environment: a flat string map persisted as a
// TOML file. Every Set rewrites the file through a temporary file and rename,
// so a crash leaves either the old or the new environment on disk.
type BootEnv struct {
	mu   sync.RWMutex
	path string // empty: in memory only
	vars map[string]string
}

// OpenBootEnv loads the environment at path. A missing file is an empty
// environment; it is created on the first Set.
func OpenBootEnv(path string) (*BootEnv, error) {
	e := &BootEnv{path: strings.TrimSpace(path), vars: make(map[string]string)}
	if e.path == "" {
		return e, nil
	}
	if _, err := toml.DecodeFile(e.path, &e.vars); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return e, nil
		}
		return nil, fmt.Errorf("store: load boot env %q: %w", e.path, err)
	}
	return e, nil
}

// NewMemoryBootEnv returns a BootEnv that is never persisted.
func NewMemoryBootEnv(initial map[string]string) *BootEnv {
	e := &BootEnv{vars: make(map[string]string, len(initial))}
	for k, v := range initial {
		e.vars[k] = v
	}
	return e
}

func (e *BootEnv) Get(key string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.vars[key]
	return v, ok
}

// Set stores key and persists the environment. On a persistence error the
// in-memory value is rolled back.
func (e *BootEnv) Set(key, value string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	old, had := e.vars[key]
	e.vars[key] = value
	if err := e.save(); err != nil {
		if had {
			e.vars[key] = old
		} else {
			delete(e.vars, key)
		}
		return err
	}
	return nil
}

func (e *BootEnv) Keys() []string {
	e.mu.RLock()
	keys := make([]string, 0, len(e.vars))
	for k := range e.vars {
		keys = append(keys, k)
	}
	e.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// save requires e.mu held for writing.
func (e *BootEnv) save() error {
	if e.path == "" {
		return nil
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(e.vars); err != nil {
		return fmt.Errorf("store: encode boot env: %w", err)
	}

	dir := filepath.Dir(e.path)
	tmp, err := os.CreateTemp(dir, ".bootenv-*")
	if err != nil {
		return fmt.Errorf("store: save boot env: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("store: save boot env: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("store: save boot env: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: save boot env: %w", err)
	}
	if err := os.Rename(tmp.Name(), e.path); err != nil {
		return fmt.Errorf("store: save boot env: %w", err)
	}
	return nil
}
