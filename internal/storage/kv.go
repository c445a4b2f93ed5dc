// Package storage holds the client's small amount of durable state: a
// key-value store and the current session identifier kept in it.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/patrickmn/go-cache"
)

// KV is a string key-value store. Get reports ok=false for a missing key.
type KV interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
}

var errEmptyKey = errors.New("storage: empty key")

// FileKV persists a flat string map as a JSON document. Writes go to a
// temporary file that is renamed over the original.
type FileKV struct {
	path string
	mu   sync.Mutex
}

// NewFileKV returns a store backed by the file at path. The file and its
// parent directory are created on first write.
func NewFileKV(path string) (*FileKV, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage: missing path")
	}
	return &FileKV{path: path}, nil
}

// Path returns the backing file.
func (f *FileKV) Path() string { return f.path }

func (f *FileKV) Get(key string) (string, bool, error) {
	if key == "" {
		return "", false, errEmptyKey
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return "", false, err
	}
	v, ok := data[key]
	return v, ok, nil
}

func (f *FileKV) Set(key, value string) error {
	if key == "" {
		return errEmptyKey
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return err
	}
	data[key] = value
	return f.save(data)
}

func (f *FileKV) Delete(key string) error {
	if key == "" {
		return errEmptyKey
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := data[key]; !ok {
		return nil
	}
	delete(data, key)
	return f.save(data)
}

func (f *FileKV) load() (map[string]string, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("storage: read %s: %w", f.path, err)
	}
	data := map[string]string{}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w", f.path, err)
	}
	return data, nil
}

func (f *FileKV) save(data map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("storage: create dir: %w", err)
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("storage: write %s: %w", tmp, err)
	}
	return os.Rename(tmp, f.path)
}

// writableKey is written and removed again by VerifyWritable.
const writableKey = "qachat.writable"

// VerifyWritable reports whether kv accepts a write and a delete. Only its
// own check key is touched.
func VerifyWritable(kv KV) error {
	if err := kv.Set(writableKey, "1"); err != nil {
		return err
	}
	return kv.Delete(writableKey)
}

// MemoryKV is a process-local store. The chat falls back to it when the
// state file cannot be written, and --ephemeral selects it outright.
type MemoryKV struct {
	c *cache.Cache
}

// NewMemoryKV returns an empty in-memory store. Entries never expire.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{c: cache.New(cache.NoExpiration, 0)}
}

func (m *MemoryKV) Get(key string) (string, bool, error) {
	if key == "" {
		return "", false, errEmptyKey
	}
	v, ok := m.c.Get(key)
	if !ok {
		return "", false, nil
	}
	s, _ := v.(string)
	return s, true, nil
}

func (m *MemoryKV) Set(key, value string) error {
	if key == "" {
		return errEmptyKey
	}
	m.c.Set(key, value, cache.NoExpiration)
	return nil
}

func (m *MemoryKV) Delete(key string) error {
	if key == "" {
		return errEmptyKey
	}
	m.c.Delete(key)
	return nil
}
