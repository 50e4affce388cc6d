// Package storage persists small string preferences between sessions.
package storage

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v2"
)

type (
	// Store is a string key-value store. Implementations are safe for
	// concurrent use.
	Store interface {
		Get(key string) (value string, ok bool)
		Set(key, value string) error
		Remove(key string) error
	}

	// File keeps the whole store in one YAML file, rewritten on every
	// change.
	File struct {
		mu     sync.Mutex
		path   string
		values map[string]string
		loaded bool
	}

	// Memory is a Store that forgets everything when the process exits.
	Memory struct {
		mu     sync.Mutex
		values map[string]string
	}
)

// DefaultPath is storage.yml in the regentheme directory of the user's
// config directory.
func DefaultPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot find user config directory: %w", err)
	}
	return filepath.Join(configDir, "regentheme", "storage.yml"), nil
}

// NewFile returns a store backed by the file at path. The file is read on
// first access; a missing file is an empty store.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the file backing the store.
func (f *File) Path() string { return f.path }

func (f *File) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		log.Printf("could not load preferences: %v", err)
		return "", false
	}
	v, ok := f.values[key]
	return v, ok
}

func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return err
	}
	if v, ok := f.values[key]; ok && v == value {
		return nil
	}
	f.values[key] = value
	return f.save()
}

func (f *File) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return err
	}
	if _, ok := f.values[key]; !ok {
		return nil
	}
	delete(f.values, key)
	return f.save()
}

func (f *File) load() error {
	if f.loaded {
		return nil
	}
	values := map[string]string{}
	data, err := os.ReadFile(f.path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return fmt.Errorf("could not read %v: %w", f.path, err)
	default:
		if err := yaml.UnmarshalStrict(data, &values); err != nil {
			return fmt.Errorf("could not parse %v: %w", f.path, err)
		}
		if values == nil {
			values = map[string]string{}
		}
	}
	f.values = values
	f.loaded = true
	return nil
}

func (f *File) save() error {
	data, err := yaml.Marshal(f.values)
	if err != nil {
		return fmt.Errorf("could not marshal storage: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("could not create %v: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".storage-*.yml")
	if err != nil {
		return fmt.Errorf("could not create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("could not write %v: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not close %v: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("could not replace %v: %w", f.path, err)
	}
	return nil
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: map[string]string{}}
}

func (m *Memory) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
