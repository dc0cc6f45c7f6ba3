package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// File keeps every key in one JSON document. Each write rewrites the
// document through a temp file and a rename, so a crash leaves either the
// old or the new state on disk.
type File struct {
	path   string
	mu     sync.Mutex
	values map[string]string
}

func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("storage file path cannot be empty")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve storage file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o700); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	f := &File{path: abs, values: make(map[string]string)}

	raw, err := os.ReadFile(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return f, nil
	case err != nil:
		return nil, fmt.Errorf("read storage file: %w", err)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &f.values); err != nil {
			return nil, fmt.Errorf("decode storage file %s: %w", abs, err)
		}
	}

	return f, nil
}

func (f *File) Path() string {
	return f.path
}

func (f *File) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	value, ok := f.values[key]
	return value, ok, nil
}

func (f *File) Set(ctx context.Context, key string, value string) error {
	return f.SetMany(ctx, map[string]string{key: value})
}

func (f *File) SetMany(_ context.Context, values map[string]string) error {
	if err := checkKeys(values); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	next := make(map[string]string, len(f.values)+len(values))
	for key, value := range f.values {
		next[key] = value
	}
	for key, value := range values {
		next[key] = value
	}

	return f.commit(next)
}

func (f *File) Remove(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := make(map[string]string, len(f.values))
	for key, value := range f.values {
		next[key] = value
	}

	changed := false
	for _, key := range keys {
		if _, ok := next[key]; ok {
			delete(next, key)
			changed = true
		}
	}

	if !changed {
		return nil
	}

	return f.commit(next)
}

// commit must be called with f.mu held. Memory only changes after the
// document is safely on disk.
func (f *File) commit(next map[string]string) error {
	raw, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return fmt.Errorf("encode storage file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".storefront-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp storage file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp storage file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp storage file: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace storage file: %w", err)
	}

	f.values = next
	return nil
}
