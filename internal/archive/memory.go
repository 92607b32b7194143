package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryArchive keeps snapshots in memory. It is safe for concurrent use.
type MemoryArchive struct {
	name     string
	data     map[string][]byte
	versions map[string]int64
	mu       sync.RWMutex
}

var _ Archive = (*MemoryArchive)(nil)

func NewMemoryArchive(name string) *MemoryArchive {
	return &MemoryArchive{
		name:     name,
		data:     make(map[string][]byte),
		versions: make(map[string]int64),
	}
}

func (m *MemoryArchive) Name() string { return m.name }

func (m *MemoryArchive) PutSnapshot(_ context.Context, key string, r io.Reader, size int64, version int64) error {
	if err := validateKey(key); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	if err := checkSize(size, int64(len(data))); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
	m.versions[key] = version
	return nil
}

func (m *MemoryArchive) GetSnapshot(_ context.Context, key string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.data[key]
	if !ok {
		return fmt.Errorf("%s: %w", key, ErrSnapshotNotFound)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

func (m *MemoryArchive) SnapshotVersion(_ context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.versions[key], nil
}

func (m *MemoryArchive) ValidateSetup(context.Context) error {
	return nil
}
