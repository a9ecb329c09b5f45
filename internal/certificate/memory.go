package certificate

import (
	"context"
	"sync"
)

// MemoryFiles is an in-memory FileStore for tests and local runs.
type MemoryFiles struct {
	mu    sync.Mutex
	files map[string][]byte
}

func NewMemoryFiles() *MemoryFiles {
	return &MemoryFiles{files: make(map[string][]byte)}
}

func (m *MemoryFiles) Save(_ context.Context, name string, content []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = append([]byte(nil), content...)
	return "memory://" + name, nil
}

func (m *MemoryFiles) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, name)
	return nil
}

// Has reports whether name is stored.
func (m *MemoryFiles) Has(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[name]
	return ok
}

func (m *MemoryFiles) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}
