package services

import (
	"context"
	"fmt"
	"sync"
)

// MockBlobStore is an in-memory BlobStore used by tests and the memory
// storage provider.
type MockBlobStore struct {
	mu          sync.RWMutex
	files       map[string][]byte
	deleteErrs  map[string]error
	deleteCalls int
}

// NewMockBlobStore creates an empty in-memory store
func NewMockBlobStore() *MockBlobStore {
	return &MockBlobStore{
		files:      make(map[string][]byte),
		deleteErrs: make(map[string]error),
	}
}

func (m *MockBlobStore) Put(_ context.Context, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[key] = append([]byte(nil), data...)
	return nil
}

func (m *MockBlobStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	if err, ok := m.deleteErrs[key]; ok {
		return err
	}
	if _, ok := m.files[key]; !ok {
		return ErrBlobNotFound
	}
	delete(m.files, key)
	return nil
}

func (m *MockBlobStore) URL(_ context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}
	m.mu.RLock()
	_, ok := m.files[key]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("file not found in mock store: %s", key)
	}
	return fmt.Sprintf("https://blobs.test/%s?mock=true", key), nil
}

// FailDelete makes every Delete of key return err
func (m *MockBlobStore) FailDelete(key string, err error) {
	m.mu.Lock()
	m.deleteErrs[key] = err
	m.mu.Unlock()
}

// DeleteCalls counts Delete invocations
func (m *MockBlobStore) DeleteCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deleteCalls
}

// FileExists checks if a key is stored
func (m *MockBlobStore) FileExists(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[key]
	return ok
}

// Files returns a copy of everything stored
func (m *MockBlobStore) Files() map[string][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	files := make(map[string][]byte, len(m.files))
	for k, v := range m.files {
		files[k] = v
	}
	return files
}
