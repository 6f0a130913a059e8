package persist

import "sync"

// KV is durable key-value storage
type KV interface {
	// Get returns the value stored at key, or nil if there is nothing stored at that key
	Get(key string) ([]byte, error)
	// Set stores a value at key, overwriting what was there
	Set(key string, value []byte) error
	// Delete removes the value at key. Deleting a missing key is not an error.
	Delete(key string) error
}

// MemoryKV implements KV in memory
type MemoryKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: map[string][]byte{}}
}

func (m *MemoryKV) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryKV) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
