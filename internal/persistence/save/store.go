// Package save persists the player record under a fixed key.
package save

import (
	"errors"
	"sync"
)

var ErrNotFound = errors.New("save: not found")

// Store is local durable key/value storage for save blobs.
type Store interface {
	Load(key string) ([]byte, error)
	Save(key string, blob []byte) error
	Delete(key string) error
}

// Memory is an in-process Store.
type Memory struct {
	mu   sync.Mutex
	blob map[string][]byte
}

func NewMemory() *Memory { return &Memory{blob: map[string][]byte{}} }

func (m *Memory) Load(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blob[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (m *Memory) Save(key string, blob []byte) error {
	m.mu.Lock()
	m.blob[key] = append([]byte(nil), blob...)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	delete(m.blob, key)
	m.mu.Unlock()
	return nil
}
