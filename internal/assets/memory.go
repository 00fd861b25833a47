package assets

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/hpungsan/layerdeck/internal/errors"
)

// Memory keeps assets in a map. Used for tests and ephemeral runs.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (m *Memory) Put(_ context.Context, locator, _ string, data []byte) error {
	hex, err := ParseLocator(locator)
	if err != nil {
		return err
	}
	cp := append([]byte(nil), data...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[hex] = cp
	return nil
}

func (m *Memory) Resolve(_ context.Context, locator string) (io.ReadCloser, error) {
	hex, err := ParseLocator(locator)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[hex]
	if !ok {
		return nil, errors.NewNotFound("asset", locator)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Len reports the number of stored assets.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
