package storage

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"
)

type object struct {
	content     []byte
	contentType string
}

// MemoryStore keeps objects in process. It backs local development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string]object
}

var _ Blob = (*MemoryStore)(nil)

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{baseURL: baseURL, objects: map[string]object{}}
}

func (m *MemoryStore) Put(ctx context.Context, key string, content []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = object{content: append([]byte(nil), content...), contentType: contentType}
	return nil
}

func (m *MemoryStore) SignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.objects[key]; !ok {
		return "", fmt.Errorf("object %s not found", key)
	}
	q := url.Values{}
	q.Set("expires", time.Now().Add(ttl).UTC().Format(time.RFC3339))
	return fmt.Sprintf("%s/%s?%s", m.baseURL, key, q.Encode()), nil
}

func (m *MemoryStore) Get(key string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[key]
	return o.content, o.contentType, ok
}

func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}
