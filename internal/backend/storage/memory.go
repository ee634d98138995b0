package storage

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jo-hoe/venicebridges/internal/common"
)

type memoryObject struct {
	data         []byte
	contentType  string
	lastModified time.Time
}

// MemoryStore keeps objects in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	baseURL string
}

// NewMemoryStore returns an empty store. URLs are baseURL joined with the key.
func NewMemoryStore(baseURL string) *MemoryStore {
	if baseURL == "" {
		baseURL = "/images"
	}
	return &MemoryStore{
		objects: make(map[string]memoryObject),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (m *MemoryStore) List(_ context.Context, prefix string) ([]Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Object, 0)
	for k, o := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, Object{Key: k, Size: int64(len(o.data)), LastModified: o.lastModified})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrNotFound, key)
	}
	return append([]byte(nil), o.data...), nil
}

func (m *MemoryStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	if key == "" {
		return common.ErrInvalidKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[key] = memoryObject{
		data:         append([]byte(nil), data...),
		contentType:  contentType,
		lastModified: time.Now().UTC(),
	}
	return nil
}

func (m *MemoryStore) Copy(_ context.Context, srcKey, dstKey string) error {
	if dstKey == "" {
		return common.ErrInvalidKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.objects[srcKey]
	if !ok {
		return fmt.Errorf("%w: %s", common.ErrNotFound, srcKey)
	}
	o.lastModified = time.Now().UTC()
	m.objects[dstKey] = o
	return nil
}

// Delete is idempotent, like an S3 DeleteObject.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, key)
	return nil
}

func (m *MemoryStore) URL(_ context.Context, key string) (string, error) {
	return m.baseURL + "/" + url.PathEscape(key), nil
}

// ContentType reports the stored content type of key.
func (m *MemoryStore) ContentType(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.objects[key]
	return o.contentType, ok
}
