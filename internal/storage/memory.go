package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type memObject struct {
	data        []byte
	contentType string
}

// MemoryStore is an in-process Store. It backs the "memory" storage driver
// and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	aliases Aliases
	objects map[string]map[string]memObject
}

// NewMemoryStore returns an empty store. Aliases with no bucket are rejected.
func NewMemoryStore(aliases Aliases) *MemoryStore {
	return &MemoryStore{
		aliases: aliases,
		objects: make(map[string]map[string]memObject),
	}
}

func (m *MemoryStore) GetText(ctx context.Context, alias, key string) (string, error) {
	b, err := m.GetBytes(ctx, alias, key)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (m *MemoryStore) GetBytes(_ context.Context, alias, key string) ([]byte, error) {
	if _, err := m.aliases.Bucket(alias); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[alias][key]
	if !ok {
		return nil, fmt.Errorf("get %s/%s: %w", alias, key, ErrNotFound)
	}
	return append([]byte(nil), obj.data...), nil
}

func (m *MemoryStore) Put(_ context.Context, alias, key string, body []byte, contentType string) error {
	if _, err := m.aliases.Bucket(alias); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.objects[alias] == nil {
		m.objects[alias] = make(map[string]memObject)
	}
	m.objects[alias][key] = memObject{
		data:        append([]byte(nil), body...),
		contentType: SanitizeContentType(contentType),
	}
	return nil
}

// List returns matching keys in lexical order, like S3.
func (m *MemoryStore) List(_ context.Context, alias, prefix string) ([]string, error) {
	if _, err := m.aliases.Bucket(alias); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for key := range m.objects[alias] {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) Delete(_ context.Context, alias, key string) error {
	if _, err := m.aliases.Bucket(alias); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects[alias], key)
	return nil
}

func (m *MemoryStore) PublicURL(alias, key string) (string, error) {
	return m.aliases.PublicURL(alias, key)
}

// ContentType returns the stored content type for key.
func (m *MemoryStore) ContentType(alias, key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[alias][key]
	return obj.contentType, ok
}

// Len returns the number of objects under alias.
func (m *MemoryStore) Len(alias string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects[alias])
}

var _ Store = (*MemoryStore)(nil)
