package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type AdapterRegistry struct {
	mu       sync.RWMutex
	adapters map[ServiceKey]ProviderAdapter
}

func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{adapters: make(map[ServiceKey]ProviderAdapter)}
}

func (r *AdapterRegistry) Register(adapter ProviderAdapter) error {
	if adapter == nil {
		return fmt.Errorf("core: adapter is nil")
	}
	id := adapter.ID()
	if strings.TrimSpace(string(id)) == "" {
		return fmt.Errorf("core: adapter id is required")
	}
	if _, err := ParseServiceKey(string(id)); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[id]; exists {
		return fmt.Errorf("core: adapter already registered: %s", id)
	}
	r.adapters[id] = adapter
	return nil
}

func (r *AdapterRegistry) Get(service ServiceKey) (ProviderAdapter, bool) {
	if strings.TrimSpace(string(service)) == "" {
		return nil, false
	}
	r.mu.RLock()
	adapter, ok := r.adapters[service]
	r.mu.RUnlock()
	return adapter, ok
}

func (r *AdapterRegistry) List() []ProviderAdapter {
	r.mu.RLock()
	keys := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		keys = append(keys, string(id))
	}
	r.mu.RUnlock()
	sort.Strings(keys)
	adapters := make([]ProviderAdapter, 0, len(keys))
	r.mu.RLock()
	for _, id := range keys {
		adapters = append(adapters, r.adapters[ServiceKey(id)])
	}
	r.mu.RUnlock()
	return adapters
}
