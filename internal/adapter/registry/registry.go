package registry

import (
	"context"
	"fmt"
	"sync"

	"switchd/internal/domain"
	"switchd/internal/infra/config"
)

// Registry is an in-memory, ordered domain.SwitchStore.
type Registry struct {
	mu    sync.RWMutex
	order []string
	items map[string]*domain.SwitchItem
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{items: make(map[string]*domain.SwitchItem)}
}

// FromConfig builds every declared switch. The first invalid switch aborts.
func FromConfig(switches []config.SwitchConfig) (*Registry, error) {
	r := New()
	for _, sc := range switches {
		item, err := BuildItem(sc)
		if err != nil {
			return nil, err
		}
		if err := r.Add(item); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add registers item. Ids are unique.
func (r *Registry) Add(item *domain.SwitchItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[item.ID]; ok {
		return domain.NewSubSystemError("switch", "Registry.Add", domain.ErrDuplicate,
			fmt.Sprintf("switch %q already registered", item.ID))
	}
	r.items[item.ID] = item
	r.order = append(r.order, item.ID)
	return nil
}

// Replace swaps the whole set, keeping the cached active flag of items whose
// id survives.
func (r *Registry) Replace(items []*domain.SwitchItem) error {
	next := make(map[string]*domain.SwitchItem, len(items))
	order := make([]string, 0, len(items))
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return err
		}
		if _, dup := next[it.ID]; dup {
			return domain.NewSubSystemError("switch", "Registry.Replace", domain.ErrDuplicate,
				fmt.Sprintf("switch %q listed twice", it.ID))
		}
		next[it.ID] = it
		order = append(order, it.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, it := range next {
		if prev, ok := r.items[id]; ok {
			it.SetActive(prev.Active())
		}
	}
	r.items = next
	r.order = order
	return nil
}

// List implements domain.SwitchStore.
func (r *Registry) List(_ context.Context) ([]*domain.SwitchItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.SwitchItem, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.items[id])
	}
	return out, nil
}

// Get implements domain.SwitchStore.
func (r *Registry) Get(_ context.Context, id string) (*domain.SwitchItem, error) {
	r.mu.RLock()
	item, ok := r.items[id]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrSwitchNotFound, id)
	}
	return item, nil
}

// Len returns the number of registered items.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

var _ domain.SwitchStore = (*Registry)(nil)
