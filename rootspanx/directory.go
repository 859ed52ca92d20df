package rootspanx

import (
	"sort"
	"sync"

	"go.eggybyte.com/o11y/core/errors"
)

// Lookup resolves named resources such as connection pools.
type Lookup interface {
	// Lookup returns the resource bound to name, or a NOT_FOUND error.
	Lookup(name string) (any, error)
}

// Directory is an in-memory named resource directory.
type Directory struct {
	mu      sync.RWMutex
	entries map[string]any
}

// NewDirectory creates an empty Directory.
func NewDirectory() *Directory {
	return &Directory{entries: make(map[string]any)}
}

// Bind binds resource under name, replacing any previous binding.
func (d *Directory) Bind(name string, resource any) error {
	if name == "" {
		return errors.New(errors.CodeInvalidArgument, "resource name is required")
	}
	if resource == nil {
		return errors.Newf(errors.CodeInvalidArgument, "nil resource for %s", name)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[name] = resource
	return nil
}

// Unbind removes the binding for name.
func (d *Directory) Unbind(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, name)
}

// Lookup returns the resource bound to name.
func (d *Directory) Lookup(name string) (any, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if r, ok := d.entries[name]; ok {
		return r, nil
	}
	return nil, errors.Newf(errors.CodeNotFound, "no resource bound to %s", name)
}

// Names returns the bound names in sorted order.
func (d *Directory) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.entries))
	for n := range d.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
