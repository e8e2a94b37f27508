package device

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Constructor builds a backend instance. It must not perform the hardware
// handshake; that belongs to Initialize.
type Constructor func() (Device, error)

// Registration is one entry of the static backend catalog.
type Registration struct {
	Name         string
	New          Constructor
	Discoverable bool
}

// RegisterOption customises a registration.
type RegisterOption func(*Registration)

// WithExcluded marks a backend as non-discoverable. It stays in the catalog
// for explicit loading but Discover skips it.
func WithExcluded() RegisterOption {
	return func(r *Registration) {
		r.Discoverable = false
	}
}

// Catalog holds backend constructors registered at process startup.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]Registration
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]Registration)}
}

// Register adds a backend constructor under name.
func (c *Catalog) Register(name string, ctor Constructor, opts ...RegisterOption) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("device registration requires a non-empty name")
	}
	if ctor == nil {
		return fmt.Errorf("device %q: constructor is nil", name)
	}

	reg := Registration{Name: name, New: ctor, Discoverable: true}
	for _, opt := range opts {
		opt(&reg)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[name]; exists {
		return fmt.Errorf("device %q already registered", name)
	}
	c.entries[name] = reg
	return nil
}

// Lookup returns the registration for name, discoverable or not.
func (c *Catalog) Lookup(name string) (Registration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	reg, ok := c.entries[name]
	return reg, ok
}

// Registrations returns every registration sorted by name.
func (c *Catalog) Registrations() []Registration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Registration, 0, len(c.entries))
	for _, reg := range c.entries {
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

var defaultCatalog = NewCatalog()

// Default returns the process-wide catalog that backends register into
// from their init functions.
func Default() *Catalog {
	return defaultCatalog
}

// MustRegister registers into the default catalog and panics on a duplicate
// name. Intended for backend init functions.
func MustRegister(name string, ctor Constructor, opts ...RegisterOption) {
	if err := defaultCatalog.Register(name, ctor, opts...); err != nil {
		panic(err)
	}
}
