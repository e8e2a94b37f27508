package variables

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Info describes one variable for listings and IPC replies.
type Info struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Kind        Kind   `json:"kind" yaml:"kind"`
	Default     any    `json:"default" yaml:"default"`
	Value       any    `json:"value" yaml:"value"`
	Modified    bool   `json:"modified" yaml:"modified"`
}

// Change is raised after a variable value changes.
type Change struct {
	Device string
	Name   string
	Value  any
}

type entry struct {
	device      string
	name        string
	description string
	kind        Kind
	def         any
	value       any
	modified    bool
}

// Registry stores per-device typed configuration values. Reads may run
// concurrently; registration and writes are serialized.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	// pending holds persisted values whose variable is not registered yet.
	pending map[string]pendingValue

	listenerMu sync.RWMutex
	listeners  []func(Change)
}

type pendingValue struct {
	device string
	name   string
	value  any
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		pending: make(map[string]pendingValue),
	}
}

// Key namespaces a variable by device name.
func Key(device, name string) string {
	return device + "_" + name
}

// Register declares a variable with its default. Registering an existing
// name is a no-op that returns the current value.
func (r *Registry) Register(device, name string, def any, description string) any {
	key := Key(device, name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[key]; ok {
		return existing.value
	}

	e := &entry{
		device:      device,
		name:        name,
		description: description,
		kind:        kindOf(def),
		def:         def,
		value:       def,
	}
	if p, ok := r.pending[key]; ok {
		delete(r.pending, key)
		if v, err := coerceFor(e, p.value); err == nil {
			e.value = v
			e.modified = true
		}
	}
	r.entries[key] = e
	return e.value
}

// Get reads a registered variable as T.
func Get[T any](r *Registry, device, name string) (T, error) {
	var zero T

	v, err := r.Lookup(device, name)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, &TypeMismatchError{
			Key:  Key(device, name),
			Want: reflect.TypeOf((*T)(nil)).Elem().String(),
			Got:  fmt.Sprintf("%T", v),
		}
	}
	return typed, nil
}

// GetOr reads a variable and falls back to def on any error.
func GetOr[T any](r *Registry, device, name string, def T) T {
	if r == nil {
		return def
	}
	v, err := Get[T](r, device, name)
	if err != nil {
		return def
	}
	return v
}

// Lookup returns the current untyped value.
func (r *Registry) Lookup(device, name string) (any, error) {
	key := Key(device, name)

	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[key]
	if !ok {
		return nil, unregistered(key)
	}
	return e.value, nil
}

// Set stores value for a registered variable, converting it to the
// registered kind when the input is loosely typed.
func (r *Registry) Set(device, name string, value any) error {
	key := Key(device, name)

	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		r.mu.Unlock()
		return unregistered(key)
	}
	v, err := coerceFor(e, value)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	e.value = v
	e.modified = true
	r.mu.Unlock()

	r.notify(Change{Device: device, Name: name, Value: v})
	return nil
}

// Reset restores a variable to its default. For a variable that is not
// registered yet, a persisted value held for it is discarded.
func (r *Registry) Reset(device, name string) error {
	key := Key(device, name)

	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		_, held := r.pending[key]
		delete(r.pending, key)
		r.mu.Unlock()
		if held {
			return nil
		}
		return unregistered(key)
	}
	e.value = e.def
	e.modified = false
	v := e.value
	r.mu.Unlock()

	r.notify(Change{Device: device, Name: name, Value: v})
	return nil
}

// Describe lists the variables of one device sorted by name.
func (r *Registry) Describe(device string) []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0)
	for _, e := range r.entries {
		if e.device != device {
			continue
		}
		infos = append(infos, Info{
			Name:        e.name,
			Description: e.description,
			Kind:        e.kind,
			Default:     display(e.def),
			Value:       display(e.value),
			Modified:    e.modified,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Values exports every user-set value, grouped by device, including
// persisted values whose variable was never registered.
func (r *Registry) Values() map[string]map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]map[string]any)
	put := func(device, name string, v any) {
		if out[device] == nil {
			out[device] = make(map[string]any)
		}
		out[device][name] = display(v)
	}
	for _, e := range r.entries {
		if e.modified {
			put(e.device, e.name, e.value)
		}
	}
	for _, p := range r.pending {
		put(p.device, p.name, p.value)
	}
	return out
}

// Load applies persisted values. Values for unregistered variables are kept
// until the variable is registered. Conversion failures are reported but do
// not stop the remaining values from loading.
func (r *Registry) Load(values map[string]map[string]any) error {
	var errs []error
	var changes []Change

	r.mu.Lock()
	for device, vars := range values {
		for name, raw := range vars {
			key := Key(device, name)
			e, ok := r.entries[key]
			if !ok {
				r.pending[key] = pendingValue{device: device, name: name, value: raw}
				continue
			}
			v, err := coerceFor(e, raw)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if e.modified && reflect.DeepEqual(e.value, v) {
				continue
			}
			e.value = v
			e.modified = true
			changes = append(changes, Change{Device: device, Name: name, Value: v})
		}
	}
	r.mu.Unlock()

	for _, c := range changes {
		r.notify(c)
	}
	return errors.Join(errs...)
}

// OnChange registers fn to run after every value change. Listeners run
// synchronously on the goroutine that made the change.
func (r *Registry) OnChange(fn func(Change)) {
	if fn == nil {
		return
	}
	r.listenerMu.Lock()
	r.listeners = append(r.listeners, fn)
	r.listenerMu.Unlock()
}

func (r *Registry) notify(c Change) {
	r.listenerMu.RLock()
	listeners := append([]func(Change){}, r.listeners...)
	r.listenerMu.RUnlock()

	for _, fn := range listeners {
		fn(c)
	}
}

func coerceFor(e *entry, value any) (any, error) {
	key := Key(e.device, e.name)
	if e.kind == KindOther {
		if reflect.TypeOf(value) != reflect.TypeOf(e.def) {
			return nil, &TypeMismatchError{Key: key, Want: fmt.Sprintf("%T", value), Got: fmt.Sprintf("%T", e.def)}
		}
		return value, nil
	}
	v, err := Coerce(e.kind, value)
	if err != nil {
		return nil, &TypeMismatchError{Key: key, Want: fmt.Sprintf("%T", value), Got: string(e.kind)}
	}
	return v, nil
}
