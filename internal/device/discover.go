package device

import (
	"fmt"
	"sort"
	"strings"

	"github.com/alexisbeaulieu97/keyglow/internal/logger"
	"github.com/alexisbeaulieu97/keyglow/internal/variables"
	kgerrors "github.com/alexisbeaulieu97/keyglow/pkg/errors"
)

// Descriptor is the static identity of a discovered backend.
type Descriptor struct {
	Name      string           `json:"name"`
	Info      string           `json:"info"`
	Variables []variables.Info `json:"variables"`
}

// Discovered pairs a descriptor with its instance. Device is nil and Err is
// set when the backend could not be constructed.
type Discovered struct {
	Descriptor Descriptor
	Device     Device
	Err        error
}

// Discover instantiates every discoverable backend in the catalog and
// registers its variables. The result is sorted by device name. A backend
// that fails or panics while being built is reported through Err and does
// not affect the others.
func Discover(catalog *Catalog, vars *variables.Registry, log *logger.Logger) []Discovered {
	var out []Discovered
	for _, reg := range catalog.Registrations() {
		if !reg.Discoverable {
			log.WithDevice(reg.Name).Debug("skipping non-discoverable device")
			continue
		}
		out = append(out, Load(reg, vars, log))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Descriptor.Name) < strings.ToLower(out[j].Descriptor.Name)
	})
	return out
}

// Load builds a single registration. It is the path used for backends
// excluded from discovery.
func Load(reg Registration, vars *variables.Registry, log *logger.Logger) Discovered {
	entryLog := log.WithDevice(reg.Name)

	d, err := construct(reg)
	if err != nil {
		err = kgerrors.NewDeviceError(reg.Name, "construct", kgerrors.KindConstruction, err)
		entryLog.Error(err, "device construction failed")
		return Discovered{Descriptor: Descriptor{Name: reg.Name}, Err: err}
	}

	name := reg.Name
	if n := safeString(d.Name); n != "" {
		name = n
	}

	if err := registerVariables(d, vars); err != nil {
		err = kgerrors.NewDeviceError(name, "register_variables", kgerrors.KindConstruction, err)
		entryLog.Error(err, "device variable registration failed")
		return Discovered{Descriptor: Descriptor{Name: name}, Err: err}
	}

	desc := Descriptor{
		Name:      name,
		Info:      safeString(d.Info),
		Variables: vars.Describe(name),
	}
	entryLog.WithFields(map[string]any{"info": desc.Info, "variables": len(desc.Variables)}).Debug("device discovered")
	return Discovered{Descriptor: desc, Device: d}
}

func construct(reg Registration) (d Device, err error) {
	defer func() {
		if r := recover(); r != nil {
			d, err = nil, fmt.Errorf("constructor panicked: %v", r)
		}
	}()

	d, err = reg.New()
	if err == nil && d == nil {
		err = fmt.Errorf("constructor returned no device")
	}
	return d, err
}

func registerVariables(d Device, vars *variables.Registry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("variable registration panicked: %v", r)
		}
	}()
	d.RegisterVariables(vars)
	return nil
}

func safeString(fn func() string) (s string) {
	defer func() {
		if recover() != nil {
			s = ""
		}
	}()
	return fn()
}
