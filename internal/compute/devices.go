package compute

import (
	"fmt"
	"sort"
	"sync"
)

// Device name constants.
const (
	DeviceAuto = "auto"
	DeviceCPU  = "cpu"
)

// defaultDevice is what "auto" resolves to.
const defaultDevice = DeviceCPU

// DeviceRegistry holds engine implementations by device name and resolves
// which one a deployment should use. It is safe for concurrent use, though
// registration normally happens once at startup.
type DeviceRegistry struct {
	mu      sync.RWMutex
	engines map[string]Engine
}

// NewDeviceRegistry creates an empty device registry.
func NewDeviceRegistry() *DeviceRegistry {
	return &DeviceRegistry{
		engines: make(map[string]Engine),
	}
}

// Register adds an engine under the given device name.
func (r *DeviceRegistry) Register(device string, e Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[device] = e
}

// Resolve returns the engine for the given device. "auto" picks the default
// device. Returns an error if the resolved device is not registered.
func (r *DeviceRegistry) Resolve(device string) (Engine, error) {
	target := device
	if target == DeviceAuto {
		target = defaultDevice
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.engines[target]
	if !ok {
		return nil, fmt.Errorf("device %q is not registered", target)
	}
	return e, nil
}

// List returns the registered device names, sorted for stable output.
func (r *DeviceRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
