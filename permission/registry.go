package permission

import (
	"errors"
	"sync"
)

const maxPermissions = 64

// Registry maps permission names to bit positions within a Mask64.
type Registry struct {
	mu        sync.RWMutex
	nameToBit map[string]int
	bitToName map[int]string
	frozen    bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		nameToBit: make(map[string]int),
		bitToName: make(map[int]string),
	}
}

// Register assigns the next available bit to the named permission.
// Registering a name twice returns its existing bit.
func (r *Registry) Register(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return -1, errors.New("permission name cannot be empty")
	}

	if bit, exists := r.nameToBit[name]; exists {
		return bit, nil
	}

	if r.frozen {
		return -1, errors.New("registry frozen")
	}

	nextBit := len(r.nameToBit)
	if nextBit >= maxPermissions {
		return -1, errors.New("permission limit exceeded")
	}

	r.nameToBit[name] = nextBit
	r.bitToName[nextBit] = name

	return nextBit, nil
}

// Bit returns the bit index for the named permission, or false if not registered.
func (r *Registry) Bit(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bit, ok := r.nameToBit[name]
	return bit, ok
}

// Name returns the permission name for the given bit index, or false if unassigned.
func (r *Registry) Name(bit int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.bitToName[bit]
	return name, ok
}

// Names returns the names set in mask, in bit order.
func (r *Registry) Names(mask Mask64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.bitToName))
	for bit := 0; bit < len(r.bitToName); bit++ {
		if mask.Has(bit) {
			names = append(names, r.bitToName[bit])
		}
	}
	return names
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Count returns the number of registered permissions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nameToBit)
}
