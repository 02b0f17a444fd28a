package registry

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository is a Repository held in process memory. Model
// references are stored as given; nothing is joined on read.
type MemoryRepository struct {
	mu      sync.RWMutex
	devices map[string]*Device // by address
}

// NewMemoryRepository creates an empty in-memory registry.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{devices: make(map[string]*Device)}
}

// FindDeviceByAddress returns a copy of the stored device.
func (r *MemoryRepository) FindDeviceByAddress(_ context.Context, address string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[address]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

// UpsertDevice stores a copy of d under its address.
func (r *MemoryRepository) UpsertDevice(_ context.Context, d *Device) error {
	if err := d.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.devices[d.Address]; ok {
		d.ID = existing.ID
		d.DiscoveredAt = existing.DiscoveredAt
	} else if d.ID == "" {
		d.ID = GenerateID()
	}

	r.devices[d.Address] = d.DeepCopy()
	return nil
}

// ListDevices returns copies newest first.
func (r *MemoryRepository) ListDevices(_ context.Context, activeOnly bool) ([]Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		if activeOnly && !d.Active {
			continue
		}
		devices = append(devices, *d.DeepCopy())
	}

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].LastSeen.After(devices[j].LastSeen)
	})
	return devices, nil
}

// MarkInactive clears Active on the active devices among ids.
func (r *MemoryRepository) MarkInactive(_ context.Context, ids []string) (int, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, d := range r.devices {
		if d.Active && want[d.ID] {
			d.Active = false
			n++
		}
	}
	return n, nil
}
