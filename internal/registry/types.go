package registry

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Method is the discovery strategy that first found a device.
type Method string

const (
	MethodPassive    Method = "passive"
	MethodActiveScan Method = "active-probe" // stored value; keep stable
)

// ModelRef is the identified model of a device, filled on read.
type ModelRef struct {
	ID           int64  `json:"id"`
	Manufacturer string `json:"manufacturer"`
	Name         string `json:"name"`
}

// Device is one discovered receiver.
type Device struct {
	ID           string    `json:"id"`
	Address      string    `json:"address"`
	Port         int       `json:"port,omitempty"`
	Hostname     string    `json:"hostname,omitempty"`
	MAC          string    `json:"mac,omitempty"`
	FriendlyName string    `json:"friendly_name"`
	ModelID      *int64    `json:"model_id,omitempty"`
	Model        *ModelRef `json:"model,omitempty"`
	Active       bool      `json:"active"`
	LastSeen     time.Time `json:"last_seen"`
	DiscoveredAt time.Time `json:"discovered_at"`
	Method       Method    `json:"method"`
}

// DeepCopy returns a copy sharing no pointers with d.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cp := *d
	if d.ModelID != nil {
		id := *d.ModelID
		cp.ModelID = &id
	}
	if d.Model != nil {
		m := *d.Model
		cp.Model = &m
	}
	return &cp
}

// Validate checks the fields every stored device must have.
func (d *Device) Validate() error {
	if d.Address == "" {
		return fmt.Errorf("%w: address is required", ErrInvalidDevice)
	}
	if d.LastSeen.IsZero() || d.DiscoveredAt.IsZero() {
		return fmt.Errorf("%w: %s: timestamps are required", ErrInvalidDevice, d.Address)
	}
	switch d.Method {
	case MethodPassive, MethodActiveScan:
	default:
		return fmt.Errorf("%w: %s: unknown method %q", ErrInvalidDevice, d.Address, d.Method)
	}
	return nil
}

// GenerateID creates a new UUID for a device.
func GenerateID() string {
	return uuid.New().String()
}

// timeLayout is fixed-width UTC with nanoseconds, so stored timestamps
// compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
