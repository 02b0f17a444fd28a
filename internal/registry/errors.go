package registry

import "errors"

var (
	// ErrDeviceNotFound is returned when no device has the given address.
	ErrDeviceNotFound = errors.New("registry: device not found")

	// ErrInvalidDevice is returned when a device lacks an address or
	// timestamps.
	ErrInvalidDevice = errors.New("registry: invalid device")
)
