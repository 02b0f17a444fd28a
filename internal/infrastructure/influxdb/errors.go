package influxdb

import "errors"

var (
	// ErrNotConnected is returned once the recorder has been closed.
	ErrNotConnected = errors.New("influxdb: recorder closed")

	// ErrConnectionFailed wraps the reason the startup ping failed.
	ErrConnectionFailed = errors.New("influxdb: server unreachable")

	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: disabled")
)
