package discovery

import "errors"

var (
	// ErrInvalidSubnet is returned for a subnet that is not an IPv4 CIDR.
	ErrInvalidSubnet = errors.New("discovery: invalid subnet")

	// ErrInvalidSighting is returned for a sighting without a valid IP.
	ErrInvalidSighting = errors.New("discovery: invalid sighting")

	// ErrInvalidMode is returned by ParseMode for an unknown mode.
	ErrInvalidMode = errors.New("discovery: invalid mode")

	// ErrMDNSUnavailable is returned when no mDNS browse could start.
	ErrMDNSUnavailable = errors.New("discovery: mdns unavailable")

	// ErrInvalidMaxAge is returned by ExpireStale for a non-positive age.
	ErrInvalidMaxAge = errors.New("discovery: max age must be positive")
)
