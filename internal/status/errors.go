package status

import "errors"

var (
	// ErrMalformedStatus is returned when the status document is not XML.
	ErrMalformedStatus = errors.New("status: malformed status document")

	// ErrUnexpectedStatus is returned when the receiver answers with a
	// code other than 200.
	ErrUnexpectedStatus = errors.New("status: unexpected HTTP status")

	// ErrMissingHost is returned when no receiver host was given.
	ErrMissingHost = errors.New("status: host is required")
)
