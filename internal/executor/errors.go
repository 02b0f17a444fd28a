package executor

import "errors"

var (
	// ErrUnexpectedStatus is returned when the receiver answered with a
	// status other than 200.
	ErrUnexpectedStatus = errors.New("executor: unexpected HTTP status")

	// ErrUnresolvedPlaceholder is returned in strict mode when the resolved
	// template still contains {name} tokens.
	ErrUnresolvedPlaceholder = errors.New("executor: unresolved template placeholder")

	// ErrMissingHost is returned when an invocation has no target host.
	ErrMissingHost = errors.New("executor: host is required")
)
