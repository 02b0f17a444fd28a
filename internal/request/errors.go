package request

import "errors"

var (
	// ErrUnsupportedMethod is returned for HTTP methods other than GET,
	// POST, PUT and DELETE.
	ErrUnsupportedMethod = errors.New("request: unsupported HTTP method")

	// ErrTransport wraps network failures: timeouts, refused connections,
	// DNS errors. The receiver never answered.
	ErrTransport = errors.New("request: transport failure")
)
