package events

import "errors"

// ErrInvalidPayload is acknowledged for command requests that are not
// valid JSON.
var ErrInvalidPayload = errors.New("events: invalid command payload")

// ErrInvalidStatus is logged for status messages that do not decode.
var ErrInvalidStatus = errors.New("events: invalid status payload")
