package catalog

import "errors"

// Sentinel errors for catalog operations. Check with errors.Is.
var (
	ErrModelNotFound         = errors.New("catalog: model not found")
	ErrCommandNotFound       = errors.New("catalog: command not found")
	ErrInvalidCommand        = errors.New("catalog: invalid command definition")
	ErrUndeclaredPlaceholder = errors.New("catalog: template placeholder has no parameter")
	ErrInvalidParameter      = errors.New("catalog: invalid parameter value")
	ErrInvalidDocument       = errors.New("catalog: invalid catalog document")
)
