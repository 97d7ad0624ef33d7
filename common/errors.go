package common

import "errors"

// ErrNotFound is returned by storage implementations when the requested
// record does not exist.
var ErrNotFound = errors.New("not found")
