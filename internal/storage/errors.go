package storage

import "errors"

// ErrNotFound is returned by Load when no state has been persisted yet.
var ErrNotFound = errors.New("storage: state not found")
