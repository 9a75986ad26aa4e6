package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a uniqueness constraint is violated,
// e.g. registering an email that is already taken.
var ErrConflict = errors.New("already exists")
