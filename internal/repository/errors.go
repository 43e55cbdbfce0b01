package repository

import "errors"

// ErrNotFound is returned when a referenced row does not exist. Repos map
// pgx.ErrNoRows to this so callers never depend on driver errors.
var ErrNotFound = errors.New("not found")
