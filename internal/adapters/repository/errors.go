package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound = errors.New("batch not found")
	ErrConflict = errors.New("record already exists")
)
