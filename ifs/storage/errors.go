package storage

import "errors"

var (
	// ErrEntryNotFound reports a name or path segment that does not exist
	// in the directory being searched.
	ErrEntryNotFound = errors.New("entry not found")

	// ErrEntryExists reports a create for a name already present in the
	// current directory.
	ErrEntryExists = errors.New("entry already exists")

	// ErrInvalidEntry reports a corrupt on-disk record or an unusable
	// caller-supplied name.
	ErrInvalidEntry = errors.New("invalid entry")
)
