package acl

import "errors"

var (
	// ErrAccessDenied is returned by the read path when a principal holds
	// neither a direct nor an inherited grant for the requested
	// permissions. It is never retried internally.
	ErrAccessDenied = errors.New("access denied")

	// ErrNotFound is returned by registry and store lookups for an entry
	// that does not exist. It is distinct from ErrAccessDenied: absence of
	// data, not absence of permission.
	ErrNotFound = errors.New("not found")
)
