package models

import "errors"

var (
	// ErrNotConfigured indicates a required store handle or credential is
	// missing. This is fatal and must be raised before any store access.
	ErrNotConfigured = errors.New("store not configured")

	// ErrStoreUnavailable indicates a store could not be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
)
