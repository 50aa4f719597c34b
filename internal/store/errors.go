package store

import "errors"

var (
	// ErrStoreUnavailable is returned when no backend can be opened.
	ErrStoreUnavailable = errors.New("local store unavailable")

	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("not found")

	// ErrIndexUnsupported is returned by backends that keep no secondary indexes.
	ErrIndexUnsupported = errors.New("index lookups unsupported")

	// ErrUnknownCollection is returned for collections or indexes that are not declared.
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrReadOnly is returned when writing to the fallback snapshot while the
	// structured backend is active.
	ErrReadOnly = errors.New("store is read-only")
)
