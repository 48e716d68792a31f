package domain

import "errors"

// Common domain errors
var (
	// ErrNotFound indicates no configured server has the requested ROM.
	ErrNotFound = errors.New("rom not found on any server")

	// ErrInsufficientSpace indicates the cache could not be freed enough
	// even after eviction.
	ErrInsufficientSpace = errors.New("insufficient cache space")

	// ErrTransferFailed indicates a network or disk error mid-download.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrLinkCreation indicates the OS rejected a link operation.
	// Link presentation is best-effort; this never fails an ingestion.
	ErrLinkCreation = errors.New("link creation failed")

	// ErrEntryNotFound indicates a lookup against the index missed.
	ErrEntryNotFound = errors.New("cache entry not found")
)
