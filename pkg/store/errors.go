package store

import "errors"

// Error taxonomy for the Store, per spec.md Section 4.1.
var (
	// ErrUnavailable means the underlying service could not be reached;
	// callers should retry.
	ErrUnavailable = errors.New("store: backend unavailable")

	// ErrConflict means a SetRelayState mutator returned a state whose
	// status would move backwards in the lifecycle; the write is rejected.
	// A lost compare-and-swap race is retried inside SetRelayState instead
	// (see ErrRetriesExhausted).
	ErrConflict = errors.New("store: concurrent modification, retry")

	// ErrCorrupted means a stored value failed to decode. It is never
	// silently cleared; callers must log and surface it.
	ErrCorrupted = errors.New("store: stored value is corrupted")

	// ErrRetriesExhausted is returned by SetRelayState once its bounded
	// retry budget is spent without a successful compare-and-swap.
	ErrRetriesExhausted = errors.New("store: read-modify-write retries exhausted")
)
