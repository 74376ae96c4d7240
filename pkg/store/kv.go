package store

import "context"

// KV is the minimal keyed storage contract the Store is built on. It
// mirrors the validator's ledger.KV interface (pkg/ledger/store.go,
// wrapped for CometBFT's embedded DB by pkg/kvdb.KVAdapter) but adds
// CompareAndSwap, since the Store's RelayState writes must be optimistic
// read-modify-write against a networked service rather than a
// single-writer embedded DB (spec.md Section 3, invariant iii).
type KV interface {
	// Get returns nil, nil if key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set unconditionally overwrites key.
	Set(ctx context.Context, key string, value []byte) error
	// Del removes key; it is not an error if key is already absent.
	Del(ctx context.Context, key string) error
	// CompareAndSwap sets key to newValue only if its current raw bytes
	// equal oldValue. A nil oldValue requires the key to be absent. ok is
	// false (no error) when the compare fails, so the caller can retry.
	CompareAndSwap(ctx context.Context, key string, oldValue, newValue []byte) (ok bool, err error)
}
