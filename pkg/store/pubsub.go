package store

import "context"

// PubSub is the channel-based fanout half of the Store, kept separate from
// KV the same way the validator keeps pkg/ledger's pure storage logic
// separate from its transport adapters.
type PubSub interface {
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe delivers payload to handler for every message published on
	// channel. Delivery to handler is single-threaded per subscription
	// (spec.md Section 4.1). Calling the returned unsubscribe function
	// stops delivery and releases the subscription.
	Subscribe(ctx context.Context, channel string, handler func(payload []byte)) (unsubscribe func())

	// PSubscribe is the keyspace-pattern variant (e.g. "relayer:*:proof:*").
	PSubscribe(ctx context.Context, pattern string, handler func(channel string, payload []byte)) (unsubscribe func())
}
