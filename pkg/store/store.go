// Package store implements the keyed, networked state layer named by
// spec.md Section 4.1. It separates pure orchestration logic (this file)
// from the KV/PubSub transport contracts, the same split the validator
// draws between pkg/ledger and pkg/kvdb.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/xrelay/relayer/pkg/relay"
)

// maxCASAttempts bounds RelayState's optimistic retry loop (spec.md
// Section 3, invariant iii); exhausting it surfaces ErrRetriesExhausted
// rather than retrying forever under sustained contention.
const maxCASAttempts = 16

// Store is the single point of access to relay state, raw messages, and
// proofs, plus the pub/sub fanout that lets every worker react to writes
// without polling.
type Store struct {
	kv     KV
	pubsub PubSub
	log    *logrus.Entry
}

// New builds a Store over the given KV and PubSub backends.
func New(kv KV, pubsub PubSub, log *logrus.Entry) *Store {
	return &Store{kv: kv, pubsub: pubsub, log: log}
}

// Get returns the raw bytes stored at key, or nil if absent.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	return s.kv.Get(ctx, key)
}

// Set unconditionally overwrites key and publishes a KeyChangeNotification
// on KeyChangeChannel.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.kv.Set(ctx, key, value); err != nil {
		return err
	}
	s.notifyKeyChange(ctx, key, ActionSet)
	return nil
}

// Del removes key and publishes a KeyChangeNotification.
func (s *Store) Del(ctx context.Context, key string) error {
	if err := s.kv.Del(ctx, key); err != nil {
		return err
	}
	s.notifyKeyChange(ctx, key, ActionDel)
	return nil
}

func (s *Store) notifyKeyChange(ctx context.Context, key, action string) {
	payload, err := json.Marshal(KeyChangeNotification{Key: key, Action: action})
	if err != nil {
		return
	}
	if err := s.pubsub.Publish(ctx, KeyChangeChannel, payload); err != nil && s.log != nil {
		s.log.WithError(err).WithField("key", key).Warn("publishing key change notification")
	}
}

// GetRelayState returns the RelayState for messageID on chainID, or
// (RelayState{}, false, nil) if no bounty has been recorded yet.
func (s *Store) GetRelayState(ctx context.Context, chainID string, messageID relay.MessageIdentifier) (relay.RelayState, bool, error) {
	raw, err := s.kv.Get(ctx, bountyKey(chainID, string(messageID)))
	if err != nil {
		return relay.RelayState{}, false, err
	}
	if raw == nil {
		return relay.RelayState{}, false, nil
	}
	var state relay.RelayState
	if err := json.Unmarshal(raw, &state); err != nil {
		return relay.RelayState{}, false, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return state, true, nil
}

// RelayStateMutator receives the current state (zero value, exists=false
// if no record exists yet) and returns the desired next state. It must be
// pure and deterministic: SetRelayState may invoke it more than once under
// contention.
type RelayStateMutator func(current relay.RelayState, exists bool) (relay.RelayState, error)

// SetRelayState applies mutate to the RelayState for messageID via
// optimistic read-modify-write, retrying on concurrent writers up to
// maxCASAttempts times (spec.md Section 3, invariant iii). It enforces the
// monotonic status lifecycle (invariant i) and publishes a
// KeyChangeNotification once the write commits.
func (s *Store) SetRelayState(ctx context.Context, chainID string, messageID relay.MessageIdentifier, mutate RelayStateMutator) (relay.RelayState, error) {
	key := bountyKey(chainID, string(messageID))

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		raw, err := s.kv.Get(ctx, key)
		if err != nil {
			return relay.RelayState{}, err
		}

		var current relay.RelayState
		exists := raw != nil
		if exists {
			if err := json.Unmarshal(raw, &current); err != nil {
				return relay.RelayState{}, fmt.Errorf("%w: %v", ErrCorrupted, err)
			}
		}

		next, err := mutate(current.Clone(), exists)
		if err != nil {
			return relay.RelayState{}, err
		}

		if exists && !current.Status.CanAdvanceTo(next.Status) {
			return relay.RelayState{}, fmt.Errorf("%w: %s cannot advance to %s", ErrConflict, current.Status, next.Status)
		}

		next.Version = current.Version + 1
		newRaw, err := json.Marshal(next)
		if err != nil {
			return relay.RelayState{}, err
		}

		ok, err := s.kv.CompareAndSwap(ctx, key, raw, newRaw)
		if err != nil {
			return relay.RelayState{}, err
		}
		if !ok {
			continue
		}

		s.notifyKeyChange(ctx, key, ActionSet)
		return next, nil
	}

	return relay.RelayState{}, ErrRetriesExhausted
}

// SetAMBMessage idempotently upserts the raw message and publishes on the
// destination chain's message channel (spec.md Section 4.1), so the
// Submitter for toChainId can react to a message a Collector on
// fromChainId just observed without polling.
func (s *Store) SetAMBMessage(ctx context.Context, msg relay.AMBMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	key := ambKey(msg.FromChainID, string(msg.MessageIdentifier))
	if err := s.kv.Set(ctx, key, raw); err != nil {
		return err
	}
	s.notifyKeyChange(ctx, key, ActionSet)

	if err := s.pubsub.Publish(ctx, newAMBMessageChannel(msg.ToChainID), raw); err != nil && s.log != nil {
		s.log.WithError(err).WithField("messageIdentifier", msg.MessageIdentifier).Warn("publishing amb message notification")
	}
	return nil
}

// GetAMBMessage returns the raw message observed on fromChainID, or
// (_, false, nil) if none has been recorded.
func (s *Store) GetAMBMessage(ctx context.Context, fromChainID string, messageID relay.MessageIdentifier) (relay.AMBMessage, bool, error) {
	raw, err := s.kv.Get(ctx, ambKey(fromChainID, string(messageID)))
	if err != nil {
		return relay.AMBMessage{}, false, err
	}
	if raw == nil {
		return relay.AMBMessage{}, false, nil
	}
	var msg relay.AMBMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return relay.AMBMessage{}, false, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return msg, true, nil
}

// SetAMBProof idempotently upserts a delivery or ack proof.
func (s *Store) SetAMBProof(ctx context.Context, proof relay.AMBProof) error {
	raw, err := json.Marshal(proof)
	if err != nil {
		return err
	}
	key := proofKey(proof.FromChainID, string(proof.MessageIdentifier))
	return s.Set(ctx, key, raw)
}

// GetAMBProof returns the proof recorded for messageID on fromChainID, or
// (_, false, nil) if none has been recorded.
func (s *Store) GetAMBProof(ctx context.Context, fromChainID string, messageID relay.MessageIdentifier) (relay.AMBProof, bool, error) {
	raw, err := s.kv.Get(ctx, proofKey(fromChainID, string(messageID)))
	if err != nil {
		return relay.AMBProof{}, false, err
	}
	if raw == nil {
		return relay.AMBProof{}, false, nil
	}
	var proof relay.AMBProof
	if err := json.Unmarshal(raw, &proof); err != nil {
		return relay.AMBProof{}, false, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return proof, true, nil
}

// On subscribes handler to every KeyChangeNotification published on
// channel, decoding the JSON envelope before invoking handler.
func (s *Store) On(ctx context.Context, channel string, handler func(KeyChangeNotification)) func() {
	return s.pubsub.Subscribe(ctx, channel, func(payload []byte) {
		var note KeyChangeNotification
		if err := json.Unmarshal(payload, &note); err != nil {
			if s.log != nil {
				s.log.WithError(err).Warn("discarding malformed key change notification")
			}
			return
		}
		handler(note)
	})
}

// OnNewAMBMessage subscribes handler to every AMBMessage published for
// delivery onto toChainID.
func (s *Store) OnNewAMBMessage(ctx context.Context, toChainID string, handler func(relay.AMBMessage)) func() {
	return s.pubsub.Subscribe(ctx, newAMBMessageChannel(toChainID), func(payload []byte) {
		var msg relay.AMBMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			if s.log != nil {
				s.log.WithError(err).Warn("discarding malformed amb message notification")
			}
			return
		}
		handler(msg)
	})
}
