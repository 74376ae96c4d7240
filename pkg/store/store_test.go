package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/xrelay/relayer/pkg/relay"
)

func newTestStore() *Store {
	return New(NewMemKV(), NewMemPubSub(), nil)
}

func TestSetRelayStateCreatesNewRecord(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	messageID := relay.MessageIdentifier("0xabc")
	next, err := s.SetRelayState(ctx, "1", messageID, func(current relay.RelayState, exists bool) (relay.RelayState, error) {
		if exists {
			t.Fatalf("expected no existing record")
		}
		return relay.RelayState{
			MessageIdentifier: messageID,
			Status:            relay.StatusBountyPlaced,
		}, nil
	})
	if err != nil {
		t.Fatalf("SetRelayState: %v", err)
	}
	if next.Version != 1 {
		t.Fatalf("expected version 1, got %d", next.Version)
	}

	got, exists, err := s.GetRelayState(ctx, "1", messageID)
	if err != nil {
		t.Fatalf("GetRelayState: %v", err)
	}
	if !exists {
		t.Fatalf("expected record to exist")
	}
	if got.Status != relay.StatusBountyPlaced {
		t.Fatalf("expected status BountyPlaced, got %s", got.Status)
	}
}

func TestSetRelayStateRejectsBackwardsTransition(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	messageID := relay.MessageIdentifier("0xabc")

	_, err := s.SetRelayState(ctx, "1", messageID, func(_ relay.RelayState, _ bool) (relay.RelayState, error) {
		return relay.RelayState{MessageIdentifier: messageID, Status: relay.StatusMessageDelivered}, nil
	})
	if err != nil {
		t.Fatalf("seeding record: %v", err)
	}

	_, err = s.SetRelayState(ctx, "1", messageID, func(current relay.RelayState, _ bool) (relay.RelayState, error) {
		current.Status = relay.StatusBountyPlaced
		return current, nil
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestSetRelayStateConcurrentWritersAllCommit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	messageID := relay.MessageIdentifier("0xabc")

	_, err := s.SetRelayState(ctx, "1", messageID, func(_ relay.RelayState, _ bool) (relay.RelayState, error) {
		return relay.RelayState{MessageIdentifier: messageID, Status: relay.StatusBountyPlaced}, nil
	})
	if err != nil {
		t.Fatalf("seeding record: %v", err)
	}

	const writers = 8
	var wg sync.WaitGroup
	wg.Add(writers)
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := s.SetRelayState(ctx, "1", messageID, func(current relay.RelayState, _ bool) (relay.RelayState, error) {
				return current, nil
			})
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("writer %d failed: %v", i, err)
		}
	}

	final, _, err := s.GetRelayState(ctx, "1", messageID)
	if err != nil {
		t.Fatalf("GetRelayState: %v", err)
	}
	if final.Version != uint64(writers+1) {
		t.Fatalf("expected version %d, got %d", writers+1, final.Version)
	}
}

func TestSetAMBMessageIsIdempotentAndNotifies(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	msg := relay.AMBMessage{
		MessageIdentifier: "0xdef",
		FromChainID:       "1",
		ToChainID:         "2",
	}

	received := make(chan relay.AMBMessage, 1)
	unsubscribe := s.OnNewAMBMessage(ctx, "2", func(m relay.AMBMessage) {
		received <- m
	})
	defer unsubscribe()

	if err := s.SetAMBMessage(ctx, msg); err != nil {
		t.Fatalf("SetAMBMessage: %v", err)
	}

	select {
	case got := <-received:
		if got.MessageIdentifier != msg.MessageIdentifier {
			t.Fatalf("unexpected notification payload: %+v", got)
		}
	default:
		t.Fatalf("expected a notification on the destination chain channel")
	}

	if err := s.SetAMBMessage(ctx, msg); err != nil {
		t.Fatalf("second SetAMBMessage: %v", err)
	}

	got, exists, err := s.GetAMBMessage(ctx, "1", msg.MessageIdentifier)
	if err != nil {
		t.Fatalf("GetAMBMessage: %v", err)
	}
	if !exists {
		t.Fatalf("expected message to exist")
	}
	if got.ToChainID != "2" {
		t.Fatalf("unexpected ToChainID: %s", got.ToChainID)
	}
}

func TestGetRelayStateMissingReturnsNotExists(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	_, exists, err := s.GetRelayState(ctx, "1", relay.MessageIdentifier("0xmissing"))
	if err != nil {
		t.Fatalf("GetRelayState: %v", err)
	}
	if exists {
		t.Fatalf("expected no record")
	}
}

func TestOnReceivesKeyChangeNotifications(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	notes := make(chan KeyChangeNotification, 4)
	unsubscribe := s.On(ctx, KeyChangeChannel, func(n KeyChangeNotification) {
		notes <- n
	})
	defer unsubscribe()

	if err := s.Set(ctx, "some:key", []byte("value")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	select {
	case n := <-notes:
		if n.Key != "some:key" || n.Action != ActionSet {
			t.Fatalf("unexpected notification: %+v", n)
		}
	default:
		t.Fatalf("expected a key change notification")
	}
}
