package collector

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/xrelay/relayer/pkg/relay"
	"github.com/xrelay/relayer/pkg/store"
)

func newTestStore() *store.Store {
	return store.New(store.NewMemKV(), store.NewMemPubSub(), nil)
}

func bountyPlacedLog(t *testing.T, messageID common.Hash) types.Log {
	t.Helper()
	data, err := incentivesABI.Events["BountyPlaced"].Inputs.NonIndexed().Pack(
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		big.NewInt(200000),
		big.NewInt(100000),
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
		big.NewInt(10),
		big.NewInt(5),
		big.NewInt(0),
	)
	if err != nil {
		t.Fatalf("packing BountyPlaced data: %v", err)
	}

	return types.Log{
		Topics:      []common.Hash{topicBountyPlaced, messageID},
		Data:        data,
		TxHash:      common.HexToHash("0xaa"),
		BlockHash:   common.HexToHash("0xbb"),
		BlockNumber: 42,
	}
}

func TestBountySourceHandlesBountyPlaced(t *testing.T) {
	ctx := context.Background()
	st := newTestStore()
	source := NewBountySource("1", common.HexToAddress("0x3333333333333333333333333333333333333333"), st)

	messageID := common.HexToHash("0xdeadbeef")
	if err := source.Handle(ctx, bountyPlacedLog(t, messageID)); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	state, exists, err := st.GetRelayState(ctx, "1", relay.MessageIdentifier(messageID.Hex()))
	if err != nil {
		t.Fatalf("GetRelayState: %v", err)
	}
	if !exists {
		t.Fatalf("expected a RelayState to be created")
	}
	if state.Status != relay.StatusBountyPlaced {
		t.Fatalf("expected status BountyPlaced, got %s", state.Status)
	}
	if state.BountyPlacedEvent == nil {
		t.Fatalf("expected BountyPlacedEvent to be populated")
	}
	if state.BountyPlacedEvent.MaxGasDelivery.Int.Int64() != 200000 {
		t.Fatalf("unexpected MaxGasDelivery: %v", state.BountyPlacedEvent.MaxGasDelivery)
	}
}

func TestBountySourceReplayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := newTestStore()
	source := NewBountySource("1", common.HexToAddress("0x3333333333333333333333333333333333333333"), st)

	messageID := common.HexToHash("0xdeadbeef")
	lg := bountyPlacedLog(t, messageID)

	if err := source.Handle(ctx, lg); err != nil {
		t.Fatalf("first Handle: %v", err)
	}
	first, _, err := st.GetRelayState(ctx, "1", relay.MessageIdentifier(messageID.Hex()))
	if err != nil {
		t.Fatalf("GetRelayState: %v", err)
	}

	if err := source.Handle(ctx, lg); err != nil {
		t.Fatalf("replayed Handle: %v", err)
	}
	second, _, err := st.GetRelayState(ctx, "1", relay.MessageIdentifier(messageID.Hex()))
	if err != nil {
		t.Fatalf("GetRelayState: %v", err)
	}

	if first.Version != second.Version {
		t.Fatalf("expected replay to be a no-op, versions differ: %d vs %d", first.Version, second.Version)
	}
}

func TestBountySourceLifecycleTransitions(t *testing.T) {
	ctx := context.Background()
	st := newTestStore()
	source := NewBountySource("1", common.HexToAddress("0x3333333333333333333333333333333333333333"), st)
	messageID := common.HexToHash("0xdeadbeef")

	if err := source.Handle(ctx, bountyPlacedLog(t, messageID)); err != nil {
		t.Fatalf("BountyPlaced: %v", err)
	}

	delivered := types.Log{
		Topics:      []common.Hash{topicMessageDelivered, messageID},
		TxHash:      common.HexToHash("0xcc"),
		BlockHash:   common.HexToHash("0xdd"),
		BlockNumber: 43,
	}
	if err := source.Handle(ctx, delivered); err != nil {
		t.Fatalf("MessageDelivered: %v", err)
	}

	state, _, err := st.GetRelayState(ctx, "1", relay.MessageIdentifier(messageID.Hex()))
	if err != nil {
		t.Fatalf("GetRelayState: %v", err)
	}
	if state.Status != relay.StatusMessageDelivered {
		t.Fatalf("expected status MessageDelivered, got %s", state.Status)
	}

	claimed := types.Log{
		Topics:      []common.Hash{topicBountyClaimed, messageID},
		TxHash:      common.HexToHash("0xee"),
		BlockHash:   common.HexToHash("0xff"),
		BlockNumber: 44,
	}
	if err := source.Handle(ctx, claimed); err != nil {
		t.Fatalf("BountyClaimed: %v", err)
	}

	state, _, err = st.GetRelayState(ctx, "1", relay.MessageIdentifier(messageID.Hex()))
	if err != nil {
		t.Fatalf("GetRelayState: %v", err)
	}
	if state.Status != relay.StatusBountyClaimed {
		t.Fatalf("expected status BountyClaimed, got %s", state.Status)
	}
}
