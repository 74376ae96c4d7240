package collector

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/xrelay/relayer/pkg/relay"
	"github.com/xrelay/relayer/pkg/store"
)

var (
	topicBountyPlaced    = incentivesABI.Events["BountyPlaced"].ID
	topicBountyIncreased = incentivesABI.Events["BountyIncreased"].ID
	topicMessageDelivered = incentivesABI.Events["MessageDelivered"].ID
	topicBountyClaimed   = incentivesABI.Events["BountyClaimed"].ID
)

// BountySource is the sole writer of RelayState.status transitions
// (spec.md Section 4.3), decoding the escrow contract's bounty
// lifecycle events from one chain.
type BountySource struct {
	chainID           string
	incentivesAddress common.Address
	store             *store.Store
}

// NewBountySource builds a Source that scans incentivesAddress on
// chainID for bounty lifecycle events.
func NewBountySource(chainID string, incentivesAddress common.Address, st *store.Store) *BountySource {
	return &BountySource{chainID: chainID, incentivesAddress: incentivesAddress, store: st}
}

func (s *BountySource) Address() common.Address {
	return s.incentivesAddress
}

func (s *BountySource) Topics() []common.Hash {
	return []common.Hash{topicBountyPlaced, topicBountyIncreased, topicMessageDelivered, topicBountyClaimed}
}

func (s *BountySource) Handle(ctx context.Context, lg types.Log) error {
	if len(lg.Topics) < 2 {
		return fmt.Errorf("log missing indexed messageIdentifier topic")
	}

	messageID := relay.MessageIdentifier(lg.Topics[1].Hex())
	tx := relay.TxDescription{
		TransactionHash: lg.TxHash.Hex(),
		BlockHash:       lg.BlockHash.Hex(),
		BlockNumber:     lg.BlockNumber,
	}

	switch lg.Topics[0] {
	case topicBountyPlaced:
		return s.handleBountyPlaced(ctx, messageID, lg, tx)
	case topicBountyIncreased:
		return s.handleBountyIncreased(ctx, messageID, lg, tx)
	case topicMessageDelivered:
		return s.handleMessageDelivered(ctx, messageID, tx)
	case topicBountyClaimed:
		return s.handleBountyClaimed(ctx, messageID, tx)
	default:
		return nil
	}
}

func (s *BountySource) handleBountyPlaced(ctx context.Context, messageID relay.MessageIdentifier, lg types.Log, tx relay.TxDescription) error {
	values, err := incentivesABI.Unpack("BountyPlaced", lg.Data)
	if err != nil {
		return fmt.Errorf("unpacking BountyPlaced: %w", err)
	}
	if len(values) != 7 {
		return fmt.Errorf("unpacking BountyPlaced: expected 7 fields, got %d", len(values))
	}

	incentivesAddress, _ := values[0].(common.Address)
	maxGasDelivery, _ := values[1].(*big.Int)
	maxGasAck, _ := values[2].(*big.Int)
	refundGasTo, _ := values[3].(common.Address)
	priceOfDeliveryGas, _ := values[4].(*big.Int)
	priceOfAckGas, _ := values[5].(*big.Int)
	targetDelta, _ := values[6].(*big.Int)

	event := &relay.BountyPlacedEvent{
		FromChainID:        s.chainID,
		IncentivesAddress:  incentivesAddress.Hex(),
		MaxGasDelivery:     relay.BigIntFromBig(maxGasDelivery),
		MaxGasAck:          relay.BigIntFromBig(maxGasAck),
		RefundGasTo:        refundGasTo.Hex(),
		PriceOfDeliveryGas: relay.BigIntFromBig(priceOfDeliveryGas),
		PriceOfAckGas:      relay.BigIntFromBig(priceOfAckGas),
		TargetDelta:        relay.BigIntFromBig(targetDelta),
		Tx:                 tx,
	}

	// A replayed BountyPlaced log for a record that already exists makes
	// no write at all, so the stored record (Version included) is unchanged.
	if _, exists, err := s.store.GetRelayState(ctx, s.chainID, messageID); err != nil {
		return err
	} else if exists {
		return nil
	}

	_, err = s.store.SetRelayState(ctx, s.chainID, messageID, func(current relay.RelayState, exists bool) (relay.RelayState, error) {
		if exists {
			// Idempotent replay of the same BountyPlaced log (spec.md
			// Section 8, property 5): keep the existing record as-is.
			return current, nil
		}
		return relay.RelayState{
			MessageIdentifier: messageID,
			Status:            relay.StatusBountyPlaced,
			BountyPlacedEvent: event,
		}, nil
	})
	return err
}

func (s *BountySource) handleBountyIncreased(ctx context.Context, messageID relay.MessageIdentifier, lg types.Log, tx relay.TxDescription) error {
	values, err := incentivesABI.Unpack("BountyIncreased", lg.Data)
	if err != nil {
		return fmt.Errorf("unpacking BountyIncreased: %w", err)
	}
	if len(values) != 2 {
		return fmt.Errorf("unpacking BountyIncreased: expected 2 fields, got %d", len(values))
	}

	newDeliveryGasPrice, _ := values[0].(*big.Int)
	newAckGasPrice, _ := values[1].(*big.Int)

	_, err = s.store.SetRelayState(ctx, s.chainID, messageID, func(current relay.RelayState, exists bool) (relay.RelayState, error) {
		if !exists {
			return current, fmt.Errorf("bounty increased for unknown message %s", messageID)
		}
		// bountyIncreasedEvent always keeps the latest prices (spec.md
		// Section 3, invariant i) — overwritten, not merged.
		current.BountyIncreasedEvent = &relay.BountyIncreasedEvent{
			NewDeliveryGasPrice: relay.BigIntFromBig(newDeliveryGasPrice),
			NewAckGasPrice:      relay.BigIntFromBig(newAckGasPrice),
			Tx:                  tx,
		}
		return current, nil
	})
	return err
}

func (s *BountySource) handleMessageDelivered(ctx context.Context, messageID relay.MessageIdentifier, tx relay.TxDescription) error {
	_, err := s.store.SetRelayState(ctx, s.chainID, messageID, func(current relay.RelayState, exists bool) (relay.RelayState, error) {
		if !exists {
			return current, fmt.Errorf("message delivered for unknown message %s", messageID)
		}
		if current.Status == relay.StatusMessageDelivered || current.Status == relay.StatusBountyClaimed {
			return current, nil
		}
		current.Status = relay.StatusMessageDelivered
		current.MessageDeliveredEvent = &relay.MessageDeliveredEvent{
			ToChainID: s.chainID,
			Tx:        tx,
		}
		return current, nil
	})
	return err
}

func (s *BountySource) handleBountyClaimed(ctx context.Context, messageID relay.MessageIdentifier, tx relay.TxDescription) error {
	_, err := s.store.SetRelayState(ctx, s.chainID, messageID, func(current relay.RelayState, exists bool) (relay.RelayState, error) {
		if !exists {
			return current, fmt.Errorf("bounty claimed for unknown message %s", messageID)
		}
		if current.Status == relay.StatusBountyClaimed {
			return current, nil
		}
		current.Status = relay.StatusBountyClaimed
		current.BountyClaimedEvent = &relay.BountyClaimedEvent{Tx: tx}
		return current, nil
	})
	return err
}
