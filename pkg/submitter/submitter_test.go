package submitter

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xrelay/relayer/internal/config"
	"github.com/xrelay/relayer/pkg/evaluator"
	"github.com/xrelay/relayer/pkg/pricing"
	"github.com/xrelay/relayer/pkg/relay"
	"github.com/xrelay/relayer/pkg/store"
	"github.com/xrelay/relayer/pkg/wallet"
	"github.com/xrelay/relayer/pkg/xchan"
)

// fakeWallet records every submission it receives and replies with a
// fixed result, standing in for a live pkg/wallet.Wallet.
type fakeWallet struct {
	mu      sync.Mutex
	calls   []wallet.TxRequest
	gas     *big.Int
	gasUsed uint64
}

func newFakeWalletPort(ctx context.Context, fw *fakeWallet) *xchan.Port[wallet.TxRequest, wallet.SubmitResult] {
	requests := make(chan xchan.Envelope[wallet.TxRequest])
	responses := make(chan xchan.Envelope[wallet.SubmitResult])

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-requests:
				if !ok {
					return
				}
				fw.mu.Lock()
				fw.calls = append(fw.calls, env.Payload)
				fw.mu.Unlock()

				resp := xchan.Envelope[wallet.SubmitResult]{
					MessageID: env.MessageID,
					Payload: wallet.SubmitResult{
						Result: wallet.TxResult{GasCost: fw.gas, GasUsed: fw.gasUsed, Successful: true},
					},
				}
				select {
				case responses <- resp:
				case <-ctx.Done():
				}
			}
		}
	}()

	return xchan.NewPort(requests, responses)
}

func newFakePricingPort(ctx context.Context, priceOfOne float64) *xchan.Port[pricing.PriceRequest, pricing.PriceResponse] {
	requests := make(chan xchan.Envelope[pricing.PriceRequest])
	responses := make(chan xchan.Envelope[pricing.PriceResponse])

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-requests:
				if !ok {
					return
				}
				fiat := new(big.Float).Mul(new(big.Float).SetInt(env.Payload.Amount), big.NewFloat(priceOfOne))
				resp := xchan.Envelope[pricing.PriceResponse]{
					MessageID: env.MessageID,
					Payload:   pricing.PriceResponse{FiatValue: fiat},
				}
				select {
				case responses <- resp:
				case <-ctx.Done():
				}
			}
		}
	}()

	return xchan.NewPort(requests, responses)
}

func fakeGasEstimator(gas, observed int64) GasEstimator {
	return func(_ context.Context, _ Leg, _ relay.AMBMessage, _ relay.RelayState) (evaluator.GasEstimateComponents, error) {
		return evaluator.GasEstimateComponents{
			GasEstimate:           big.NewInt(gas),
			ObservedGasEstimate:   big.NewInt(observed),
			AdditionalFeeEstimate: big.NewInt(0),
		}, nil
	}
}

func fixedFee(price int64) func() (wallet.FeeData, bool) {
	return func() (wallet.FeeData, bool) {
		return wallet.FeeData{GasPrice: big.NewInt(price), At: time.Now()}, true
	}
}

func testEvaluatorConfig() config.EvaluatorConfig {
	return config.EvaluatorConfig{
		UnrewardedDeliveryGas:     1_000,
		VerificationDeliveryGas:   500,
		UnrewardedAckGas:          1_000,
		VerificationAckGas:        500,
		MinDeliveryReward:         0,
		RelativeMinDeliveryReward: 0,
		MinAckReward:              0,
		RelativeMinAckReward:      0,
		ProfitabilityFactor:       1.0,
	}
}

func TestSubmitterDeliversThenAcksAProfitableMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const sourceChain, destChain = "1", "2"
	st := store.New(store.NewMemKV(), store.NewMemPubSub(), nil)

	msg := relay.AMBMessage{
		MessageIdentifier:     relay.MessageIdentifier("0xmsg"),
		FromChainID:           sourceChain,
		ToChainID:             destChain,
		FromIncentivesAddress: "0x0000000000000000000000000000000000000001",
		ToIncentivesAddress:   "0x0000000000000000000000000000000000000002",
		IncentivesPayload:     relay.HexBytes("payload"),
	}
	if err := st.SetAMBMessage(ctx, msg); err != nil {
		t.Fatalf("SetAMBMessage: %v", err)
	}
	if err := st.SetAMBProof(ctx, relay.AMBProof{
		MessageIdentifier: msg.MessageIdentifier,
		FromChainID:       sourceChain,
		ToChainID:         destChain,
		Message:           relay.HexBytes("proof"),
		MessageCtx:        relay.HexBytes(relay.MessageCtxSourceToDestination),
	}); err != nil {
		t.Fatalf("SetAMBProof: %v", err)
	}

	_, err := st.SetRelayState(ctx, destChain, msg.MessageIdentifier, func(_ relay.RelayState, exists bool) (relay.RelayState, error) {
		if exists {
			t.Fatalf("unexpected existing relay state")
		}
		return relay.RelayState{
			MessageIdentifier: msg.MessageIdentifier,
			Status:            relay.StatusBountyPlaced,
			BountyPlacedEvent: &relay.BountyPlacedEvent{
				FromChainID:        sourceChain,
				IncentivesAddress:  "0x0000000000000000000000000000000000000001",
				MaxGasDelivery:     relay.NewBigInt(1_000_000),
				MaxGasAck:          relay.NewBigInt(500_000),
				PriceOfDeliveryGas: relay.NewBigInt(10),
				PriceOfAckGas:      relay.NewBigInt(10),
				TargetDelta:        relay.NewBigInt(0),
			},
		}, nil
	})
	if err != nil {
		t.Fatalf("SetRelayState (bounty placed): %v", err)
	}

	fw := &fakeWallet{gas: big.NewInt(10), gasUsed: 21_000}
	walletPort := newFakeWalletPort(ctx, fw)

	deps := Dependencies{
		ChainID:      destChain,
		Store:        st,
		Wallet:       walletPort,
		FeeRecipient: common.HexToAddress("0x00000000000000000000000000000000000fee"),
		Pricing: map[string]ChainPricing{
			sourceChain: {TokenID: "source-token", Client: newFakePricingPort(ctx, 1.0)},
			destChain:   {TokenID: "dest-token", Client: newFakePricingPort(ctx, 1.0)},
		},
		FeeData: map[string]func() (wallet.FeeData, bool){
			sourceChain: fixedFee(1),
			destChain:   fixedFee(1),
		},
		GasEstimator:    fakeGasEstimator(200_000, 200_000),
		EvaluatorConfig: testEvaluatorConfig(),
		MaxAttempts:     3,
		BackoffBase:     time.Millisecond,
	}

	s := New(deps)
	s.handleNewAMBMessage(msg)

	it, ok := s.queue.PopReady(time.Now())
	if !ok {
		t.Fatalf("expected a ready delivery item")
	}
	if it.leg != LegDelivery {
		t.Fatalf("expected the first queued item to be the delivery leg, got %s", it.leg)
	}
	s.process(ctx, it)

	fw.mu.Lock()
	callCount := len(fw.calls)
	lastCall := fw.calls[len(fw.calls)-1]
	fw.mu.Unlock()
	if callCount != 1 {
		t.Fatalf("expected exactly 1 wallet submission for delivery, got %d", callCount)
	}
	if lastCall.To.Hex() != "0x0000000000000000000000000000000000000002" {
		t.Fatalf("expected delivery to submit to the destination incentives address, got %s", lastCall.To.Hex())
	}

	state, found, err := st.GetRelayState(ctx, destChain, msg.MessageIdentifier)
	if err != nil || !found {
		t.Fatalf("GetRelayState after delivery: found=%v err=%v", found, err)
	}
	if state.DeliveryGasCost == nil || state.DeliveryGasCost.Int.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("expected DeliveryGasCost to be recorded as 10, got %+v", state.DeliveryGasCost)
	}
	if state.DeliveryGasUsed == nil || state.DeliveryGasUsed.Int.Cmp(big.NewInt(21_000)) != 0 {
		t.Fatalf("expected DeliveryGasUsed to be recorded as 21000, got %+v", state.DeliveryGasUsed)
	}
	if s.queue.Len() != 0 {
		t.Fatalf("expected the delivery item to be removed from the queue, got %d items", s.queue.Len())
	}

	// Simulate BountySource observing the MessageDelivered event on the
	// destination chain and advancing status, the way it would in a
	// running relayer, then simulate the resulting key-change
	// notification reaching this chain's Submitter.
	_, err = st.SetRelayState(ctx, destChain, msg.MessageIdentifier, func(current relay.RelayState, _ bool) (relay.RelayState, error) {
		current.Status = relay.StatusMessageDelivered
		current.MessageDeliveredEvent = &relay.MessageDeliveredEvent{
			ToChainID: destChain,
			Tx:        relay.TxDescription{TransactionHash: "0x0000000000000000000000000000000000000000000000000000000000aa"},
		}
		return current, nil
	})
	if err != nil {
		t.Fatalf("SetRelayState (message delivered): %v", err)
	}

	// The ack leg is evaluated and submitted on the SOURCE chain, so its
	// Submitter is a different instance than the one above.
	ackDeps := deps
	ackDeps.ChainID = sourceChain
	ackSubmitter := New(ackDeps)
	ackSubmitter.handleBountyChange(destChain, msg.MessageIdentifier)

	it, ok = ackSubmitter.queue.PopReady(time.Now())
	if !ok {
		t.Fatalf("expected a ready ack item once MessageDelivered was observed")
	}
	if it.leg != LegAck {
		t.Fatalf("expected an ack item, got %s", it.leg)
	}
	ackSubmitter.process(ctx, it)

	fw.mu.Lock()
	finalCallCount := len(fw.calls)
	ackCall := fw.calls[len(fw.calls)-1]
	fw.mu.Unlock()
	if finalCallCount != 2 {
		t.Fatalf("expected a second wallet submission for the ack, got %d total calls", finalCallCount)
	}
	if ackCall.To.Hex() != "0x0000000000000000000000000000000000000001" {
		t.Fatalf("expected the ack to submit to the bounty's incentives address, got %s", ackCall.To.Hex())
	}
	if ackSubmitter.queue.Len() != 0 {
		t.Fatalf("expected the ack item to be removed from the queue, got %d items", ackSubmitter.queue.Len())
	}
}

func TestSubmitterSkipsDeliveryWhenAlreadyDelivered(t *testing.T) {
	ctx := context.Background()
	const destChain, sourceChain = "2", "1"
	st := store.New(store.NewMemKV(), store.NewMemPubSub(), nil)

	msg := relay.AMBMessage{
		MessageIdentifier:   relay.MessageIdentifier("0xdone"),
		FromChainID:         sourceChain,
		ToChainID:           destChain,
		ToIncentivesAddress: "0x0000000000000000000000000000000000000002",
	}
	_, err := st.SetRelayState(ctx, destChain, msg.MessageIdentifier, func(_ relay.RelayState, _ bool) (relay.RelayState, error) {
		return relay.RelayState{
			MessageIdentifier: msg.MessageIdentifier,
			Status:            relay.StatusBountyPlaced,
			BountyPlacedEvent: &relay.BountyPlacedEvent{
				FromChainID:        sourceChain,
				MaxGasDelivery:     relay.NewBigInt(1),
				MaxGasAck:          relay.NewBigInt(1),
				PriceOfDeliveryGas: relay.NewBigInt(1),
				PriceOfAckGas:      relay.NewBigInt(1),
				TargetDelta:        relay.NewBigInt(0),
			},
		}, nil
	})
	if err != nil {
		t.Fatalf("SetRelayState: %v", err)
	}
	_, err = st.SetRelayState(ctx, destChain, msg.MessageIdentifier, func(current relay.RelayState, _ bool) (relay.RelayState, error) {
		current.Status = relay.StatusMessageDelivered
		current.MessageDeliveredEvent = &relay.MessageDeliveredEvent{ToChainID: destChain}
		return current, nil
	})
	if err != nil {
		t.Fatalf("SetRelayState (delivered): %v", err)
	}

	fw := &fakeWallet{gas: big.NewInt(1)}
	deps := Dependencies{
		ChainID:         destChain,
		Store:           st,
		Wallet:          newFakeWalletPort(ctx, fw),
		GasEstimator:    fakeGasEstimator(1, 1),
		EvaluatorConfig: testEvaluatorConfig(),
		MaxAttempts:     1,
	}
	s := New(deps)
	s.handleNewAMBMessage(msg)

	it, ok := s.queue.PopReady(time.Now())
	if !ok {
		t.Fatalf("expected a queued delivery item")
	}
	s.process(ctx, it)

	fw.mu.Lock()
	defer fw.mu.Unlock()
	if len(fw.calls) != 0 {
		t.Fatalf("expected no wallet submission for an already-delivered message, got %d", len(fw.calls))
	}
}
