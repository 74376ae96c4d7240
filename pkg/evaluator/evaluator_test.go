package evaluator

import (
	"context"
	"math/big"
	"testing"

	"github.com/xrelay/relayer/internal/config"
	"github.com/xrelay/relayer/pkg/relay"
)

func fixedPriceConverter(priceOfOne float64) PriceConverter {
	return func(_ context.Context, amount *big.Int, _ string) (*big.Float, error) {
		return new(big.Float).Mul(new(big.Float).SetInt(amount), big.NewFloat(priceOfOne)), nil
	}
}

func baseState() relay.RelayState {
	return relay.RelayState{
		MessageIdentifier: "0xdeadbeef",
		Status:            relay.StatusBountyPlaced,
		BountyPlacedEvent: &relay.BountyPlacedEvent{
			FromChainID:        "1",
			IncentivesAddress:  "0xabc",
			MaxGasDelivery:     relay.NewBigInt(1_000_000),
			MaxGasAck:          relay.NewBigInt(500_000),
			PriceOfDeliveryGas: relay.NewBigInt(10),
			PriceOfAckGas:      relay.NewBigInt(10),
			TargetDelta:        relay.NewBigInt(0),
		},
	}
}

func cfg() config.EvaluatorConfig {
	return config.EvaluatorConfig{
		UnrewardedDeliveryGas:     10_000,
		VerificationDeliveryGas:   5_000,
		UnrewardedAckGas:          10_000,
		VerificationAckGas:        5_000,
		MinDeliveryReward:         0,
		RelativeMinDeliveryReward: 0,
		MinAckReward:              0,
		RelativeMinAckReward:      0,
		ProfitabilityFactor:       1.0,
	}
}

func TestEvaluateDeliveryRelaysWhenProfitable(t *testing.T) {
	state := baseState()
	components := GasEstimateComponents{
		GasEstimate:           big.NewInt(200_000),
		AdditionalFeeEstimate: big.NewInt(0),
	}

	decision, err := EvaluateDelivery(
		context.Background(), state, components,
		big.NewInt(1),   // destination gas price: cheap
		big.NewInt(1),   // anticipated ack gas price: cheap
		cfg(),
		fixedPriceConverter(1.0), fixedPriceConverter(1.0),
		"dest-token", "source-token",
		nil,
	)
	if err != nil {
		t.Fatalf("EvaluateDelivery: %v", err)
	}
	if !decision.Relay {
		t.Fatalf("expected a cheap destination gas price and generous bounty to be profitable, got %+v", decision)
	}
}

func TestEvaluateDeliveryDoesNotRelayWhenUnprofitable(t *testing.T) {
	state := baseState()
	components := GasEstimateComponents{
		GasEstimate:           big.NewInt(200_000),
		AdditionalFeeEstimate: big.NewInt(0),
	}

	decision, err := EvaluateDelivery(
		context.Background(), state, components,
		big.NewInt(1_000_000), // destination gas price: absurdly expensive
		big.NewInt(1_000_000),
		cfg(),
		fixedPriceConverter(1.0), fixedPriceConverter(1.0),
		"dest-token", "source-token",
		nil,
	)
	if err != nil {
		t.Fatalf("EvaluateDelivery: %v", err)
	}
	if decision.Relay {
		t.Fatalf("expected an expensive destination gas price to be unprofitable, got %+v", decision)
	}
}

func TestEvaluateDeliveryRequiresBountyPlacedEvent(t *testing.T) {
	state := relay.RelayState{MessageIdentifier: "0x1"}
	_, err := EvaluateDelivery(context.Background(), state, GasEstimateComponents{GasEstimate: big.NewInt(1)}, big.NewInt(1), big.NewInt(1), cfg(), fixedPriceConverter(1), fixedPriceConverter(1), "d", "s", nil)
	if err == nil {
		t.Fatalf("expected an error without a BountyPlacedEvent")
	}
}

func TestEvaluateDeliveryProfitabilityFactorZeroAlwaysRelays(t *testing.T) {
	state := baseState()
	components := GasEstimateComponents{GasEstimate: big.NewInt(200_000), AdditionalFeeEstimate: big.NewInt(0)}
	c := cfg()
	c.ProfitabilityFactor = 0

	decision, err := EvaluateDelivery(
		context.Background(), state, components,
		big.NewInt(1_000_000), big.NewInt(1_000_000),
		c, fixedPriceConverter(1.0), fixedPriceConverter(1.0), "d", "s", nil,
	)
	if err != nil {
		t.Fatalf("EvaluateDelivery: %v", err)
	}
	if !decision.Relay || !decision.Infinite {
		t.Fatalf("expected profitabilityFactor 0 to force an unconditional relay, got %+v", decision)
	}
}

func TestEvaluateDeliveryDefaultsToInfiniteCostOnMissingFeeData(t *testing.T) {
	state := baseState()
	components := GasEstimateComponents{GasEstimate: big.NewInt(200_000), AdditionalFeeEstimate: big.NewInt(0)}

	decision, err := EvaluateDelivery(
		context.Background(), state, components,
		nil, big.NewInt(1), // destination gas price not ready yet
		cfg(), fixedPriceConverter(1.0), fixedPriceConverter(1.0), "d", "s", nil,
	)
	if err != nil {
		t.Fatalf("EvaluateDelivery: %v", err)
	}
	if decision.Relay {
		t.Fatalf("expected missing destination fee data to decline relaying, got %+v", decision)
	}
	if decision.Cost != nil {
		t.Fatalf("expected no cost to be computed without a price, got %+v", decision.Cost)
	}
	if decision.Reward == nil {
		t.Fatalf("expected reward to still be computed without a price")
	}
}

func TestEvaluateAckRequiresSourceChain(t *testing.T) {
	state := baseState()
	_, err := EvaluateAck(context.Background(), "2", state, GasEstimateComponents{GasEstimate: big.NewInt(1)}, big.NewInt(1), cfg(), fixedPriceConverter(1), "s", nil)
	if err == nil {
		t.Fatalf("expected an error when chainID does not match the bounty's fromChainId")
	}
}

func TestEvaluateAckRelaysWhenProfitable(t *testing.T) {
	state := baseState()
	components := GasEstimateComponents{GasEstimate: big.NewInt(200_000), AdditionalFeeEstimate: big.NewInt(0)}

	decision, err := EvaluateAck(
		context.Background(), "1", state, components,
		big.NewInt(1), cfg(), fixedPriceConverter(1.0), "source-token", nil,
	)
	if err != nil {
		t.Fatalf("EvaluateAck: %v", err)
	}
	if !decision.Relay {
		t.Fatalf("expected a cheap source gas price and generous bounty to be profitable, got %+v", decision)
	}
}

func TestEvaluateAckDefaultsToInfiniteCostOnMissingFeeData(t *testing.T) {
	state := baseState()
	components := GasEstimateComponents{GasEstimate: big.NewInt(200_000), AdditionalFeeEstimate: big.NewInt(0)}

	decision, err := EvaluateAck(
		context.Background(), "1", state, components,
		nil, cfg(), fixedPriceConverter(1.0), "source-token", nil,
	)
	if err != nil {
		t.Fatalf("EvaluateAck: %v", err)
	}
	if decision.Relay {
		t.Fatalf("expected missing source fee data to decline relaying, got %+v", decision)
	}
	if decision.Cost != nil {
		t.Fatalf("expected no cost to be computed without a price, got %+v", decision.Cost)
	}
}

func TestEvaluateAckCombinesRecomputedDeliveryRewardWhenThisRelayerDelivered(t *testing.T) {
	state := baseState()
	state.DeliveryGasCost = relay.NewBigInt(12345) // non-zero: this relayer submitted delivery

	components := GasEstimateComponents{
		GasEstimate:           big.NewInt(1), // tiny ack gas, low ack reward on its own
		ObservedGasEstimate:   big.NewInt(500_000),
		AdditionalFeeEstimate: big.NewInt(0),
	}

	decision, err := EvaluateAck(
		context.Background(), "1", state, components,
		big.NewInt(1), cfg(), fixedPriceConverter(1.0), "source-token", nil,
	)
	if err != nil {
		t.Fatalf("EvaluateAck: %v", err)
	}
	if !decision.Relay {
		t.Fatalf("expected the recomputed delivery reward to push this ack to profitable, got %+v", decision)
	}
}
