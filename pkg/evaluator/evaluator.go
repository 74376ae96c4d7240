// Package evaluator implements the stateless profitability decision
// engine of spec.md Section 4.6. It holds no state of its own — the
// caches that matter (prices, fee data) live in pkg/pricing and
// pkg/wallet — and every formula follows spec.md's DECIMAL_BASE /
// gasCost / gasReward / maxGasLoss definitions exactly. Arithmetic style
// is grounded on the validator's CostTracker.weiToUSD (big.Float
// conversion from an integer wei amount to a fiat float) and
// ethereum.Client.SendContractTransactionWithRetry (big.Int gas-price
// scaling by an integer percentage multiplier).
package evaluator

import (
	"context"
	"fmt"
	"math/big"

	"github.com/sirupsen/logrus"

	"github.com/xrelay/relayer/internal/config"
	"github.com/xrelay/relayer/pkg/relay"
)

// GasEstimateComponents mirrors spec.md Section 4.6's
// gasEstimateComponents = { gasEstimate, observedGasEstimate,
// additionalFeeEstimate }. ObservedGasEstimate is meaningful only to
// EvaluateAck, where it carries the actual destination-chain gas spent
// by the delivery this relayer already submitted. The caller supplies it
// (cmd/relayer's estimator reads RelayState.DeliveryGasUsed, recorded
// from the delivery receipt); neither this package nor pkg/collector/amb
// decodes it from an AMB proof.
type GasEstimateComponents struct {
	GasEstimate           *big.Int
	ObservedGasEstimate   *big.Int
	AdditionalFeeEstimate *big.Int
}

// PriceConverter converts an integer amount of a chain's native gas unit
// into its fiat value, matching pkg/pricing.Service.GetPrice's contract.
type PriceConverter func(ctx context.Context, amount *big.Int, tokenID string) (*big.Float, error)

// Decision carries a relay/do-not-relay verdict plus every intermediate
// value spec.md Section 4.6 asks to keep "for logging".
type Decision struct {
	Relay bool
	// Infinite is true when profitabilityFactor made the adjusted reward
	// unboundedly large (Relay is then always true; Cost, Reward and, for
	// deliveries, MaxAckLoss are still set, while AdjustedReward, Secured,
	// FiatCost and FiatProfit are left nil).
	Infinite bool

	Cost           *big.Int
	Reward         *big.Int
	AdjustedReward *big.Int
	MaxAckLoss     *big.Int // delivery decisions only
	Secured        *big.Int // delivery: adjustedReward+maxAckLoss; ack: adjustedReward-cost

	FiatCost   *big.Float
	FiatProfit *big.Float
}

func nonNilInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

// currentDeliveryGasPrice returns the price a depositor is paying per
// unit of delivery gas: the latest BountyIncreased price if one was ever
// observed, otherwise the original BountyPlaced price (spec.md Section
// 3, invariant i — BountyIncreasedEvent always holds the latest prices).
func currentDeliveryGasPrice(state relay.RelayState) *big.Int {
	if state.BountyIncreasedEvent != nil {
		return &state.BountyIncreasedEvent.NewDeliveryGasPrice.Int
	}
	return &state.BountyPlacedEvent.PriceOfDeliveryGas.Int
}

func currentAckGasPrice(state relay.RelayState) *big.Int {
	if state.BountyIncreasedEvent != nil {
		return &state.BountyIncreasedEvent.NewAckGasPrice.Int
	}
	return &state.BountyPlacedEvent.PriceOfAckGas.Int
}

// EvaluateDelivery decides whether relaying a message's delivery leg is
// profitable. destinationGasPrice is the destination chain's current fee
// data (Wallet.GetFeeData); ackGasPriceEstimate anticipates the
// source-chain gas price this relayer would face later submitting the
// ack, used only to bound the worst-case ack loss.
func EvaluateDelivery(
	ctx context.Context,
	state relay.RelayState,
	components GasEstimateComponents,
	destinationGasPrice *big.Int,
	ackGasPriceEstimate *big.Int,
	cfg config.EvaluatorConfig,
	priceDestination, priceSource PriceConverter,
	destinationTokenID, sourceTokenID string,
	log *logrus.Entry,
) (Decision, error) {
	bounty := state.BountyPlacedEvent
	if bounty == nil {
		return Decision{}, fmt.Errorf("evaluator: delivery decision requires a BountyPlacedEvent")
	}

	g := components.GasEstimate
	extra := nonNilInt(components.AdditionalFeeEstimate)

	if destinationGasPrice == nil || ackGasPriceEstimate == nil {
		// Missing fee data defaults to +inf cost (spec.md Section 4.6): the
		// decision falls to "do not relay", but every intermediate that can
		// still be computed without a price is returned for logging.
		deliveryReward := gasReward(g,
			big.NewInt(int64(cfg.UnrewardedDeliveryGas)),
			&bounty.MaxGasDelivery.Int,
			currentDeliveryGasPrice(state),
		)
		if log != nil {
			log.WithField("messageIdentifier", state.MessageIdentifier).
				Warn("evaluator: missing destination or ack gas price, defaulting delivery cost to +inf")
		}
		return Decision{Relay: false, Reward: deliveryReward}, nil
	}

	deliveryCost := gasCost(g, destinationGasPrice, extra)
	deliveryReward := gasReward(g,
		big.NewInt(int64(cfg.UnrewardedDeliveryGas)),
		&bounty.MaxGasDelivery.Int,
		currentDeliveryGasPrice(state),
	)
	maxAckLoss := maxGasLoss(
		ackGasPriceEstimate,
		big.NewInt(int64(cfg.UnrewardedAckGas)),
		big.NewInt(int64(cfg.VerificationAckGas)),
		&bounty.MaxGasAck.Int,
		currentAckGasPrice(state),
	)

	decision := Decision{Cost: deliveryCost, Reward: deliveryReward, MaxAckLoss: maxAckLoss}

	adjusted := adjustedReward(deliveryReward, cfg.ProfitabilityFactor)
	if adjusted == nil {
		decision.Relay = true
		decision.Infinite = true
		return decision, nil
	}
	decision.AdjustedReward = adjusted

	secured := new(big.Int).Add(adjusted, maxAckLoss)
	decision.Secured = secured

	fiatCost, err := priceDestination(ctx, deliveryCost, destinationTokenID)
	if err != nil {
		return Decision{}, fmt.Errorf("evaluator: pricing delivery cost: %w", err)
	}
	decision.FiatCost = fiatCost

	var securedFiat *big.Float
	if adjusted.Sign() == 0 && maxAckLoss.Sign() < 0 {
		// Open question resolved: a zero adjusted reward with a negative
		// worst-case ack loss is a degenerate shape Pricing was never meant
		// to price (there is no positive reward to convert). Treat it as a
		// flat 0 rather than letting the division-shaped formula above
		// produce a spurious positive or unbounded fiat reward.
		if log != nil {
			log.WithField("messageIdentifier", state.MessageIdentifier).
				Warn("evaluator: zero adjusted delivery reward with negative max ack loss, treating secured fiat reward as 0")
		}
		securedFiat = big.NewFloat(0)
	} else {
		abs := new(big.Int).Abs(secured)
		fiat, err := priceSource(ctx, abs, sourceTokenID)
		if err != nil {
			return Decision{}, fmt.Errorf("evaluator: pricing secured reward: %w", err)
		}
		if secured.Sign() < 0 {
			fiat = new(big.Float).Neg(fiat)
		}
		securedFiat = fiat
	}

	profit := new(big.Float).Sub(securedFiat, fiatCost)
	decision.FiatProfit = profit

	relay := profit.Cmp(big.NewFloat(cfg.MinDeliveryReward)) > 0
	if !relay && fiatCost.Sign() > 0 {
		ratio := new(big.Float).Quo(profit, fiatCost)
		if ratio.Cmp(big.NewFloat(cfg.RelativeMinDeliveryReward)) > 0 {
			relay = true
		}
	}
	decision.Relay = relay

	return decision, nil
}

// EvaluateAck decides whether relaying a message's ack leg is
// profitable. chainID must equal the bounty's fromChainId: only the
// source chain can submit the ack.
func EvaluateAck(
	ctx context.Context,
	chainID string,
	state relay.RelayState,
	components GasEstimateComponents,
	sourceGasPrice *big.Int,
	cfg config.EvaluatorConfig,
	priceSource PriceConverter,
	sourceTokenID string,
	log *logrus.Entry,
) (Decision, error) {
	bounty := state.BountyPlacedEvent
	if bounty == nil {
		return Decision{}, fmt.Errorf("evaluator: ack decision requires a BountyPlacedEvent")
	}
	if bounty.FromChainID != chainID {
		return Decision{}, fmt.Errorf("evaluator: ack must be evaluated on the source chain %s, not %s", bounty.FromChainID, chainID)
	}

	g := components.GasEstimate
	extra := nonNilInt(components.AdditionalFeeEstimate)

	if sourceGasPrice == nil {
		// Missing fee data defaults to +inf cost (spec.md Section 4.6): the
		// decision falls to "do not relay", but every intermediate that can
		// still be computed without a price is returned for logging.
		ackReward := gasReward(g,
			big.NewInt(int64(cfg.UnrewardedAckGas)),
			&bounty.MaxGasAck.Int,
			currentAckGasPrice(state),
		)
		if log != nil {
			log.WithField("messageIdentifier", state.MessageIdentifier).
				Warn("evaluator: missing source gas price, defaulting ack cost to +inf")
		}
		return Decision{Relay: false, Reward: ackReward}, nil
	}

	ackCost := gasCost(g, sourceGasPrice, extra)
	ackReward := gasReward(g,
		big.NewInt(int64(cfg.UnrewardedAckGas)),
		&bounty.MaxGasAck.Int,
		currentAckGasPrice(state),
	)

	decision := Decision{Cost: ackCost, Reward: ackReward}

	adjustedAckReward := adjustedReward(ackReward, cfg.ProfitabilityFactor)
	if adjustedAckReward == nil {
		decision.Relay = true
		decision.Infinite = true
		return decision, nil
	}
	decision.AdjustedReward = adjustedAckReward

	ackProfit := new(big.Int).Sub(adjustedAckReward, ackCost)
	decision.Secured = ackProfit

	submittedDelivery := state.DeliveryGasCost != nil && state.DeliveryGasCost.Int.Sign() != 0
	if submittedDelivery {
		recomputedDeliveryReward := gasReward(
			components.ObservedGasEstimate,
			big.NewInt(int64(cfg.UnrewardedDeliveryGas)),
			&bounty.MaxGasDelivery.Int,
			currentDeliveryGasPrice(state),
		)
		combined := new(big.Int).Add(ackProfit, recomputedDeliveryReward)
		if combined.Sign() > 0 {
			decision.Relay = true
			return decision, nil
		}
	}

	abs := new(big.Int).Abs(ackProfit)
	fiat, err := priceSource(ctx, abs, sourceTokenID)
	if err != nil {
		return Decision{}, fmt.Errorf("evaluator: pricing ack profit: %w", err)
	}
	if ackProfit.Sign() < 0 {
		fiat = new(big.Float).Neg(fiat)
	}
	decision.FiatProfit = fiat

	relay := fiat.Cmp(big.NewFloat(cfg.MinAckReward)) > 0
	if !relay {
		absCost := new(big.Int).Abs(ackCost)
		fiatCost, err := priceSource(ctx, absCost, sourceTokenID)
		if err != nil {
			return Decision{}, fmt.Errorf("evaluator: pricing ack cost: %w", err)
		}
		decision.FiatCost = fiatCost
		if fiatCost.Sign() > 0 {
			ratio := new(big.Float).Quo(fiat, fiatCost)
			if ratio.Cmp(big.NewFloat(cfg.RelativeMinAckReward)) > 0 {
				relay = true
			}
		}
	}
	decision.Relay = relay

	return decision, nil
}
