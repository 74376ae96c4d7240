package evaluator

import (
	"math/big"
	"testing"
)

func TestGasCost(t *testing.T) {
	got := gasCost(big.NewInt(100), big.NewInt(5), big.NewInt(10))
	if got.Cmp(big.NewInt(510)) != 0 {
		t.Fatalf("expected 510, got %s", got)
	}
}

func TestGasRewardClampsBelowUnrewardedAndAboveMax(t *testing.T) {
	// g - u <= 0 rewards nothing.
	if got := gasReward(big.NewInt(10), big.NewInt(50), big.NewInt(1000), big.NewInt(3)); got.Sign() != 0 {
		t.Fatalf("expected 0 reward below the unrewarded threshold, got %s", got)
	}

	// Within range: (100-20)*3 = 240.
	if got := gasReward(big.NewInt(100), big.NewInt(20), big.NewInt(1000), big.NewInt(3)); got.Cmp(big.NewInt(240)) != 0 {
		t.Fatalf("expected 240, got %s", got)
	}

	// Capped at maxG: min(100-20, 50) = 50, *3 = 150.
	if got := gasReward(big.NewInt(100), big.NewInt(20), big.NewInt(50), big.NewInt(3)); got.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("expected 150 (capped), got %s", got)
	}
}

func TestMaxGasLossIsNonPositive(t *testing.T) {
	loss := maxGasLoss(big.NewInt(5), big.NewInt(10), big.NewInt(5), big.NewInt(100), big.NewInt(1))
	if loss.Sign() > 0 {
		t.Fatalf("expected a non-positive worst case, got %s", loss)
	}
}

func TestMaxGasLossClampsToZeroWhenBothBoundsAreProfitable(t *testing.T) {
	// Generous reward price, cheap gas: both bounds should be profit >= 0.
	loss := maxGasLoss(big.NewInt(1), big.NewInt(1), big.NewInt(1), big.NewInt(10), big.NewInt(100))
	if loss.Sign() != 0 {
		t.Fatalf("expected the loss to clamp to 0, got %s", loss)
	}
}

func TestAdjustedRewardIsNilWhenProfitabilityFactorIsZero(t *testing.T) {
	if got := adjustedReward(big.NewInt(100), 0); got != nil {
		t.Fatalf("expected nil (+Inf sentinel), got %s", got)
	}
}

func TestAdjustedRewardScalesByFactor(t *testing.T) {
	// pf = 0.5 -> scaled = 5000 -> adjusted = reward * 10000 / 5000 = reward * 2
	got := adjustedReward(big.NewInt(100), 0.5)
	if got.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("expected 200, got %s", got)
	}
}
