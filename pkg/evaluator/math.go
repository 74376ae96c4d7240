package evaluator

import "math/big"

// decimalBase is the fixed-point scale spec.md Section 4.6 uses to carry
// a fractional profitabilityFactor through integer arithmetic, the way
// the validator's SendContractTransactionWithRetry scales a gas price by
// an integer percentage multiplier (100 + 20·attempt) and divides by 100
// — the same "percentage as big.Int, divide last" idiom here generalised
// to a four-decimal-digit factor instead of a whole percentage point.
const decimalBase = 10000

// gasCost is g·p + extra: the fiat-bound cost of spending g gas units at
// price p, plus any additive fee component (e.g. an L2's L1 data fee).
func gasCost(g, p, extra *big.Int) *big.Int {
	cost := new(big.Int).Mul(g, p)
	return cost.Add(cost, extra)
}

// gasReward is pG · min(max(g−u, 0), maxG): the bounty reward for
// spending g gas units, unrewarded below u, capped at maxG, priced at pG.
func gasReward(g, u, maxG, pG *big.Int) *big.Int {
	rewarded := new(big.Int).Sub(g, u)
	if rewarded.Sign() < 0 {
		rewarded.SetInt64(0)
	}
	if rewarded.Cmp(maxG) > 0 {
		rewarded = new(big.Int).Set(maxG)
	}
	return rewarded.Mul(rewarded, pG)
}

// maxGasLoss bounds the worst-case loss (always <= 0) a relayer can
// suffer across the unrewarded-to-maxG gas range, at price p, reward
// rate pG, with u+v gas always spent, of which only v is rewarded.
func maxGasLoss(p, u, v, maxG, pG *big.Int) *big.Int {
	uv := new(big.Int).Add(u, v)

	minReward := new(big.Int).Mul(v, pG)
	minCost := new(big.Int).Mul(uv, p)
	minProfit := new(big.Int).Sub(minReward, minCost)

	uvMaxG := new(big.Int).Add(uv, maxG)
	maxReward := new(big.Int).Mul(maxG, pG)
	maxCost := new(big.Int).Mul(uvMaxG, p)
	maxProfit := new(big.Int).Sub(maxReward, maxCost)

	worst := minProfit
	if maxProfit.Cmp(worst) < 0 {
		worst = maxProfit
	}
	if worst.Sign() < 0 {
		return worst
	}
	return big.NewInt(0)
}

// adjustedReward scales reward by DECIMAL_BASE / floor(pf·DECIMAL_BASE).
// A nil result stands for +Inf: profitabilityFactor == 0 (or so small
// its fixed-point floor rounds to 0) makes the adjusted reward
// unboundedly large, which is always profitable — the caller must treat
// a nil adjustedReward as "relay unconditionally" rather than continuing
// the arithmetic.
func adjustedReward(reward *big.Int, profitabilityFactor float64) *big.Int {
	if profitabilityFactor <= 0 {
		return nil
	}
	scaled := int64(profitabilityFactor * decimalBase)
	if scaled <= 0 {
		return nil
	}
	adjusted := new(big.Int).Mul(reward, big.NewInt(decimalBase))
	return adjusted.Div(adjusted, big.NewInt(scaled))
}
