package wallet

import (
	"errors"
	"math/big"
	"testing"
	"time"
)

func TestClassifySendError(t *testing.T) {
	transient := []string{
		"replacement transaction underpriced",
		"nonce too low",
		"already known",
	}
	for _, msg := range transient {
		if got := classifySendError(errors.New(msg)); got != sendErrorTransient {
			t.Fatalf("expected %q to classify as transient, got %v", msg, got)
		}
	}

	if got := classifySendError(errors.New("insufficient funds for gas * price + value")); got != sendErrorFatal {
		t.Fatalf("expected an unrelated error to classify as fatal, got %v", got)
	}
}

func TestEscalateGasPriceEnforcesFloorAndEscalates(t *testing.T) {
	low := big.NewInt(1_000_000_000) // 1 Gwei, below the floor
	if got := escalateGasPrice(low, 0); got.Cmp(minGasPrice) != 0 {
		t.Fatalf("expected the floor to apply on a low base, got %s", got)
	}

	base := big.NewInt(10_000_000_000) // 10 Gwei, above the floor
	if got := escalateGasPrice(base, 0); got.Cmp(base) != 0 {
		t.Fatalf("expected attempt 0 to leave the price unescalated, got %s", got)
	}

	want1 := new(big.Int).Div(new(big.Int).Mul(base, big.NewInt(120)), big.NewInt(100))
	if got := escalateGasPrice(base, 1); got.Cmp(want1) != 0 {
		t.Fatalf("expected attempt 1 to be 120%% of base (%s), got %s", want1, got)
	}

	want2 := new(big.Int).Div(new(big.Int).Mul(base, big.NewInt(140)), big.NewInt(100))
	if got := escalateGasPrice(base, 2); got.Cmp(want2) != 0 {
		t.Fatalf("expected attempt 2 to be 140%% of base (%s), got %s", want2, got)
	}
}

func TestBackoffGrowsExponentiallyAndCaps(t *testing.T) {
	base := 100 * time.Millisecond

	if got := backoff(base, 1); got != base*2 {
		t.Fatalf("expected backoff(attempt=1) to double the base, got %v", got)
	}
	if got := backoff(base, 2); got != base*4 {
		t.Fatalf("expected backoff(attempt=2) to quadruple the base, got %v", got)
	}
	if got := backoff(base, 30); got != time.Minute {
		t.Fatalf("expected a very large attempt count to cap at one minute, got %v", got)
	}
}

func TestFeeCacheStartsEmptyAndReflectsLastSet(t *testing.T) {
	var cache feeCache

	if _, ok := cache.get(); ok {
		t.Fatalf("expected an empty cache to report not-ok")
	}

	price := big.NewInt(7_000_000_000)
	cache.set(FeeData{GasPrice: price, At: time.Now()})

	got, ok := cache.get()
	if !ok {
		t.Fatalf("expected the cache to report ok after set")
	}
	if got.GasPrice.Cmp(price) != 0 {
		t.Fatalf("expected the cached gas price to match, got %s", got.GasPrice)
	}
}
