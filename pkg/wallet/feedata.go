package wallet

import (
	"context"
	"math/big"
	"sync"
	"time"
)

// FeeData is the read-only snapshot GetFeeData serves to the Evaluator.
type FeeData struct {
	GasPrice *big.Int
	At       time.Time
}

// feeCache holds the most recent FeeData behind a mutex, refreshed only
// by feeLoop. GetFeeData never touches the network or the submission
// queue (spec.md Section 4.5: "this call never queues behind pending
// sends").
type feeCache struct {
	mu   sync.RWMutex
	data FeeData
}

func (c *feeCache) set(data FeeData) {
	c.mu.Lock()
	c.data = data
	c.mu.Unlock()
}

func (c *feeCache) get() (FeeData, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data, c.data.GasPrice != nil
}

// GetFeeData returns the last fee snapshot fetched by the background
// ticker. The second return is false until the first fetch completes.
func (w *Wallet) GetFeeData() (FeeData, bool) {
	return w.fee.get()
}

func (w *Wallet) feeLoop(ctx context.Context) {
	interval := w.feeInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.refreshFeeData(ctx); err != nil && w.log != nil {
				w.log.WithError(err).Warn("wallet: refreshing fee data")
			}
		}
	}
}

func (w *Wallet) refreshFeeData(ctx context.Context) error {
	price, err := w.client.SuggestGasPrice(ctx)
	if err != nil {
		return err
	}
	if price.Cmp(minGasPrice) < 0 {
		price = new(big.Int).Set(minGasPrice)
	}
	w.fee.set(FeeData{GasPrice: price, At: time.Now()})
	return nil
}
