package pricing

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xrelay/relayer/pkg/xchan"
)

// cacheEntry is the validator CostTracker's {price, timestamp} pair,
// keyed here per tokenId instead of hardcoded to one coin.
type cacheEntry struct {
	price float64
	at    time.Time
}

// Service is the per-chain fiat pricing lookup of spec.md Section 4.4: a
// cached, retrying wrapper around one Provider. Callers reach it through
// a Client port (spec.md Section 9) rather than by holding the Service
// itself, so the cache's mutex is never exposed across a goroutine
// boundary.
type Service struct {
	chainID       string
	provider      Provider
	coinDecimals  uint8
	cacheDuration time.Duration
	retryInterval time.Duration
	maxTries      int
	log           *logrus.Entry

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// New builds a Service. maxTries is clamped to at least 1: a single
// attempt followed immediately by the cache/error fallback.
func New(chainID string, provider Provider, coinDecimals uint8, cacheDuration, retryInterval time.Duration, maxTries int, log *logrus.Entry) *Service {
	if maxTries <= 0 {
		maxTries = 1
	}
	return &Service{
		chainID:       chainID,
		provider:      provider,
		coinDecimals:  coinDecimals,
		cacheDuration: cacheDuration,
		retryInterval: retryInterval,
		maxTries:      maxTries,
		log:           log,
		cache:         make(map[string]cacheEntry),
	}
}

// GetPrice converts amount (in the chain's smallest unit) to the fiat
// value of tokenID, using a cached unit price when one is fresh.
func (s *Service) GetPrice(ctx context.Context, amount *big.Int, tokenID string) (*big.Float, error) {
	price, err := s.unitPrice(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	return scale(amount, s.coinDecimals, price), nil
}

// unitPrice returns the price of one whole token, serving the cache when
// fresh, retrying the provider up to maxTries on a miss, and falling
// back to a stale cached value (logged as an anomaly) only when every
// retry fails and a prior value exists at all (spec.md Section 4.4).
func (s *Service) unitPrice(ctx context.Context, tokenID string) (float64, error) {
	s.mu.Lock()
	entry, haveCached := s.cache[tokenID]
	fresh := haveCached && time.Since(entry.at) < s.cacheDuration
	s.mu.Unlock()

	if fresh {
		return entry.price, nil
	}

	var lastErr error
	for attempt := 0; attempt < s.maxTries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(s.retryInterval):
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}

		price, err := s.provider.QueryPrice(ctx, tokenID)
		if err == nil {
			s.mu.Lock()
			s.cache[tokenID] = cacheEntry{price: price, at: time.Now()}
			s.mu.Unlock()
			return price, nil
		}

		lastErr = err
		if s.log != nil {
			s.log.WithError(err).WithField("tokenId", tokenID).
				Warnf("pricing: query attempt %d/%d failed", attempt+1, s.maxTries)
		}
	}

	if haveCached {
		if s.log != nil {
			s.log.WithField("tokenId", tokenID).WithField("age", time.Since(entry.at)).
				Warn("pricing: all retries failed, serving stale cached price")
		}
		return entry.price, nil
	}

	return 0, fmt.Errorf("pricing: chain %s: no cached price for %q and all %d attempts failed: %w",
		s.chainID, tokenID, s.maxTries, lastErr)
}

// scale converts amount, expressed in the smallest unit of a coinDecimals
// precision token, to a fiat value at the given unit price. Grounded on
// the validator CostTracker's weiToUSD big.Float conversion, generalised
// from a fixed 18-decimal assumption to an arbitrary coinDecimals.
func scale(amount *big.Int, coinDecimals uint8, price float64) *big.Float {
	amountF := new(big.Float).SetInt(amount)
	divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(coinDecimals)), nil))
	units := new(big.Float).Quo(amountF, divisor)
	return units.Mul(units, big.NewFloat(price))
}

// PriceRequest is the payload callers send over a Client port.
type PriceRequest struct {
	Amount  *big.Int
	TokenID string
}

// PriceResponse is the payload callers receive back.
type PriceResponse struct {
	FiatValue *big.Float
	Err       error
}

// Client hands out a typed request/response port bound to this Service.
// The forwarding goroutine it starts exits when ctx is done, so callers
// that are themselves chain-scoped workers should pass their own
// lifetime context.
func (s *Service) Client(ctx context.Context) *xchan.Port[PriceRequest, PriceResponse] {
	requests := make(chan xchan.Envelope[PriceRequest])
	responses := make(chan xchan.Envelope[PriceResponse])

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-requests:
				if !ok {
					return
				}
				fiatValue, err := s.GetPrice(ctx, env.Payload.Amount, env.Payload.TokenID)
				resp := xchan.Envelope[PriceResponse]{
					MessageID: env.MessageID,
					Payload:   PriceResponse{FiatValue: fiatValue, Err: err},
				}
				select {
				case responses <- resp:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return xchan.NewPort(requests, responses)
}
