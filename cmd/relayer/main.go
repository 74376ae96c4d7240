// Command relayer runs the cross-chain message relayer of spec.md: one
// Monitor, one bounty Collector, one AMB Collector, one pricing.Service,
// one wallet.Wallet, and one submitter.Submitter per configured chain,
// all sharing a single Store. Wiring style is grounded on the
// validator's top-level main.go (component-by-component construction,
// background goroutines started before the signal wait, a context
// cancelled on SIGINT/SIGTERM driving graceful shutdown).
package main

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/xrelay/relayer/internal/config"
	"github.com/xrelay/relayer/internal/logging"
	"github.com/xrelay/relayer/pkg/chainrpc"
	"github.com/xrelay/relayer/pkg/collector"
	"github.com/xrelay/relayer/pkg/collector/amb"
	"github.com/xrelay/relayer/pkg/evaluator"
	"github.com/xrelay/relayer/pkg/monitor"
	"github.com/xrelay/relayer/pkg/pricing"
	"github.com/xrelay/relayer/pkg/relay"
	"github.com/xrelay/relayer/pkg/store"
	"github.com/xrelay/relayer/pkg/submitter"
	"github.com/xrelay/relayer/pkg/wallet"
	"github.com/xrelay/relayer/pkg/xchan"
)

// chainRuntime holds the per-chain components a running process keeps
// alive. It exists purely for wiring: nothing outside main reaches into
// it.
type chainRuntime struct {
	cfg     config.ChainConfig
	client  *chainrpc.Client
	mon     *monitor.Monitor
	wal     *wallet.Wallet
	pricing *pricing.Service
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "loading configuration:", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	log := logging.ForComponent(logger, "main", "")
	log.Info("starting relayer")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		DB:       cfg.RedisDB,
		Password: cfg.RedisPasswd,
	})
	st := store.New(
		store.NewRedisKV(redisClient),
		store.NewRedisPubSub(redisClient, logging.ForComponent(logger, "pubsub", "")),
		logging.ForComponent(logger, "store", ""),
	)

	ctx, cancel := context.WithCancel(context.Background())

	runtimes := make(map[string]*chainRuntime, len(cfg.Chains))
	for _, chain := range cfg.Chains {
		rt, err := dialChain(ctx, chain, logger)
		if err != nil {
			log.WithError(err).Fatalf("dialing chain %s", chain.ChainID)
		}
		runtimes[chain.ChainID] = rt
	}

	// Fee-data, client and address maps are shared across every chain's
	// Submitter (a delivery decision on chain A needs chain B's figures
	// too, spec.md Section 4.6), so they are built once every chain has
	// dialed successfully, then handed to each Submitter below. Pricing
	// ports are not shared: each Submitter gets its own set.
	feeDataByChain := make(map[string]func() (wallet.FeeData, bool), len(runtimes))
	clientsByChain := make(map[string]*chainrpc.Client, len(runtimes))
	addressByChain := make(map[string]common.Address, len(runtimes))
	for id, rt := range runtimes {
		feeDataByChain[id] = rt.wal.GetFeeData
		clientsByChain[id] = rt.client
		addressByChain[id] = rt.wal.Address()
	}

	for id, rt := range runtimes {
		startChainServices(ctx, rt, st, logger)

		pricingByChain := make(map[string]submitter.ChainPricing, len(runtimes))
		for pid, prt := range runtimes {
			pricingByChain[pid] = submitter.ChainPricing{
				TokenID: prt.cfg.Pricing.TokenID,
				Client:  prt.pricing.Client(ctx),
			}
		}

		submitterDeps := submitter.Dependencies{
			ChainID:         id,
			Store:           st,
			Wallet:          rt.wal.Client(ctx),
			FeeRecipient:    rt.wal.Address(),
			Pricing:         pricingByChain,
			FeeData:         feeDataByChain,
			GasEstimator:    newGasEstimator(clientsByChain, addressByChain),
			EvaluatorConfig: rt.cfg.Evaluator,
			Concurrency:     rt.cfg.SubmitterConcurrency,
			MaxAttempts:     3,
			BackoffBase:     time.Second,
			Log:             logging.ForComponent(logger, "submitter", id),
		}
		sub := submitter.New(submitterDeps)
		go sub.Run(ctx)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	httpServer := &http.Server{Addr: ":8080", Handler: mux}
	go func() {
		log.WithField("addr", httpServer.Addr).Info("health endpoint listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("health server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("health server shutdown error")
	}

	for _, rt := range runtimes {
		rt.mon.Stop()
		rt.client.Close()
	}
	if err := redisClient.Close(); err != nil {
		log.WithError(err).Warn("closing redis client")
	}

	log.Info("stopped")
}

// dialChain builds the RPC client, the Monitor, the Wallet and the
// pricing.Service for one chain. It does not start any background loop
// (that happens in startChainServices once every chain has dialed).
func dialChain(ctx context.Context, chain config.ChainConfig, logger *logrus.Logger) (*chainRuntime, error) {
	log := logging.ForComponent(logger, "chainrpc", chain.ChainID)

	client, err := chainrpc.Dial(ctx, chain.ChainID, chain.RPC)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", chain.RPC, err)
	}

	networkID, err := client.NetworkID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("querying network id: %w", err)
	}

	mon := monitor.New(chain.ChainID, client, chain.Interval, logging.ForComponent(logger, "monitor", chain.ChainID))

	wal, err := wallet.New(
		chain.ChainID, client, networkID, chain.PrivateKey,
		chain.Confirmations, 5, time.Second, 30*time.Second,
		logging.ForComponent(logger, "wallet", chain.ChainID),
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("building wallet: %w", err)
	}

	provider, err := pricing.Resolve(pricing.Config{
		Provider:            chain.Pricing.Provider,
		PricingDenomination: chain.Pricing.PricingDenomination,
		FixedPrice:          chain.Pricing.FixedPrice,
		CoinGeckoAPIURL:     chain.Pricing.CoinGeckoAPIURL,
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolving pricing provider: %w", err)
	}
	priceSvc := pricing.New(
		chain.ChainID, provider, chain.Pricing.CoinDecimals,
		chain.Pricing.CacheDuration, chain.Pricing.RetryInterval, chain.Pricing.MaxTries,
		logging.ForComponent(logger, "pricing", chain.ChainID),
	)

	return &chainRuntime{cfg: chain, client: client, mon: mon, wal: wal, pricing: priceSvc}, nil
}

// startChainServices starts every background loop for one chain: the
// block monitor, the wallet's submission/fee loop, and its bounty and
// AMB collectors.
func startChainServices(ctx context.Context, rt *chainRuntime, st *store.Store, logger *logrus.Logger) {
	rt.mon.Start(ctx)
	go rt.wal.Run(ctx)

	incentivesAddress := common.HexToAddress(rt.cfg.IncentivesAddress)

	bountySource := collector.NewBountySource(rt.cfg.ChainID, incentivesAddress, st)
	bountyCollector := collector.New(
		rt.cfg.ChainID, rt.client, rt.mon, bountySource,
		rt.cfg.StartingBlock, rt.cfg.BlockDelay, rt.cfg.MaxBlocks, rt.cfg.Interval,
		logging.ForComponent(logger, "bounty-collector", rt.cfg.ChainID),
	)
	go bountyCollector.Run(ctx)

	ambProvider, err := amb.Resolve(amb.Config{
		Name:   rt.cfg.AMBProvider,
		Params: map[string]string{"fromChainId": rt.cfg.ChainID},
	})
	if err != nil {
		logging.ForComponent(logger, "amb-collector", rt.cfg.ChainID).
			WithError(err).Fatalf("resolving amb provider %q", rt.cfg.AMBProvider)
	}
	ambSource := collector.NewAMBSource(incentivesAddress, ambProvider, st)
	ambCollector := collector.New(
		rt.cfg.ChainID, rt.client, rt.mon, ambSource,
		rt.cfg.StartingBlock, rt.cfg.BlockDelay, rt.cfg.MaxBlocks, rt.cfg.Interval,
		logging.ForComponent(logger, "amb-collector", rt.cfg.ChainID),
	)
	go ambCollector.Run(ctx)
}

// newGasEstimator builds the submitter.GasEstimator seam. GasEstimate
// always comes from a fresh simulation of processPacket against the raw
// incentivesPayload, an approximation accepted because pkg/submitter's
// decoupling from AMB-specific proof decoding (submitter.GasEstimator's
// own doc comment) means this is the only gas-estimation signal
// available without depending on a concrete provider. ObservedGasEstimate
// is different: for the ack leg it must carry the real gas this relayer
// spent submitting the delivery it is now acking (spec.md Section 4.6),
// which pkg/submitter.attemptDelivery already recorded onto
// RelayState.DeliveryGasUsed — so the ack branch reads that instead of
// re-simulating a call on the wrong chain against the wrong calldata.
func newGasEstimator(clients map[string]*chainrpc.Client, wallets map[string]common.Address) submitter.GasEstimator {
	return func(ctx context.Context, leg submitter.Leg, msg relay.AMBMessage, state relay.RelayState) (evaluator.GasEstimateComponents, error) {
		chainID := msg.ToChainID
		to := common.HexToAddress(msg.ToIncentivesAddress)
		if leg == submitter.LegAck {
			chainID = msg.FromChainID
			if state.BountyPlacedEvent != nil {
				to = common.HexToAddress(state.BountyPlacedEvent.IncentivesAddress)
			}
		}

		client, ok := clients[chainID]
		if !ok {
			return evaluator.GasEstimateComponents{}, fmt.Errorf("no chain client configured for %s", chainID)
		}
		from := wallets[chainID]

		gas, err := client.EstimateGas(ctx, ethereum.CallMsg{
			From: from,
			To:   &to,
			Data: msg.IncentivesPayload,
		})
		if err != nil {
			return evaluator.GasEstimateComponents{}, fmt.Errorf("estimating gas on chain %s: %w", chainID, err)
		}

		estimate := new(big.Int).SetUint64(gas)
		// ObservedGasEstimate only feeds evaluator.EvaluateAck's combined
		// profit recheck, gated on state.DeliveryGasCost being set — which
		// only happens when this process submitted the delivery itself
		// (pkg/submitter.attemptDelivery). When a competing relayer
		// delivered the message instead, DeliveryGasUsed stays nil and that
		// recheck never runs, so falling back to the simulated estimate
		// here is inert, not a loss of accuracy.
		observed := estimate
		if leg == submitter.LegAck && state.DeliveryGasUsed != nil {
			observed = &state.DeliveryGasUsed.Int
		}
		return evaluator.GasEstimateComponents{
			GasEstimate:           estimate,
			ObservedGasEstimate:   observed,
			AdditionalFeeEstimate: big.NewInt(0),
		}, nil
	}
}
