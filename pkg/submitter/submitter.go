// Package submitter implements spec.md Section 4.7's per-chain worker:
// it watches the Store for bounties and AMB messages addressed to (or
// sourced from) its chain, asks pkg/evaluator whether relaying is
// profitable, and if so submits the delivery or ack transaction through
// a pkg/wallet.Wallet Client port. Grounded on the validator's
// batch.Scheduler (pkg/batch/scheduler.go) for the mutex-guarded
// lifecycle and background-goroutine shape, and on
// batch.ConsensusCoordinator (pkg/batch/consensus_coordinator.go) for
// the map-of-in-flight-entries-plus-retry-bookkeeping pattern.
package submitter

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/xrelay/relayer/internal/config"
	"github.com/xrelay/relayer/pkg/evaluator"
	"github.com/xrelay/relayer/pkg/pricing"
	"github.com/xrelay/relayer/pkg/relay"
	"github.com/xrelay/relayer/pkg/store"
	"github.com/xrelay/relayer/pkg/wallet"
	"github.com/xrelay/relayer/pkg/xchan"
)

// GasEstimator estimates the gas components of spec.md Section 4.6 for
// one leg of one message. It is an injected seam rather than a concrete
// dependency on pkg/chainrpc or pkg/collector/amb so this package never
// needs to know how a given AMB provider encodes gas figures into its
// proof payloads (mirrors pkg/evaluator.GasEstimateComponents' own
// doc comment on ObservedGasEstimate).
type GasEstimator func(ctx context.Context, l Leg, msg relay.AMBMessage, state relay.RelayState) (evaluator.GasEstimateComponents, error)

// ChainPricing pairs the token id a chain's native gas is denominated in
// with the pricing.Service client used to convert it to fiat.
type ChainPricing struct {
	TokenID string
	Client  *xchan.Port[pricing.PriceRequest, pricing.PriceResponse]
}

// Dependencies wires a Submitter to the rest of a running relayer
// process. Pricing and FeeData are keyed by chain id because a delivery
// decision needs both the local (destination) chain's figures and the
// bounty's source chain's figures (spec.md Section 4.6); a single
// relayer process is expected to run one of each per configured chain
// regardless of whether that chain is ever this message's destination,
// exactly so every other chain's Submitter can look its figures up here.
type Dependencies struct {
	ChainID string
	Store   *store.Store
	Wallet  *xchan.Port[wallet.TxRequest, wallet.SubmitResult]
	// FeeRecipient is this chain's own wallet address, credited by the
	// escrow contract's processPacket call (spec.md Section 6).
	FeeRecipient common.Address

	Pricing map[string]ChainPricing
	FeeData map[string]func() (wallet.FeeData, bool)

	GasEstimator    GasEstimator
	EvaluatorConfig config.EvaluatorConfig

	Concurrency int
	MaxAttempts int
	BackoffBase time.Duration

	Log *logrus.Entry
}

// pendingEntry is this Submitter's in-memory cache of a message's raw
// records, refreshed from Store notifications rather than re-fetched on
// every attempt.
type pendingEntry struct {
	amb   *relay.AMBMessage
	proof *relay.AMBProof
}

// Submitter is the per-chain worker of spec.md Section 4.7.
type Submitter struct {
	deps Dependencies
	log  *logrus.Entry

	mu      sync.Mutex
	pending map[relay.MessageIdentifier]*pendingEntry

	queue *pendingQueue
}

// New builds a Submitter. Concurrency, MaxAttempts, and BackoffBase are
// clamped to sane minimums so a zero-value config field never wedges
// the worker pool.
func New(deps Dependencies) *Submitter {
	if deps.Concurrency <= 0 {
		deps.Concurrency = 1
	}
	if deps.MaxAttempts <= 0 {
		deps.MaxAttempts = 1
	}
	if deps.BackoffBase <= 0 {
		deps.BackoffBase = time.Second
	}
	return &Submitter{
		deps:    deps,
		log:     deps.Log,
		pending: make(map[relay.MessageIdentifier]*pendingEntry),
		queue:   newPendingQueue(),
	}
}

// Run subscribes to the Store and drives Concurrency worker goroutines
// until ctx is cancelled. It blocks; call it from its own goroutine.
func (s *Submitter) Run(ctx context.Context) {
	unsubAMB := s.deps.Store.OnNewAMBMessage(ctx, s.deps.ChainID, s.handleNewAMBMessage)
	defer unsubAMB()
	unsubKey := s.deps.Store.On(ctx, store.KeyChangeChannel, s.handleKeyChange)
	defer unsubKey()

	var wg sync.WaitGroup
	for i := 0; i < s.deps.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx)
		}()
	}
	wg.Wait()
}

// handleNewAMBMessage fires when a message addressed to this chain is
// observed on its source chain (spec.md Section 4.3's toChainId
// channel): this is always the delivery leg's trigger.
func (s *Submitter) handleNewAMBMessage(msg relay.AMBMessage) {
	m := msg
	s.mu.Lock()
	entry, ok := s.pending[msg.MessageIdentifier]
	if !ok {
		entry = &pendingEntry{}
		s.pending[msg.MessageIdentifier] = entry
	}
	entry.amb = &m
	s.mu.Unlock()

	s.queue.Push(&item{
		messageID:   msg.MessageIdentifier,
		leg:         LegDelivery,
		priority:    msg.Priority,
		nextAttempt: time.Now(),
	})
}

// handleKeyChange reacts to every Set/Del on the Store (spec.md Section
// 4.1's relayer:*:bounty:*/relayer:*:proof:* namespace, collapsed onto
// one channel). A "bounty" key change on this chain tracks both legs'
// lifecycle (a BountyPlaced record on this chain makes it the source,
// eligible to later submit the ack); a "proof" key change refreshes a
// message this Submitter is already tracking and retries its delivery
// immediately rather than waiting out the backoff it was given when the
// proof was still missing.
func (s *Submitter) handleKeyChange(note store.KeyChangeNotification) {
	chainID, kind, rawID, ok := store.ParseKey(note.Key)
	if !ok {
		return
	}
	messageID := relay.MessageIdentifier(rawID)

	switch kind {
	case "proof":
		s.handleProofChange(chainID, messageID)
	case "bounty":
		s.handleBountyChange(chainID, messageID)
	}
}

func (s *Submitter) handleProofChange(chainID string, messageID relay.MessageIdentifier) {
	s.mu.Lock()
	entry, tracked := s.pending[messageID]
	s.mu.Unlock()
	if !tracked {
		return
	}

	proof, found, err := s.deps.Store.GetAMBProof(context.Background(), chainID, messageID)
	if err != nil || !found {
		return
	}

	p := proof
	s.mu.Lock()
	entry.proof = &p
	s.mu.Unlock()

	s.queue.Push(&item{messageID: messageID, leg: LegDelivery, nextAttempt: time.Now()})
}

func (s *Submitter) handleBountyChange(chainID string, messageID relay.MessageIdentifier) {
	if chainID != s.deps.ChainID {
		return
	}

	state, found, err := s.deps.Store.GetRelayState(context.Background(), chainID, messageID)
	if err != nil || !found {
		return
	}

	s.mu.Lock()
	entry, exists := s.pending[messageID]
	if !exists {
		entry = &pendingEntry{}
		s.pending[messageID] = entry
	}
	needMsg := entry.amb == nil
	s.mu.Unlock()

	if needMsg {
		// This chain is the bounty's source: the AMBMessage it originated
		// was stored keyed by its own chain id (spec.md Section 4.1), so it
		// is reachable here even though handleNewAMBMessage never fires for
		// it (that notification only reaches the destination chain).
		if msg, found, err := s.deps.Store.GetAMBMessage(context.Background(), chainID, messageID); err == nil && found {
			m := msg
			s.mu.Lock()
			entry.amb = &m
			s.mu.Unlock()
		}
	}

	switch state.Status {
	case relay.StatusMessageDelivered:
		s.queue.Push(&item{messageID: messageID, leg: LegAck, nextAttempt: time.Now()})
	case relay.StatusBountyClaimed:
		s.queue.Remove(messageID, LegDelivery)
		s.queue.Remove(messageID, LegAck)
		s.mu.Lock()
		delete(s.pending, messageID)
		s.mu.Unlock()
	}
}

const workerIdleSleep = 200 * time.Millisecond

func (s *Submitter) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		it, ok := s.queue.PopReady(time.Now())
		if !ok {
			select {
			case <-time.After(workerIdleSleep):
			case <-ctx.Done():
				return
			}
			continue
		}

		s.process(ctx, it)
	}
}

func (s *Submitter) process(ctx context.Context, it *item) {
	s.mu.Lock()
	entry, tracked := s.pending[it.messageID]
	s.mu.Unlock()
	if !tracked || entry.amb == nil {
		return
	}

	var err error
	switch it.leg {
	case LegDelivery:
		err = s.attemptDelivery(ctx, it, *entry.amb)
	case LegAck:
		err = s.attemptAck(ctx, it, *entry.amb)
	}

	if err == nil {
		return
	}

	logEntry := s.log
	if logEntry != nil {
		logEntry = logEntry.WithError(err).
			WithField("messageIdentifier", it.messageID).
			WithField("leg", it.leg.String())
	}

	if it.fatal {
		if logEntry != nil {
			logEntry.Error("submitter: fatal error, dropping message")
		}
		return
	}

	it.attempts++
	if it.attempts >= s.deps.MaxAttempts {
		if logEntry != nil {
			logEntry.Warn("submitter: exhausted retry attempts, dropping message")
		}
		return
	}

	if logEntry != nil {
		logEntry.WithField("attempt", it.attempts).Debug("submitter: attempt failed, retrying")
	}

	it.priority = false // the one-time backoff bypass is spent after the first attempt
	it.nextAttempt = time.Now().Add(backoff(s.deps.BackoffBase, it.attempts))
	s.queue.Push(it)
}

// attemptDelivery evaluates and, if profitable, submits the delivery
// transaction on this (destination) chain.
func (s *Submitter) attemptDelivery(ctx context.Context, it *item, msg relay.AMBMessage) error {
	state, exists, err := s.deps.Store.GetRelayState(ctx, s.deps.ChainID, msg.MessageIdentifier)
	if err != nil {
		return fmt.Errorf("fetching relay state: %w", err)
	}
	if !exists || state.BountyPlacedEvent == nil {
		return fmt.Errorf("no bounty placed yet for %s", msg.MessageIdentifier)
	}
	if state.Status != relay.StatusBountyPlaced {
		s.queue.Remove(msg.MessageIdentifier, LegDelivery)
		return nil // already delivered, by us or a competing relayer
	}

	proof, found, err := s.deps.Store.GetAMBProof(ctx, msg.FromChainID, msg.MessageIdentifier)
	if err != nil {
		return fmt.Errorf("fetching delivery proof: %w", err)
	}
	if !found {
		return fmt.Errorf("delivery proof not yet available for %s", msg.MessageIdentifier)
	}

	destPricing, ok := s.deps.Pricing[s.deps.ChainID]
	if !ok {
		it.fatal = true
		return fmt.Errorf("no pricing configured for destination chain %s", s.deps.ChainID)
	}
	sourcePricing, ok := s.deps.Pricing[state.BountyPlacedEvent.FromChainID]
	if !ok {
		it.fatal = true
		return fmt.Errorf("no pricing configured for source chain %s", state.BountyPlacedEvent.FromChainID)
	}

	destFeeFn, ok := s.deps.FeeData[s.deps.ChainID]
	if !ok {
		it.fatal = true
		return fmt.Errorf("no fee data source configured for destination chain %s", s.deps.ChainID)
	}
	destFee, destReady := destFeeFn()

	srcFeeFn, ok := s.deps.FeeData[state.BountyPlacedEvent.FromChainID]
	if !ok {
		it.fatal = true
		return fmt.Errorf("no fee data source configured for source chain %s", state.BountyPlacedEvent.FromChainID)
	}
	srcFee, srcReady := srcFeeFn()

	// A not-yet-ready fee cache defaults its price to nil rather than
	// short-circuiting before a decision exists: evaluator.EvaluateDelivery
	// treats a nil price as +inf cost (spec.md Section 4.6) and still
	// returns a logged, reasoned "do not relay" Decision instead of this
	// worker silently retrying with nothing to show for it.
	var destGasPrice, srcGasPrice *big.Int
	if destReady {
		destGasPrice = destFee.GasPrice
	}
	if srcReady {
		srcGasPrice = srcFee.GasPrice
	}

	components, err := s.deps.GasEstimator(ctx, LegDelivery, msg, state)
	if err != nil {
		return fmt.Errorf("estimating delivery gas: %w", err)
	}

	decision, err := evaluator.EvaluateDelivery(
		ctx, state, components,
		destGasPrice, srcGasPrice,
		s.deps.EvaluatorConfig,
		chainPriceConverter(destPricing.Client), chainPriceConverter(sourcePricing.Client),
		destPricing.TokenID, sourcePricing.TokenID,
		s.log,
	)
	if err != nil {
		return fmt.Errorf("evaluating delivery: %w", err)
	}
	if s.log != nil {
		s.log.WithField("messageIdentifier", msg.MessageIdentifier).WithField("relay", decision.Relay).
			Debug("submitter: delivery decision")
	}
	if !destReady || !srcReady {
		// Fee data is refreshed on a fixed interval (pkg/wallet's feeLoop);
		// keep this item in the retry queue rather than treating the +inf
		// cost decision just logged above as a final verdict.
		return fmt.Errorf("fee data not ready yet for chain %s or %s", s.deps.ChainID, state.BountyPlacedEvent.FromChainID)
	}
	if !decision.Relay {
		s.queue.Remove(msg.MessageIdentifier, LegDelivery)
		return nil
	}

	calldata, err := buildCalldata(proof, s.deps.FeeRecipient)
	if err != nil {
		it.fatal = true
		return fmt.Errorf("building delivery calldata: %w", err)
	}

	resp, err := s.deps.Wallet.Call(ctx, wallet.TxRequest{
		To:    common.HexToAddress(msg.ToIncentivesAddress),
		Data:  calldata,
		Value: big.NewInt(0),
	})
	if err != nil {
		return fmt.Errorf("submitting delivery transaction: %w", err)
	}
	if resp.Err != nil {
		return fmt.Errorf("wallet delivery submission: %w", resp.Err)
	}

	// BountySource is the sole writer of RelayState.status (it scans the
	// on-chain MessageDelivered event, which this submission will itself
	// produce); this worker only records the cost it incurred.
	_, err = s.deps.Store.SetRelayState(ctx, s.deps.ChainID, msg.MessageIdentifier, func(current relay.RelayState, exists bool) (relay.RelayState, error) {
		if !exists {
			return current, fmt.Errorf("relay state vanished before delivery commit")
		}
		current.DeliveryGasCost = relay.BigIntFromBig(resp.Result.GasCost)
		current.DeliveryGasUsed = relay.BigIntFromBig(new(big.Int).SetUint64(resp.Result.GasUsed))
		return current, nil
	})
	if err != nil {
		return fmt.Errorf("recording delivery cost: %w", err)
	}

	s.queue.Remove(msg.MessageIdentifier, LegDelivery)
	return nil
}

// attemptAck evaluates and, if profitable, submits the ack transaction
// on this (source) chain. It only ever runs once BountySource has
// already advanced the message to MessageDelivered.
func (s *Submitter) attemptAck(ctx context.Context, it *item, msg relay.AMBMessage) error {
	state, exists, err := s.deps.Store.GetRelayState(ctx, s.deps.ChainID, msg.MessageIdentifier)
	if err != nil {
		return fmt.Errorf("fetching relay state: %w", err)
	}
	if !exists || state.BountyPlacedEvent == nil {
		return fmt.Errorf("no bounty placed yet for %s", msg.MessageIdentifier)
	}
	if state.BountyPlacedEvent.FromChainID != s.deps.ChainID {
		s.queue.Remove(msg.MessageIdentifier, LegAck)
		return nil // this chain is not the bounty's source; nothing to ack here
	}
	if state.Status == relay.StatusBountyClaimed {
		s.queue.Remove(msg.MessageIdentifier, LegAck)
		return nil
	}
	if state.Status != relay.StatusMessageDelivered || state.MessageDeliveredEvent == nil {
		return fmt.Errorf("message %s not yet delivered", msg.MessageIdentifier)
	}

	sourcePricing, ok := s.deps.Pricing[s.deps.ChainID]
	if !ok {
		it.fatal = true
		return fmt.Errorf("no pricing configured for source chain %s", s.deps.ChainID)
	}
	feeFn, ok := s.deps.FeeData[s.deps.ChainID]
	if !ok {
		it.fatal = true
		return fmt.Errorf("no fee data source configured for source chain %s", s.deps.ChainID)
	}
	fee, ready := feeFn()

	// See the matching comment in attemptDelivery: a nil price still
	// yields a logged +inf-cost Decision rather than no decision at all.
	var srcGasPrice *big.Int
	if ready {
		srcGasPrice = fee.GasPrice
	}

	components, err := s.deps.GasEstimator(ctx, LegAck, msg, state)
	if err != nil {
		return fmt.Errorf("estimating ack gas: %w", err)
	}

	decision, err := evaluator.EvaluateAck(
		ctx, s.deps.ChainID, state, components,
		srcGasPrice, s.deps.EvaluatorConfig,
		chainPriceConverter(sourcePricing.Client), sourcePricing.TokenID,
		s.log,
	)
	if err != nil {
		return fmt.Errorf("evaluating ack: %w", err)
	}
	if s.log != nil {
		s.log.WithField("messageIdentifier", msg.MessageIdentifier).WithField("relay", decision.Relay).
			Debug("submitter: ack decision")
	}
	if !ready {
		return fmt.Errorf("source fee data not ready yet for chain %s", s.deps.ChainID)
	}
	if !decision.Relay {
		s.queue.Remove(msg.MessageIdentifier, LegAck)
		return nil
	}

	// The AMB provider's proof pipeline (pkg/collector/amb) only produces
	// the source->destination delivery proof; the destination->source ack
	// references the delivery transaction this chain's own BountySource
	// already recorded rather than a second provider-signed payload.
	ackProof := relay.AMBProof{
		MessageIdentifier: msg.MessageIdentifier,
		AMB:               msg.AMB,
		FromChainID:       msg.ToChainID,
		ToChainID:         msg.FromChainID,
		Message:           relay.HexBytes(common.HexToHash(state.MessageDeliveredEvent.Tx.TransactionHash).Bytes()),
		MessageCtx:        relay.HexBytes(relay.MessageCtxDestinationToSource),
	}

	calldata, err := buildCalldata(ackProof, s.deps.FeeRecipient)
	if err != nil {
		it.fatal = true
		return fmt.Errorf("building ack calldata: %w", err)
	}

	resp, err := s.deps.Wallet.Call(ctx, wallet.TxRequest{
		To:    common.HexToAddress(state.BountyPlacedEvent.IncentivesAddress),
		Data:  calldata,
		Value: big.NewInt(0),
	})
	if err != nil {
		return fmt.Errorf("submitting ack transaction: %w", err)
	}
	if resp.Err != nil {
		return fmt.Errorf("wallet ack submission: %w", resp.Err)
	}

	// BountySource records BountyClaimed once it observes this
	// submission's event; handleBountyChange then tears down tracking.
	s.queue.Remove(msg.MessageIdentifier, LegAck)
	return nil
}

func chainPriceConverter(port *xchan.Port[pricing.PriceRequest, pricing.PriceResponse]) evaluator.PriceConverter {
	return func(ctx context.Context, amount *big.Int, tokenID string) (*big.Float, error) {
		resp, err := port.Call(ctx, pricing.PriceRequest{Amount: amount, TokenID: tokenID})
		if err != nil {
			return nil, err
		}
		if resp.Err != nil {
			return nil, resp.Err
		}
		return resp.FiatValue, nil
	}
}

// backoff mirrors pkg/wallet's base*2^attempts retry-bounded policy
// (spec.md Section 7).
func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	const capped = time.Minute
	d := base * time.Duration(uint64(1)<<uint(attempt))
	if d <= 0 || d > capped {
		return capped
	}
	return d
}
