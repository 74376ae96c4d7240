// Package wallet implements the per-chain transaction submitter of
// spec.md Section 4.5: one worker goroutine serialises nonces and
// broadcasts submissions in arrival order, confirming in nonce order.
// Grounded directly on the validator's
// ethereum.Client.SendContractTransactionWithRetry
// (pkg/ethereum/client.go) — nonce/fee lookup per attempt, a 5 Gwei gas
// price floor, 20%-per-retry gas escalation, and
// strings.Contains-based classification of
// "replacement transaction underpriced"/"nonce too low"/"already known"
// as retryable — generalised from "one contract call, fixed retry count"
// to "arbitrary calldata, the bounded retry-then-fatal-drop policy of
// spec.md Section 7".
package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/xrelay/relayer/pkg/chainrpc"
	"github.com/xrelay/relayer/pkg/xchan"
)

// minGasPrice is the floor the validator enforces so a transaction is
// never built with a suggested price too low to ever be included.
var minGasPrice = big.NewInt(5_000_000_000) // 5 Gwei

const defaultPollInterval = 2 * time.Second

// TxRequest is one submission handed to the Wallet.
type TxRequest struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64 // 0 requests estimation
}

// TxResult is what a confirmed submission produces.
type TxResult struct {
	TransactionHash common.Hash
	BlockNumber     uint64
	BlockHash       common.Hash
	GasUsed         uint64
	GasCost         *big.Int
	Successful      bool
}

// SubmitResult is the payload callers receive over a Client port: either
// a TxResult or the error that ended the submission.
type SubmitResult struct {
	Result TxResult
	Err    error
}

// Wallet is the per-chain executor. Construct one per chain and call Run
// in its own goroutine; callers reach it only through Client ports.
type Wallet struct {
	chainID       string
	client        *chainrpc.Client
	networkID     *big.Int
	privateKey    *ecdsa.PrivateKey
	fromAddress   common.Address
	confirmations uint64
	maxAttempts   int
	backoffBase   time.Duration
	pollInterval  time.Duration
	log           *logrus.Entry

	queue chan queuedSubmission

	feeInterval time.Duration
	fee         feeCache

	nextNonce uint64
	nonceSet  bool
}

type queuedSubmission struct {
	envelopeID uuid.UUID
	req        TxRequest
	reply      chan<- xchan.Envelope[SubmitResult]
}

// New builds a Wallet. networkID is the EVM chain id used for tx
// signing (spec.md Section 4.5, generalised from the validator's
// single-value c.chainID); it is resolved once at wiring time via
// Client.NetworkID and passed in rather than re-queried per signature.
func New(chainID string, client *chainrpc.Client, networkID *big.Int, privateKeyHex string, confirmations uint64, maxAttempts int, backoffBase, feeInterval time.Duration, log *logrus.Entry) (*Wallet, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("wallet: chain %s: parsing private key: %w", chainID, err)
	}
	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("wallet: chain %s: derived public key is not ECDSA", chainID)
	}

	if confirmations == 0 {
		confirmations = 1
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	pollInterval := defaultPollInterval

	return &Wallet{
		chainID:       chainID,
		client:        client,
		networkID:     networkID,
		privateKey:    privateKey,
		fromAddress:   crypto.PubkeyToAddress(*publicKey),
		confirmations: confirmations,
		maxAttempts:   maxAttempts,
		backoffBase:   backoffBase,
		pollInterval:  pollInterval,
		log:           log,
		queue:         make(chan queuedSubmission),
		feeInterval:   feeInterval,
	}, nil
}

// Address returns the wallet's signing address.
func (w *Wallet) Address() common.Address {
	return w.fromAddress
}

// Run drives the fee-data refresh ticker and the submission worker
// until ctx is cancelled. It blocks; call it from its own goroutine.
func (w *Wallet) Run(ctx context.Context) {
	if err := w.refreshFeeData(ctx); err != nil && w.log != nil {
		w.log.WithError(err).Warn("wallet: initial fee data fetch failed")
	}
	go w.feeLoop(ctx)
	w.submissionLoop(ctx)
}

// Client hands out a typed request/response port bound to this Wallet.
// Every port, regardless of caller, feeds the same submission queue, so
// ordering is preserved across every concurrent caller (spec.md Section
// 4.5's "no two submissions share a nonce" guarantee).
func (w *Wallet) Client(ctx context.Context) *xchan.Port[TxRequest, SubmitResult] {
	requests := make(chan xchan.Envelope[TxRequest])
	responses := make(chan xchan.Envelope[SubmitResult])

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-requests:
				if !ok {
					return
				}
				select {
				case w.queue <- queuedSubmission{envelopeID: env.MessageID, req: env.Payload, reply: responses}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return xchan.NewPort(requests, responses)
}

func (w *Wallet) submissionLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sub, ok := <-w.queue:
			if !ok {
				return
			}
			result, err := w.process(ctx, sub.req)
			env := xchan.Envelope[SubmitResult]{
				MessageID: sub.envelopeID,
				Payload:   SubmitResult{Result: result, Err: err},
			}
			select {
			case sub.reply <- env:
			case <-ctx.Done():
				return
			}
		}
	}
}

// process runs one submission to completion: nonce assignment, gas
// estimation, sign, send with bounded retry and fee escalation on
// transient failures, then confirmation polling. It must only ever be
// called from the submissionLoop goroutine — nonce state is unprotected
// by design, matching the single-worker ordering guarantee.
func (w *Wallet) process(ctx context.Context, req TxRequest) (TxResult, error) {
	nonce, err := w.nonceFor(ctx)
	if err != nil {
		return TxResult{}, fmt.Errorf("wallet: chain %s: %w", w.chainID, err)
	}

	gasLimit := req.GasLimit
	if gasLimit == 0 {
		estimated, err := w.client.EstimateGas(ctx, ethereum.CallMsg{
			From:  w.fromAddress,
			To:    &req.To,
			Value: req.Value,
			Data:  req.Data,
		})
		if err != nil {
			return TxResult{}, fmt.Errorf("wallet: chain %s: estimating gas: %w", w.chainID, err)
		}
		gasLimit = estimated
	}

	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}

	var lastErr error
	for attempt := 0; attempt < w.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff(w.backoffBase, attempt)):
			case <-ctx.Done():
				return TxResult{}, ctx.Err()
			}
		}

		basePrice, err := w.client.SuggestGasPrice(ctx)
		if err != nil {
			return TxResult{}, fmt.Errorf("wallet: chain %s: suggest gas price: %w", w.chainID, err)
		}
		gasPrice := escalateGasPrice(basePrice, attempt)

		tx := types.NewTransaction(nonce, req.To, value, gasLimit, gasPrice, req.Data)
		signedTx, err := types.SignTx(tx, types.NewEIP155Signer(w.networkID), w.privateKey)
		if err != nil {
			return TxResult{}, fmt.Errorf("wallet: chain %s: signing transaction: %w", w.chainID, err)
		}

		if err := w.client.SendTransaction(ctx, signedTx); err != nil {
			lastErr = err
			if classifySendError(err) == sendErrorTransient && attempt < w.maxAttempts-1 {
				if w.log != nil {
					w.log.WithError(err).Warnf("wallet: chain %s: submission attempt %d/%d transient failure, retrying", w.chainID, attempt+1, w.maxAttempts)
				}
				continue
			}
			return TxResult{}, fmt.Errorf("wallet: chain %s: sending transaction after %d attempts: %w", w.chainID, attempt+1, err)
		}

		receipt, err := w.waitForConfirmations(ctx, signedTx.Hash())
		if err != nil {
			return TxResult{}, fmt.Errorf("wallet: chain %s: waiting for confirmations: %w", w.chainID, err)
		}

		w.nextNonce = nonce + 1

		return TxResult{
			TransactionHash: signedTx.Hash(),
			BlockNumber:     receipt.BlockNumber.Uint64(),
			BlockHash:       receipt.BlockHash,
			GasUsed:         receipt.GasUsed,
			GasCost:         new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(receipt.GasUsed)),
			Successful:      receipt.Status == types.ReceiptStatusSuccessful,
		}, nil
	}

	return TxResult{}, fmt.Errorf("wallet: chain %s: submission failed after %d attempts: %w", w.chainID, w.maxAttempts, lastErr)
}

func (w *Wallet) nonceFor(ctx context.Context) (uint64, error) {
	if w.nonceSet {
		return w.nextNonce, nil
	}
	nonce, err := w.client.PendingNonceAt(ctx, w.fromAddress)
	if err != nil {
		return 0, fmt.Errorf("fetching pending nonce: %w", err)
	}
	w.nextNonce = nonce
	w.nonceSet = true
	return w.nextNonce, nil
}

func (w *Wallet) waitForConfirmations(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	for receipt == nil {
		r, err := w.client.TransactionReceipt(ctx, txHash)
		if err == nil {
			receipt = r
			break
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-time.After(w.pollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	for {
		latest, err := w.client.BlockNumber(ctx)
		if err != nil {
			return nil, err
		}
		if latest+1 >= receipt.BlockNumber.Uint64()+w.confirmations {
			return receipt, nil
		}
		select {
		case <-time.After(w.pollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

type sendErrorClass int

const (
	sendErrorFatal sendErrorClass = iota
	sendErrorTransient
)

// classifySendError mirrors the validator's inline retry check verbatim
// in spirit: these three RPC error strings mean "try again", everything
// else is fatal for this attempt.
func classifySendError(err error) sendErrorClass {
	msg := err.Error()
	if strings.Contains(msg, "replacement transaction underpriced") ||
		strings.Contains(msg, "nonce too low") ||
		strings.Contains(msg, "already known") {
		return sendErrorTransient
	}
	return sendErrorFatal
}

// escalateGasPrice applies the validator's 20%-per-retry bump
// (120%, 140%, ...) on top of the price floor.
func escalateGasPrice(base *big.Int, attempt int) *big.Int {
	price := new(big.Int).Set(base)
	if price.Cmp(minGasPrice) < 0 {
		price = new(big.Int).Set(minGasPrice)
	}
	if attempt > 0 {
		multiplier := big.NewInt(int64(100 + 20*attempt))
		price = new(big.Int).Mul(price, multiplier)
		price = price.Div(price, big.NewInt(100))
	}
	return price
}

// backoff implements the base·2^attempts retry-bounded policy of
// spec.md Section 7, capped so a stuck wallet does not sleep for hours
// between attempts.
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
