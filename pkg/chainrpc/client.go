// Package chainrpc is the shared JSON-RPC client wrapper used by Monitor,
// Collector, and Wallet. It is grounded on the validator's
// pkg/ethereum.Client, generalised from "one Ethereum chain" to "one of
// several chains, each independently dialled and independently healthy or
// not" (spec.md Section 4.2).
package chainrpc

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client wraps one chain's JSON-RPC endpoint. Unlike the validator's
// single-chain ethereum.Client, ChainID is read from config up front
// rather than baked into the constructor from a single global value,
// since the relayer dials many chains concurrently (spec.md Section 2).
type Client struct {
	ChainID string

	eth      *ethclient.Client
	endpoint string
}

// Dial connects to a chain's JSON-RPC endpoint.
func Dial(ctx context.Context, chainID, endpoint string) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("dialing chain %s at %s: %w", chainID, endpoint, err)
	}
	return &Client{ChainID: chainID, eth: eth, endpoint: endpoint}, nil
}

// Endpoint returns the URL this client was dialled against, for logging.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Raw exposes the underlying ethclient.Client for callers (filter log
// queries, contract bindings) that need lower-level access than this
// wrapper provides.
func (c *Client) Raw() *ethclient.Client {
	return c.eth
}

// BlockNumber returns the chain's current block height, used by Monitor
// as the heartbeat value (spec.md Section 4.2).
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain %s: block number: %w", c.ChainID, err)
	}
	return n, nil
}

// HeaderByNumber returns the header at number, or the latest header if
// number is nil.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	header, err := c.eth.HeaderByNumber(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("chain %s: header by number: %w", c.ChainID, err)
	}
	return header, nil
}

// FilterLogs runs a log filter query, the primitive the Collector uses
// to scan for BountyPlaced/MessageDelivered/BountyClaimed and AMB
// messages (spec.md Section 4.3).
func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	logs, err := c.eth.FilterLogs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("chain %s: filter logs: %w", c.ChainID, err)
	}
	return logs, nil
}

// PendingNonceAt returns the next nonce to use for address, including
// pending transactions (spec.md Section 4.5).
func (c *Client) PendingNonceAt(ctx context.Context, address common.Address) (uint64, error) {
	nonce, err := c.eth.PendingNonceAt(ctx, address)
	if err != nil {
		return 0, fmt.Errorf("chain %s: pending nonce: %w", c.ChainID, err)
	}
	return nonce, nil
}

// SuggestGasTipCap returns the node's suggested EIP-1559 priority fee.
func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	tip, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain %s: suggest gas tip cap: %w", c.ChainID, err)
	}
	return tip, nil
}

// SuggestGasPrice returns the node's suggested legacy gas price, used by
// Wallet to build and, on retry, escalate legacy transactions (spec.md
// Section 4.5).
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain %s: suggest gas price: %w", c.ChainID, err)
	}
	return price, nil
}

// EstimateGas estimates the gas limit for msg.
func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	gas, err := c.eth.EstimateGas(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("chain %s: estimate gas: %w", c.ChainID, err)
	}
	return gas, nil
}

// SendTransaction broadcasts a signed transaction.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := c.eth.SendTransaction(ctx, tx); err != nil {
		return fmt.Errorf("chain %s: send transaction: %w", c.ChainID, err)
	}
	return nil
}

// TransactionReceipt polls for a mined transaction's receipt, returning
// ethereum.NotFound (unwrapped, checked via errors.Is by the caller) while
// the transaction is still pending.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return c.eth.TransactionReceipt(ctx, txHash)
}

// NetworkID returns the chain ID the remote node reports, used at
// startup to verify configuration against the live endpoint.
func (c *Client) NetworkID(ctx context.Context) (*big.Int, error) {
	id, err := c.eth.NetworkID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain %s: network id: %w", c.ChainID, err)
	}
	return id, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}
