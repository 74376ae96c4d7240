package amb

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/xrelay/relayer/pkg/relay"
)

func init() {
	Register("mock", newMockProvider)
}

// mockPacketABI describes the single event the mock provider scans for:
// a same-process stand-in for a real AMB's outgoing packet event. It
// carries everything needed to populate an AMBMessage directly, skipping
// the real providers' signature/attestation round (spec.md Section 4.3,
// "provider plug-in interface").
const mockPacketABI = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "messageIdentifier", "type": "bytes32"},
			{"indexed": false, "name": "toChainId", "type": "uint256"},
			{"indexed": false, "name": "toIncentivesAddress", "type": "address"},
			{"indexed": false, "name": "incentivesPayload", "type": "bytes"},
			{"indexed": false, "name": "recoveryContext", "type": "bytes"},
			{"indexed": false, "name": "priority", "type": "bool"}
		],
		"name": "Packet",
		"type": "event"
	}
]`

var mockABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(mockPacketABI))
	if err != nil {
		panic("amb/mock: invalid embedded ABI: " + err.Error())
	}
	mockABI = parsed
}

// TopicPacket is the mock provider's single watched event signature.
var TopicPacket = mockABI.Events["Packet"].ID

// mockProvider is a signature-less proof generator: it trusts its own
// decode of the source event and returns a proof immediately, with no
// off-chain attestation round. It exists for tests and local
// development; real providers register their own Factory without
// touching pkg/collector.
type mockProvider struct {
	fromChainID string
}

func newMockProvider(cfg Config) (Provider, error) {
	return &mockProvider{fromChainID: cfg.Params["fromChainId"]}, nil
}

func (p *mockProvider) Name() string { return "mock" }

func (p *mockProvider) Topics() []common.Hash {
	return []common.Hash{TopicPacket}
}

func (p *mockProvider) Decode(log types.Log) (relay.AMBMessage, error) {
	if len(log.Topics) < 2 {
		return relay.AMBMessage{}, fmt.Errorf("amb/mock: log missing indexed messageIdentifier topic")
	}

	values, err := mockABI.Unpack("Packet", log.Data)
	if err != nil {
		return relay.AMBMessage{}, fmt.Errorf("amb/mock: unpacking Packet: %w", err)
	}
	if len(values) != 5 {
		return relay.AMBMessage{}, fmt.Errorf("amb/mock: unpacking Packet: expected 5 fields, got %d", len(values))
	}

	toChainID, _ := values[0].(*big.Int)
	toIncentivesAddress, _ := values[1].(common.Address)
	incentivesPayload, _ := values[2].([]byte)
	recoveryContext, _ := values[3].([]byte)
	priority, _ := values[4].(bool)

	return relay.AMBMessage{
		MessageIdentifier:     relay.MessageIdentifier(log.Topics[1].Hex()),
		AMB:                   relay.AMB("mock"),
		FromChainID:           p.fromChainID,
		ToChainID:             strconv.FormatUint(toChainID.Uint64(), 10),
		ToIncentivesAddress:   toIncentivesAddress.Hex(),
		IncentivesPayload:     incentivesPayload,
		RecoveryContext:       recoveryContext,
		TransactionHash:       log.TxHash.Hex(),
		BlockHash:             log.BlockHash.Hex(),
		BlockNumber:           log.BlockNumber,
		Priority:              priority,
	}, nil
}

func (p *mockProvider) BuildProof(_ context.Context, msg relay.AMBMessage) (relay.AMBProof, bool, error) {
	return relay.AMBProof{
		MessageIdentifier: msg.MessageIdentifier,
		AMB:               msg.AMB,
		FromChainID:       msg.FromChainID,
		ToChainID:         msg.ToChainID,
		Message:           msg.IncentivesPayload,
		MessageCtx:        []byte(relay.MessageCtxSourceToDestination),
	}, true, nil
}
