package amb

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func TestMockProviderDecodeAndBuildProof(t *testing.T) {
	data, err := mockABI.Events["Packet"].Inputs.NonIndexed().Pack(
		big.NewInt(2),
		common.HexToAddress("0x4444444444444444444444444444444444444444"),
		[]byte{0x01, 0x02},
		[]byte{},
		true,
	)
	if err != nil {
		t.Fatalf("packing Packet data: %v", err)
	}

	messageID := common.HexToHash("0xabc123")
	lg := types.Log{
		Topics:      []common.Hash{TopicPacket, messageID},
		Data:        data,
		TxHash:      common.HexToHash("0xaa"),
		BlockHash:   common.HexToHash("0xbb"),
		BlockNumber: 7,
	}

	provider, err := newMockProvider(Config{Params: map[string]string{"fromChainId": "1"}})
	if err != nil {
		t.Fatalf("newMockProvider: %v", err)
	}

	msg, err := provider.Decode(lg)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if msg.ToChainID != "2" {
		t.Fatalf("expected ToChainID 2, got %s", msg.ToChainID)
	}
	if !msg.Priority {
		t.Fatalf("expected priority to be true")
	}
	if msg.FromChainID != "1" {
		t.Fatalf("expected FromChainID 1, got %s", msg.FromChainID)
	}

	proof, ok, err := provider.BuildProof(context.Background(), msg)
	if err != nil {
		t.Fatalf("BuildProof: %v", err)
	}
	if !ok {
		t.Fatalf("expected mock provider to build the proof immediately")
	}
	if proof.MessageIdentifier != msg.MessageIdentifier {
		t.Fatalf("proof messageIdentifier mismatch")
	}
}

func TestRegistryResolveUnknownProvider(t *testing.T) {
	_, err := Resolve(Config{Name: "does-not-exist"})
	if err == nil {
		t.Fatalf("expected an error for an unknown provider")
	}
}

func TestRegistryResolveMock(t *testing.T) {
	provider, err := Resolve(Config{Name: "mock", Params: map[string]string{"fromChainId": "1"}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if provider.Name() != "mock" {
		t.Fatalf("expected provider name mock, got %s", provider.Name())
	}
}
