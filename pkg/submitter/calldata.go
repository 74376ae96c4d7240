package submitter

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/xrelay/relayer/pkg/relay"
)

// The generalised-incentives escrow contract exposes a single entry
// point for both legs, spec.md Section 6: "processPacket(messageCtx,
// message, feeRecipient)". The same function submits a delivery on the
// destination chain and an ack on the source chain; messageCtx alone
// tells the contract which.
const incentivesExecutionABI = `[
	{
		"inputs": [
			{"name": "messageCtx", "type": "bytes"},
			{"name": "message", "type": "bytes"},
			{"name": "feeRecipient", "type": "address"}
		],
		"name": "processPacket",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

var incentivesExecution abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(incentivesExecutionABI))
	if err != nil {
		panic("submitter: invalid embedded ABI: " + err.Error())
	}
	incentivesExecution = parsed
}

// buildCalldata encodes a processPacket call for proof, crediting
// feeRecipient (this chain's own wallet address) with the relay reward.
func buildCalldata(proof relay.AMBProof, feeRecipient common.Address) ([]byte, error) {
	return incentivesExecution.Pack("processPacket", []byte(proof.MessageCtx), []byte(proof.Message), feeRecipient)
}
