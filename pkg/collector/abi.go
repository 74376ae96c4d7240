package collector

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// IncentivesEventsABI describes the generalised-incentives escrow events a
// bounty collector decodes, in the validator's habit of parsing a
// hand-written events-only ABI JSON string rather than a full compiled
// contract binding (pkg/anchor/event_watcher.go's CertenAnchorV3EventsABI).
const IncentivesEventsABI = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "messageIdentifier", "type": "bytes32"},
			{"indexed": false, "name": "incentivesAddress", "type": "address"},
			{"indexed": false, "name": "maxGasDelivery", "type": "uint256"},
			{"indexed": false, "name": "maxGasAck", "type": "uint256"},
			{"indexed": false, "name": "refundGasTo", "type": "address"},
			{"indexed": false, "name": "priceOfDeliveryGas", "type": "uint256"},
			{"indexed": false, "name": "priceOfAckGas", "type": "uint256"},
			{"indexed": false, "name": "targetDelta", "type": "uint256"}
		],
		"name": "BountyPlaced",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "messageIdentifier", "type": "bytes32"},
			{"indexed": false, "name": "newDeliveryGasPrice", "type": "uint256"},
			{"indexed": false, "name": "newAckGasPrice", "type": "uint256"}
		],
		"name": "BountyIncreased",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "messageIdentifier", "type": "bytes32"}
		],
		"name": "MessageDelivered",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "messageIdentifier", "type": "bytes32"}
		],
		"name": "BountyClaimed",
		"type": "event"
	}
]`

// incentivesABI is parsed once at package init, the same way the
// validator parses CertenAnchorV3EventsABI in NewEventWatcher.
var incentivesABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(IncentivesEventsABI))
	if err != nil {
		panic("collector: invalid embedded incentives ABI: " + err.Error())
	}
	incentivesABI = parsed
}
