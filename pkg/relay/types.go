package relay

// MessageIdentifier is the 32-byte hex identifier that keys every record in
// the Store. It is always lowercase 0x-hex so it can be used as a Redis key
// suffix without further encoding.
type MessageIdentifier string

// AMB is the provider tag carried by AMBMessage/AMBProof, resolved against
// the collector registry (pkg/collector/amb) and the pricing registry is a
// separate, unrelated tag space (see pkg/pricing).
type AMB string

// AMBMessage is the raw cross-chain message observed on the source chain
// (spec.md Section 3).
type AMBMessage struct {
	MessageIdentifier     MessageIdentifier `json:"messageIdentifier"`
	AMB                    AMB              `json:"amb"`
	FromChainID            string           `json:"fromChainId"`
	ToChainID              string           `json:"toChainId"`
	FromIncentivesAddress  string           `json:"fromIncentivesAddress"`
	ToIncentivesAddress    string           `json:"toIncentivesAddress,omitempty"`
	IncentivesPayload      HexBytes         `json:"incentivesPayload"`
	RecoveryContext        HexBytes         `json:"recoveryContext,omitempty"`
	TransactionHash        string           `json:"transactionHash"`
	BlockHash              string           `json:"blockHash"`
	BlockNumber            uint64           `json:"blockNumber"`
	Priority               bool             `json:"priority,omitempty"`
}

// AMBProof is the provider-specific proof authorising delivery or ack
// (spec.md Section 3).
type AMBProof struct {
	MessageIdentifier MessageIdentifier `json:"messageIdentifier"`
	AMB               AMB               `json:"amb"`
	FromChainID       string            `json:"fromChainId"`
	ToChainID         string            `json:"toChainId"`
	Message           HexBytes          `json:"message"`
	MessageCtx        HexBytes          `json:"messageCtx,omitempty"`
}

// MessageContext values written into AMBProof.MessageCtx to tag which leg
// a proof is for: the mock AMB provider tags delivery proofs with the
// first, the submitter's ack proofs with the second. No code reads a
// gasSpent field out of them.
const (
	MessageCtxSourceToDestination = "SOURCE_TO_DESTINATION"
	MessageCtxDestinationToSource = "DESTINATION_TO_SOURCE"
)

// RelayStatus is the per-message lifecycle state. It may only advance
// monotonically BountyPlaced -> MessageDelivered -> BountyClaimed
// (spec.md Section 3, invariant i).
type RelayStatus string

const (
	StatusBountyPlaced     RelayStatus = "BountyPlaced"
	StatusMessageDelivered RelayStatus = "MessageDelivered"
	StatusBountyClaimed    RelayStatus = "BountyClaimed"
)

// rank gives the total order used to enforce monotonic advancement.
func (s RelayStatus) rank() int {
	switch s {
	case StatusBountyPlaced:
		return 0
	case StatusMessageDelivered:
		return 1
	case StatusBountyClaimed:
		return 2
	default:
		return -1
	}
}

// CanAdvanceTo reports whether a transition from s to next is a legal
// forward (or no-op) step in the lifecycle.
func (s RelayStatus) CanAdvanceTo(next RelayStatus) bool {
	return next.rank() >= s.rank() && next.rank() >= 0
}

// TxDescription identifies the on-chain transaction behind an event detail
// record, used by every *Event field below.
type TxDescription struct {
	TransactionHash string `json:"transactionHash"`
	BlockHash       string `json:"blockHash"`
	BlockNumber     uint64 `json:"blockNumber"`
}

// BountyPlacedEvent is write-once detail for the BountyPlaced transition.
type BountyPlacedEvent struct {
	FromChainID        string  `json:"fromChainId"`
	IncentivesAddress  string  `json:"incentivesAddress"`
	MaxGasDelivery     *BigInt `json:"maxGasDelivery"`
	MaxGasAck          *BigInt `json:"maxGasAck"`
	RefundGasTo        string  `json:"refundGasTo"`
	PriceOfDeliveryGas *BigInt `json:"priceOfDeliveryGas"`
	PriceOfAckGas      *BigInt `json:"priceOfAckGas"`
	TargetDelta        *BigInt `json:"targetDelta"`
	Tx                 TxDescription `json:"tx"`
}

// MessageDeliveredEvent is write-once detail for the MessageDelivered
// transition.
type MessageDeliveredEvent struct {
	ToChainID string        `json:"toChainId"`
	Tx        TxDescription `json:"tx"`
}

// BountyClaimedEvent is write-once detail for the BountyClaimed transition.
type BountyClaimedEvent struct {
	Tx TxDescription `json:"tx"`
}

// BountyIncreasedEvent always holds the latest seen prices; unlike the other
// detail records it is overwritten on every new BountyIncreased observation
// (spec.md Section 3, invariant i).
type BountyIncreasedEvent struct {
	NewDeliveryGasPrice *BigInt       `json:"newDeliveryGasPrice"`
	NewAckGasPrice      *BigInt       `json:"newAckGasPrice"`
	Tx                  TxDescription `json:"tx"`
}

// RelayState is the per-message lifecycle record keyed by
// MessageIdentifier (spec.md Section 3).
type RelayState struct {
	MessageIdentifier MessageIdentifier `json:"messageIdentifier"`
	Status            RelayStatus       `json:"status"`

	BountyPlacedEvent     *BountyPlacedEvent     `json:"bountyPlacedEvent,omitempty"`
	MessageDeliveredEvent *MessageDeliveredEvent `json:"messageDeliveredEvent,omitempty"`
	BountyClaimedEvent    *BountyClaimedEvent    `json:"bountyClaimedEvent,omitempty"`
	BountyIncreasedEvent  *BountyIncreasedEvent  `json:"bountyIncreasedEvent,omitempty"`

	// DeliveryGasCost and DeliveryGasUsed are set only when this relayer
	// process submitted the delivery transaction itself. DeliveryGasUsed
	// is the receipt's raw gas-used figure, carried forward so the ack
	// leg's evaluator.GasEstimateComponents.ObservedGasEstimate can reflect
	// the real historical delivery cost instead of a fresh simulation
	// (spec.md Section 4.6).
	DeliveryGasCost *BigInt `json:"deliveryGasCost,omitempty"`
	DeliveryGasUsed *BigInt `json:"deliveryGasUsed,omitempty"`

	// Version backs the Store's optimistic read-modify-write (spec.md
	// Section 3, invariant iii). It is opaque to callers.
	Version uint64 `json:"version"`
}

// Clone returns a deep-enough copy for use inside a Store mutator, so a
// caller that mutates the returned value never corrupts a cached original.
func (s RelayState) Clone() RelayState {
	out := s
	if s.BountyPlacedEvent != nil {
		cp := *s.BountyPlacedEvent
		out.BountyPlacedEvent = &cp
	}
	if s.MessageDeliveredEvent != nil {
		cp := *s.MessageDeliveredEvent
		out.MessageDeliveredEvent = &cp
	}
	if s.BountyClaimedEvent != nil {
		cp := *s.BountyClaimedEvent
		out.BountyClaimedEvent = &cp
	}
	if s.BountyIncreasedEvent != nil {
		cp := *s.BountyIncreasedEvent
		out.BountyIncreasedEvent = &cp
	}
	return out
}
