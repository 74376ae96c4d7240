package store

import (
	"fmt"
	"strings"
)

// Key namespace, exactly as spec.md Section 4.1:
//
//	relayer:<chainId>:bounty:<messageIdentifier>   -> RelayState (JSON)
//	relayer:<chainId>:amb:<messageIdentifier>      -> AMBMessage (JSON)
//	relayer:<chainId>:proof:<messageIdentifier>    -> AMBProof   (JSON)

func bountyKey(chainID, messageID string) string {
	return fmt.Sprintf("relayer:%s:bounty:%s", chainID, messageID)
}

func ambKey(chainID, messageID string) string {
	return fmt.Sprintf("relayer:%s:amb:%s", chainID, messageID)
}

func proofKey(chainID, messageID string) string {
	return fmt.Sprintf("relayer:%s:proof:%s", chainID, messageID)
}

// KeyChangeChannel is the fanout channel every Set/Del publishes to.
const KeyChangeChannel = "relayer:key"

func newAMBMessageChannel(toChainID string) string {
	return fmt.Sprintf("relayer:ambMessage:%s", toChainID)
}

// ActionSet/ActionDel are the two actions published on KeyChangeChannel.
const (
	ActionSet = "set"
	ActionDel = "del"
)

// KeyChangeNotification is the payload published on KeyChangeChannel.
type KeyChangeNotification struct {
	Key    string `json:"key"`
	Action string `json:"action"`
}

// ParseKey decomposes a relayer:<chainId>:<kind>:<messageIdentifier> key
// back into its parts, so a subscriber on the single global
// KeyChangeChannel (spec.md Section 4.1's relayer:*:proof:* /
// relayer:*:amb:* pattern, collapsed here to one channel plus an
// in-payload key) can tell which record changed without its own copy of
// the key format.
func ParseKey(key string) (chainID, kind, messageID string, ok bool) {
	parts := strings.SplitN(key, ":", 4)
	if len(parts) != 4 || parts[0] != "relayer" {
		return "", "", "", false
	}
	return parts[1], parts[2], parts[3], true
}
