package submitter

import (
	"sync"
	"time"

	"github.com/xrelay/relayer/pkg/relay"
)

// Leg identifies which half of a message's lifecycle a queue item is
// for: delivering the message, or acking its receipt back to the
// source chain.
type Leg int

const (
	LegDelivery Leg = iota
	LegAck
)

func (l Leg) String() string {
	if l == LegAck {
		return "ack"
	}
	return "delivery"
}

// item is one unit of retryable work. priority mirrors AMBMessage's
// Priority flag: a priority item is always ready regardless of
// nextAttempt, jumping queue position and bypassing backoff exactly
// once per enqueue (spec.md Section 4.7, scenario S6) — once it is
// popped and re-enqueued after a failed attempt, it re-enters the
// normal backoff schedule like any other item.
type item struct {
	messageID   relay.MessageIdentifier
	leg         Leg
	attempts    int
	nextAttempt time.Time
	priority    bool
	fatal       bool
}

// pendingQueue is the priority-aware retry queue of spec.md Section 4.7.
// It is deliberately a flat slice scanned linearly rather than a heap:
// the number of in-flight messages per chain is small enough (bounded by
// SubmitterConcurrency and realistic bounty volume) that O(n) Pop beats
// the complexity of a heap with priority-aware comparisons.
type pendingQueue struct {
	mu    sync.Mutex
	items []*item
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{}
}

func (q *pendingQueue) Push(it *item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, it)
}

func (q *pendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// PopReady removes and returns the best ready candidate at or before
// now. A priority item is always ready; a non-priority item is ready
// only once its nextAttempt has elapsed. Among ready items, priority
// wins outright, then earliest nextAttempt.
func (q *pendingQueue) PopReady(now time.Time) (*item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	best := -1
	for i, it := range q.items {
		if !it.priority && it.nextAttempt.After(now) {
			continue
		}
		if best == -1 {
			best = i
			continue
		}
		candidate := q.items[best]
		if it.priority && !candidate.priority {
			best = i
			continue
		}
		if it.priority == candidate.priority && it.nextAttempt.Before(candidate.nextAttempt) {
			best = i
		}
	}
	if best == -1 {
		return nil, false
	}

	picked := q.items[best]
	q.items = append(q.items[:best], q.items[best+1:]...)
	return picked, true
}

// Remove deletes every item matching messageID and leg, used when a
// message's lifecycle ends (fatal drop, or the chain records the
// corresponding on-chain event before this relayer's own attempt lands).
func (q *pendingQueue) Remove(messageID relay.MessageIdentifier, l Leg) {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.items[:0]
	for _, it := range q.items {
		if it.messageID == messageID && it.leg == l {
			continue
		}
		kept = append(kept, it)
	}
	q.items = kept
}
