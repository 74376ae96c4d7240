// Package monitor implements the per-chain block-height heartbeat named
// by spec.md Section 4.2, grounded on the validator's
// EventWatcher.pollLoop ticker pattern (pkg/anchor/event_watcher.go),
// generalised from "poll + parse logs" to "poll + diff block number".
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xrelay/relayer/pkg/chainrpc"
)

// BlockHead is emitted on a listener channel whenever the polled block
// number strictly increases.
type BlockHead struct {
	Number    uint64
	Hash      string
	Timestamp time.Time
}

// Monitor is a best-effort "latest block" signal for one chain. It is
// not a source of truth: collectors derive their own cursors and may
// lag it (spec.md Section 4.2).
type Monitor struct {
	chainID  string
	client   *chainrpc.Client
	interval time.Duration
	log      *logrus.Entry

	mu        sync.Mutex
	listeners map[chan BlockHead]struct{}
	last      uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Monitor for one chain. Call Start to begin polling.
func New(chainID string, client *chainrpc.Client, interval time.Duration, log *logrus.Entry) *Monitor {
	return &Monitor{
		chainID:   chainID,
		client:    client,
		interval:  interval,
		log:       log,
		listeners: make(map[chan BlockHead]struct{}),
	}
}

// Attach returns a channel that receives a BlockHead every time the
// polled block number advances. Calling the returned unsubscribe
// function closes the channel and stops delivery to it.
func (m *Monitor) Attach() (<-chan BlockHead, func()) {
	ch := make(chan BlockHead, 16)

	m.mu.Lock()
	m.listeners[ch] = struct{}{}
	m.mu.Unlock()

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.listeners[ch]; ok {
			delete(m.listeners, ch)
			close(ch)
		}
	}
}

// Latest returns the highest block number observed so far. ok is false
// until the first successful poll completes.
func (m *Monitor) Latest() (number uint64, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.last > 0
}

// Start begins the polling loop in a background goroutine.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go m.pollLoop(ctx)
}

// Stop cancels the polling loop and waits for it to exit, closing every
// attached listener channel.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.listeners {
		delete(m.listeners, ch)
		close(ch)
	}
}

func (m *Monitor) pollLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

func (m *Monitor) poll(ctx context.Context) {
	number, err := m.client.BlockNumber(ctx)
	if err != nil {
		m.log.WithError(err).Warn("polling block number")
		return
	}

	m.mu.Lock()
	if number <= m.last {
		m.mu.Unlock()
		return
	}
	m.last = number
	var targets []chan BlockHead
	for ch := range m.listeners {
		targets = append(targets, ch)
	}
	m.mu.Unlock()

	header, err := m.client.HeaderByNumber(ctx, nil)
	var hash string
	var timestamp time.Time
	if err == nil && header != nil {
		hash = header.Hash().Hex()
		timestamp = time.Unix(int64(header.Time), 0)
	} else if err != nil {
		m.log.WithError(err).Warn("fetching header for latest block")
	}

	head := BlockHead{Number: number, Hash: hash, Timestamp: timestamp}
	for _, ch := range targets {
		select {
		case ch <- head:
		default:
			m.log.Warn("listener channel full, dropping block head")
		}
	}
}
