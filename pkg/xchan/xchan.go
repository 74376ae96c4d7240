// Package xchan implements the typed, point-to-point request/response
// channel pairs described in spec.md Section 9 ("Worker channels"): each
// caller gets its own pair, envelopes carry a correlation id, and the port
// itself is never shared across workers after hand-off.
package xchan

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Envelope wraps a request or reply payload with the correlation id that
// ties a reply back to its request.
type Envelope[T any] struct {
	MessageID uuid.UUID
	Payload   T
}

// Port is the caller-held half of a request/response pair: Call enqueues a
// request on the server's inbox and returns the single matching reply.
type Port[Req any, Resp any] struct {
	requests chan<- Envelope[Req]
	replies  <-chan Envelope[Resp]
}

// NewPort builds a Port from the channels a server hands out at startup.
func NewPort[Req any, Resp any](requests chan<- Envelope[Req], replies <-chan Envelope[Resp]) *Port[Req, Resp] {
	return &Port[Req, Resp]{requests: requests, replies: replies}
}

// Call sends req and blocks for the correlated reply, or returns ctx.Err()
// if ctx is cancelled first.
func (p *Port[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	var zero Resp
	id := uuid.New()
	env := Envelope[Req]{MessageID: id, Payload: req}

	select {
	case p.requests <- env:
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	for {
		select {
		case reply, ok := <-p.replies:
			if !ok {
				return zero, fmt.Errorf("xchan: reply channel closed before reply to %s", id)
			}
			if reply.MessageID != id {
				// Another caller's reply arrived on a shared channel; a
				// correctly wired single-caller Port never hits this. The
				// reply is discarded, so that other caller keeps waiting
				// until its own ctx ends.
				continue
			}
			return reply.Payload, nil
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}
