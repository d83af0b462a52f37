// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package perch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventProcessor consumes event feed batches in arrival order.
type EventProcessor interface {
	ProcessEventsResult(ctx context.Context, resp *RespEvents)
}

// Poller drives the event long-poll: fetch, hand the batch to the processor,
// advance the cursor, repeat. A failed poll is retried with the same cursor
// so no events are skipped; the loop only ends when the context is done.
type Poller struct {
	Client    *Client
	Processor EventProcessor
	Log       zerolog.Logger

	// OnStatus, if set, receives a short transient status string per poll
	// round: non-empty while the feed is failing, empty once it recovers.
	OnStatus func(status string)

	// RetryDelay is the pause between failed polls. Successful polls are
	// re-issued immediately since the server already long-polls for us.
	RetryDelay time.Duration

	mu   sync.Mutex
	from string
}

// From returns the current resumption cursor. Empty until the first
// successful poll. Safe to call while Poll is running.
func (p *Poller) From() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.from
}

func (p *Poller) setFrom(from string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.from = from
}

func (p *Poller) setStatus(status string) {
	if p.OnStatus != nil {
		p.OnStatus(status)
	}
}

// Poll runs the polling loop until ctx is cancelled. It always returns
// ctx.Err(): feed failures are never fatal.
func (p *Poller) Poll(ctx context.Context) error {
	retryDelay := p.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 1 * time.Second
	}
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		from := p.From()
		resp, err := p.Client.Events(ctx, from)
		if ctx.Err() != nil {
			// Cancelled mid-request: discard whatever we got.
			return ctx.Err()
		}
		if err != nil {
			p.Log.Warn().Err(err).Str("from", from).Msg("Event poll failed, retrying with same cursor")
			p.setStatus("Events failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
			continue
		}
		p.setStatus("")
		p.Processor.ProcessEventsResult(ctx, resp)
		p.setFrom(resp.End)
	}
}
