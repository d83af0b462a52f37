// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package perch_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perch-im/perch"
	"github.com/perch-im/perch/mockserver"
)

type recordingProcessor struct {
	mu      sync.Mutex
	batches []*perch.RespEvents
}

func (rp *recordingProcessor) ProcessEventsResult(ctx context.Context, resp *perch.RespEvents) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.batches = append(rp.batches, resp)
}

func (rp *recordingProcessor) count() int {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return len(rp.batches)
}

func TestPoller_CursorAdvances(t *testing.T) {
	ms := mockserver.Create(t)
	ms.QueueEvents(`[{"type": "m.room.message", "room_id": "!r:example.org", "user_id": "@a:example.org", "content": {"msgtype": "m.text", "body": "one"}}]`)
	proc := &recordingProcessor{}
	poller := &perch.Poller{
		Client:    ms.Client(t),
		Processor: proc,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- poller.Poll(ctx)
	}()

	assert.Eventually(t, func() bool {
		// Reading the cursor while the poller runs must be safe.
		_ = poller.From()
		return proc.count() >= 3
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	ms.WithLock(func() {
		// The first poll starts without a cursor, each later one resumes
		// from the previous response's end token.
		require.GreaterOrEqual(t, len(ms.EventPollFroms), 3)
		assert.Equal(t, "", ms.EventPollFroms[0])
		assert.Equal(t, "e1", ms.EventPollFroms[1])
		assert.Equal(t, "e2", ms.EventPollFroms[2])
	})

	require.NotEmpty(t, proc.batches)
	first := proc.batches[0]
	assert.Equal(t, "e1", first.End)
	require.Len(t, first.Chunk, 1)
	assert.Equal(t, "one", first.Chunk[0].Content.Body())
	// The cursor always matches the last batch that was handed over.
	assert.Equal(t, proc.batches[len(proc.batches)-1].End, poller.From())
}

func TestPoller_RetryKeepsCursor(t *testing.T) {
	ms := mockserver.Create(t)
	ms.FailEventPolls(2)
	proc := &recordingProcessor{}
	poller := &perch.Poller{
		Client:     ms.Client(t),
		Processor:  proc,
		RetryDelay: 10 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- poller.Poll(ctx)
	}()

	assert.Eventually(t, func() bool { return proc.count() >= 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	ms.WithLock(func() {
		// Both failed polls and the eventual success use the same cursor.
		require.GreaterOrEqual(t, len(ms.EventPollFroms), 3)
		assert.Equal(t, "", ms.EventPollFroms[0])
		assert.Equal(t, "", ms.EventPollFroms[1])
		assert.Equal(t, "", ms.EventPollFroms[2])
	})
	// Polling continues past the recovery, so the cursor has moved on; it
	// must still match the end token of the last processed batch.
	require.NotEmpty(t, proc.batches)
	assert.Equal(t, proc.batches[len(proc.batches)-1].End, poller.From())
}

func TestPoller_StatusCallback(t *testing.T) {
	ms := mockserver.Create(t)
	ms.FailEventPolls(1)
	proc := &recordingProcessor{}
	var mu sync.Mutex
	var statuses []string
	poller := &perch.Poller{
		Client:     ms.Client(t),
		Processor:  proc,
		RetryDelay: 10 * time.Millisecond,
		OnStatus: func(status string) {
			mu.Lock()
			statuses = append(statuses, status)
			mu.Unlock()
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- poller.Poll(ctx)
	}()

	assert.Eventually(t, func() bool { return proc.count() >= 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(statuses), 2)
	assert.Equal(t, "Events failed", statuses[0])
	assert.Equal(t, "", statuses[1])
}

func TestPoller_CancelBeforeStart(t *testing.T) {
	ms := mockserver.Create(t)
	poller := &perch.Poller{
		Client:    ms.Client(t),
		Processor: &recordingProcessor{},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, poller.Poll(ctx), context.Canceled)
	assert.Zero(t, poller.From())
}
