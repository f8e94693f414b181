package mirror

import (
	"context"
	"sync/atomic"

	"github.com/nerrad567/astroconsole/internal/bridges/indi"
)

// DefaultQueueSize is the per-sink backlog used when none is given.
const DefaultQueueSize = 1024

// queue is a bounded, drop-on-full hand-off from the hub goroutine to a
// sink worker.
type queue struct {
	ch      chan indi.Property
	dropped atomic.Uint64
}

func newQueue(size int) *queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &queue{ch: make(chan indi.Property, size)}
}

func (q *queue) offer(p indi.Property) {
	select {
	case q.ch <- p:
	default:
		q.dropped.Add(1)
	}
}

// drain calls fn for each queued property until ctx is cancelled.
func (q *queue) drain(ctx context.Context, fn func(indi.Property)) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-q.ch:
			fn(p)
		}
	}
}
