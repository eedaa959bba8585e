package dispatch

import (
	"context"
	"sync"
	"time"

	"hlswatch/core/playlist"
	"hlswatch/metrics"
)

// Unit asks the consumer to forward one segment downstream.
type Unit struct {
	Playlist   string
	Segment    playlist.Segment
	EnqueuedAt time.Time
}

// Queue is a bounded FIFO between a monitor's producers and its single consumer.
// Every successful Put must be matched by a Get followed by Done; Join waits for that.
// A full queue blocks Put until space frees or the producer's context ends.
type Queue struct {
	items chan Unit

	mu      sync.Mutex
	pending int
	idle    chan struct{} // closed when pending drops to zero
}

func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{items: make(chan Unit, size)}
}

// Put enqueues u. On context cancellation the unit is dropped and not counted.
func (q *Queue) Put(ctx context.Context, u Unit) error {
	q.mu.Lock()
	q.pending++
	if q.pending == 1 {
		q.idle = make(chan struct{})
	}
	q.mu.Unlock()

	select {
	case q.items <- u:
		metrics.QueueDepth.Inc()
		metrics.SegmentsEnqueuedTotal.Inc()
		return nil
	case <-ctx.Done():
		q.release()
		return ctx.Err()
	}
}

// Get blocks for the next unit in FIFO order.
func (q *Queue) Get(ctx context.Context) (Unit, error) {
	select {
	case u := <-q.items:
		return u, nil
	case <-ctx.Done():
		return Unit{}, ctx.Err()
	}
}

// Done acknowledges one unit returned by Get.
func (q *Queue) Done() {
	metrics.QueueDepth.Dec()
	q.release()
}

func (q *Queue) release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending <= 0 {
		panic("dispatch: Done called more times than Put")
	}
	q.pending--
	if q.pending == 0 {
		close(q.idle)
	}
}

// Join blocks until every enqueued unit has been acknowledged.
func (q *Queue) Join(ctx context.Context) error {
	q.mu.Lock()
	if q.pending == 0 {
		q.mu.Unlock()
		return nil
	}
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending counts units enqueued (or being enqueued) and not yet acknowledged.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}
