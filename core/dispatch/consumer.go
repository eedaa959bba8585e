package dispatch

import (
	"context"
	"errors"
	"time"

	"hlswatch/logger"
	"hlswatch/metrics"
)

// Consumer drains one queue in order. A segment whose URI equals the previously
// dispatched one is discarded without reaching the sink.
type Consumer struct {
	queue   *Queue
	fetcher Fetcher
	sink    Sink

	// last is owned by the Run goroutine.
	last string
}

func NewConsumer(queue *Queue, fetcher Fetcher, sink Sink) *Consumer {
	return &Consumer{queue: queue, fetcher: fetcher, sink: sink}
}

// Run processes units until ctx is cancelled. Cancellation is the normal way to stop
// and is not reported as an error.
func (c *Consumer) Run(ctx context.Context) {
	for {
		u, err := c.queue.Get(ctx)
		if err != nil {
			return
		}
		c.safeHandle(ctx, u)
		c.queue.Done()
	}
}

// safeHandle contains a panicking fetcher or sink to the unit that triggered it.
// The unit counts as a failed dispatch, so it is still acknowledged and last is
// left unchanged.
func (c *Consumer) safeHandle(ctx context.Context, u Unit) {
	defer func() {
		if r := recover(); r != nil {
			metrics.MonitorPanicsTotal.Inc()
			metrics.DispatchErrorsTotal.WithLabelValues("panic").Inc()
			logger.Error("segment dispatch panicked",
				logger.Path(u.Playlist),
				logger.String("uri", u.Segment.URI),
				logger.Any("panic", r),
				logger.Stack("stack"))
		}
	}()
	c.handle(ctx, u)
}

func (c *Consumer) handle(ctx context.Context, u Unit) {
	start := time.Now()
	seg, err := c.fetcher.Fetch(ctx, u)
	metrics.FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			metrics.DispatchErrorsTotal.WithLabelValues("fetch").Inc()
		}
		logger.Warn("segment fetch failed",
			logger.Path(u.Playlist),
			logger.String("uri", u.Segment.URI),
			logger.ErrorField(err))
		return
	}

	if seg.URI == c.last {
		metrics.SegmentsDuplicateTotal.Inc()
		logger.Debug("duplicate segment discarded",
			logger.Path(u.Playlist),
			logger.String("uri", seg.URI))
		return
	}

	u.Segment = seg
	if err := c.sink.Dispatch(ctx, u); err != nil {
		metrics.DispatchErrorsTotal.WithLabelValues("sink").Inc()
		logger.Warn("segment dispatch failed",
			logger.Path(u.Playlist),
			logger.String("uri", seg.URI),
			logger.ErrorField(err))
		return
	}
	c.last = seg.URI
	metrics.SegmentsDispatchedTotal.Inc()
}
