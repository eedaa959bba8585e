package dispatch

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"hlswatch/core/playlist"
	"hlswatch/logger"
)

// Fetcher retrieves the segment a unit points at and reports what it got.
type Fetcher interface {
	Fetch(ctx context.Context, u Unit) (playlist.Segment, error)
}

// Sink receives each segment that survives deduplication.
type Sink interface {
	Dispatch(ctx context.Context, u Unit) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, u Unit) error

func (f SinkFunc) Dispatch(ctx context.Context, u Unit) error {
	return f(ctx, u)
}

// DelayFetcher stands in for a network transfer: it waits a random duration in
// [Min, Max] and returns the unit's segment unchanged.
type DelayFetcher struct {
	Min time.Duration
	Max time.Duration
}

func (f DelayFetcher) Fetch(ctx context.Context, u Unit) (playlist.Segment, error) {
	delay := f.Min
	if f.Max > f.Min {
		delay += rand.N(f.Max - f.Min + 1)
	}
	if delay <= 0 {
		return u.Segment, nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return u.Segment, nil
	case <-ctx.Done():
		return playlist.Segment{}, ctx.Err()
	}
}

// LogSink writes one line per dispatched segment.
type LogSink struct{}

func (LogSink) Dispatch(_ context.Context, u Unit) error {
	logger.Info("segment dispatched",
		logger.Path(u.Playlist),
		logger.String("uri", u.Segment.URI),
		logger.Time("start", u.Segment.StartTime),
		logger.Float64("duration", u.Segment.Duration),
		logger.Duration("latency", time.Since(u.EnqueuedAt)))
	return nil
}

// MultiSink fans a unit out to every sink. All sinks run; their errors are joined.
type MultiSink []Sink

func (m MultiSink) Dispatch(ctx context.Context, u Unit) error {
	var errs []error
	for _, s := range m {
		if err := s.Dispatch(ctx, u); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
