package monitor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"hlswatch/core/dispatch"
	"hlswatch/core/playlist"
	"hlswatch/core/registry"
	"hlswatch/logger"
	"hlswatch/metrics"

	"github.com/fsnotify/fsnotify"
)

// State is a monitor's lifecycle position.
type State int32

const (
	StateStarting State = iota
	StateWatching
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateWatching:
		return "watching"
	default:
		return "terminated"
	}
}

// Reason explains why a monitor terminated.
type Reason int

const (
	ReasonDeleted Reason = iota + 1
	ReasonCancelled
	ReasonError
)

func (r Reason) String() string {
	switch r {
	case ReasonDeleted:
		return "deleted"
	case ReasonCancelled:
		return "cancelled"
	case ReasonError:
		return "error"
	default:
		return "none"
	}
}

// Result is reported once the monitor has stopped watching and its queue is drained.
type Result struct {
	Path   string
	Reason Reason
	Err    error
}

// Options configures a monitor.
type Options struct {
	QueueSize int
	Fetcher   dispatch.Fetcher
	Sink      dispatch.Sink
}

// Monitor follows one playlist file and dispatches every newly appended segment.
//
// The monitor loop is the only goroutine that reads the file or enqueues units.
// fsnotify delivery runs on its own goroutines and reaches the loop only through
// the modified/removed channels built by relay.
type Monitor struct {
	path string
	opts Options

	state atomic.Int32
	queue *dispatch.Queue

	// kind is owned by the loop and fixed once known.
	kind playlist.Kind
}

func New(path string, opts Options) *Monitor {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if opts.Fetcher == nil {
		opts.Fetcher = dispatch.DelayFetcher{}
	}
	if opts.Sink == nil {
		opts.Sink = dispatch.LogSink{}
	}
	m := &Monitor{
		path:  path,
		opts:  opts,
		queue: dispatch.NewQueue(opts.QueueSize),
	}
	m.state.Store(int32(StateStarting))
	return m
}

func (m *Monitor) Path() string { return m.path }

func (m *Monitor) State() State { return State(m.state.Load()) }

// Kind is only meaningful after Run has returned.
func (m *Monitor) Kind() playlist.Kind { return m.kind }

// Run watches the playlist until it is deleted or ctx is cancelled. Either way every
// unit enqueued before the stop is acknowledged before Run returns.
func (m *Monitor) Run(ctx context.Context) Result {
	defer m.state.Store(int32(StateTerminated))

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return m.fail(fmt.Errorf("create watcher: %w", err))
	}
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		watcher.Close()
		return m.fail(fmt.Errorf("watch %s: %w", filepath.Dir(m.path), err))
	}

	// The consumer must outlive a cancelled ctx so in-flight units finish.
	consumerCtx, stopConsumer := context.WithCancel(context.WithoutCancel(ctx))
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		dispatch.NewConsumer(m.queue, m.opts.Fetcher, m.opts.Sink).Run(consumerCtx)
	}()

	modified := make(chan struct{}, 1)
	removed := make(chan struct{})
	var removedOnce sync.Once
	markRemoved := func() { removedOnce.Do(func() { close(removed) }) }

	// relayErr is written by the relay goroutine and read after relayWG.Wait.
	var relayErr error
	var relayWG sync.WaitGroup
	relayWG.Add(1)
	go func() {
		defer relayWG.Done()
		defer func() {
			if r := recover(); r != nil {
				metrics.MonitorPanicsTotal.Inc()
				logger.Error("playlist relay panicked",
					logger.Path(m.path),
					logger.Any("panic", r),
					logger.Stack("stack"))
				relayErr = fmt.Errorf("%w: relay: %v", registry.ErrWorkerPanic, r)
				markRemoved()
			}
		}()
		m.relay(watcher, modified, markRemoved)
	}()

	logger.Info("playlist monitor started", logger.Path(m.path))
	m.produce(ctx)
	m.state.Store(int32(StateWatching))

	var reason Reason
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		// Removed before the watch was armed; no event will ever arrive.
		reason = ReasonDeleted
	} else {
		reason = m.loop(ctx, modified, removed)
	}

	watcher.Close()
	relayWG.Wait()

	// Join without a deadline: terminal state is only reported once drained.
	_ = m.queue.Join(context.Background())
	stopConsumer()
	<-consumerDone

	if relayErr != nil {
		return m.fail(relayErr)
	}
	metrics.MonitorExitsTotal.WithLabelValues(reason.String()).Inc()
	logger.Info("playlist monitor stopped",
		logger.Path(m.path),
		logger.String("reason", reason.String()),
		logger.String("kind", m.kind.String()))
	return Result{Path: m.path, Reason: reason}
}

func (m *Monitor) fail(err error) Result {
	metrics.MonitorExitsTotal.WithLabelValues(ReasonError.String()).Inc()
	logger.Error("playlist monitor failed", logger.Path(m.path), logger.ErrorField(err))
	return Result{Path: m.path, Reason: ReasonError, Err: err}
}

func (m *Monitor) loop(ctx context.Context, modified, removed <-chan struct{}) Reason {
	for {
		// Prefer terminal signals over pending modifications.
		select {
		case <-ctx.Done():
			return ReasonCancelled
		case <-removed:
			return ReasonDeleted
		default:
		}

		select {
		case <-ctx.Done():
			return ReasonCancelled
		case <-removed:
			return ReasonDeleted
		case <-modified:
			m.produce(ctx)
		}
	}
}

// relay forwards fsnotify events for the target file. It never blocks on the loop:
// modifications coalesce into a single pending signal, removal calls markRemoved.
func (m *Monitor) relay(w *fsnotify.Watcher, modified chan<- struct{}, markRemoved func()) {
	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != m.path {
				continue
			}
			switch {
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				markRemoved()
			case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
				select {
				case modified <- struct{}{}:
				default:
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Warn("playlist watcher error", logger.Path(m.path), logger.ErrorField(err))
		}
	}
}

// produce re-reads the playlist and enqueues its last segment.
func (m *Monitor) produce(ctx context.Context) {
	lines, err := playlist.ReadFile(m.path)
	if err != nil {
		metrics.ParseFailuresTotal.Inc()
		logger.Debug("playlist read skipped", logger.Path(m.path), logger.ErrorField(err))
		return
	}

	if m.kind == playlist.KindUnknown {
		if m.kind = playlist.Classify(lines); m.kind != playlist.KindUnknown {
			logger.Info("playlist classified", logger.Path(m.path), logger.String("kind", m.kind.String()))
		}
	}
	if m.kind == playlist.KindMaster {
		return
	}

	seg, ok := playlist.LastSegment(lines)
	if !ok {
		logger.Debug("no segment found", logger.Path(m.path))
		return
	}

	err = m.queue.Put(ctx, dispatch.Unit{Playlist: m.path, Segment: seg, EnqueuedAt: time.Now()})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("segment enqueue failed", logger.Path(m.path), logger.ErrorField(err))
	}
}

// Runner adapts monitors to the supervisor: one fresh Monitor per call. Deletion and
// cancellation are normal exits and return nil.
func Runner(opts Options) func(ctx context.Context, path string) error {
	return func(ctx context.Context, path string) error {
		res := New(path, opts).Run(ctx)
		return res.Err
	}
}
