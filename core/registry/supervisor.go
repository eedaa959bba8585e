package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"hlswatch/logger"
	"hlswatch/metrics"

	"golang.org/x/sync/semaphore"
)

// ErrWorkerPanic wraps a panic recovered from a monitor.
var ErrWorkerPanic = errors.New("registry: monitor panicked")

// RunFunc runs one monitor to completion.
type RunFunc func(ctx context.Context, path string) error

// Supervisor admits monitors into the registry and runs at most size of them at once.
//
// When every slot is busy, admission still succeeds: the path is registered right away
// (so later events for it are ignored) and its goroutine waits for a slot.
type Supervisor struct {
	reg  *Registry
	sem  *semaphore.Weighted
	size int64

	running atomic.Int64
	wg      sync.WaitGroup
}

func NewSupervisor(reg *Registry, size int) *Supervisor {
	if size < 1 {
		size = 1
	}
	return &Supervisor{
		reg:  reg,
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
	}
}

func (s *Supervisor) Registry() *Registry { return s.reg }

func (s *Supervisor) Size() int { return int(s.size) }

// Running counts monitors currently holding a slot.
func (s *Supervisor) Running() int { return int(s.running.Load()) }

// Launch starts run for path unless a monitor for path is already admitted.
// The registry entry is removed once run returns, panics, or never gets a slot
// because ctx ended first.
func (s *Supervisor) Launch(ctx context.Context, path string, run RunFunc) (*Handle, bool) {
	h, ok := s.reg.Reserve(path)
	if !ok {
		return nil, false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		var err error
		acquired := false
		// The path leaves the registry before its slot is handed to a queued monitor.
		defer func() {
			s.reg.Release(h, err)
			if acquired {
				s.sem.Release(1)
			}
		}()

		if !s.sem.TryAcquire(1) {
			metrics.MonitorsPending.Inc()
			logger.Info("monitor pool full, playlist queued",
				logger.Path(path),
				logger.Int64("capacity", s.size))
			err = s.sem.Acquire(ctx, 1)
			metrics.MonitorsPending.Dec()
			if err != nil {
				return
			}
		}
		acquired = true

		s.running.Add(1)
		metrics.MonitorsRunning.Inc()
		metrics.MonitorStartsTotal.Inc()
		defer func() {
			s.running.Add(-1)
			metrics.MonitorsRunning.Dec()
		}()

		h.markStarted()
		err = s.safeRun(ctx, path, run)
		if err != nil {
			logger.Warn("monitor exited with error", logger.Path(path), logger.ErrorField(err))
		}
	}()
	return h, true
}

func (s *Supervisor) safeRun(ctx context.Context, path string, run RunFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.MonitorPanicsTotal.Inc()
			logger.Error("monitor panicked",
				logger.Path(path),
				logger.Any("panic", r),
				logger.Stack("stack"))
			err = fmt.Errorf("%w: %v", ErrWorkerPanic, r)
		}
	}()
	return run(ctx, path)
}

// Wait blocks until every launched monitor has returned and been released.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}
