package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// TickFunc runs one scheduled pass for the wall-clock instant now.
type TickFunc func(ctx context.Context, now time.Time) error

type Status struct {
	Running   bool          `json:"running"`
	Interval  time.Duration `json:"-"`
	LastTick  time.Time     `json:"lastTick,omitzero"`
	LastError string        `json:"lastError,omitempty"`
	Ticks     int64         `json:"ticks"`
}

type Scheduler struct {
	interval time.Duration
	tickFn   TickFunc
	now      func() time.Time

	running atomic.Bool
	ticks   atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	statusMu  sync.Mutex
	lastTick  time.Time
	lastError string
}

func New(interval time.Duration, tickFn TickFunc) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if tickFn == nil {
		return nil, errors.New("tickFn must not be nil")
	}
	return &Scheduler{
		interval: interval,
		tickFn:   tickFn,
		now:      time.Now,
		done:     make(chan struct{}),
	}, nil
}

// WithClock replaces the clock used to stamp each tick.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		slog.Info("scheduler started", "interval", s.interval.String())

		s.safeTick(ctx)

		for {
			select {
			case <-ctx.Done():
				slog.Info("scheduler stopping")
				return
			case <-ticker.C:
				s.safeTick(ctx)
			}
		}
	}()

	return true
}

// Stop cancels the running tick and waits for it to return.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	slog.Info("scheduler stopped")
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *Scheduler) Status() Status {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	return Status{
		Running:   s.running.Load(),
		Interval:  s.interval,
		LastTick:  s.lastTick,
		LastError: s.lastError,
		Ticks:     s.ticks.Load(),
	}
}

func (s *Scheduler) safeTick(ctx context.Context) {
	begun := time.Now()
	start := s.now()

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("tick panic: %v", r)
			}
		}()
		err = s.tickFn(ctx, start)
	}()

	s.statusMu.Lock()
	s.lastTick = start
	s.lastError = ""
	if err != nil {
		s.lastError = err.Error()
	}
	s.ticks.Add(1)
	s.statusMu.Unlock()

	if err != nil {
		slog.Error("scheduler tick failed", "error", err)
		return
	}
	slog.Info("scheduler tick completed", "duration_ms", time.Since(begun).Milliseconds())
}
