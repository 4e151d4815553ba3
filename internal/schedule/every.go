package schedule

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Source is anything that produces a fresh value on demand: a poll today,
// possibly a push subscription later.
type Source func(ctx context.Context) error

// Task is a fixed-interval polling loop started by Every.
type Task struct {
	name     string
	clock    Clock
	interval time.Duration
	fn       Source
	logger   *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	timer   Timer
	stopped bool
	done    chan struct{}
}

// Every runs fn immediately and then once per interval until ctx is done or
// Cancel is called. A failed tick is logged and the task keeps its cadence;
// there is no retry or backoff.
func Every(ctx context.Context, clock Clock, name string, interval time.Duration, fn Source, logger *zap.Logger) *Task {
	if clock == nil {
		clock = RealClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{
		name:     name,
		clock:    clock,
		interval: interval,
		fn:       fn,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go func() {
		<-ctx.Done()
		t.stop()
	}()
	t.tick()
	return t
}

func (t *Task) tick() {
	if t.ctx.Err() != nil {
		return
	}
	if err := t.fn(t.ctx); err != nil && t.ctx.Err() == nil {
		t.logger.Warn("poll failed", zap.String("task", t.name), zap.Error(err))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.timer = t.clock.AfterFunc(t.interval, t.tick)
}

func (t *Task) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
	}
	close(t.done)
}

// Cancel stops the task. It is safe to call more than once.
func (t *Task) Cancel() {
	t.cancel()
	t.stop()
}

// Done is closed once the task has stopped scheduling ticks.
func (t *Task) Done() <-chan struct{} { return t.done }
