package widget

import (
	"context"
	"sync"
	"time"
)

// loop runs fn repeatedly on a Clock. The next run is scheduled only after the
// previous one returns, so runs never overlap.
type loop struct {
	clock    Clock
	interval time.Duration
	fn       func(ctx context.Context)

	mu      sync.Mutex
	timer   Timer
	stopped bool
	running sync.WaitGroup
}

func newLoop(clock Clock, interval time.Duration, fn func(ctx context.Context)) *loop {
	return &loop{clock: clock, interval: interval, fn: fn}
}

// start schedules the first run after delay.
func (l *loop) start(ctx context.Context, delay time.Duration) {
	l.schedule(ctx, delay)
}

func (l *loop) schedule(ctx context.Context, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.timer = l.clock.AfterFunc(d, func() { l.run(ctx) })
}

func (l *loop) run(ctx context.Context) {
	l.mu.Lock()
	if l.stopped || ctx.Err() != nil {
		l.mu.Unlock()
		return
	}
	l.running.Add(1)
	l.mu.Unlock()

	l.fn(ctx)
	l.running.Done()

	l.schedule(ctx, l.interval)
}

// stop cancels the pending run and waits for an in-flight one to return.
func (l *loop) stop() {
	l.mu.Lock()
	l.stopped = true
	if l.timer != nil {
		l.timer.Stop()
	}
	l.mu.Unlock()
	l.running.Wait()
}
