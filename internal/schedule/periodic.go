// Package schedule runs side effects on a fixed interval.
package schedule

import (
	"context"
	"sync"
	"time"
)

// Periodic calls fn immediately on Start and then once per interval until
// Stop or until the start context is canceled.
type Periodic struct {
	interval time.Duration
	fn       func(ctx context.Context)

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
	started   chan struct{}
}

func NewPeriodic(interval time.Duration, fn func(ctx context.Context)) *Periodic {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Periodic{
		interval: interval,
		fn:       fn,
		done:     make(chan struct{}),
		started:  make(chan struct{}),
	}
}

func (p *Periodic) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		ctx, p.cancel = context.WithCancel(ctx)
		close(p.started)
		go p.run(ctx)
	})
}

func (p *Periodic) run(ctx context.Context) {
	defer close(p.done)
	t := time.NewTicker(p.interval)
	defer t.Stop()

	p.fn(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.fn(ctx)
		}
	}
}

// Stop cancels the schedule and waits for the loop to exit. Calls already in
// progress are allowed to finish; Stop does not wait for work they spawned.
func (p *Periodic) Stop() {
	p.stopOnce.Do(func() {
		select {
		case <-p.started:
		default:
			return
		}
		p.cancel()
		<-p.done
	})
}
