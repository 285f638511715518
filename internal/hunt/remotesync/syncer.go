// Package remotesync keeps the registry in step with the collector's wanted list.
package remotesync

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"nihhunt.ai/internal/hunt/registry"
	"nihhunt.ai/internal/protocol"
	"nihhunt.ai/internal/schedule"
)

const (
	DefaultInterval = time.Minute

	FailedToLoad = "Failed to load the list of wanted interactions. Retrying in 1 minute."
)

type Fetcher interface {
	FetchWanted(ctx context.Context) (protocol.WantedMsg, error)
}

type Notifier interface {
	Notify(text string)
}

// Result describes one finished fetch.
type Result struct {
	Started  time.Time
	Duration time.Duration
	Snapshot registry.Snapshot
	Err      error
}

type Config struct {
	Interval time.Duration
	Fetcher  Fetcher
	// Apply installs a fresh snapshot. It is called from the fetch goroutine
	// and must hand off to whoever owns the registry.
	Apply    func(registry.Snapshot)
	Notifier Notifier
	// Observe, when set, sees every result, successful or not.
	Observe func(Result)
	Logger  *log.Logger
}

type Stats struct {
	Runs          uint64
	Failures      uint64
	LastSuccessAt int64
	LastErrorAt   int64
}

type Syncer struct {
	cfg      Config
	periodic *schedule.Periodic

	wg sync.WaitGroup

	runs          atomic.Uint64
	failures      atomic.Uint64
	lastSuccessAt atomic.Int64
	lastErrorAt   atomic.Int64
}

func New(cfg Config) *Syncer {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	s := &Syncer{cfg: cfg}
	s.periodic = schedule.NewPeriodic(cfg.Interval, s.trigger)
	return s
}

// Start fetches immediately and then once per interval until Stop.
func (s *Syncer) Start(ctx context.Context) { s.periodic.Start(ctx) }

// Stop halts the schedule and waits for fetches already in flight.
func (s *Syncer) Stop() {
	s.periodic.Stop()
	s.wg.Wait()
}

func (s *Syncer) Stats() Stats {
	return Stats{
		Runs:          s.runs.Load(),
		Failures:      s.failures.Load(),
		LastSuccessAt: s.lastSuccessAt.Load(),
		LastErrorAt:   s.lastErrorAt.Load(),
	}
}

// trigger never blocks the schedule; each firing fetches on its own goroutine.
func (s *Syncer) trigger(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.RunOnce(ctx)
	}()
}

// RunOnce performs one fetch-and-apply cycle synchronously.
func (s *Syncer) RunOnce(ctx context.Context) Result {
	s.runs.Add(1)
	res := Result{Started: time.Now()}
	msg, err := s.cfg.Fetcher.FetchWanted(ctx)
	res.Duration = time.Since(res.Started)
	if err != nil {
		res.Err = err
		s.failures.Add(1)
		s.lastErrorAt.Store(time.Now().UTC().Unix())
		s.printf("wanted fetch failed after %s: %v", res.Duration.Round(time.Millisecond), err)
		// Shutdown cancels in-flight fetches; that is not worth telling the player.
		if ctx.Err() == nil && s.cfg.Notifier != nil {
			s.cfg.Notifier.Notify(FailedToLoad)
		}
		s.observe(res)
		return res
	}
	res.Snapshot = registry.SnapshotFromWanted(msg)
	s.lastSuccessAt.Store(time.Now().UTC().Unix())
	s.printf("wanted list loaded objects=%d npcs=%d items=%d allowed=%d",
		len(msg.ObjectIDs), len(msg.NPCIDs), len(msg.ItemIDs), len(msg.AllowedItemIDs))
	if s.cfg.Apply != nil {
		s.cfg.Apply(res.Snapshot)
	}
	s.observe(res)
	return res
}

func (s *Syncer) observe(res Result) {
	if s.cfg.Observe != nil {
		s.cfg.Observe(res)
	}
}

func (s *Syncer) printf(format string, args ...any) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Printf(format, args...)
	}
}
