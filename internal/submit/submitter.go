// Package submit reports resolved trials to the collector in the background.
// Delivery is best effort: nothing is retried and nothing survives a restart.
package submit

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"nihhunt.ai/internal/hunt/tracker"
	"nihhunt.ai/internal/protocol"
)

const FailedToSend = "Failed to send your most recent submission."

// Poster delivers one submission.
type Poster interface {
	Submit(ctx context.Context, sub protocol.SubmissionMsg) (protocol.SubmissionAck, error)
}

type Notifier interface {
	Notify(text string)
}

type Stats struct {
	QueueDepth      int
	QueueCapacity   int
	EnqueuedTotal   uint64
	DroppedTotal    uint64
	SentTotal       uint64
	FailedTotal     uint64
	LastSuccessUnix int64
	LastErrorUnix   int64
}

type Submitter struct {
	poster   Poster
	notifier Notifier
	logger   *log.Logger

	mu     sync.RWMutex
	closed bool
	jobs   chan protocol.SubmissionMsg
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	enqueuedTotal   atomic.Uint64
	droppedTotal    atomic.Uint64
	sentTotal       atomic.Uint64
	failedTotal     atomic.Uint64
	lastSuccessUnix atomic.Int64
	lastErrorUnix   atomic.Int64
}

func New(poster Poster, notifier Notifier, workers, queueCapacity int, logger *log.Logger) *Submitter {
	if workers <= 0 {
		workers = 1
	}
	if queueCapacity <= 0 {
		queueCapacity = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Submitter{
		poster:   poster,
		notifier: notifier,
		logger:   logger,
		jobs:     make(chan protocol.SubmissionMsg, queueCapacity),
		ctx:      ctx,
		cancel:   cancel,
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for sub := range s.jobs {
				s.sendOne(sub)
			}
		}()
	}
	return s
}

// Report queues o for delivery. It never blocks the caller; when the queue is
// full the outcome is dropped and the player is told.
func (s *Submitter) Report(o tracker.Outcome) {
	s.Enqueue(o.Submission())
}

func (s *Submitter) Enqueue(sub protocol.SubmissionMsg) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	s.enqueuedTotal.Add(1)
	select {
	case s.jobs <- sub:
	default:
		dropped := s.droppedTotal.Add(1)
		s.printf("submit drop type=%s id=%d reason=queue_saturated dropped_total=%d", sub.Type, sub.ID, dropped)
		s.notify(FailedToSend)
	}
}

// Close stops accepting work and waits up to grace for queued submissions;
// anything still in flight after that is canceled.
func (s *Submitter) Close(grace time.Duration) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.jobs)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		s.cancel()
		<-done
	}
	s.cancel()
}

func (s *Submitter) Stats() Stats {
	return Stats{
		QueueDepth:      len(s.jobs),
		QueueCapacity:   cap(s.jobs),
		EnqueuedTotal:   s.enqueuedTotal.Load(),
		DroppedTotal:    s.droppedTotal.Load(),
		SentTotal:       s.sentTotal.Load(),
		FailedTotal:     s.failedTotal.Load(),
		LastSuccessUnix: s.lastSuccessUnix.Load(),
		LastErrorUnix:   s.lastErrorUnix.Load(),
	}
}

func (s *Submitter) sendOne(sub protocol.SubmissionMsg) {
	ack, err := s.poster.Submit(s.ctx, sub)
	if err != nil {
		s.failedTotal.Add(1)
		s.lastErrorUnix.Store(time.Now().UTC().Unix())
		s.printf("submit failed type=%s id=%d err=%v", sub.Type, sub.ID, err)
		s.notify(FailedToSend)
		return
	}
	s.sentTotal.Add(1)
	s.lastSuccessUnix.Store(time.Now().UTC().Unix())
	s.printf("submit ok type=%s id=%d", sub.Type, sub.ID)
	s.notify(ack.Message)
}

func (s *Submitter) notify(text string) {
	if s.notifier != nil {
		s.notifier.Notify(text)
	}
}

func (s *Submitter) printf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
