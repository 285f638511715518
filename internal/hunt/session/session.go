// Package session owns one hunt: the candidate registry, the recent cache and
// the trial tracker, all driven from a single event loop.
//
// Host traffic, wanted-list snapshots and status queries all enter through
// channels and are handled one at a time by Run, so the tracker never sees
// concurrent calls and a refresh can never land in the middle of a trial
// resolution.
package session

import (
	"context"
	"errors"
	"log"
	"sync/atomic"

	"nihhunt.ai/internal/hunt/recent"
	"nihhunt.ai/internal/hunt/registry"
	"nihhunt.ai/internal/hunt/tracker"
	"nihhunt.ai/internal/protocol"
)

var ErrStopped = errors.New("session stopped")

type Config struct {
	Tracker        tracker.Config
	RecentCapacity int
	// ShowUnsure marks highlights whose target is also in the unsure set.
	ShowUnsure bool
	InboxSize  int
}

func DefaultConfig() Config {
	return Config{
		Tracker:        tracker.DefaultConfig(),
		RecentCapacity: recent.DefaultCapacity,
		ShowUnsure:     false,
		InboxSize:      256,
	}
}

type Deps struct {
	Notifier tracker.Notifier
	Reporter tracker.Reporter
	Logger   *log.Logger
}

type hostEvent struct {
	kind      hostEventKind
	sessionID string
	username  string
	msg       any
}

type hostEventKind int

const (
	hostConnected hostEventKind = iota + 1
	hostMessage
	hostDisconnected
)

type Session struct {
	cfg  Config
	log  *log.Logger
	reg  *registry.Registry
	rc   *recent.Cache
	trk  *tracker.Tracker
	deps Deps

	events    chan hostEvent
	snapshots chan registry.Snapshot
	statusReq chan chan Status
	highReq   chan chan []Highlight
	stopped   chan struct{}

	// Host-side state, owned by the Run goroutine.
	host hostState

	snapshotsApplied atomic.Uint64
	eventsHandled    atomic.Uint64
}

func New(cfg Config, deps Deps) *Session {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = DefaultConfig().InboxSize
	}
	s := &Session{
		cfg:       cfg,
		log:       deps.Logger,
		reg:       registry.New(),
		rc:        recent.New(cfg.RecentCapacity),
		deps:      deps,
		events:    make(chan hostEvent, cfg.InboxSize),
		snapshots: make(chan registry.Snapshot, 1),
		statusReq: make(chan chan Status),
		highReq:   make(chan chan []Highlight),
		stopped:   make(chan struct{}),
		host:      newHostState(),
	}
	s.trk = tracker.New(cfg.Tracker, tracker.Deps{
		Registry: s.reg,
		Recent:   s.rc,
		World:    &s.host,
		Notifier: deps.Notifier,
		Reporter: deps.Reporter,
		Logger:   deps.Logger,
	})
	return s
}

// Registry is exposed for read-only inspection; mutate it only through the session.
func (s *Session) Registry() *registry.Registry { return s.reg }

func (s *Session) Recent() *recent.Cache { return s.rc }

// Run processes events until ctx is canceled.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.stopped)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap := <-s.snapshots:
			s.applySnapshot(snap)
		case ev := <-s.events:
			s.handleHostEvent(ev)
			s.eventsHandled.Add(1)
		case resp := <-s.statusReq:
			resp <- s.status()
		case resp := <-s.highReq:
			resp <- s.highlights()
		}
	}
}

// ApplySnapshot hands a fresh wanted list to the loop. A snapshot still
// waiting to be applied is superseded by the newer one.
func (s *Session) ApplySnapshot(snap registry.Snapshot) {
	for {
		select {
		case <-s.stopped:
			return
		case s.snapshots <- snap:
			return
		default:
		}
		select {
		case <-s.snapshots:
		default:
		}
	}
}

func (s *Session) applySnapshot(snap registry.Snapshot) {
	// Replay local results so a list fetched before the collector saw them
	// cannot resurrect them.
	s.reg.ReplaceAndReconcile(snap, s.rc)
	s.snapshotsApplied.Add(1)
	c := s.reg.Counts()
	s.printf("wanted list applied version=%d objects=%d npcs=%d items=%d recent=%d",
		c.Version, c.Confirmed[registry.Object], c.Confirmed[registry.NPC], c.Confirmed[registry.Item], s.rc.Len())
}

func (s *Session) HostConnected(ctx context.Context, sessionID, username string) error {
	return s.send(ctx, hostEvent{kind: hostConnected, sessionID: sessionID, username: username})
}

func (s *Session) HostMessage(ctx context.Context, sessionID string, msg any) error {
	return s.send(ctx, hostEvent{kind: hostMessage, sessionID: sessionID, msg: msg})
}

func (s *Session) HostDisconnected(sessionID string) {
	_ = s.send(context.Background(), hostEvent{kind: hostDisconnected, sessionID: sessionID})
}

func (s *Session) send(ctx context.Context, ev hostEvent) error {
	select {
	case s.events <- ev:
		return nil
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) handleHostEvent(ev hostEvent) {
	switch ev.kind {
	case hostConnected:
		if s.host.connected {
			s.printf("host %s superseded by %s", s.host.sessionID, ev.sessionID)
		}
		s.host.attach(ev.sessionID, ev.username)
		s.trk.Reset()
		return
	case hostDisconnected:
		if ev.sessionID != s.host.sessionID {
			return
		}
		s.host.detach()
		s.trk.Reset()
		return
	}

	if ev.sessionID != s.host.sessionID || !s.host.connected {
		return
	}
	switch m := ev.msg.(type) {
	case *protocol.ActionMsg:
		s.trk.OnAction(tracker.ActionEvent{
			Kind:     tracker.ParseActionKind(m.Action),
			Slot:     m.Slot,
			TargetID: m.TargetID,
			Label:    m.Label,
			Tick:     m.Tick,
		})
	case *protocol.FeedbackMsg:
		s.trk.OnFeedback(tracker.FeedbackEvent{Text: m.Text, Channel: tracker.ParseChannel(m.Channel)})
	case *protocol.TickMsg:
		s.host.observeTick(m)
		s.trk.OnTick(m.Tick)
	case *protocol.InventoryMsg:
		s.host.setInventory(m.Items)
	case *protocol.NPCSpawnMsg:
		s.host.npcs[m.Index] = m.ID
	case *protocol.NPCDespawnMsg:
		delete(s.host.npcs, m.Index)
	}
}

// Status returns a consistent view of the session, taken on the loop.
func (s *Session) Status(ctx context.Context) (Status, error) {
	resp := make(chan Status, 1)
	select {
	case s.statusReq <- resp:
	case <-s.stopped:
		return Status{}, ErrStopped
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
	select {
	case st := <-resp:
		return st, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// Highlights lists what a client overlay should mark right now.
func (s *Session) Highlights(ctx context.Context) ([]Highlight, error) {
	resp := make(chan []Highlight, 1)
	select {
	case s.highReq <- resp:
	case <-s.stopped:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case hs := <-resp:
		return hs, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) printf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}
