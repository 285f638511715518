package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"nihhunt.ai/internal/hunt/registry"
	"nihhunt.ai/internal/hunt/tracker"
	"nihhunt.ai/internal/protocol"
)

type sink struct {
	mu       sync.Mutex
	notices  []string
	outcomes []tracker.Outcome
}

func (s *sink) Notify(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, text)
}

func (s *sink) Report(o tracker.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, o)
}

func (s *sink) reports() []tracker.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tracker.Outcome(nil), s.outcomes...)
}

type harness struct {
	t      *testing.T
	s      *Session
	sink   *sink
	cancel context.CancelFunc
	done   chan error
	sent   uint64
}

func start(t *testing.T, cfg Config) *harness {
	t.Helper()
	snk := &sink{}
	s := New(cfg, Deps{Notifier: snk, Reporter: snk})
	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{t: t, s: s, sink: snk, cancel: cancel, done: make(chan error, 1)}
	go func() { h.done <- s.Run(ctx) }()
	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	<-h.done
	h.cancel = nil
}

// flush waits until the loop has handled every host event sent so far.
func (h *harness) flush() {
	h.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for h.s.eventsHandled.Load() < h.sent {
		if time.Now().After(deadline) {
			h.t.Fatalf("loop handled %d of %d events", h.s.eventsHandled.Load(), h.sent)
		}
		time.Sleep(time.Millisecond)
	}
}

func (h *harness) apply(snap registry.Snapshot) {
	h.t.Helper()
	want := h.s.snapshotsApplied.Load() + 1
	h.s.ApplySnapshot(snap)
	deadline := time.Now().Add(5 * time.Second)
	for h.s.snapshotsApplied.Load() < want {
		if time.Now().After(deadline) {
			h.t.Fatalf("snapshot not applied")
		}
		time.Sleep(time.Millisecond)
	}
}

func (h *harness) connect(id, username string) {
	h.t.Helper()
	if err := h.s.HostConnected(context.Background(), id, username); err != nil {
		h.t.Fatalf("HostConnected: %v", err)
	}
	h.sent++
}

func (h *harness) send(id string, msg any) {
	h.t.Helper()
	if err := h.s.HostMessage(context.Background(), id, msg); err != nil {
		h.t.Fatalf("HostMessage: %v", err)
	}
	h.sent++
}

func (h *harness) disconnect(id string) {
	h.s.HostDisconnected(id)
	h.sent++
}

func tick(n int) *protocol.TickMsg {
	return &protocol.TickMsg{Type: protocol.TypeTick, Tick: n, Pos: &protocol.Position{X: 3200, Y: 3200}}
}

func useOn(action string, tickN, slot, target int, label string) *protocol.ActionMsg {
	return &protocol.ActionMsg{Type: protocol.TypeAction, Tick: tickN, Action: action, Slot: slot, TargetID: target, Label: label}
}

func nih(channel string) *protocol.FeedbackMsg {
	return &protocol.FeedbackMsg{Type: protocol.TypeFeedback, Text: tracker.NothingInterestingHappens, Channel: channel}
}

func wanted(objects, npcs, items []int) registry.Snapshot {
	return registry.SnapshotFromWanted(protocol.WantedMsg{ObjectIDs: objects, NPCIDs: npcs, ItemIDs: items, AllowedItemIDs: []int{995}})
}

func TestObjectTrialEndToEnd(t *testing.T) {
	h := start(t, DefaultConfig())
	h.apply(wanted([]int{1234}, nil, nil))
	h.connect("s1", "zezima")
	h.send("s1", &protocol.InventoryMsg{Items: []int{995, -1}})
	h.send("s1", tick(10))
	h.send("s1", useOn(protocol.ActionUseOnObject, 10, 0, 1234, "Use Coins -> Rock"))
	h.send("s1", nih(protocol.ChannelGame))
	h.flush()

	got := h.sink.reports()
	if len(got) != 1 {
		t.Fatalf("outcomes=%d want=1", len(got))
	}
	o := got[0]
	if o.Type != registry.Object || o.TargetID != 1234 || o.ToolItemID != 995 || !o.Interactable || !o.SawNIH || o.Username != "zezima" {
		t.Fatalf("outcome=%+v", o)
	}
	if h.s.Registry().IsConfirmed(registry.Object, 1234) {
		t.Fatalf("1234 still confirmed")
	}
}

func TestNPCTargetsResolveThroughRoster(t *testing.T) {
	h := start(t, DefaultConfig())
	h.apply(wanted(nil, []int{5555}, nil))
	h.connect("s1", "zezima")
	h.send("s1", &protocol.InventoryMsg{Items: []int{995}})
	h.send("s1", &protocol.NPCSpawnMsg{Index: 17, ID: 5555})
	h.send("s1", useOn(protocol.ActionUseOnNPC, 5, 0, 17, "Use Coins -> Man"))
	h.send("s1", nih(protocol.ChannelEngine))
	h.flush()

	got := h.sink.reports()
	if len(got) != 1 || got[0].TargetID != 5555 || got[0].Type != registry.NPC || got[0].Interactable {
		t.Fatalf("outcomes=%+v", got)
	}

	// A despawned index no longer resolves, so nothing arms.
	h.send("s1", &protocol.NPCDespawnMsg{Index: 17})
	h.send("s1", useOn(protocol.ActionUseOnNPC, 20, 0, 17, "Use Coins -> Man"))
	h.flush()
	st, err := h.s.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.State != tracker.Idle.String() || st.NPCsTracked != 0 {
		t.Fatalf("status=%+v", st)
	}
}

func TestStaleRefreshCannotResurrect(t *testing.T) {
	h := start(t, DefaultConfig())
	stale := wanted([]int{1234, 99}, nil, nil)
	h.apply(stale)
	h.connect("s1", "zezima")
	h.send("s1", &protocol.InventoryMsg{Items: []int{995}})
	h.send("s1", useOn(protocol.ActionUseOnObject, 10, 0, 1234, "Use Coins -> Rock"))
	h.send("s1", nih(protocol.ChannelEngine))
	h.flush()

	for i := 0; i < 3; i++ {
		h.apply(stale)
		if h.s.Registry().IsConfirmed(registry.Object, 1234) {
			t.Fatalf("refresh %d resurrected 1234", i)
		}
		if !h.s.Registry().IsConfirmed(registry.Object, 99) {
			t.Fatalf("refresh %d lost 99", i)
		}
	}
}

func TestOldLinkIgnoredAfterReconnect(t *testing.T) {
	h := start(t, DefaultConfig())
	h.apply(wanted([]int{1, 2}, nil, nil))
	h.connect("s1", "alt")
	h.send("s1", &protocol.InventoryMsg{Items: []int{995}})
	h.send("s1", useOn(protocol.ActionUseOnObject, 100, 0, 1, "Use Coins -> Rock"))
	h.flush()

	h.connect("s2", "main")
	// Late traffic from the replaced link, then its disconnect.
	h.send("s1", nih(protocol.ChannelGame))
	h.disconnect("s1")
	h.flush()

	st, err := h.s.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.Connected || st.SessionID != "s2" || st.Username != "main" || st.State != "IDLE" {
		t.Fatalf("status=%+v", st)
	}
	if n := len(h.sink.reports()); n != 0 {
		t.Fatalf("outcomes=%d want=0", n)
	}
	// Inventory was cleared with the old link; it must be resent.
	if st.InventorySlots != 0 {
		t.Fatalf("inventory slots=%d", st.InventorySlots)
	}

	h.disconnect("s2")
	h.flush()
	st, _ = h.s.Status(context.Background())
	if st.Connected {
		t.Fatalf("still connected after disconnect")
	}
}

func TestStatusShowsPendingTrial(t *testing.T) {
	h := start(t, DefaultConfig())
	h.apply(wanted([]int{1234}, nil, nil))
	h.connect("s1", "zezima")
	h.send("s1", &protocol.InventoryMsg{Items: []int{995}})
	h.send("s1", tick(41))
	h.send("s1", useOn(protocol.ActionUseOnObject, 42, 0, 1234, "Use Coins -> <col=ffff00>Rock"))
	h.flush()

	st, err := h.s.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.State != "ARMED" || st.Pending == nil {
		t.Fatalf("status=%+v", st)
	}
	if st.Pending.Target != "Rock" || st.Pending.TargetID != 1234 || st.Pending.Type != "object" || st.Pending.ArmTick != 42 {
		t.Fatalf("pending=%+v", st.Pending)
	}
	if st.Confirmed["object"] != 1 || st.AllowedTools != 1 || st.RecentCap != 60 || st.Tick != 41 {
		t.Fatalf("status=%+v", st)
	}
}

func TestHighlights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ShowUnsure = true
	h := start(t, cfg)
	snap := wanted(nil, []int{5555, 3010}, []int{222})
	snap.Unsure[registry.NPC] = []int{3010}
	h.apply(snap)
	h.connect("s1", "zezima")
	h.send("s1", &protocol.InventoryMsg{Items: []int{995, 222, -1, 222}})
	h.send("s1", &protocol.NPCSpawnMsg{Index: 18, ID: 3010})
	h.send("s1", &protocol.NPCSpawnMsg{Index: 17, ID: 5555})
	h.send("s1", &protocol.NPCSpawnMsg{Index: 19, ID: 1})
	h.flush()

	hs, err := h.s.Highlights(context.Background())
	if err != nil {
		t.Fatalf("Highlights: %v", err)
	}
	want := []Highlight{
		{Kind: HighlightInventory, Index: 1, ID: 222},
		{Kind: HighlightInventory, Index: 3, ID: 222},
		{Kind: HighlightNPC, Index: 17, ID: 5555},
		{Kind: HighlightNPC, Index: 18, ID: 3010, Unsure: true},
	}
	if len(hs) != len(want) {
		t.Fatalf("highlights=%+v", hs)
	}
	for i := range want {
		if hs[i] != want[i] {
			t.Fatalf("highlight[%d]=%+v want %+v", i, hs[i], want[i])
		}
	}
}

func TestApplySnapshotKeepsNewest(t *testing.T) {
	s := New(DefaultConfig(), Deps{})
	// Loop not running: the second snapshot replaces the first in the slot.
	s.ApplySnapshot(wanted([]int{1}, nil, nil))
	s.ApplySnapshot(wanted([]int{2}, nil, nil))
	snap := <-s.snapshots
	if got := snap.Confirmed[registry.Object]; len(got) != 1 || got[0] != 2 {
		t.Fatalf("queued snapshot=%v", got)
	}
}

func TestStoppedSessionRefusesWork(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := start(t, DefaultConfig())
	h.stop()

	if _, err := h.s.Status(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("Status err=%v", err)
	}
	if err := h.s.HostMessage(context.Background(), "s1", tick(1)); err != nil && !errors.Is(err, ErrStopped) {
		t.Fatalf("HostMessage err=%v", err)
	}
	h.s.ApplySnapshot(wanted([]int{1}, nil, nil))
	h.s.HostDisconnected("s1")
}

func TestReportersFanOut(t *testing.T) {
	a, b := &sink{}, &sink{}
	Reporters{a, nil, b}.Report(tracker.Outcome{TargetID: 7})
	if len(a.reports()) != 1 || len(b.reports()) != 1 {
		t.Fatalf("fan out failed")
	}
}
