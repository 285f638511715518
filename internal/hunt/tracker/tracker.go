// Package tracker correlates "use item on target" clicks with the feedback
// they produce and decides the outcome of each trial.
//
// A Tracker is driven from a single goroutine (the host's event loop) and is
// not safe for concurrent use. It only touches shared state through the
// registry and recent cache, which carry their own locks.
package tracker

import (
	"fmt"
	"log"

	"github.com/google/uuid"

	"nihhunt.ai/internal/hunt/recent"
	"nihhunt.ai/internal/hunt/registry"
)

// Feedback sentinels and user notices.
const (
	NothingInterestingHappens = "Nothing interesting happens."
	CantReach                 = "I can't reach that!"

	NoticeTooFast     = "Too fast!"
	NoticeInterrupted = "Uh oh! You clicked something else before we saw a Nothing interesting happens. Try again?"
	NoticeRestricted  = "Sorry, only some items work as the first item. Type \"::wiki nih\" for a list."
	NoticeNoNIH       = "We didn't see NIH. The object/NPC might have interactions for all items. Sending..."
)

// World answers the questions the tracker needs about the live game.
type World interface {
	PlayerPosition() (Position, bool)
	InventoryItem(slot int) (itemID int, ok bool)
	NPCDefinitionID(index int) (id int, ok bool)
	Username() string
}

type Notifier interface {
	Notify(text string)
}

// Reporter receives every resolved trial exactly once.
type Reporter interface {
	Report(o Outcome)
}

type Config struct {
	// DelayTolerance rejects an arm attempt this many ticks or fewer after the previous one.
	DelayTolerance int
	// MovementTolerance resolves a trial once the player has stood still this many ticks.
	MovementTolerance int
}

func DefaultConfig() Config {
	return Config{DelayTolerance: 1, MovementTolerance: 2}
}

type Deps struct {
	Registry *registry.Registry
	Recent   *recent.Cache
	World    World
	Notifier Notifier
	Reporter Reporter
	Logger   *log.Logger
}

type State int

const (
	Idle State = iota
	Armed
)

func (s State) String() string {
	if s == Armed {
		return "ARMED"
	}
	return "IDLE"
}

// PendingTrial is the single trial in flight.
type PendingTrial struct {
	ID               string
	ToolItemID       int
	TargetID         int
	Type             registry.EntityType
	Label            string
	ArmTick          int
	LastMovementTick int
	LastPosition     Position
	HasPosition      bool
}

type Stats struct {
	Armed          uint64
	TooFast        uint64
	Interrupted    uint64
	Unreachable    uint64
	ResolvedNIH    uint64
	ResolvedNoNIH  uint64
	StaleTarget    uint64
	RestrictedTool uint64
}

type Tracker struct {
	cfg  Config
	deps Deps

	state   State
	pending PendingTrial

	lastAttemptTick int
	attempted       bool
	tick            int

	stats Stats
}

func New(cfg Config, deps Deps) *Tracker {
	if cfg.DelayTolerance < 0 {
		cfg.DelayTolerance = 0
	}
	if cfg.MovementTolerance <= 0 {
		cfg.MovementTolerance = DefaultConfig().MovementTolerance
	}
	return &Tracker{cfg: cfg, deps: deps}
}

func (t *Tracker) State() State { return t.state }

// Pending returns the trial in flight, if any.
func (t *Tracker) Pending() (PendingTrial, bool) {
	return t.pending, t.state == Armed
}

func (t *Tracker) Stats() Stats { return t.stats }

// Reset drops any pending trial and forgets tick history, for a new host link.
func (t *Tracker) Reset() {
	if t.state == Armed {
		t.printf("trial %s abandoned", t.pending.ID)
	}
	t.reset()
	t.attempted = false
	t.lastAttemptTick = 0
	t.tick = 0
}

// OnAction handles one clicked menu entry.
func (t *Tracker) OnAction(ev ActionEvent) {
	t.observeTick(ev.Tick)
	et, isUse := ev.Kind.EntityType()
	if !isUse {
		if ev.Kind == ActionUseItem {
			return
		}
		if t.state == Armed {
			t.stats.Interrupted++
			t.printf("trial %s interrupted by action kind=%d", t.pending.ID, ev.Kind)
			t.notify(NoticeInterrupted)
			t.reset()
		}
		return
	}

	if t.state == Armed || (t.attempted && ev.Tick-t.lastAttemptTick <= t.cfg.DelayTolerance) {
		t.stats.TooFast++
		t.lastAttemptTick = ev.Tick
		t.attempted = true
		t.notify(NoticeTooFast)
		return
	}
	t.lastAttemptTick = ev.Tick
	t.attempted = true

	tool, ok := t.deps.World.InventoryItem(ev.Slot)
	if !ok {
		return
	}
	target := ev.TargetID
	if et == registry.NPC {
		def, ok := t.deps.World.NPCDefinitionID(ev.TargetID)
		if !ok {
			return
		}
		target = def
	}

	pos, hasPos := t.deps.World.PlayerPosition()
	t.pending = PendingTrial{
		ID:               uuid.NewString(),
		ToolItemID:       tool,
		TargetID:         target,
		Type:             et,
		Label:            ev.Label,
		ArmTick:          ev.Tick,
		LastMovementTick: ev.Tick,
		LastPosition:     pos,
		HasPosition:      hasPos,
	}
	t.state = Armed
	t.stats.Armed++
	t.printf("trial %s armed type=%s tool=%d target=%d tick=%d", t.pending.ID, et, tool, target, ev.Tick)
}

// OnFeedback handles one feedback line.
func (t *Tracker) OnFeedback(ev FeedbackEvent) {
	if t.state != Armed {
		return
	}
	if ev.Channel != ChannelEngine && ev.Channel != ChannelGame {
		return
	}
	switch ev.Text {
	case NothingInterestingHappens:
		// A GAME-channel NIH means a real interaction message was suppressed alongside it.
		t.resolve(ev.Channel == ChannelGame, true)
	case CantReach:
		t.stats.Unreachable++
		t.printf("trial %s unreachable", t.pending.ID)
		t.reset()
	}
}

// OnTick samples the player position once per game tick.
func (t *Tracker) OnTick(tick int) {
	t.observeTick(tick)
	if t.state != Armed {
		return
	}
	// Item-on-item never moves the player, so standing still proves nothing.
	if t.pending.Type == registry.Item {
		return
	}
	pos, ok := t.deps.World.PlayerPosition()
	if !ok {
		return
	}
	if !t.pending.HasPosition || pos != t.pending.LastPosition {
		t.pending.LastPosition = pos
		t.pending.HasPosition = true
		t.pending.LastMovementTick = tick
		return
	}
	if tick-t.pending.LastMovementTick >= t.cfg.MovementTolerance {
		t.resolve(false, false)
	}
}

func (t *Tracker) observeTick(tick int) {
	if tick > t.tick {
		t.tick = tick
	}
}

func (t *Tracker) resolve(interactable, sawNIH bool) {
	p := t.pending
	defer t.reset()

	reg := t.deps.Registry
	if !reg.IsConfirmed(p.Type, p.TargetID) {
		t.stats.StaleTarget++
		t.printf("trial %s dropped: %s %d no longer wanted", p.ID, p.Type, p.TargetID)
		return
	}
	if p.Type == registry.Item && !reg.IsAllowedTool(p.ToolItemID) {
		t.stats.RestrictedTool++
		t.notify(NoticeRestricted)
		return
	}

	if sawNIH {
		t.stats.ResolvedNIH++
		result := "has no interactions at all."
		if interactable {
			result = "has interactions!"
		}
		t.notify(fmt.Sprintf("%s %s Sending...", ReadableTarget(p.Label), result))
		// Record before demoting so a concurrent refresh can always re-demote it.
		if t.deps.Recent != nil {
			t.deps.Recent.Record(p.Type, p.TargetID)
		}
		reg.Demote(p.Type, p.TargetID)
	} else {
		t.stats.ResolvedNoNIH++
		t.notify(NoticeNoNIH)
		reg.MarkUnsure(p.Type, p.TargetID)
	}

	o := Outcome{
		TrialID:      p.ID,
		Type:         p.Type,
		ToolItemID:   p.ToolItemID,
		TargetID:     p.TargetID,
		Label:        p.Label,
		Interactable: interactable,
		SawNIH:       sawNIH,
		Username:     t.deps.World.Username(),
		ArmTick:      p.ArmTick,
		ResolvedTick: t.tick,
	}
	t.printf("trial %s resolved type=%s target=%d interactable=%t saw_nih=%t", p.ID, p.Type, p.TargetID, interactable, sawNIH)
	if t.deps.Reporter != nil {
		t.deps.Reporter.Report(o)
	}
}

func (t *Tracker) reset() {
	t.state = Idle
	t.pending = PendingTrial{}
}

func (t *Tracker) notify(text string) {
	if t.deps.Notifier != nil {
		t.deps.Notifier.Notify(text)
	}
}

func (t *Tracker) printf(format string, args ...any) {
	if t.deps.Logger != nil {
		t.deps.Logger.Printf(format, args...)
	}
}
