package tracker

import (
	"nihhunt.ai/internal/hunt/registry"
	"nihhunt.ai/internal/protocol"
)

// ActionKind is the menu action the player clicked.
type ActionKind int

const (
	ActionOther ActionKind = iota
	// ActionUseItem selects the tool; it never moves the player and never interrupts a trial.
	ActionUseItem
	ActionUseOnObject
	ActionUseOnNPC
	ActionUseOnItem
)

// EntityType reports which candidate sets a use-on action targets.
func (k ActionKind) EntityType() (registry.EntityType, bool) {
	switch k {
	case ActionUseOnObject:
		return registry.Object, true
	case ActionUseOnNPC:
		return registry.NPC, true
	case ActionUseOnItem:
		return registry.Item, true
	default:
		return 0, false
	}
}

func ParseActionKind(s string) ActionKind {
	switch s {
	case protocol.ActionUseOnObject:
		return ActionUseOnObject
	case protocol.ActionUseOnNPC:
		return ActionUseOnNPC
	case protocol.ActionUseOnItem:
		return ActionUseOnItem
	case protocol.ActionUseItem:
		return ActionUseItem
	default:
		return ActionOther
	}
}

type ActionEvent struct {
	Kind ActionKind
	// Slot is the inventory slot of the selected tool item.
	Slot int
	// TargetID is the object id, NPC instance index or item id depending on Kind.
	TargetID int
	Label    string
	Tick     int
}

type Channel int

const (
	ChannelOther Channel = iota
	ChannelEngine
	ChannelGame
)

func ParseChannel(s string) Channel {
	switch s {
	case protocol.ChannelEngine:
		return ChannelEngine
	case protocol.ChannelGame:
		return ChannelGame
	default:
		return ChannelOther
	}
}

type FeedbackEvent struct {
	Text    string
	Channel Channel
}

// Position is an opaque world coordinate; only equality matters.
type Position struct {
	X, Y, Plane int
}
