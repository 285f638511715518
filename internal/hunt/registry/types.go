package registry

import "fmt"

// EntityType selects which candidate sets an id belongs to.
type EntityType int

const (
	Object EntityType = iota + 1
	NPC
	Item
)

var entityTypes = []EntityType{Object, NPC, Item}

// EntityTypes lists every valid EntityType.
func EntityTypes() []EntityType {
	return append([]EntityType(nil), entityTypes...)
}

func (t EntityType) Valid() bool {
	switch t {
	case Object, NPC, Item:
		return true
	default:
		return false
	}
}

// WireName is the collector's name for the type.
func (t EntityType) WireName() string {
	switch t {
	case Object:
		return "object"
	case NPC:
		return "npc"
	case Item:
		return "item"
	default:
		return ""
	}
}

func (t EntityType) String() string {
	if n := t.WireName(); n != "" {
		return n
	}
	return fmt.Sprintf("EntityType(%d)", int(t))
}

// ParseEntityType is the inverse of WireName.
func ParseEntityType(s string) (EntityType, bool) {
	for _, t := range entityTypes {
		if t.WireName() == s {
			return t, true
		}
	}
	return 0, false
}
