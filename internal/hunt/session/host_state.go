package session

import (
	"nihhunt.ai/internal/hunt/tracker"
	"nihhunt.ai/internal/protocol"
)

// hostState mirrors what the connected client last told us. It implements
// tracker.World for the tracker running on the same goroutine.
type hostState struct {
	connected bool
	sessionID string
	username  string

	tick      int
	pos       tracker.Position
	hasPos    bool
	inventory []int
	npcs      map[int]int
}

func newHostState() hostState {
	return hostState{npcs: map[int]int{}}
}

func (h *hostState) attach(sessionID, username string) {
	*h = newHostState()
	h.connected = true
	h.sessionID = sessionID
	h.username = username
}

func (h *hostState) detach() {
	*h = newHostState()
}

func (h *hostState) observeTick(m *protocol.TickMsg) {
	h.tick = m.Tick
	if m.Pos == nil {
		h.hasPos = false
		return
	}
	h.pos = tracker.Position{X: m.Pos.X, Y: m.Pos.Y, Plane: m.Pos.Plane}
	h.hasPos = true
}

func (h *hostState) setInventory(items []int) {
	h.inventory = append(h.inventory[:0], items...)
}

func (h *hostState) PlayerPosition() (tracker.Position, bool) { return h.pos, h.hasPos }

func (h *hostState) InventoryItem(slot int) (int, bool) {
	if slot < 0 || slot >= len(h.inventory) {
		return 0, false
	}
	id := h.inventory[slot]
	if id < 0 {
		return 0, false
	}
	return id, true
}

func (h *hostState) NPCDefinitionID(index int) (int, bool) {
	id, ok := h.npcs[index]
	return id, ok
}

func (h *hostState) Username() string { return h.username }
