package session

import (
	"sort"

	"nihhunt.ai/internal/hunt/registry"
	"nihhunt.ai/internal/hunt/tracker"
)

type PendingView struct {
	TrialID    string `json:"trial_id"`
	Type       string `json:"type"`
	ToolItemID int    `json:"tool_item_id"`
	TargetID   int    `json:"target_id"`
	Target     string `json:"target"`
	ArmTick    int    `json:"arm_tick"`
}

type Status struct {
	Connected bool   `json:"connected"`
	SessionID string `json:"session_id,omitempty"`
	Username  string `json:"username,omitempty"`
	Tick      int    `json:"tick"`

	State   string        `json:"state"`
	Pending *PendingView  `json:"pending,omitempty"`
	Tracker tracker.Stats `json:"tracker"`

	Confirmed       map[string]int `json:"confirmed"`
	Unsure          map[string]int `json:"unsure"`
	AllowedTools    int            `json:"allowed_tools"`
	RegistryVersion uint64         `json:"registry_version"`

	RecentLen int `json:"recent_len"`
	RecentCap int `json:"recent_cap"`

	InventorySlots   int    `json:"inventory_slots"`
	NPCsTracked      int    `json:"npcs_tracked"`
	SnapshotsApplied uint64 `json:"snapshots_applied"`
	EventsHandled    uint64 `json:"events_handled"`
}

func (s *Session) status() Status {
	c := s.reg.Counts()
	st := Status{
		Connected:        s.host.connected,
		SessionID:        s.host.sessionID,
		Username:         s.host.username,
		Tick:             s.host.tick,
		State:            s.trk.State().String(),
		Tracker:          s.trk.Stats(),
		Confirmed:        map[string]int{},
		Unsure:           map[string]int{},
		AllowedTools:     c.AllowedTools,
		RegistryVersion:  c.Version,
		RecentLen:        s.rc.Len(),
		RecentCap:        s.rc.Cap(),
		InventorySlots:   len(s.host.inventory),
		NPCsTracked:      len(s.host.npcs),
		SnapshotsApplied: s.snapshotsApplied.Load(),
		EventsHandled:    s.eventsHandled.Load(),
	}
	for _, t := range registry.EntityTypes() {
		st.Confirmed[t.WireName()] = c.Confirmed[t]
		st.Unsure[t.WireName()] = c.Unsure[t]
	}
	if p, ok := s.trk.Pending(); ok {
		st.Pending = &PendingView{
			TrialID:    p.ID,
			Type:       p.Type.WireName(),
			ToolItemID: p.ToolItemID,
			TargetID:   p.TargetID,
			Target:     tracker.ReadableTarget(p.Label),
			ArmTick:    p.ArmTick,
		}
	}
	return st
}

const (
	HighlightNPC       = "npc"
	HighlightInventory = "inventory"
)

// Highlight is one thing on screen worth testing.
type Highlight struct {
	Kind string `json:"kind"`
	// Index is the NPC instance index or the inventory slot.
	Index  int  `json:"index"`
	ID     int  `json:"id"`
	Unsure bool `json:"unsure,omitempty"`
}

func (s *Session) highlights() []Highlight {
	var out []Highlight
	add := func(kind string, t registry.EntityType, index, id int) {
		if !s.reg.IsConfirmed(t, id) {
			return
		}
		h := Highlight{Kind: kind, Index: index, ID: id}
		if s.cfg.ShowUnsure && s.reg.IsUnsure(t, id) {
			h.Unsure = true
		}
		out = append(out, h)
	}
	for index, id := range s.host.npcs {
		add(HighlightNPC, registry.NPC, index, id)
	}
	for slot, id := range s.host.inventory {
		if id >= 0 {
			add(HighlightInventory, registry.Item, slot, id)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Index < out[j].Index
	})
	return out
}
