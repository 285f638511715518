package protocol

// Menu actions reported by the host.
const (
	ActionUseOnObject = "USE_ON_OBJECT"
	ActionUseOnNPC    = "USE_ON_NPC"
	ActionUseOnItem   = "USE_ON_ITEM"
	// ActionUseItem is the tool-selection click that precedes a target click.
	ActionUseItem = "USE_ITEM"
	ActionOther   = "OTHER"
)

// Feedback channels.
const (
	ChannelEngine = "ENGINE"
	ChannelGame   = "GAME"
)

// HELLO (host -> daemon)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Username        string `json:"username"`
}

// WELCOME (daemon -> host)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
}

// ACTION (host -> daemon): one clicked menu entry.
type ActionMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            int    `json:"tick"`
	Action          string `json:"action"`
	Slot            int    `json:"slot"`
	TargetID        int    `json:"target_id"`
	Label           string `json:"label"`
}

// FEEDBACK (host -> daemon): one chat/feedback line.
type FeedbackMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Text            string `json:"text"`
	Channel         string `json:"channel"`
}

type Position struct {
	X     int `json:"x"`
	Y     int `json:"y"`
	Plane int `json:"plane"`
}

// TICK (host -> daemon): sent once per game tick.
type TickMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	Tick            int       `json:"tick"`
	Pos             *Position `json:"pos,omitempty"`
}

// INVENTORY (host -> daemon): item id per slot, -1 for an empty slot.
type InventoryMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Items           []int  `json:"items"`
}

type NPCSpawnMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Index           int    `json:"index"`
	ID              int    `json:"id"`
}

type NPCDespawnMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Index           int    `json:"index"`
}

// NOTICE (daemon -> host): a line to show the player.
type NoticeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Text            string `json:"text"`
}

func NewNotice(text string) NoticeMsg {
	return NoticeMsg{Type: TypeNotice, ProtocolVersion: Version, Text: text}
}
