package protocol

import "encoding/json"

// Version is the host link protocol version.
const Version = "1.0"

// SubmitVersion is reported to the collector with every submission.
const SubmitVersion = "1.2"

// Message types on the host link.
const (
	TypeHello      = "HELLO"
	TypeWelcome    = "WELCOME"
	TypeAction     = "ACTION"
	TypeFeedback   = "FEEDBACK"
	TypeTick       = "TICK"
	TypeInventory  = "INVENTORY"
	TypeNPCSpawn   = "NPC_SPAWN"
	TypeNPCDespawn = "NPC_DESPAWN"
	TypeNotice     = "NOTICE"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
