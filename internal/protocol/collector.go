package protocol

// WantedMsg is the collector's list of candidates still worth testing.
type WantedMsg struct {
	ObjectIDs       []int `json:"objectIds"`
	ItemIDs         []int `json:"itemIds"`
	NPCIDs          []int `json:"npcIds"`
	UnsureObjectIDs []int `json:"unsureObjectIds"`
	UnsureItemIDs   []int `json:"unsureItemIds"`
	UnsureNPCIDs    []int `json:"unsureNpcIds"`
	AllowedItemIDs  []int `json:"allowedItemIds"`
}

// SubmissionMsg is one resolved trial.
type SubmissionMsg struct {
	Type         string `json:"type"`
	FirstItem    int    `json:"firstItem"`
	ID           int    `json:"id"`
	MenuTarget   string `json:"menuTarget"`
	Interactable bool   `json:"interactable"`
	Username     string `json:"username"`
	SawNIH       bool   `json:"sawNIH"`
	Version      string `json:"version"`
}

type SubmissionAck struct {
	Message string `json:"message"`
}
