package tracker

import (
	"regexp"
	"strings"

	"nihhunt.ai/internal/hunt/registry"
	"nihhunt.ai/internal/protocol"
)

// Outcome is one resolved trial.
type Outcome struct {
	TrialID      string
	Type         registry.EntityType
	ToolItemID   int
	TargetID     int
	Label        string
	Interactable bool
	SawNIH       bool
	Username     string
	ArmTick      int
	ResolvedTick int
}

func (o Outcome) Submission() protocol.SubmissionMsg {
	return protocol.SubmissionMsg{
		Type:         o.Type.WireName(),
		FirstItem:    o.ToolItemID,
		ID:           o.TargetID,
		MenuTarget:   o.Label,
		Interactable: o.Interactable,
		Username:     o.Username,
		SawNIH:       o.SawNIH,
		Version:      protocol.SubmitVersion,
	}
}

var markupTag = regexp.MustCompile(`<[^>]*>`)

// ReadableTarget strips markup from a menu label and drops the "Use X ->" prefix.
func ReadableTarget(label string) string {
	s := markupTag.ReplaceAllString(label, "")
	parts := strings.Split(s, " -> ")
	if len(parts) == 2 {
		s = parts[1]
	}
	return s
}
