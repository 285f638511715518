package session

import "nihhunt.ai/internal/hunt/tracker"

// Reporters fans one outcome out to every non-nil reporter, in order.
type Reporters []tracker.Reporter

func (rs Reporters) Report(o tracker.Outcome) {
	for _, r := range rs {
		if r != nil {
			r.Report(o)
		}
	}
}
