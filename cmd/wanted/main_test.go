package main

import (
	"path/filepath"
	"testing"
	"time"

	"nihhunt.ai/internal/hunt/registry"
	"nihhunt.ai/internal/hunt/tracker"
	"nihhunt.ai/internal/persistence/journal"
)

func TestReadJournal(t *testing.T) {
	dir := t.TempDir()
	j := journal.Open(filepath.Join(dir, "journal"), nil)
	j.Report(tracker.Outcome{TrialID: "a", Type: registry.Object, TargetID: 1234, SawNIH: true})
	j.Report(tracker.Outcome{TrialID: "b", Type: registry.NPC, TargetID: 5555})
	j.RecordSync(time.Millisecond, 3, nil)
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "journal", "*.jsonl.zst"))
	if err != nil || len(files) == 0 {
		t.Fatalf("files=%v err=%v", files, err)
	}
	var kinds []string
	for _, f := range files {
		if err := readJournal(f, func(e journal.Entry) { kinds = append(kinds, e.Kind) }); err != nil {
			t.Fatalf("readJournal: %v", err)
		}
	}
	if len(kinds) != 3 || kinds[0] != journal.KindOutcome || kinds[2] != journal.KindSync {
		t.Fatalf("kinds=%v", kinds)
	}
}
