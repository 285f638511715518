// Package journal appends resolved trials and sync runs to hourly
// zstd-compressed JSONL files. It is an audit trail only; nothing reads it
// back at startup.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"nihhunt.ai/internal/hunt/tracker"
)

const (
	KindOutcome = "OUTCOME"
	KindSync    = "SYNC"
)

type Entry struct {
	Kind string `json:"kind"`
	At   string `json:"at"`

	TrialID      string `json:"trial_id,omitempty"`
	Type         string `json:"type,omitempty"`
	ToolItemID   int    `json:"tool_item_id,omitempty"`
	TargetID     int    `json:"target_id,omitempty"`
	Label        string `json:"label,omitempty"`
	Interactable bool   `json:"interactable,omitempty"`
	SawNIH       bool   `json:"saw_nih,omitempty"`
	Username     string `json:"username,omitempty"`
	ArmTick      int    `json:"arm_tick,omitempty"`
	ResolvedTick int    `json:"resolved_tick,omitempty"`

	SyncOK         bool   `json:"sync_ok,omitempty"`
	SyncError      string `json:"sync_error,omitempty"`
	SyncDurationMS int64  `json:"sync_duration_ms,omitempty"`
	Confirmed      int    `json:"confirmed,omitempty"`
}

// Writer rotates to a new file at the top of every UTC hour.
type Writer struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewWriter(baseDir, prefix string) *Writer {
	return &Writer{baseDir: baseDir, prefix: prefix, now: time.Now}
}

func (w *Writer) Append(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now().UTC()
	if e.At == "" {
		e.At = now.Format(time.RFC3339Nano)
	}
	hour := now.Format("2006-01-02-15")
	if hour != w.curHour || w.w == nil {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

// PathForHour names the file that holds entries written during hour
// (formatted 2006-01-02-15).
func (w *Writer) PathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

func (w *Writer) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.PathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f, w.enc, w.curHour = f, enc, hour
	w.w = bufio.NewWriterSize(enc, 64*1024)
	return nil
}

func (w *Writer) closeLocked() error {
	var err error
	if w.w != nil {
		err = w.w.Flush()
	}
	if w.enc != nil {
		if cerr := w.enc.Close(); err == nil {
			err = cerr
		}
	}
	if w.f != nil {
		if cerr := w.f.Close(); err == nil {
			err = cerr
		}
	}
	w.w, w.enc, w.f = nil, nil, nil
	w.curHour = ""
	return err
}

// Journal records trial outcomes; it satisfies tracker.Reporter.
type Journal struct {
	w      *Writer
	onFail func(error)
}

// Open journals under dir. onFail, if set, sees write errors, which are
// otherwise swallowed so a full disk never stalls the hunt.
func Open(dir string, onFail func(error)) *Journal {
	return &Journal{w: NewWriter(dir, "outcomes"), onFail: onFail}
}

func (j *Journal) Report(o tracker.Outcome) {
	j.write(Entry{
		Kind:         KindOutcome,
		TrialID:      o.TrialID,
		Type:         o.Type.WireName(),
		ToolItemID:   o.ToolItemID,
		TargetID:     o.TargetID,
		Label:        o.Label,
		Interactable: o.Interactable,
		SawNIH:       o.SawNIH,
		Username:     o.Username,
		ArmTick:      o.ArmTick,
		ResolvedTick: o.ResolvedTick,
	})
}

// RecordSync notes one wanted-list fetch.
func (j *Journal) RecordSync(d time.Duration, confirmed int, err error) {
	e := Entry{Kind: KindSync, SyncOK: err == nil, SyncDurationMS: d.Milliseconds(), Confirmed: confirmed}
	if err != nil {
		e.SyncError = err.Error()
	}
	j.write(e)
}

func (j *Journal) Close() error { return j.w.Close() }

func (j *Journal) write(e Entry) {
	if err := j.w.Append(e); err != nil && j.onFail != nil {
		j.onFail(err)
	}
}
