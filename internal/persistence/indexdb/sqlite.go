// Package indexdb keeps a queryable sqlite copy of trial outcomes and sync
// runs. It is a read model for the stats endpoint; the hunt never restores
// state from it.
package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"nihhunt.ai/internal/hunt/tracker"
)

const defaultQueueCapacity = 4096

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropOutcomeTotal atomic.Uint64
	dropSyncTotal    atomic.Uint64
	writeErrorTotal  atomic.Uint64
}

type reqKind int

const (
	reqOutcome reqKind = iota + 1
	reqSync
	reqFlush
)

type req struct {
	kind reqKind

	outcome outcomeRow
	sync    syncRow
	done    chan struct{}
}

type outcomeRow struct {
	TrialID      string
	Type         string
	ToolItemID   int
	TargetID     int
	Label        string
	Interactable bool
	SawNIH       bool
	Username     string
	ArmTick      int
	ResolvedTick int
	RecordedAt   string
}

type syncRow struct {
	OK         bool
	Error      string
	DurationMS int64
	Confirmed  int
	RecordedAt string
}

type Stats struct {
	QueueDepth       int
	QueueCapacity    int
	DropOutcomeTotal uint64
	DropSyncTotal    uint64
	WriteErrorTotal  uint64
}

// Summary aggregates everything recorded so far.
type Summary struct {
	Outcomes         int            `json:"outcomes"`
	ByType           map[string]int `json:"by_type"`
	SawNIH           int            `json:"saw_nih"`
	Interactable     int            `json:"interactable"`
	DistinctTargets  int            `json:"distinct_targets"`
	SyncRuns         int            `json:"sync_runs"`
	SyncFailures     int            `json:"sync_failures"`
	LastSyncAt       string         `json:"last_sync_at,omitempty"`
	LastOutcomeAt    string         `json:"last_outcome_at,omitempty"`
	LastOutcomeLabel string         `json:"last_outcome_label,omitempty"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, defaultQueueCapacity)
}

func openSQLite(path string, queueCapacity int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{db: db, ch: make(chan req, queueCapacity)}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS outcomes (
			trial_id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			tool_item_id INTEGER NOT NULL,
			target_id INTEGER NOT NULL,
			label TEXT NOT NULL,
			interactable INTEGER NOT NULL,
			saw_nih INTEGER NOT NULL,
			username TEXT NOT NULL,
			arm_tick INTEGER NOT NULL,
			resolved_tick INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_type_target ON outcomes(type, target_id);`,
		`CREATE TABLE IF NOT EXISTS sync_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ok INTEGER NOT NULL,
			error TEXT,
			duration_ms INTEGER NOT NULL,
			confirmed INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Report queues one outcome. It never blocks; when the writer falls behind
// the row is dropped and counted.
func (s *SQLiteIndex) Report(o tracker.Outcome) {
	if s == nil || s.closed.Load() {
		return
	}
	r := outcomeRow{
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
		RecordedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqOutcome, outcome: r}:
	default:
		s.dropOutcomeTotal.Add(1)
	}
}

func (s *SQLiteIndex) RecordSync(d time.Duration, confirmed int, err error) {
	if s == nil || s.closed.Load() {
		return
	}
	r := syncRow{
		OK:         err == nil,
		DurationMS: d.Milliseconds(),
		Confirmed:  confirmed,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err != nil {
		r.Error = err.Error()
	}
	select {
	case s.ch <- req{kind: reqSync, sync: r}:
	default:
		s.dropSyncTotal.Add(1)
	}
}

// Flush waits until everything queued before the call is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:       len(s.ch),
		QueueCapacity:    cap(s.ch),
		DropOutcomeTotal: s.dropOutcomeTotal.Load(),
		DropSyncTotal:    s.dropSyncTotal.Load(),
		WriteErrorTotal:  s.writeErrorTotal.Load(),
	}
}

func (s *SQLiteIndex) Summary(ctx context.Context) (Summary, error) {
	out := Summary{ByType: map[string]int{}}
	if s == nil {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM outcomes GROUP BY type`)
	if err != nil {
		return out, err
	}
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			_ = rows.Close()
			return out, err
		}
		out.ByType[typ] = n
		out.Outcomes += n
	}
	if err := rows.Close(); err != nil {
		return out, err
	}

	if err := s.db.QueryRowContext(ctx, `SELECT
			COALESCE(SUM(saw_nih),0),
			COALESCE(SUM(interactable),0),
			COUNT(DISTINCT type || ':' || target_id)
		FROM outcomes`).Scan(&out.SawNIH, &out.Interactable, &out.DistinctTargets); err != nil {
		return out, err
	}
	var lastAt, lastLabel sql.NullString
	err = s.db.QueryRowContext(ctx, `SELECT recorded_at, label FROM outcomes ORDER BY recorded_at DESC LIMIT 1`).Scan(&lastAt, &lastLabel)
	if err != nil && err != sql.ErrNoRows {
		return out, err
	}
	out.LastOutcomeAt, out.LastOutcomeLabel = lastAt.String, lastLabel.String

	var lastSync sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN ok=0 THEN 1 ELSE 0 END),0),
			MAX(recorded_at)
		FROM sync_runs`).Scan(&out.SyncRuns, &out.SyncFailures, &lastSync); err != nil {
		return out, err
	}
	out.LastSyncAt = lastSync.String
	return out, nil
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertOutcome, _ := s.db.Prepare(`INSERT OR REPLACE INTO outcomes(trial_id,type,tool_item_id,target_id,label,interactable,saw_nih,username,arm_tick,resolved_tick,recorded_at) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	insertSync, _ := s.db.Prepare(`INSERT INTO sync_runs(ok,error,duration_ms,confirmed,recorded_at) VALUES(?,?,?,?,?)`)
	defer func() {
		if insertOutcome != nil {
			_ = insertOutcome.Close()
		}
		if insertSync != nil {
			_ = insertSync.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		commitEvery   = 256
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.writeErrorTotal.Add(1)
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErrorTotal.Add(1)
		}
		tx = nil
		opCount = 0
	}
	rollback := func() {
		s.writeErrorTotal.Add(1)
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
	}

	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	for {
		var r req
		var ok bool
		select {
		case r, ok = <-s.ch:
		case <-ticker.C:
			commit()
			continue
		}
		if !ok {
			break
		}
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqOutcome:
			o := r.outcome
			if insertOutcome == nil {
				rollback()
				continue
			}
			if _, err := tx.Stmt(insertOutcome).Exec(
				o.TrialID, o.Type, o.ToolItemID, o.TargetID, o.Label,
				boolInt(o.Interactable), boolInt(o.SawNIH), o.Username,
				o.ArmTick, o.ResolvedTick, o.RecordedAt,
			); err != nil {
				rollback()
				continue
			}
			opCount++
		case reqSync:
			sr := r.sync
			if insertSync == nil {
				rollback()
				continue
			}
			if _, err := tx.Stmt(insertSync).Exec(boolInt(sr.OK), sr.Error, sr.DurationMS, sr.Confirmed, sr.RecordedAt); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		if opCount >= commitEvery {
			commit()
		}
	}
	commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
