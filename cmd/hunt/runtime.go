package main

import (
	"io"
	"log"
	"path/filepath"
	"time"

	"nihhunt.ai/internal/collector"
	"nihhunt.ai/internal/config"
	"nihhunt.ai/internal/hunt/registry"
	"nihhunt.ai/internal/hunt/remotesync"
	"nihhunt.ai/internal/hunt/session"
	"nihhunt.ai/internal/hunt/tracker"
	"nihhunt.ai/internal/notify"
	"nihhunt.ai/internal/persistence/indexdb"
	"nihhunt.ai/internal/persistence/journal"
	"nihhunt.ai/internal/submit"
	"nihhunt.ai/internal/transport/host"
)

type runtimeOptions struct {
	DataDir        string
	DisableDB      bool
	DisableJournal bool
	Console        io.Writer
}

// huntRuntime wires one session to its collector, host link and read models.
type huntRuntime struct {
	cfg    config.Config
	logger *log.Logger

	client    *collector.Client
	session   *session.Session
	host      *host.Server
	syncer    *remotesync.Syncer
	submitter *submit.Submitter
	journal   *journal.Journal
	index     *indexdb.SQLiteIndex
	started   time.Time
}

func buildRuntime(cfg config.Config, opts runtimeOptions, logger *log.Logger) (*huntRuntime, error) {
	client, err := collector.New(cfg.CollectorConfig())
	if err != nil {
		return nil, err
	}
	rt := &huntRuntime{cfg: cfg, logger: logger, client: client, started: time.Now()}

	if !opts.DisableDB {
		idx, err := indexdb.OpenSQLite(filepath.Join(opts.DataDir, "index.sqlite"))
		if err != nil {
			return nil, err
		}
		rt.index = idx
	}
	if !opts.DisableJournal {
		rt.journal = journal.Open(filepath.Join(opts.DataDir, "journal"), func(err error) {
			rt.printf("journal write: %v", err)
		})
	}

	notifiers := notify.Multi{notify.Func(func(text string) {
		if rt.host != nil {
			rt.host.Notify(text)
		}
	})}
	if opts.Console != nil {
		notifiers = append(notifiers, notify.NewConsole(opts.Console))
	}

	rt.submitter = submit.New(client, notifiers, cfg.Submit.Workers, cfg.Submit.QueueCapacity, logger)

	reporters := session.Reporters{rt.submitter}
	if rt.journal != nil {
		reporters = append(reporters, rt.journal)
	}
	if rt.index != nil {
		reporters = append(reporters, rt.index)
	}

	rt.session = session.New(session.Config{
		Tracker:        cfg.TrackerConfig(),
		RecentCapacity: cfg.Tracker.RecentCapacity,
		ShowUnsure:     cfg.Overlay.ShowUnsure,
	}, session.Deps{
		Notifier: notifiers,
		Reporter: reporters,
		Logger:   logger,
	})
	rt.host = host.NewServer(rt.session, logger)

	rt.syncer = remotesync.New(remotesync.Config{
		Interval: cfg.SyncInterval(),
		Fetcher:  client,
		Apply:    rt.session.ApplySnapshot,
		Notifier: notifiers,
		Observe:  rt.observeSync,
		Logger:   logger,
	})
	return rt, nil
}

func (rt *huntRuntime) observeSync(res remotesync.Result) {
	confirmed := 0
	if res.Err == nil {
		for _, t := range registry.EntityTypes() {
			confirmed += len(res.Snapshot.Confirmed[t])
		}
	}
	if rt.journal != nil {
		rt.journal.RecordSync(res.Duration, confirmed, res.Err)
	}
	if rt.index != nil {
		rt.index.RecordSync(res.Duration, confirmed, res.Err)
	}
}

// Close stops background work; call it after the session loop has exited.
func (rt *huntRuntime) Close() {
	rt.syncer.Stop()
	rt.submitter.Close(5 * time.Second)
	if rt.journal != nil {
		if err := rt.journal.Close(); err != nil {
			rt.printf("journal close: %v", err)
		}
	}
	if rt.index != nil {
		if err := rt.index.Close(); err != nil {
			rt.printf("index close: %v", err)
		}
	}
}

func (rt *huntRuntime) printf(format string, args ...any) {
	if rt.logger != nil {
		rt.logger.Printf(format, args...)
	}
}

var _ tracker.Reporter = (*journal.Journal)(nil)
var _ tracker.Reporter = (*indexdb.SQLiteIndex)(nil)
var _ tracker.Reporter = (*submit.Submitter)(nil)
