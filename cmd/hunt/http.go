package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"nihhunt.ai/internal/hunt/registry"
	"nihhunt.ai/internal/hunt/session"
)

func (rt *huntRuntime) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", rt.handleMetrics)
	mux.HandleFunc("/v1/state", rt.handleState)
	mux.HandleFunc("/v1/highlights", rt.handleHighlights)
	mux.HandleFunc("/v1/stats", rt.handleStats)
	mux.HandleFunc("/v1/host", rt.host.Handler())
	return mux
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func (rt *huntRuntime) handleState(rw http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	st, err := rt.session.Status(ctx)
	if err != nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	sync := rt.syncer.Stats()
	sub := rt.submitter.Stats()
	writeJSON(rw, http.StatusOK, map[string]any{
		"session":       st,
		"uptime_s":      int64(time.Since(rt.started).Seconds()),
		"wanted_url":    rt.client.WantedURL(),
		"submit_url":    rt.client.SubmitURL(),
		"sync_runs":     sync.Runs,
		"sync_failures": sync.Failures,
		"last_sync_ok":  sync.LastSuccessAt,
		"submit_queue":  sub.QueueDepth,
		"submit_sent":   sub.SentTotal,
		"submit_failed": sub.FailedTotal,
	})
}

func (rt *huntRuntime) handleHighlights(rw http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	hs, err := rt.session.Highlights(ctx)
	if err != nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	if hs == nil {
		hs = []session.Highlight{}
	}
	writeJSON(rw, http.StatusOK, map[string]any{"highlights": hs})
}

func (rt *huntRuntime) handleStats(rw http.ResponseWriter, r *http.Request) {
	if rt.index == nil {
		writeJSON(rw, http.StatusNotFound, map[string]any{"ok": false, "error": "index disabled"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	sum, err := rt.index.Summary(ctx)
	if err != nil {
		writeJSON(rw, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(rw, http.StatusOK, sum)
}

func (rt *huntRuntime) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	// Minimal Prometheus exposition format.
	c := rt.session.Registry().Counts()
	fmt.Fprintf(rw, "# HELP nihhunt_registry_confirmed Candidates still wanted, by type.\n")
	fmt.Fprintf(rw, "# TYPE nihhunt_registry_confirmed gauge\n")
	for _, t := range registry.EntityTypes() {
		fmt.Fprintf(rw, "nihhunt_registry_confirmed{type=%q} %d\n", t.WireName(), c.Confirmed[t])
	}
	fmt.Fprintf(rw, "# HELP nihhunt_registry_unsure Candidates seen without a NIH, by type.\n")
	fmt.Fprintf(rw, "# TYPE nihhunt_registry_unsure gauge\n")
	for _, t := range registry.EntityTypes() {
		fmt.Fprintf(rw, "nihhunt_registry_unsure{type=%q} %d\n", t.WireName(), c.Unsure[t])
	}
	fmt.Fprintf(rw, "# HELP nihhunt_registry_allowed_tools Items allowed as the first item on item targets.\n")
	fmt.Fprintf(rw, "# TYPE nihhunt_registry_allowed_tools gauge\n")
	fmt.Fprintf(rw, "nihhunt_registry_allowed_tools %d\n", c.AllowedTools)
	fmt.Fprintf(rw, "# HELP nihhunt_registry_version Wanted-list replacements applied.\n")
	fmt.Fprintf(rw, "# TYPE nihhunt_registry_version counter\n")
	fmt.Fprintf(rw, "nihhunt_registry_version %d\n", c.Version)

	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()
	if st, err := rt.session.Status(ctx); err == nil {
		armed := 0
		if st.Pending != nil {
			armed = 1
		}
		fmt.Fprintf(rw, "# HELP nihhunt_tracker_armed Whether a trial is in flight.\n")
		fmt.Fprintf(rw, "# TYPE nihhunt_tracker_armed gauge\n")
		fmt.Fprintf(rw, "nihhunt_tracker_armed %d\n", armed)
		fmt.Fprintf(rw, "# HELP nihhunt_tracker_events_total Tracker decisions by kind.\n")
		fmt.Fprintf(rw, "# TYPE nihhunt_tracker_events_total counter\n")
		ts := st.Tracker
		for _, kv := range []struct {
			name string
			v    uint64
		}{
			{"armed", ts.Armed},
			{"too_fast", ts.TooFast},
			{"interrupted", ts.Interrupted},
			{"unreachable", ts.Unreachable},
			{"resolved_nih", ts.ResolvedNIH},
			{"resolved_no_nih", ts.ResolvedNoNIH},
			{"stale_target", ts.StaleTarget},
			{"restricted_tool", ts.RestrictedTool},
		} {
			fmt.Fprintf(rw, "nihhunt_tracker_events_total{kind=%q} %d\n", kv.name, kv.v)
		}
		fmt.Fprintf(rw, "# HELP nihhunt_recent_entries Locally resolved ids remembered for reconciliation.\n")
		fmt.Fprintf(rw, "# TYPE nihhunt_recent_entries gauge\n")
		fmt.Fprintf(rw, "nihhunt_recent_entries %d\n", st.RecentLen)
	}

	hs := rt.host.Stats()
	connected := 0
	if hs.Connected {
		connected = 1
	}
	fmt.Fprintf(rw, "# HELP nihhunt_host_connected Whether a game client is linked.\n")
	fmt.Fprintf(rw, "# TYPE nihhunt_host_connected gauge\n")
	fmt.Fprintf(rw, "nihhunt_host_connected %d\n", connected)
	fmt.Fprintf(rw, "# HELP nihhunt_host_messages_total Host frames by outcome.\n")
	fmt.Fprintf(rw, "# TYPE nihhunt_host_messages_total counter\n")
	fmt.Fprintf(rw, "nihhunt_host_messages_total{result=%q} %d\n", "ok", hs.MessagesTotal)
	fmt.Fprintf(rw, "nihhunt_host_messages_total{result=%q} %d\n", "malformed", hs.MalformedTotal)
	fmt.Fprintf(rw, "# HELP nihhunt_host_notices_total Notices forwarded to the host.\n")
	fmt.Fprintf(rw, "# TYPE nihhunt_host_notices_total counter\n")
	fmt.Fprintf(rw, "nihhunt_host_notices_total{result=%q} %d\n", "sent", hs.NoticesSent)
	fmt.Fprintf(rw, "nihhunt_host_notices_total{result=%q} %d\n", "dropped", hs.NoticesDropped)

	ss := rt.syncer.Stats()
	fmt.Fprintf(rw, "# HELP nihhunt_sync_runs_total Wanted-list fetches by result.\n")
	fmt.Fprintf(rw, "# TYPE nihhunt_sync_runs_total counter\n")
	fmt.Fprintf(rw, "nihhunt_sync_runs_total{result=%q} %d\n", "ok", ss.Runs-ss.Failures)
	fmt.Fprintf(rw, "nihhunt_sync_runs_total{result=%q} %d\n", "error", ss.Failures)
	fmt.Fprintf(rw, "# HELP nihhunt_sync_last_success_unix Unix timestamp of the last good fetch.\n")
	fmt.Fprintf(rw, "# TYPE nihhunt_sync_last_success_unix gauge\n")
	fmt.Fprintf(rw, "nihhunt_sync_last_success_unix %d\n", ss.LastSuccessAt)

	sub := rt.submitter.Stats()
	fmt.Fprintf(rw, "# HELP nihhunt_submit_queue_depth Current submission queue depth.\n")
	fmt.Fprintf(rw, "# TYPE nihhunt_submit_queue_depth gauge\n")
	fmt.Fprintf(rw, "nihhunt_submit_queue_depth %d\n", sub.QueueDepth)
	fmt.Fprintf(rw, "# HELP nihhunt_submit_queue_capacity Submission queue capacity.\n")
	fmt.Fprintf(rw, "# TYPE nihhunt_submit_queue_capacity gauge\n")
	fmt.Fprintf(rw, "nihhunt_submit_queue_capacity %d\n", sub.QueueCapacity)
	fmt.Fprintf(rw, "# HELP nihhunt_submit_total Submissions by result.\n")
	fmt.Fprintf(rw, "# TYPE nihhunt_submit_total counter\n")
	fmt.Fprintf(rw, "nihhunt_submit_total{result=%q} %d\n", "sent", sub.SentTotal)
	fmt.Fprintf(rw, "nihhunt_submit_total{result=%q} %d\n", "failed", sub.FailedTotal)
	fmt.Fprintf(rw, "nihhunt_submit_total{result=%q} %d\n", "dropped", sub.DroppedTotal)

	if rt.index != nil {
		is := rt.index.Stats()
		fmt.Fprintf(rw, "# HELP nihhunt_index_queue_depth Index write-behind queue depth.\n")
		fmt.Fprintf(rw, "# TYPE nihhunt_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "nihhunt_index_queue_depth %d\n", is.QueueDepth)
		fmt.Fprintf(rw, "# HELP nihhunt_index_dropped_total Index rows dropped because the queue was full.\n")
		fmt.Fprintf(rw, "# TYPE nihhunt_index_dropped_total counter\n")
		fmt.Fprintf(rw, "nihhunt_index_dropped_total{kind=%q} %d\n", "outcome", is.DropOutcomeTotal)
		fmt.Fprintf(rw, "nihhunt_index_dropped_total{kind=%q} %d\n", "sync", is.DropSyncTotal)
		fmt.Fprintf(rw, "# HELP nihhunt_index_write_errors_total Index write errors.\n")
		fmt.Fprintf(rw, "# TYPE nihhunt_index_write_errors_total counter\n")
		fmt.Fprintf(rw, "nihhunt_index_write_errors_total %d\n", is.WriteErrorTotal)
	}
}
