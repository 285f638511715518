package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"nihhunt.ai/internal/config"
	"nihhunt.ai/internal/hunt/registry"
	"nihhunt.ai/internal/persistence/indexdb"
	"nihhunt.ai/internal/protocol"
)

const wantedBody = `{
	"objectIds": [1234, 99],
	"itemIds": [],
	"npcIds": [5555],
	"unsureObjectIds": [],
	"unsureItemIds": [],
	"unsureNpcIds": [],
	"allowedItemIds": [995]
}`

type fakeCollector struct {
	mu          sync.Mutex
	submissions []protocol.SubmissionMsg
}

func (f *fakeCollector) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/wanted", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(rw, wantedBody)
	})
	mux.HandleFunc("/submit", func(rw http.ResponseWriter, r *http.Request) {
		var sub protocol.SubmissionMsg
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.submissions = append(f.submissions, sub)
		f.mu.Unlock()
		_, _ = io.WriteString(rw, `{"message":"Thanks for submitting!"}`)
	})
	return mux
}

func (f *fakeCollector) got() []protocol.SubmissionMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.SubmissionMsg(nil), f.submissions...)
}

type testRuntime struct {
	rt        *huntRuntime
	srv       *httptest.Server
	collector *fakeCollector
	cancel    context.CancelFunc
	done      chan error
}

func newTestRuntime(t *testing.T, disableDB bool) *testRuntime {
	t.Helper()
	fc := &fakeCollector{}
	collectorSrv := httptest.NewServer(fc.handler())
	t.Cleanup(collectorSrv.Close)

	cfg := config.Defaults()
	cfg.Collector.WantedURL = collectorSrv.URL + "/wanted"
	cfg.Collector.SubmitURL = collectorSrv.URL + "/submit"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}

	rt, err := buildRuntime(cfg, runtimeOptions{DataDir: t.TempDir(), DisableDB: disableDB}, nil)
	if err != nil {
		t.Fatalf("buildRuntime: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	tr := &testRuntime{rt: rt, collector: fc, cancel: cancel, done: make(chan error, 1)}
	go func() { tr.done <- rt.session.Run(ctx) }()
	tr.srv = httptest.NewServer(rt.mux())
	t.Cleanup(func() {
		tr.srv.Close()
		tr.cancel()
		<-tr.done
		rt.Close()
	})

	if res := rt.syncer.RunOnce(ctx); res.Err != nil {
		t.Fatalf("sync: %v", res.Err)
	}
	waitUntil(t, func() bool { return rt.session.Registry().IsConfirmed(registry.Object, 1234) })
	return tr
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func getBody(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestHealthzAndMetrics(t *testing.T) {
	tr := newTestRuntime(t, true)

	code, body := getBody(t, tr.srv.URL+"/healthz")
	if code != 200 || body != "ok" {
		t.Fatalf("healthz=%d %q", code, body)
	}
	code, body = getBody(t, tr.srv.URL+"/metrics")
	if code != 200 {
		t.Fatalf("metrics status=%d", code)
	}
	for _, want := range []string{
		`nihhunt_registry_confirmed{type="object"} 2`,
		`nihhunt_registry_confirmed{type="npc"} 1`,
		`nihhunt_registry_allowed_tools 1`,
		`nihhunt_tracker_armed 0`,
		`nihhunt_host_connected 0`,
		`nihhunt_sync_runs_total{result="ok"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "nihhunt_index_") {
		t.Fatalf("index metrics present with index disabled")
	}
	code, _ = getBody(t, tr.srv.URL+"/v1/stats")
	if code != http.StatusNotFound {
		t.Fatalf("stats with index disabled=%d", code)
	}
}

func TestHostTrialSubmitsAndNotifies(t *testing.T) {
	tr := newTestRuntime(t, false)

	url := "ws" + strings.TrimPrefix(tr.srv.URL, "http") + "/v1/host"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	send := func(v any) {
		t.Helper()
		if err := conn.WriteJSON(v); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	send(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, Username: "zezima"})
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var welcome protocol.WelcomeMsg
	if err := conn.ReadJSON(&welcome); err != nil || welcome.SessionID == "" {
		t.Fatalf("welcome=%+v err=%v", welcome, err)
	}

	send(protocol.InventoryMsg{Type: protocol.TypeInventory, Items: []int{995}})
	send(protocol.TickMsg{Type: protocol.TypeTick, Tick: 10, Pos: &protocol.Position{X: 3200, Y: 3200}})
	send(protocol.ActionMsg{Type: protocol.TypeAction, Tick: 10, Action: protocol.ActionUseOnObject, Slot: 0, TargetID: 1234, Label: "Use Coins -> <col=ffff>Rock"})
	send(protocol.FeedbackMsg{Type: protocol.TypeFeedback, Text: "Nothing interesting happens.", Channel: protocol.ChannelGame})

	var notices []string
	for len(notices) < 2 {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var n protocol.NoticeMsg
		if err := conn.ReadJSON(&n); err != nil {
			t.Fatalf("read notice (have %v): %v", notices, err)
		}
		notices = append(notices, n.Text)
	}
	if notices[0] != "Rock has interactions! Sending..." || notices[1] != "Thanks for submitting!" {
		t.Fatalf("notices=%v", notices)
	}

	subs := tr.collector.got()
	if len(subs) != 1 {
		t.Fatalf("submissions=%d want=1", len(subs))
	}
	sub := subs[0]
	if sub.Type != "object" || sub.ID != 1234 || sub.FirstItem != 995 || !sub.Interactable || !sub.SawNIH || sub.Username != "zezima" || sub.Version != protocol.SubmitVersion {
		t.Fatalf("submission=%+v", sub)
	}

	if err := tr.rt.index.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	code, body := getBody(t, tr.srv.URL+"/v1/stats")
	if code != 200 {
		t.Fatalf("stats=%d %s", code, body)
	}
	var sum indexdb.Summary
	if err := json.Unmarshal([]byte(body), &sum); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if sum.Outcomes != 1 || sum.ByType["object"] != 1 || sum.SyncRuns != 1 {
		t.Fatalf("summary=%+v", sum)
	}

	code, body = getBody(t, tr.srv.URL+"/v1/state")
	if code != 200 || !strings.Contains(body, `"username":"zezima"`) || !strings.Contains(body, `"object":1`) {
		t.Fatalf("state=%d %s", code, body)
	}
}

func TestHighlightsEndpoint(t *testing.T) {
	tr := newTestRuntime(t, true)
	code, body := getBody(t, tr.srv.URL+"/v1/highlights")
	if code != 200 || !strings.Contains(body, `"highlights":[]`) {
		t.Fatalf("highlights=%d %s", code, body)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("NH_WANTED_URL", "http://127.0.0.1:1/wanted")
	t.Setenv("NH_SYNC_INTERVAL_SECONDS", "5")
	t.Setenv("NH_SHOW_UNSURE", "true")
	t.Setenv("NH_SUBMIT_WORKERS", "not-a-number")
	cfg := config.Defaults()
	applyEnv(&cfg)
	if cfg.Collector.WantedURL != "http://127.0.0.1:1/wanted" || cfg.Sync.IntervalSeconds != 5 || !cfg.Overlay.ShowUnsure {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.Submit.Workers != config.Defaults().Submit.Workers {
		t.Fatalf("workers=%d", cfg.Submit.Workers)
	}
}
