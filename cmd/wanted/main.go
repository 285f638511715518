package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/klauspost/compress/zstd"

	"nihhunt.ai/internal/collector"
	"nihhunt.ai/internal/config"
	"nihhunt.ai/internal/hunt/registry"
	"nihhunt.ai/internal/persistence/indexdb"
	"nihhunt.ai/internal/persistence/journal"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "ids":
			idsCmd(os.Args[2:])
			return
		case "journal":
			journalCmd(os.Args[2:])
			return
		case "stats":
			statsCmd(os.Args[2:])
			return
		}
	}
	countsCmd(os.Args[1:])
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func fetchSnapshot(configPath string, timeout time.Duration) (registry.Snapshot, string) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fail("config: %v", err)
	}
	cfg.Collector.WantedURL = strings.TrimSpace(envOr("NH_WANTED_URL", cfg.Collector.WantedURL))
	client, err := collector.New(cfg.CollectorConfig())
	if err != nil {
		fail("collector: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	m, err := client.FetchWanted(ctx)
	if err != nil {
		fail("fetch %s: %v", client.WantedURL(), err)
	}
	return registry.SnapshotFromWanted(m), client.WantedURL()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func countsCmd(args []string) {
	fs := flag.NewFlagSet("wanted", flag.ExitOnError)
	configPath := fs.String("config", "", "path to hunt.yaml (optional)")
	timeout := fs.Duration("timeout", 15*time.Second, "request timeout")
	_ = fs.Parse(args)

	snap, url := fetchSnapshot(*configPath, *timeout)

	head := color.New(color.Bold)
	wanted := color.New(color.FgHiMagenta)
	unsure := color.New(color.FgRed)

	head.Printf("wanted list from %s\n", url)
	for _, t := range registry.EntityTypes() {
		fmt.Printf("  %-7s ", t.WireName())
		wanted.Printf("%6d wanted", len(snap.Confirmed[t]))
		fmt.Print("  ")
		unsure.Printf("%6d unsure\n", len(snap.Unsure[t]))
	}
	fmt.Printf("  %-7s %6d allowed first items\n", "tools", len(snap.AllowedTools))
}

func idsCmd(args []string) {
	fs := flag.NewFlagSet("ids", flag.ExitOnError)
	configPath := fs.String("config", "", "path to hunt.yaml (optional)")
	typ := fs.String("type", "object", "object|npc|item|tools")
	unsureOnly := fs.Bool("unsure", false, "list the unsure set instead")
	timeout := fs.Duration("timeout", 15*time.Second, "request timeout")
	_ = fs.Parse(args)

	snap, _ := fetchSnapshot(*configPath, *timeout)

	var ids []int
	if *typ == "tools" {
		ids = append(ids, snap.AllowedTools...)
	} else {
		t, ok := registry.ParseEntityType(*typ)
		if !ok {
			fail("unknown type %q", *typ)
		}
		if *unsureOnly {
			ids = append(ids, snap.Unsure[t]...)
		} else {
			ids = append(ids, snap.Confirmed[t]...)
		}
	}
	sort.Ints(ids)
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	for _, id := range ids {
		fmt.Fprintln(w, id)
	}
}

// journalCmd summarizes the local outcome journal.
func journalCmd(args []string) {
	fs := flag.NewFlagSet("journal", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	tail := fs.Int("tail", 10, "print the last N outcomes")
	_ = fs.Parse(args)

	files, err := filepath.Glob(filepath.Join(*dataDir, "journal", "*.jsonl.zst"))
	if err != nil {
		fail("glob: %v", err)
	}
	sort.Strings(files)

	var outcomes []journal.Entry
	syncOK, syncFail := 0, 0
	for _, path := range files {
		if err := readJournal(path, func(e journal.Entry) {
			switch e.Kind {
			case journal.KindOutcome:
				outcomes = append(outcomes, e)
			case journal.KindSync:
				if e.SyncOK {
					syncOK++
				} else {
					syncFail++
				}
			}
		}); err != nil {
			fail("%s: %v", path, err)
		}
	}

	byType := map[string]int{}
	nih := 0
	for _, e := range outcomes {
		byType[e.Type]++
		if e.SawNIH {
			nih++
		}
	}
	color.New(color.Bold).Printf("%d outcomes in %d files\n", len(outcomes), len(files))
	for _, t := range registry.EntityTypes() {
		fmt.Printf("  %-7s %d\n", t.WireName(), byType[t.WireName()])
	}
	fmt.Printf("  saw NIH %d\n", nih)
	fmt.Printf("  syncs   %d ok, %d failed\n", syncOK, syncFail)

	start := len(outcomes) - *tail
	if start < 0 {
		start = 0
	}
	green := color.New(color.FgGreen)
	for _, e := range outcomes[start:] {
		mark := "no NIH"
		if e.SawNIH {
			mark = "NIH"
		}
		fmt.Printf("%s %s %d tool=%d ", e.At, e.Type, e.TargetID, e.ToolItemID)
		green.Println(mark)
	}
}

func readJournal(path string, fn func(journal.Entry)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()
	r := bufio.NewReader(dec)
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			var e journal.Entry
			if jerr := json.Unmarshal(line, &e); jerr == nil {
				fn(e)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func statsCmd(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	path := filepath.Join(*dataDir, "index.sqlite")
	if _, err := os.Stat(path); err != nil {
		fail("stats: %v", err)
	}
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fail("open index: %v", err)
	}
	defer idx.Close()
	sum, err := idx.Summary(context.Background())
	if err != nil {
		fail("summary: %v", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(sum)
}
