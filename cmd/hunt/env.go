package main

import (
	"os"
	"strconv"
	"strings"

	"nihhunt.ai/internal/config"
)

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// applyEnv lets NH_* variables override the loaded file.
func applyEnv(cfg *config.Config) {
	cfg.Collector.WantedURL = envString("NH_WANTED_URL", cfg.Collector.WantedURL)
	cfg.Collector.SubmitURL = envString("NH_SUBMIT_URL", cfg.Collector.SubmitURL)
	cfg.Sync.IntervalSeconds = envInt("NH_SYNC_INTERVAL_SECONDS", cfg.Sync.IntervalSeconds)
	cfg.Submit.Workers = envInt("NH_SUBMIT_WORKERS", cfg.Submit.Workers)
	cfg.Overlay.ShowUnsure = envBool("NH_SHOW_UNSURE", cfg.Overlay.ShowUnsure)
}
