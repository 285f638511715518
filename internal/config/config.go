// Package config loads the daemon's YAML configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"nihhunt.ai/internal/collector"
	"nihhunt.ai/internal/hunt/recent"
	"nihhunt.ai/internal/hunt/tracker"
	"nihhunt.ai/internal/protocol"
)

type Config struct {
	Collector CollectorConfig `yaml:"collector"`
	Sync      SyncConfig      `yaml:"sync"`
	Tracker   TrackerConfig   `yaml:"tracker"`
	Submit    SubmitConfig    `yaml:"submit"`
	Overlay   OverlayConfig   `yaml:"overlay"`
}

type CollectorConfig struct {
	WantedURL       string `yaml:"wanted_url"`
	SubmitURL       string `yaml:"submit_url"`
	ProtocolVersion string `yaml:"protocol_version"`
}

type SyncConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

type TrackerConfig struct {
	DelayToleranceTicks    int `yaml:"delay_tolerance_ticks"`
	MovementToleranceTicks int `yaml:"movement_tolerance_ticks"`
	RecentCapacity         int `yaml:"recent_capacity"`
}

type SubmitConfig struct {
	Workers       int `yaml:"workers"`
	QueueCapacity int `yaml:"queue_capacity"`
}

type OverlayConfig struct {
	ShowUnsure bool `yaml:"show_unsure"`
}

func Defaults() Config {
	tc := tracker.DefaultConfig()
	return Config{
		Collector: CollectorConfig{
			WantedURL:       collector.DefaultWantedURL,
			SubmitURL:       collector.DefaultSubmitURL,
			ProtocolVersion: protocol.SubmitVersion,
		},
		Sync: SyncConfig{IntervalSeconds: 60},
		Tracker: TrackerConfig{
			DelayToleranceTicks:    tc.DelayTolerance,
			MovementToleranceTicks: tc.MovementTolerance,
			RecentCapacity:         recent.DefaultCapacity,
		},
		Submit:  SubmitConfig{Workers: 2, QueueCapacity: 64},
		Overlay: OverlayConfig{ShowUnsure: false},
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Normalize fills zero values left by a partial file.
func (c *Config) Normalize() {
	def := Defaults()
	c.Collector.WantedURL = strings.TrimSpace(c.Collector.WantedURL)
	c.Collector.SubmitURL = strings.TrimSpace(c.Collector.SubmitURL)
	c.Collector.ProtocolVersion = strings.TrimSpace(c.Collector.ProtocolVersion)
	if c.Collector.WantedURL == "" {
		c.Collector.WantedURL = def.Collector.WantedURL
	}
	if c.Collector.SubmitURL == "" {
		c.Collector.SubmitURL = def.Collector.SubmitURL
	}
	if c.Collector.ProtocolVersion == "" {
		c.Collector.ProtocolVersion = def.Collector.ProtocolVersion
	}
	if c.Sync.IntervalSeconds == 0 {
		c.Sync.IntervalSeconds = def.Sync.IntervalSeconds
	}
	if c.Tracker.MovementToleranceTicks == 0 {
		c.Tracker.MovementToleranceTicks = def.Tracker.MovementToleranceTicks
	}
	if c.Tracker.RecentCapacity == 0 {
		c.Tracker.RecentCapacity = def.Tracker.RecentCapacity
	}
	if c.Submit.Workers == 0 {
		c.Submit.Workers = def.Submit.Workers
	}
	if c.Submit.QueueCapacity == 0 {
		c.Submit.QueueCapacity = def.Submit.QueueCapacity
	}
}

func (c Config) Validate() error {
	for name, raw := range map[string]string{
		"collector.wanted_url": c.Collector.WantedURL,
		"collector.submit_url": c.Collector.SubmitURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s: invalid url %q", name, raw)
		}
	}
	if c.Sync.IntervalSeconds < 1 {
		return fmt.Errorf("sync.interval_seconds must be >= 1")
	}
	if c.Tracker.DelayToleranceTicks < 0 {
		return fmt.Errorf("tracker.delay_tolerance_ticks must be >= 0")
	}
	if c.Tracker.MovementToleranceTicks < 1 {
		return fmt.Errorf("tracker.movement_tolerance_ticks must be >= 1")
	}
	if c.Tracker.RecentCapacity < 1 {
		return fmt.Errorf("tracker.recent_capacity must be >= 1")
	}
	if c.Submit.Workers < 1 || c.Submit.Workers > 32 {
		return fmt.Errorf("submit.workers must be in [1,32]")
	}
	if c.Submit.QueueCapacity < 1 {
		return fmt.Errorf("submit.queue_capacity must be >= 1")
	}
	return nil
}

func (c Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.IntervalSeconds) * time.Second
}

func (c Config) TrackerConfig() tracker.Config {
	return tracker.Config{
		DelayTolerance:    c.Tracker.DelayToleranceTicks,
		MovementTolerance: c.Tracker.MovementToleranceTicks,
	}
}

func (c Config) CollectorConfig() collector.Config {
	return collector.Config{
		WantedURL:       c.Collector.WantedURL,
		SubmitURL:       c.Collector.SubmitURL,
		ProtocolVersion: c.Collector.ProtocolVersion,
	}
}
