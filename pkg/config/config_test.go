package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestDefaults(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if c.Engine.Window != 60 || c.Engine.Margin != 10 {
		t.Fatalf("window/margin = %d/%d", c.Engine.Window, c.Engine.Margin)
	}
	if c.Engine.Epochs != 30 || c.Engine.BatchSize != 64 || c.Engine.Units != 50 {
		t.Fatalf("training defaults wrong: %+v", c.Engine)
	}
	if c.Engine.LearningRate != 0.002 || c.Engine.Dropout != 0.2 {
		t.Fatalf("lr/dropout = %v/%v", c.Engine.LearningRate, c.Engine.Dropout)
	}
	if c.Engine.StaleAfter != 24*time.Hour {
		t.Fatalf("stale_after = %v", c.Engine.StaleAfter)
	}
	if c.Engine.TrainingTimeout != 0 {
		t.Fatalf("training_timeout = %v, fits are unbounded by default", c.Engine.TrainingTimeout)
	}
	if c.Scheduler.PretrainCron != "0 30 16 * * 1-5" || !c.Scheduler.Enabled {
		t.Fatalf("scheduler defaults wrong: %+v", c.Scheduler)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "config.yaml", `
environment: test
server:
  port: 9090
engine:
  epochs: 5
  watchlist: [aapl, msft]
scheduler:
  enabled: false
`)
	c, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Environment != "test" || c.Server.Port != 9090 || c.Engine.Epochs != 5 {
		t.Fatalf("overrides not applied: %+v", c)
	}
	if c.Engine.BatchSize != 64 {
		t.Fatalf("unset field lost its default: %d", c.Engine.BatchSize)
	}
	if c.Scheduler.Enabled {
		t.Fatalf("explicit false must win over default true")
	}
}

func TestValidateRejectsBadBackend(t *testing.T) {
	c, _ := Default()
	c.Artifacts.Backend = "s3"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for unknown backend")
	}

	c, _ = Default()
	c.Artifacts.Backend = "redis"
	if err := c.Validate(); err == nil {
		t.Fatalf("redis backend without redis should fail")
	}

	c, _ = Default()
	c.Market.Holidays = []string{"12/25/2026"}
	if err := c.Validate(); err == nil {
		t.Fatalf("bad holiday format should fail")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("FINCAST_ENV", "staging")
	t.Setenv("WATCHLIST", "nvda, amd")
	t.Setenv("HTTP_PORT", "7070")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	c, err := LoadWithEnv(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Environment != "staging" || c.Server.Port != 7070 {
		t.Fatalf("env not applied: env=%s port=%d", c.Environment, c.Server.Port)
	}
	if !c.Kafka.Enabled || len(c.Kafka.Brokers) != 2 {
		t.Fatalf("kafka brokers not applied: %+v", c.Kafka.Brokers)
	}
	c.Engine.WatchlistFile = ""
	if got := c.Watchlist(); !reflect.DeepEqual(got, []string{"NVDA", "AMD"}) {
		t.Fatalf("watchlist = %v", got)
	}
}

func TestWatchlistResolution(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "watchlist.txt", "# tech\naapl\n\n msft \nAAPL\n")

	c, _ := Default()
	c.Engine.WatchlistFile = p
	c.Engine.Watchlist = []string{"TSLA"}
	if got := c.Watchlist(); !reflect.DeepEqual(got, []string{"AAPL", "MSFT"}) {
		t.Fatalf("file watchlist = %v", got)
	}

	c.Engine.WatchlistFile = filepath.Join(dir, "nope.txt")
	if got := c.Watchlist(); !reflect.DeepEqual(got, []string{"TSLA"}) {
		t.Fatalf("configured watchlist = %v", got)
	}

	c.Engine.Watchlist = nil
	if got := c.Watchlist(); !reflect.DeepEqual(got, DefaultWatchlist) {
		t.Fatalf("default watchlist = %v", got)
	}
}
