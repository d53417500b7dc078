package cfg

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jessevdk/go-flags"
)

func TestGetVersion(t *testing.T) {
	if GetVersion() == "" {
		t.Error("GetVersion should never return empty string")
	}
}

func TestLoadDefaults(t *testing.T) {
	var opts Options
	parser := flags.NewParser(&opts, flags.None)
	if _, err := parser.ParseArgs([]string{}); err != nil {
		t.Fatalf("Expected defaults to parse, got: %v", err)
	}

	cfg, err := Load(&opts)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.DBPath != "data/news.db" {
		t.Errorf("Expected DB path 'data/news.db', got '%s'", cfg.DBPath)
	}
	if cfg.MaxItemsPerFeed != 2 {
		t.Errorf("Expected 2 items per feed, got %d", cfg.MaxItemsPerFeed)
	}
	if cfg.RequestInterval != time.Second {
		t.Errorf("Expected request interval 1s, got %v", cfg.RequestInterval)
	}
	if cfg.SMTPPrimaryPort != 465 || cfg.SMTPFallbackPort != 25 {
		t.Errorf("Expected SMTP ports 465/25, got %d/%d", cfg.SMTPPrimaryPort, cfg.SMTPFallbackPort)
	}
	if cfg.SMTPTimeout != 10*time.Second {
		t.Errorf("Expected SMTP timeout 10s, got %v", cfg.SMTPTimeout)
	}
	if cfg.Schedule != "0 9 * * *" {
		t.Errorf("Expected default schedule '0 9 * * *', got '%s'", cfg.Schedule)
	}
	if Get() != cfg {
		t.Error("Expected Get to return the loaded configuration")
	}
}

func TestLoadFromFlags(t *testing.T) {
	var opts Options
	parser := flags.NewParser(&opts, flags.None)
	_, err := parser.ParseArgs([]string{
		"--db-path", "/tmp/x.db",
		"--request-interval", "0",
		"--gpt-model", "gpt-4o-mini",
		"--debug",
	})
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(&opts)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.DBPath != "/tmp/x.db" {
		t.Errorf("Expected DB path '/tmp/x.db', got '%s'", cfg.DBPath)
	}
	if cfg.RequestInterval != 0 {
		t.Errorf("Expected zero request interval, got %v", cfg.RequestInterval)
	}
	if cfg.OpenAIModel != "gpt-4o-mini" {
		t.Errorf("Expected model 'gpt-4o-mini', got '%s'", cfg.OpenAIModel)
	}
	if !cfg.Debug {
		t.Error("Expected debug to be enabled")
	}
}

func TestLoadRejectsNegativeValues(t *testing.T) {
	opts := Options{RequestInterval: -1}
	if _, err := Load(&opts); err == nil {
		t.Error("Expected error for negative request interval")
	}

	opts = Options{MaxItemsPerFeed: -3}
	if _, err := Load(&opts); err == nil {
		t.Error("Expected error for negative max items")
	}
}

func TestLocationFallsBackToUTC(t *testing.T) {
	cfg := &Cfg{Timezone: "Not/AZone"}
	if cfg.Location() != time.UTC {
		t.Errorf("Expected UTC for invalid timezone, got %v", cfg.Location())
	}

	cfg = &Cfg{Timezone: "Asia/Shanghai"}
	if cfg.Location().String() != "Asia/Shanghai" {
		t.Errorf("Expected Asia/Shanghai, got %v", cfg.Location())
	}
}

func TestSetupLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(&buf, false)
	defer slog.SetDefault(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	if logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Expected debug disabled at info level")
	}

	logger.Info("Task completed", "type", "fetch")
	if !strings.Contains(buf.String(), "type=fetch") {
		t.Errorf("Expected key/value output, got: %s", buf.String())
	}

	logger = setupLogger(&buf, true)
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Expected debug enabled")
	}
}
