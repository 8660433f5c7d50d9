package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lectern.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "data_dir: /tmp/lectern\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Listen.Port != 8321 {
		t.Errorf("Listen.Port = %d, want 8321", cfg.Listen.Port)
	}
	if cfg.DBPath != "/tmp/lectern/lecture_subtitles.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.Sheet.CSVPath != "/tmp/lectern/lectures.csv" {
		t.Errorf("Sheet.CSVPath = %q", cfg.Sheet.CSVPath)
	}
	want := []string{"en", "en-US", "en-GB"}
	if len(cfg.Subtitles.Languages) != len(want) {
		t.Fatalf("Languages = %v, want %v", cfg.Subtitles.Languages, want)
	}
	for i, lang := range want {
		if cfg.Subtitles.Languages[i] != lang {
			t.Errorf("Languages[%d] = %q, want %q", i, cfg.Subtitles.Languages[i], lang)
		}
	}
}

func TestLoadExplicitValues(t *testing.T) {
	path := writeConfig(t, `
listen:
  address: 127.0.0.1
  port: 9000
sheet:
  csv_url: https://example.com/lectures.csv
subtitles:
  yt_dlp_path: /opt/bin/yt-dlp
  languages: [de, en]
log_level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Listen.Address != "127.0.0.1" || cfg.Listen.Port != 9000 {
		t.Errorf("Listen = %+v", cfg.Listen)
	}
	if cfg.Sheet.CSVURL != "https://example.com/lectures.csv" {
		t.Errorf("CSVURL = %q", cfg.Sheet.CSVURL)
	}
	if cfg.Subtitles.YtDlpPath != "/opt/bin/yt-dlp" {
		t.Errorf("YtDlpPath = %q", cfg.Subtitles.YtDlpPath)
	}
	if len(cfg.Subtitles.Languages) != 2 || cfg.Subtitles.Languages[0] != "de" {
		t.Errorf("Languages = %v", cfg.Subtitles.Languages)
	}
}

func TestLoadEnvExpansion(t *testing.T) {
	t.Setenv("LECTERN_TEST_DB", "/var/db/subs.db")
	path := writeConfig(t, "db_path: ${LECTERN_TEST_DB}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/var/db/subs.db" {
		t.Errorf("DBPath = %q, want env-expanded value", cfg.DBPath)
	}
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	path := writeConfig(t, "log_level: loud\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for bad log level")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{" warn ", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
