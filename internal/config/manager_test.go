package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
discord:
  token: "abc"
  operator_user_id: "42"
  send_timeout: "5s"
logging:
  level: "debug"
  console: true
  file:
    enabled: false
    path: ""
  gateway:
    enabled: true
    min_level: "warn"
    rate_per_sec: 2
storage:
  driver: "file"
  path: "./data/store"
janitor:
  enabled: true
  schedule: "@every 5m"
`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Discord.Token != "abc" || cfg.Discord.OperatorUserID != "42" {
		t.Fatalf("discord = %+v", cfg.Discord)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Gateway.Enabled {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Storage.Driver != "file" || cfg.Storage.Path != "./data/store" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if !cfg.Janitor.Enabled || cfg.Janitor.Schedule != "@every 5m" {
		t.Fatalf("janitor = %+v", cfg.Janitor)
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json",
		`{"discord":{"token":"abc"},"logging":{"level":"info","console":true,"file":{"enabled":false,"path":""},"gateway":{"enabled":false,"min_level":"","rate_per_sec":0}},"storage":{"driver":"sqlite","path":"./db.sqlite"}}`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"discord":{"token":"abc","typo_field":true}}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"discord":{"token":"a"}}{"extra":1}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("trailing data accepted")
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		raw     string
		def     time.Duration
		want    time.Duration
		wantErr bool
	}{
		{"empty uses default", "", 10 * time.Second, 10 * time.Second, false},
		{"explicit", "250ms", time.Second, 250 * time.Millisecond, false},
		{"spaces", "  3s  ", time.Second, 3 * time.Second, false},
		{"negative", "-1s", time.Second, 0, true},
		{"garbage", "soon", time.Second, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseDurationOrDefault("f", tc.raw, tc.def)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseDurationOrDefault(%q) accepted", tc.raw)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("ParseDurationOrDefault(%q) = (%v, %v), want %v", tc.raw, got, err, tc.want)
			}
		})
	}
}
