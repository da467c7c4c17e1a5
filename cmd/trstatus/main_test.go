package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nugget/trunk-status/internal/events"
)

func TestRun_Usage(t *testing.T) {
	for _, args := range [][]string{nil, {"-h"}, {"--help"}} {
		var stdout bytes.Buffer
		if err := run(context.Background(), strings.NewReader(""), &stdout, &bytes.Buffer{}, args); err != nil {
			t.Fatalf("run(%v) = %v", args, err)
		}
		if !strings.Contains(stdout.String(), "Usage: trstatus") {
			t.Errorf("run(%v) output = %q", args, stdout.String())
		}
	}
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown command", []string{"launch"}, "unknown command: launch"},
		{"unknown flag", []string{"-x", "serve"}, "unknown flag: -x"},
		{"bad output format", []string{"-o", "yaml", "version"}, "unknown output format"},
		{"missing config", []string{"-config", "/nonexistent/trstatus.yaml", "serve"}, "config file not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(context.Background(), strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{}, tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("run(%v) = %v, want error containing %q", tt.args, err, tt.want)
			}
		})
	}
}

func TestRun_Version(t *testing.T) {
	var text bytes.Buffer
	if err := run(context.Background(), nil, &text, &bytes.Buffer{}, []string{"version"}); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(text.String(), "trstatus ") || !strings.Contains(text.String(), "go_version:") {
		t.Errorf("text output = %q", text.String())
	}

	var js bytes.Buffer
	if err := run(context.Background(), nil, &js, &bytes.Buffer{}, []string{"-o=json", "version"}); err != nil {
		t.Fatalf("version json: %v", err)
	}
	var info map[string]string
	if err := json.Unmarshal(js.Bytes(), &info); err != nil {
		t.Fatalf("json output: %v\n%s", err, js.String())
	}
	if info["version"] == "" {
		t.Errorf("info = %v", info)
	}
}

func TestRun_Init(t *testing.T) {
	dir := t.TempDir()
	var stdout bytes.Buffer
	if err := run(context.Background(), nil, &stdout, &bytes.Buffer{}, []string{"init", dir}); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Errorf("config.yaml: %v", err)
	}
}

// TestRun_ServeUnreachableBroker drives serve end to end against a
// broker that refuses connections. Publishing is disabled, every hook
// is consumed, and EOF on stdin shuts the process down cleanly.
func TestRun_ServeUnreachableBroker(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := strings.Join([]string{
		"mqtt:",
		"  broker: tcp://127.0.0.1:1",
		"  topic: tr",
		"  connect_timeout_sec: 2",
		"data_dir: " + filepath.Join(dir, "db"),
		"log_level: debug",
	}, "\n")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}

	stdin := strings.NewReader(strings.Join([]string{
		`{"hook":"setup_config"}`,
		`{"hook":"call_start","call":{"id":"1"}}`,
		`{"hook":"bogus"}`,
	}, "\n"))

	var stdout bytes.Buffer
	if err := run(context.Background(), stdin, &stdout, &bytes.Buffer{}, []string{"-config", cfgPath, "serve"}); err != nil {
		t.Fatalf("serve: %v", err)
	}

	out := stdout.String()
	for _, want := range []string{
		"mqtt connect failed",
		"status publishing disabled",
		`unknown hook \"bogus\"`,
		"host feed closed",
		"trstatus stopped",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q", want)
		}
	}
	if strings.Contains(out, "configuration published") {
		t.Error("configuration published while disconnected")
	}
}

func TestRun_ServeParseConfigOverridesFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := strings.Join([]string{
		"mqtt:",
		"  broker: tcp://127.0.0.1:2",
		"  topic: tr",
		"  connect_timeout_sec: 2",
		"data_dir: " + filepath.Join(dir, "db"),
	}, "\n")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}

	stdin := strings.NewReader(strings.Join([]string{
		`{"hook":"parse_config","settings":{"broker":"tcp://127.0.0.1:1","topic":"site7"}}`,
		`{"hook":"init"}`,
		`{"hook":"start"}`,
		`{"hook":"setup_recorders","recorders":[]}`,
	}, "\n"))

	var stdout bytes.Buffer
	if err := run(context.Background(), stdin, &stdout, &bytes.Buffer{}, []string{"-config", cfgPath, "serve"}); err != nil {
		t.Fatalf("serve: %v", err)
	}

	out := stdout.String()
	if !strings.Contains(out, `msg="mqtt connecting" broker=tcp://127.0.0.1:1 `) {
		t.Errorf("session did not connect to the parse_config broker:\n%s", out)
	}
	if strings.Contains(out, "broker=tcp://127.0.0.1:2 client_id") {
		t.Error("session connected to the config file broker")
	}
	if strings.Contains(out, "mqtt settings ignored after start") {
		t.Error("parse_config was ignored")
	}
}

func TestWatchCounters_StopReleasesSubscription(t *testing.T) {
	bus := events.New()
	counters, stop := watchCounters(bus)
	if got := bus.SubscriberCount(); got != 1 {
		t.Fatalf("SubscriberCount() = %d, want 1", got)
	}

	bus.Publish(events.Event{Kind: events.KindPublished})
	bus.Publish(events.Event{Kind: events.KindPublished})
	stop()
	stop()

	if got := bus.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount() = %d after stop, want 0", got)
	}
	if got := counters.Snapshot()[events.KindPublished]; got != 2 {
		t.Errorf("published count = %d, want 2", got)
	}
}
