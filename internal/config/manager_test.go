package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{
		"discord": {"token": "abc"},
		"logging": {"level": "debug", "console": true, "file": {"enabled": false, "path": ""}},
		"storage": {"path": "bot.db", "busy_timeout": "5s"},
		"dispatch": {"idle_ceiling": "5m", "retry_backoff": "1m"}
	}`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Discord.Token != "abc" {
		t.Fatalf("token = %q", cfg.Discord.Token)
	}
	if cfg.Dispatch == nil || cfg.Dispatch.IdleCeiling != "5m" {
		t.Fatalf("dispatch section not parsed: %+v", cfg.Dispatch)
	}
	if d, err := ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, time.Second); err != nil || d != 5*time.Second {
		t.Fatalf("busy_timeout = %v, %v", d, err)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
discord:
  token: abc
logging:
  level: info
  console: true
  file:
    enabled: false
    path: ""
storage:
  path: bot.db
notifier:
  rate_per_sec: 3
  send_timeout: 15s
`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Notifier == nil || cfg.Notifier.RatePerSec != 3 || cfg.Notifier.SendTimeout != "15s" {
		t.Fatalf("notifier section = %+v", cfg.Notifier)
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"discord": {"token": "abc"}, "logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}}, "storage": {"path": "x"}, "telegram": {}}`)

	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("unknown top-level key accepted")
	}
}

func TestInvalidDurationRejected(t *testing.T) {
	if _, err := ParseDurationField("dispatch.retry_backoff", "soon"); err == nil {
		t.Fatal("bad duration accepted")
	}
	if _, err := ParseDurationField("dispatch.retry_backoff", "-1m"); err == nil {
		t.Fatal("negative duration accepted")
	}
}

func TestWatchPublishesReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	writeFile(t, path, `{"discord": {"token": "a"}, "logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}}, "storage": {"path": "x"}}`)

	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		_ = m.Watch(ctx)
	}()

	// Give the watcher time to register before rewriting.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, `{"discord": {"token": "b"}, "logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}}, "storage": {"path": "x"}}`)

	select {
	case cfg := <-ch:
		if cfg.Discord.Token != "b" {
			t.Fatalf("reloaded token = %q, want b", cfg.Discord.Token)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reload never published")
	}

	cancel()
	<-watchDone
}
