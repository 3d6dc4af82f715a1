package core

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cartable/pkg/logx"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
telegram:
  token: "123:abc"
  chat_id: 42
logging:
  level: debug
  console: true
scheduler:
  enabled: true
  workers: 3
plugins:
  ecoledirecte:
    enabled: true
    config:
      username: jdoe
      password: secret
`)
	m := NewConfigManager(path, logx.Nop())
	if err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg := m.Get()
	if cfg.Telegram.ChatID != 42 {
		t.Errorf("chat_id = %d, want 42", cfg.Telegram.ChatID)
	}
	if cfg.Scheduler.Workers != 3 {
		t.Errorf("workers = %d, want 3", cfg.Scheduler.Workers)
	}
	pc, ok := cfg.Plugins["ecoledirecte"]
	if !ok || !pc.Enabled {
		t.Fatalf("plugin section missing or disabled: %+v", cfg.Plugins)
	}
	if len(pc.Config) == 0 {
		t.Error("plugin raw config empty")
	}
}

func TestLoadRejectsUnknownTopLevelField(t *testing.T) {
	path := writeConfig(t, "config.json", `{"telegramm": {"token": "x"}}`)
	m := NewConfigManager(path, logx.Nop())
	if err := m.Load(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestPluginSectionRejectsUnknownField(t *testing.T) {
	path := writeConfig(t, "config.json", `{"plugins": {"p": {"enabled": true, "cfg": {}}}}`)
	m := NewConfigManager(path, logx.Nop())
	if err := m.Load(); err == nil {
		t.Fatal("expected error for unknown plugin field")
	}
}

func TestDefaultsApplied(t *testing.T) {
	path := writeConfig(t, "config.json", `{}`)
	m := NewConfigManager(path, logx.Nop())
	if err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg := m.Get()
	if cfg.Logging.Level != "info" {
		t.Errorf("default level = %q", cfg.Logging.Level)
	}
	if cfg.Scheduler.DefaultTimeout.Std() != 90*time.Second {
		t.Errorf("default timeout = %v", cfg.Scheduler.DefaultTimeout.Std())
	}
	if cfg.Plugins == nil {
		t.Error("plugins map not initialized")
	}
}

func TestValidatorRejectionKeepsPrevious(t *testing.T) {
	path := writeConfig(t, "config.json", `{"logging": {"level": "debug"}}`)
	m := NewConfigManager(path, logx.Nop())
	if err := m.Load(); err != nil {
		t.Fatalf("first Load: %v", err)
	}
	first := m.Get()

	m.SetValidator(func(*Config) error { return os.ErrInvalid })
	if err := os.WriteFile(path, []byte(`{"logging": {"level": "error"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := m.Load(); err == nil {
		t.Fatal("expected validator error")
	}
	if got := m.Get(); got != first {
		t.Error("rejected config was committed")
	}
}

func TestSubscribeReceivesCommit(t *testing.T) {
	path := writeConfig(t, "config.json", `{"logging": {"level": "info"}}`)
	m := NewConfigManager(path, logx.Nop())
	ch, cancel := m.Subscribe()
	defer cancel()

	if err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	select {
	case got := <-ch:
		if got == nil {
			t.Fatal("nil config published")
		}
	default:
		t.Fatal("no config published to subscriber")
	}
}

func TestHashSkipOnUnchangedFile(t *testing.T) {
	path := writeConfig(t, "config.json", `{"logging": {"level": "info"}}`)
	m := NewConfigManager(path, logx.Nop())
	if err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch, cancel := m.Subscribe()
	defer cancel()

	if err := m.Load(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	select {
	case <-ch:
		t.Fatal("unchanged file should not republish")
	default:
	}
}

func TestDecodePluginConfig(t *testing.T) {
	type pcfg struct {
		Username string `json:"username"`
		Interval int    `json:"interval,omitempty"`
	}
	got, err := DecodePluginConfig[pcfg]([]byte(`{"username": "jdoe"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Username != "jdoe" {
		t.Errorf("username = %q", got.Username)
	}

	if _, err := DecodePluginConfig[pcfg]([]byte(`{"user": "x"}`)); err == nil {
		t.Error("expected error for unknown field")
	}

	zero, err := DecodePluginConfig[pcfg](nil)
	if err != nil || zero.Username != "" {
		t.Errorf("empty section: %+v, %v", zero, err)
	}
}

func TestDurationDecode(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"seconds", `"90s"`, 90 * time.Second, false},
		{"minutes", `"2m"`, 2 * time.Minute, false},
		{"empty means zero", `""`, 0, false},
		{"negative rejected", `"-5s"`, 0, true},
		{"bare number rejected", `90`, 0, true},
		{"garbage rejected", `"soon"`, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var d Duration
			err := json.Unmarshal([]byte(tc.raw), &d)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr = %v", err, tc.wantErr)
			}
			if err == nil && d.Std() != tc.want {
				t.Errorf("decoded %v, want %v", d.Std(), tc.want)
			}
		})
	}
}

func TestDurationFieldRejectedAtLoad(t *testing.T) {
	path := writeConfig(t, "config.json", `{"notify": {"dedup_window": "-1m"}}`)
	m := NewConfigManager(path, logx.Nop())
	if err := m.Load(); err == nil {
		t.Fatal("negative duration must fail the load")
	}
}

func TestCanonicalHashJSON(t *testing.T) {
	a := canonicalHashJSON([]byte(`{"a":1,"b":2}`))
	b := canonicalHashJSON([]byte(`{ "b": 2, "a": 1 }`))
	if a != b {
		t.Error("key order / whitespace should not change the hash")
	}
	c := canonicalHashJSON([]byte(`{"a":1,"b":3}`))
	if a == c {
		t.Error("different values should hash differently")
	}
}
