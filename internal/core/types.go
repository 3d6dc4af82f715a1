package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Duration is a config field holding a Go duration string ("90s", "2m").
// Empty decodes to zero; negative values are rejected at decode time so a
// bad reload never reaches the services.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"90s\": %w", err)
	}
	if strings.TrimSpace(s) == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if v < 0 {
		return fmt.Errorf("duration %q must be >= 0", s)
	}
	*d = Duration(v)
	return nil
}

type Config struct {
	Telegram  TelegramConfig             `json:"telegram"`
	Logging   LoggingConfig              `json:"logging"`
	Scheduler SchedulerConfig            `json:"scheduler"`
	Notify    NotifyConfig               `json:"notify"`
	Storage   StorageConfig              `json:"storage"`
	Plugins   map[string]PluginConfigRaw `json:"plugins"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// ChatID is the default notification target (a user or group chat).
	ChatID   int64 `json:"chat_id"`
	ThreadID int   `json:"thread_id,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type SchedulerConfig struct {
	Enabled bool `json:"enabled"`
	Workers int  `json:"workers"`
	// DefaultTimeout bounds a task run when the schedule sets none.
	// "0s" disables the global default.
	DefaultTimeout Duration `json:"default_timeout"`
	HistorySize    int      `json:"history_size"`
	Timezone       string   `json:"timezone,omitempty"`
	RetryMax       int      `json:"retry_max,omitempty"`
}

type NotifyConfig struct {
	Enabled    bool `json:"enabled"`
	Workers    int  `json:"workers,omitempty"`
	QueueSize  int  `json:"queue_size,omitempty"`
	RatePerSec int  `json:"rate_per_sec,omitempty"`
	RetryMax   int  `json:"retry_max,omitempty"`
	// DedupWindow suppresses identical messages; "" or "0s" disables dedup.
	DedupWindow Duration `json:"dedup_window,omitempty"`
}

type StorageConfig struct {
	Driver string `json:"driver"` // "", "none" or "sqlite"
	Path   string `json:"path,omitempty"`
	// BusyTimeout is the sqlite busy handler wait (sqlite only).
	BusyTimeout Duration `json:"busy_timeout,omitempty"`
}

type PluginConfigRaw struct {
	Enabled bool            `json:"enabled"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// UnmarshalJSON disallows unknown fields to ensure removed legacy keys
// are caught early during config reload.
func (p *PluginConfigRaw) UnmarshalJSON(b []byte) error {
	type tmp struct {
		Enabled bool            `json:"enabled"`
		Config  json.RawMessage `json:"config,omitempty"`
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var t tmp
	if err := dec.Decode(&t); err != nil {
		return err
	}
	*p = PluginConfigRaw{Enabled: t.Enabled, Config: t.Config}
	return nil
}
