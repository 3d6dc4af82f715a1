package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"cartable/pkg/logx"
)

// Validator is invoked on every parsed config before it is committed. If it
// returns an error the new config is rejected and the previous one stays.
type Validator func(cfg *Config) error

// ConfigManager owns the config file: initial load, strict parsing, and
// hot-reload via fsnotify. Subscribers receive a pointer to the committed
// config; they must treat it as read-only.
type ConfigManager struct {
	path string
	log  logx.Logger

	mu        sync.RWMutex
	current   *Config
	lastHash  uint64
	validator Validator

	subMu  sync.Mutex
	subs   map[int]chan *Config
	nextID int
}

func NewConfigManager(path string, log logx.Logger) *ConfigManager {
	return &ConfigManager{
		path: path,
		log:  log.With(logx.String("comp", "config")),
		subs: make(map[int]chan *Config),
	}
}

// SetValidator installs the commit-time validator. Call before Load.
func (m *ConfigManager) SetValidator(v Validator) {
	m.mu.Lock()
	m.validator = v
	m.mu.Unlock()
}

// Parse decodes raw file content (JSON or YAML) into a Config with strict
// field checking and fills defaults.
func (m *ConfigManager) Parse(data []byte) (*Config, error) {
	jsonBytes, format, err := coerceToJSONBytes(m.path, data)
	if err != nil {
		return nil, fmt.Errorf("coerce %s config: %w", format, err)
	}

	dec := json.NewDecoder(bytes.NewReader(jsonBytes))
	dec.DisallowUnknownFields()
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Scheduler.Workers <= 0 {
		cfg.Scheduler.Workers = 2
	}
	if cfg.Scheduler.DefaultTimeout == 0 {
		cfg.Scheduler.DefaultTimeout = Duration(90 * time.Second)
	}
	if cfg.Scheduler.HistorySize <= 0 {
		cfg.Scheduler.HistorySize = 50
	}
	if cfg.Plugins == nil {
		cfg.Plugins = map[string]PluginConfigRaw{}
	}
}

// Load reads and commits the config file. First call must succeed for the
// app to start; later calls (reloads) keep the previous config on failure.
func (m *ConfigManager) Load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	h := hashBytes(data)
	m.mu.RLock()
	same := m.current != nil && h == m.lastHash
	m.mu.RUnlock()
	if same {
		m.log.Debug("config unchanged, skipping reload")
		return nil
	}

	cfg, err := m.Parse(data)
	if err != nil {
		return err
	}

	m.mu.RLock()
	v := m.validator
	m.mu.RUnlock()
	if v != nil {
		if err := v(cfg); err != nil {
			return fmt.Errorf("validate config: %w", err)
		}
	}

	m.commit(cfg, h)
	return nil
}

func (m *ConfigManager) commit(cfg *Config, hash uint64) {
	m.mu.Lock()
	m.current = cfg
	m.lastHash = hash
	m.mu.Unlock()
	m.publish(cfg)
}

// Get returns the committed config. Nil until the first successful Load.
func (m *ConfigManager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Subscribe registers for config-commit notifications. The returned cancel
// func unregisters and closes the channel.
func (m *ConfigManager) Subscribe() (<-chan *Config, func()) {
	ch := make(chan *Config, 1)
	m.subMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.subMu.Unlock()

	cancel := func() {
		m.subMu.Lock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
		m.subMu.Unlock()
	}
	return ch, cancel
}

// publish uses drop-oldest so a stalled subscriber only ever misses
// intermediate configs, never the latest one.
func (m *ConfigManager) publish(cfg *Config) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- cfg:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- cfg:
			default:
			}
		}
	}
}

// Watch blocks until ctx is done, reloading the config on file changes.
// Editor save patterns (rename+create, truncate+write) are handled by
// debouncing and by re-adding the watch when the file reappears.
func (m *ConfigManager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(m.path); err != nil {
		return fmt.Errorf("watch %s: %w", m.path, err)
	}

	const debounce = 250 * time.Millisecond
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	schedule := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, func() {
			if err := m.Load(); err != nil {
				m.log.Warn("config reload failed, keeping previous", logx.Err(err))
			} else {
				m.log.Info("config reloaded")
			}
		})
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return errors.New("config watcher closed")
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				schedule()
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				// File replaced; wait for it to reappear, then rewatch.
				go m.rewatch(ctx, watcher, schedule)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("config watcher closed")
			}
			m.log.Warn("config watch error", logx.Err(err))
		}
	}
}

func (m *ConfigManager) rewatch(ctx context.Context, watcher *fsnotify.Watcher, schedule func()) {
	backoff := 100 * time.Millisecond
	for i := 0; i < 50; i++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if _, err := os.Stat(m.path); err == nil {
			if err := watcher.Add(m.path); err == nil {
				schedule()
				return
			}
		}
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
	m.log.Error("config file did not reappear, hot-reload disabled", logx.String("path", m.path))
}
