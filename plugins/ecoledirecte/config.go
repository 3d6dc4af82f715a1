package ecoledirecte

import (
	"errors"
	"strings"
)

const (
	defaultRefreshMinutes = 30
	minRefreshMinutes     = 5
)

// Config is the plugin's section under plugins.ecoledirecte.config.
type Config struct {
	Username string `json:"username"`
	Password string `json:"password"`
	// RefreshIntervalMinutes between refresh ticks; default 30, minimum 5
	// (the portal rate-limits aggressive polling).
	RefreshIntervalMinutes int `json:"refresh_interval_minutes,omitempty"`
	// Notify sends a Telegram message for every emitted event.
	Notify bool `json:"notify,omitempty"`
	// APIBaseURL overrides the portal endpoint (tests, proxies).
	APIBaseURL string `json:"api_base_url,omitempty"`
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Username) == "" {
		return errors.New("username required")
	}
	if c.Password == "" {
		return errors.New("password required")
	}
	if c.RefreshIntervalMinutes != 0 && c.RefreshIntervalMinutes < minRefreshMinutes {
		return errors.New("refresh_interval_minutes must be >= 5")
	}
	return nil
}

func (c *Config) refreshMinutes() int {
	if c.RefreshIntervalMinutes <= 0 {
		return defaultRefreshMinutes
	}
	return c.RefreshIntervalMinutes
}
