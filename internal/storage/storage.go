// Package storage provides the service's persistence layer.
//
// It currently records:
//   - emitted integration events (audit trail for operators)
//   - notifier dedup state (so restarts don't re-send recent messages)
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"cartable/pkg/logx"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage. If Driver is empty or "none", storage is
// disabled and Open returns (nil, nil).
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// EventEntry records one emitted integration event.
// Keep it compact and schema-stable.
type EventEntry struct {
	At        time.Time
	Plugin    string
	ChildName string
	Type      string
	DataJSON  string
}

// Store is the minimal persistence API used by core/services.
type Store interface {
	AppendEvent(ctx context.Context, e EventEntry) error
	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
