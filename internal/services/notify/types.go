package notify

import (
	"time"
)

// Config controls the async notification pipeline.
type Config struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration // 0 disables dedup
	DedupMaxEntries int
}

// NotificationEvent is the bus payload for notify.* events.
type NotificationEvent struct {
	Channel string
	ChatID  int64
	Key     string
	At      time.Time
	Error   string
}

type HistoryItem struct {
	At   time.Time
	Text string
}
