// Package scheduler runs named periodic tasks on a robfig/cron timer with a
// small worker pool. Tasks registered with the skip-if-running overlap policy
// are guaranteed to never execute concurrently with themselves, which is what
// the refresh-tick contract of integration plugins relies on.
package scheduler
