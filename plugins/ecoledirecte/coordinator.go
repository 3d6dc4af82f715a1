package ecoledirecte

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// coordinator runs one refresh tick: login, fetch everything per student
// and category, and diff against the previous snapshot.
//
// State is passed explicitly: the previous snapshot goes in, the new one
// comes out. The caller owns storage of the result.
type coordinator struct {
	client   Client
	log      *slog.Logger
	username string
	password string
	now      func() time.Time
}

func newCoordinator(client Client, log *slog.Logger, username, password string) *coordinator {
	return &coordinator{
		client:   client,
		log:      log,
		username: username,
		password: password,
		now:      time.Now,
	}
}

// Refresh performs one full tick. A login failure is fatal for the tick:
// no snapshot is produced and prev stays the baseline. Per-category fetch
// failures are isolated; the category is recorded as failed and produces
// no events, while the rest of the tick proceeds.
func (c *coordinator) Refresh(ctx context.Context, prev *Snapshot) (*Snapshot, []Event, error) {
	sess, err := c.client.Login(ctx, c.username, c.password)
	if err != nil {
		return nil, nil, fmt.Errorf("login: %w", err)
	}

	snap := newSnapshot(c.now())
	snap.Students = sess.Students

	var events []Event
	for _, st := range sess.Students {
		for _, cp := range capabilities() {
			if !st.HasModule(cp.module) {
				continue
			}

			recs, err := cp.fetch(ctx, c, sess, st)
			if err != nil {
				c.log.Warn("category fetch failed",
					slog.String("student", st.FullName()),
					slog.String("category", cp.tag),
					slog.Any("err", err))
				snap.put(st.ID, cp.tag, categoryResult{Err: err})
				continue
			}
			snap.put(st.ID, cp.tag, categoryResult{Records: recs})

			// Fetch-and-store categories carry no record identity worth
			// diffing; their data is replaced wholesale each tick.
			if cp.diffKeys == nil {
				continue
			}

			// No baseline (first tick, or the previous fetch failed):
			// store data without emitting, to avoid an event flood.
			prevRecs, ok := prev.records(st.ID, cp.tag)
			if !ok {
				continue
			}

			fresh, err := newRecords(prevRecs, recs, cp.diffKeys, cp.format)
			if err != nil {
				c.log.Warn("category diff failed, skipping events",
					slog.String("student", st.FullName()),
					slog.String("category", cp.tag),
					slog.Any("err", err))
				continue
			}
			for _, data := range fresh {
				events = append(events, Event{
					ChildName: st.FullName(),
					Type:      cp.eventType,
					Data:      data,
				})
			}
		}
	}
	return snap, events, nil
}

// academicYearLabel reproduces the portal's odd-year convention: an odd
// calendar year starts the label ("2025-2026"), an even one ends it
// ("2023-2024").
func academicYearLabel(now time.Time) string {
	y := now.Year()
	if y%2 == 1 {
		return fmt.Sprintf("%d-%d", y, y+1)
	}
	return fmt.Sprintf("%d-%d", y-1, y)
}

// lessonWindow is the timetable fetch range: Monday of the current week
// through the following Monday.
func lessonWindow(now time.Time) (time.Time, time.Time) {
	daysSinceMonday := (int(now.Weekday()) + 6) % 7
	monday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).
		AddDate(0, 0, -daysSinceMonday)
	return monday, monday.AddDate(0, 0, 7)
}
