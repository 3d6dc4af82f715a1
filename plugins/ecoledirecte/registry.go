package ecoledirecte

import (
	"context"
	"time"

	ed "cartable/pkg/ecoledirecte"
)

// Client is the slice of the portal API the coordinator needs; *ed.Client
// satisfies it, tests substitute fakes.
type Client interface {
	Login(ctx context.Context, username, password string) (*ed.Session, error)
	Grades(ctx context.Context, sess *ed.Session, studentID, yearLabel string) ([]ed.Record, error)
	Homework(ctx context.Context, sess *ed.Session, studentID string) ([]ed.Record, error)
	Lessons(ctx context.Context, sess *ed.Session, studentID string, from, to time.Time) ([]ed.Record, error)
}

// capability binds one portal category to everything the refresh loop needs:
// the gating module code, the fetch call, how records are projected, and —
// for diff-enabled categories — which fields identify a record and the event
// tag for new ones. Nil diffKeys means fetch-and-store only: homework and
// timetable are re-fetched wholesale (the timetable window slides every
// week, so diffing it would flood events each Monday).
type capability struct {
	tag       string // snapshot category, e.g. "grades"
	module    string // portal module code gating this category
	eventType string
	diffKeys  []string // nil disables diffing for the category
	format    ed.FormatFunc
	fetch     func(ctx context.Context, c *coordinator, sess *ed.Session, st ed.Student) ([]ed.Record, error)
}

func capabilities() []capability {
	return []capability{
		{
			tag:       "grades",
			module:    ed.ModuleGrades,
			eventType: EventNewGrade,
			diffKeys:  []string{"date", "subject", "grade_out_of"},
			format:    ed.FormatGrade,
			fetch: func(ctx context.Context, c *coordinator, sess *ed.Session, st ed.Student) ([]ed.Record, error) {
				return c.client.Grades(ctx, sess, st.ID, academicYearLabel(c.now()))
			},
		},
		{
			tag:    "homework",
			module: ed.ModuleHomework,
			format: ed.FormatHomework,
			fetch: func(ctx context.Context, c *coordinator, sess *ed.Session, st ed.Student) ([]ed.Record, error) {
				return c.client.Homework(ctx, sess, st.ID)
			},
		},
		{
			tag:    "timetable",
			module: ed.ModuleTimetable,
			format: ed.FormatLesson,
			fetch: func(ctx context.Context, c *coordinator, sess *ed.Session, st ed.Student) ([]ed.Record, error) {
				from, to := lessonWindow(c.now())
				return c.client.Lessons(ctx, sess, st.ID, from, to)
			},
		},
	}
}
