package ecoledirecte

import (
	"fmt"
)

const dateLayout = "2006-01-02"

// FormatFunc projects a record onto flat string fields for comparison and
// event payloads. It fails when given a record of the wrong kind, which the
// caller treats as a malformed category and skips.
type FormatFunc func(Record) (map[string]string, error)

// FormatGrade flattens a Grade. The "grade_out_of" field combines value and
// scale ("14.5/20") and is part of the identity of a grade.
func FormatGrade(r Record) (map[string]string, error) {
	g, ok := r.(Grade)
	if !ok {
		return nil, fmt.Errorf("format grade: unexpected record %T", r)
	}
	return map[string]string{
		"date":          g.Date.Format(dateLayout),
		"subject":       g.Subject,
		"assignment":    g.Assignment,
		"grade":         g.Value,
		"out_of":        g.OutOf,
		"grade_out_of":  g.Value + "/" + g.OutOf,
		"coefficient":   g.Coefficient,
		"class_average": g.ClassAverage,
		"comment":       g.Comment,
	}, nil
}

// FormatHomework flattens a Homework entry.
func FormatHomework(r Record) (map[string]string, error) {
	h, ok := r.(Homework)
	if !ok {
		return nil, fmt.Errorf("format homework: unexpected record %T", r)
	}
	return map[string]string{
		"date":    h.Due.Format(dateLayout),
		"subject": h.Subject,
		"title":   h.Title,
		"done":    fmt.Sprintf("%t", h.Done),
		"test":    fmt.Sprintf("%t", h.Test),
	}, nil
}

// FormatLesson flattens a timetable slot.
func FormatLesson(r Record) (map[string]string, error) {
	l, ok := r.(Lesson)
	if !ok {
		return nil, fmt.Errorf("format lesson: unexpected record %T", r)
	}
	return map[string]string{
		"date":     l.Start.Format(dateLayout),
		"start":    l.Start.Format("2006-01-02 15:04"),
		"end":      l.End.Format("2006-01-02 15:04"),
		"subject":  l.Subject,
		"teacher":  l.Teacher,
		"room":     l.Room,
		"canceled": fmt.Sprintf("%t", l.Canceled),
	}, nil
}
