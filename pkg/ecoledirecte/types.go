// Package ecoledirecte is a minimal client for the EcoleDirecte family
// portal API (v3): login, grades, homework and timetable per student.
package ecoledirecte

import (
	"strings"
	"time"
)

// Module codes as exposed by the portal per student account.
const (
	ModuleGrades    = "NOTES"
	ModuleHomework  = "CAHIER_DE_TEXTES"
	ModuleTimetable = "EDT"
)

// Session is an authenticated API session. The token expires server-side;
// callers re-login per refresh tick rather than persisting it.
type Session struct {
	Token    string
	Students []Student
}

// Student is one child account reachable from the family login.
type Student struct {
	ID        string
	FirstName string
	LastName  string
	// Modules holds the portal module codes enabled for this student.
	Modules []string
}

// FullName returns "FirstName LastName" with original casing.
func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// HasModule reports whether the given module code is enabled for the student.
func (s Student) HasModule(code string) bool {
	for _, m := range s.Modules {
		if strings.EqualFold(m, code) {
			return true
		}
	}
	return false
}

// Record is one fetched item (a grade, a homework entry, a lesson). It is a
// sealed interface: only types in this package implement it.
type Record interface {
	recordKind() string
}

// Grade is a single mark entry from the NOTES module.
type Grade struct {
	Date         time.Time
	Subject      string
	Assignment   string
	Value        string // raw portal value, e.g. "14.5" or "Abs"
	OutOf        string
	Coefficient  string
	ClassAverage string
	Comment      string
}

func (Grade) recordKind() string { return "grade" }

// Homework is one CAHIER_DE_TEXTES entry for a due date.
type Homework struct {
	Due     time.Time
	Subject string
	Title   string
	Done    bool
	Test    bool // flagged as an assessment by the teacher
}

func (Homework) recordKind() string { return "homework" }

// Lesson is one EDT timetable slot.
type Lesson struct {
	Start    time.Time
	End      time.Time
	Subject  string
	Teacher  string
	Room     string
	Canceled bool
}

func (Lesson) recordKind() string { return "lesson" }
