package ecoledirecte

import (
	"testing"
	"time"
)

func TestFormatGrade(t *testing.T) {
	g := Grade{
		Date:         time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		Subject:      "MATHEMATIQUES",
		Assignment:   "Contrôle ch. 4",
		Value:        "14.5",
		OutOf:        "20",
		Coefficient:  "2",
		ClassAverage: "11.8",
	}
	m, err := FormatGrade(g)
	if err != nil {
		t.Fatalf("FormatGrade: %v", err)
	}
	want := map[string]string{
		"date":         "2025-01-15",
		"subject":      "MATHEMATIQUES",
		"grade_out_of": "14.5/20",
	}
	for k, v := range want {
		if m[k] != v {
			t.Errorf("%s = %q, want %q", k, m[k], v)
		}
	}
}

func TestFormatGradeRejectsWrongKind(t *testing.T) {
	if _, err := FormatGrade(Homework{}); err == nil {
		t.Fatal("expected error for non-grade record")
	}
}

func TestFormatHomework(t *testing.T) {
	h := Homework{
		Due:     time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Subject: "ANGLAIS",
		Title:   "Read chapter 3",
		Test:    true,
	}
	m, err := FormatHomework(h)
	if err != nil {
		t.Fatalf("FormatHomework: %v", err)
	}
	if m["date"] != "2025-03-10" || m["subject"] != "ANGLAIS" {
		t.Errorf("unexpected projection: %v", m)
	}
	if m["test"] != "true" || m["done"] != "false" {
		t.Errorf("flags: test=%q done=%q", m["test"], m["done"])
	}
}

func TestFormatLesson(t *testing.T) {
	l := Lesson{
		Start:   time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC),
		End:     time.Date(2025, 3, 10, 9, 25, 0, 0, time.UTC),
		Subject: "HISTOIRE",
		Room:    "B204",
	}
	m, err := FormatLesson(l)
	if err != nil {
		t.Fatalf("FormatLesson: %v", err)
	}
	if m["start"] != "2025-03-10 08:30" {
		t.Errorf("start = %q", m["start"])
	}
	if m["date"] != "2025-03-10" {
		t.Errorf("date = %q", m["date"])
	}
}
