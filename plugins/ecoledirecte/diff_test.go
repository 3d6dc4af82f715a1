package ecoledirecte

import (
	"testing"
	"time"

	ed "cartable/pkg/ecoledirecte"
)

func grade(date, subject, value, outOf string) ed.Grade {
	d, _ := time.Parse("2006-01-02", date)
	return ed.Grade{Date: d, Subject: subject, Value: value, OutOf: outOf}
}

func TestNewRecordsDetectsAppendedGrade(t *testing.T) {
	prev := []ed.Record{
		grade("2025-01-10", "MATHS", "12", "20"),
	}
	cur := []ed.Record{
		grade("2025-01-10", "MATHS", "12", "20"),
		grade("2025-01-15", "ANGLAIS", "16", "20"),
	}

	keys := []string{"date", "subject", "grade_out_of"}
	got, err := newRecords(prev, cur, keys, ed.FormatGrade)
	if err != nil {
		t.Fatalf("newRecords: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("new records = %d, want 1", len(got))
	}
	if got[0]["subject"] != "ANGLAIS" || got[0]["grade_out_of"] != "16/20" {
		t.Errorf("wrong record reported: %v", got[0])
	}
}

func TestNewRecordsIgnoresNonKeyFieldChanges(t *testing.T) {
	old := grade("2025-01-10", "MATHS", "12", "20")
	updated := old
	updated.ClassAverage = "11.2" // teacher filled in the average later

	got, err := newRecords([]ed.Record{old}, []ed.Record{updated},
		[]string{"date", "subject", "grade_out_of"}, ed.FormatGrade)
	if err != nil {
		t.Fatalf("newRecords: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("non-key change reported as new: %v", got)
	}
}

func TestNewRecordsIdempotent(t *testing.T) {
	recs := []ed.Record{
		grade("2025-01-10", "MATHS", "12", "20"),
		grade("2025-01-15", "ANGLAIS", "16", "20"),
	}
	got, err := newRecords(recs, recs, []string{"date", "subject", "grade_out_of"}, ed.FormatGrade)
	if err != nil {
		t.Fatalf("newRecords: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("identical slices reported %d new records", len(got))
	}
}

func TestNewRecordsEmptyPrevReportsAll(t *testing.T) {
	cur := []ed.Record{
		grade("2025-01-10", "MATHS", "12", "20"),
		grade("2025-01-15", "ANGLAIS", "16", "20"),
	}
	got, err := newRecords(nil, cur, []string{"date", "subject", "grade_out_of"}, ed.FormatGrade)
	if err != nil {
		t.Fatalf("newRecords: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("records = %d, want 2", len(got))
	}
}

func TestNewRecordsFormatErrorAborts(t *testing.T) {
	cur := []ed.Record{
		grade("2025-01-10", "MATHS", "12", "20"),
		ed.Homework{}, // wrong kind slipped into the category
	}
	_, err := newRecords(nil, cur, []string{"date"}, ed.FormatGrade)
	if err == nil {
		t.Fatal("expected error when a record cannot be projected")
	}
}
