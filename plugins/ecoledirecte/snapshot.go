package ecoledirecte

import (
	"strings"
	"time"

	ed "cartable/pkg/ecoledirecte"
)

// categoryResult is the outcome of fetching one category for one student.
// Either Records or Err is set; a failed fetch never clobbers previous data.
type categoryResult struct {
	Records []ed.Record
	Err     error
}

// Snapshot is the full result of one refresh tick.
type Snapshot struct {
	TakenAt  time.Time
	Students []ed.Student
	// Data is keyed by student ID then category tag. A missing tag means
	// the module is disabled for that student.
	Data map[string]map[string]categoryResult
}

func newSnapshot(at time.Time) *Snapshot {
	return &Snapshot{TakenAt: at, Data: map[string]map[string]categoryResult{}}
}

func (s *Snapshot) put(studentID, tag string, res categoryResult) {
	m, ok := s.Data[studentID]
	if !ok {
		m = map[string]categoryResult{}
		s.Data[studentID] = m
	}
	m[tag] = res
}

// records returns the successfully fetched records for a student/category.
// ok is false when the category is absent or its fetch failed.
func (s *Snapshot) records(studentID, tag string) ([]ed.Record, bool) {
	if s == nil {
		return nil, false
	}
	res, ok := s.Data[studentID][tag]
	if !ok || res.Err != nil {
		return nil, false
	}
	return res.Records, true
}

// stateKey is the flattened per-child category key, e.g. "jane doe_grades".
func stateKey(st ed.Student, tag string) string {
	return strings.ToLower(st.FullName()) + "_" + tag
}

// export flattens the snapshot for the shared state store: one entry per
// child/category holding the projected records. Failed categories are
// omitted so previous values survive in the store.
func (s *Snapshot) export(prefix string) map[string]any {
	out := map[string]any{}
	for _, st := range s.Students {
		for _, c := range capabilities() {
			recs, ok := s.records(st.ID, c.tag)
			if !ok {
				continue
			}
			rows := make([]map[string]string, 0, len(recs))
			for _, r := range recs {
				m, err := c.format(r)
				if err != nil {
					continue
				}
				rows = append(rows, m)
			}
			out[prefix+stateKey(st, c.tag)] = rows
		}
	}
	return out
}
