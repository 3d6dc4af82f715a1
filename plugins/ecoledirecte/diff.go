package ecoledirecte

import (
	"fmt"

	ed "cartable/pkg/ecoledirecte"
)

// newRecords returns the projection of every record in cur that has no
// match in prev, where two records match when all diff keys are equal on
// their formatted values. Order follows cur; a record is reported at most
// once even when cur contains duplicates of a prev record.
//
// A formatting failure aborts the whole category: better no events than
// events computed against a half-projected baseline.
func newRecords(prev, cur []ed.Record, keys []string, format ed.FormatFunc) ([]map[string]string, error) {
	prevProj := make([]map[string]string, 0, len(prev))
	for i, r := range prev {
		m, err := format(r)
		if err != nil {
			return nil, fmt.Errorf("previous record %d: %w", i, err)
		}
		prevProj = append(prevProj, m)
	}

	var out []map[string]string
	for i, r := range cur {
		m, err := format(r)
		if err != nil {
			return nil, fmt.Errorf("current record %d: %w", i, err)
		}
		if !containsMatch(prevProj, m, keys) {
			out = append(out, m)
		}
	}
	return out, nil
}

func containsMatch(haystack []map[string]string, needle map[string]string, keys []string) bool {
	for _, h := range haystack {
		if matchOn(h, needle, keys) {
			return true
		}
	}
	return false
}

func matchOn(a, b map[string]string, keys []string) bool {
	for _, k := range keys {
		if a[k] != b[k] {
			return false
		}
	}
	return true
}
