package ecoledirecte

import (
	"fmt"
	"strings"
)

// BusEventType is the event bus type under which all portal events are
// published; the Data field carries an Event.
const BusEventType = "ecoledirecte.event"

// EventNewGrade tags a newly appeared grade inside the payload. Grades are
// the only diffed category, so it is the only per-record tag.
const EventNewGrade = "new_grade"

// Event is one detected change for one child.
type Event struct {
	ChildName string            `json:"child_name"`
	Type      string            `json:"type"`
	Data      map[string]string `json:"data"`
}

// summary renders a short human-readable line for notifications.
func (e Event) summary() string {
	var b strings.Builder
	switch e.Type {
	case EventNewGrade:
		fmt.Fprintf(&b, "📝 %s: new grade in %s: %s", e.ChildName, e.Data["subject"], e.Data["grade_out_of"])
		if avg := e.Data["class_average"]; avg != "" {
			fmt.Fprintf(&b, " (class avg %s)", avg)
		}
	default:
		fmt.Fprintf(&b, "%s: %s", e.ChildName, e.Type)
	}
	return b.String()
}
