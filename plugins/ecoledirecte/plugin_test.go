package ecoledirecte

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"cartable/internal/core"
	"cartable/internal/eventbus"
	"cartable/internal/statestore"
	ed "cartable/pkg/ecoledirecte"
)

func testPlugin(t *testing.T, f *fakeClient) (*Plugin, eventbus.Bus, *statestore.Store) {
	t.Helper()
	bus := eventbus.New()
	state := statestore.New()

	p := New()
	deps := core.PluginDeps{
		Logger: slog.New(slog.DiscardHandler),
		Config: json.RawMessage(`{"username": "parent", "password": "pw"}`),
		Services: &core.Services{
			Bus:   bus,
			State: state,
		},
	}
	if err := p.Init(context.Background(), deps); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = p.Stop(context.Background()) })

	p.mu.Lock()
	p.coord = newCoordinator(f, slog.New(slog.DiscardHandler), "parent", "pw")
	p.coord.now = func() time.Time { return time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC) }
	p.mu.Unlock()
	return p, bus, state
}

func TestRunTickPublishesEventsAndState(t *testing.T) {
	f := &fakeClient{
		session: &ed.Session{Token: "t", Students: []ed.Student{
			student("11", "Jane", "Doe", ed.ModuleGrades),
		}},
		grades: map[string][]ed.Record{"11": {grade("2025-01-10", "MATHS", "12", "20")}},
	}
	p, bus, state := testPlugin(t, f)

	if err := p.runTick(context.Background()); err != nil {
		t.Fatalf("first tick: %v", err)
	}

	if _, ok := state.Get("ed:jane doe_grades"); !ok {
		t.Errorf("state missing after first tick; keys = %v", state.Keys())
	}

	ch, unsub := bus.Subscribe(16, BusEventType)
	defer unsub()

	f.grades["11"] = append(f.grades["11"], grade("2025-01-15", "ANGLAIS", "16", "20"))
	if err := p.runTick(context.Background()); err != nil {
		t.Fatalf("second tick: %v", err)
	}

	select {
	case be := <-ch:
		if be.Type != BusEventType {
			t.Errorf("bus event type = %q", be.Type)
		}
		ev, ok := be.Data.(Event)
		if !ok {
			t.Fatalf("bus payload type %T", be.Data)
		}
		if ev.ChildName != "Jane Doe" || ev.Type != EventNewGrade {
			t.Errorf("event = %+v", ev)
		}
	default:
		t.Fatal("no event published on the bus")
	}
}

func TestRunTickLoginFailureKeepsState(t *testing.T) {
	f := &fakeClient{
		session: &ed.Session{Token: "t", Students: []ed.Student{
			student("11", "Jane", "Doe", ed.ModuleGrades),
		}},
		grades: map[string][]ed.Record{"11": {grade("2025-01-10", "MATHS", "12", "20")}},
	}
	p, _, state := testPlugin(t, f)

	if err := p.runTick(context.Background()); err != nil {
		t.Fatal(err)
	}

	f.loginErr = context.DeadlineExceeded
	if err := p.runTick(context.Background()); err == nil {
		t.Fatal("expected tick error on login failure")
	}
	if _, ok := state.Get("ed:jane doe_grades"); !ok {
		t.Error("state cleared by a failed tick")
	}
	p.mu.Lock()
	prev := p.prev
	p.mu.Unlock()
	if prev == nil || len(prev.Students) != 1 {
		t.Error("previous snapshot lost on failed tick")
	}
}

func TestValidateConfig(t *testing.T) {
	p := New()
	cases := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"ok", `{"username": "u", "password": "p"}`, false},
		{"missing username", `{"password": "p"}`, true},
		{"missing password", `{"username": "u"}`, true},
		{"interval too small", `{"username": "u", "password": "p", "refresh_interval_minutes": 1}`, true},
		{"unknown field", `{"username": "u", "password": "p", "intervall": 10}`, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := p.ValidateConfig(json.RawMessage(tc.raw))
			if (err != nil) != tc.wantErr {
				t.Errorf("err = %v, wantErr = %v", err, tc.wantErr)
			}
		})
	}
}

func TestEventSummary(t *testing.T) {
	ev := Event{
		ChildName: "Jane Doe",
		Type:      EventNewGrade,
		Data: map[string]string{
			"subject":       "MATHS",
			"grade_out_of":  "16/20",
			"class_average": "11.8",
		},
	}
	got := ev.summary()
	want := "📝 Jane Doe: new grade in MATHS: 16/20 (class avg 11.8)"
	if got != want {
		t.Errorf("summary = %q, want %q", got, want)
	}
}
