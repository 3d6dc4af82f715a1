package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cartable/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "none"}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if st != nil {
		t.Fatal("expected nil store for disabled driver")
	}
}

func TestAppendEvent(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)

	err := st.AppendEvent(context.Background(), EventEntry{
		Plugin:    "ecoledirecte",
		ChildName: "Jane Doe",
		Type:      "new_grade",
		DataJSON:  `{"subject":"MATH"}`,
	})
	if err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
}

func TestDedupRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	until := time.Now().Add(time.Hour).Truncate(time.Millisecond)
	if err := st.PutDedup(ctx, "k1", until); err != nil {
		t.Fatalf("PutDedup: %v", err)
	}

	got, ok, err := st.GetDedup(ctx, "k1")
	if err != nil {
		t.Fatalf("GetDedup: %v", err)
	}
	if !ok {
		t.Fatal("expected key to exist")
	}
	if !got.Equal(until) {
		t.Fatalf("until = %v, want %v", got, until)
	}

	_, ok, err = st.GetDedup(ctx, "missing")
	if err != nil {
		t.Fatalf("GetDedup missing: %v", err)
	}
	if ok {
		t.Fatal("missing key reported as present")
	}
}
