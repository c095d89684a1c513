package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"eventpulse/internal/lifecycle"
	logx "eventpulse/pkg/logx"
)

func openTestStores(t *testing.T) map[string]Store {
	t.Helper()
	out := map[string]Store{}
	for _, driver := range []string{"file", "sqlite"} {
		st, err := Open(Config{Driver: driver, Path: filepath.Join(t.TempDir(), "store.db")}, logx.Nop())
		if err != nil {
			t.Fatalf("open %s: %v", driver, err)
		}
		t.Cleanup(func() { _ = st.Close() })
		out[driver] = st
	}
	return out
}

func sampleEvents() []lifecycle.EventRecord {
	base := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	cert := base.Add(5 * time.Hour)
	return []lifecycle.EventRecord{
		{
			ID: "keynote", Name: "Keynote", Venue: "Main Hall",
			RegistrationStart: base, RegistrationEnd: base.Add(time.Hour),
			StartTime: base.Add(2 * time.Hour), EndTime: base.Add(3 * time.Hour),
			CertificateAvailableFrom: &cert, Audience: []string{"students"},
		},
		{ID: "draft", Name: "Untitled", Draft: true},
	}
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	t.Parallel()
	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, logx.Nop())
		if st != nil || err != nil {
			t.Fatalf("Open(%q) = %v, %v; want nil, nil", d, st, err)
		}
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("err = %v, want ErrUnknownDriver", err)
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); !errors.Is(err, ErrPathRequired) {
		t.Fatalf("err = %v, want ErrPathRequired", err)
	}
}

func TestEventsRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for driver, st := range openTestStores(t) {
		got, err := st.LoadEvents(ctx)
		if err != nil || len(got) != 0 {
			t.Fatalf("%s: empty store LoadEvents = %v, %v", driver, got, err)
		}
		want := sampleEvents()
		if err := st.SaveEvents(ctx, want); err != nil {
			t.Fatalf("%s: SaveEvents: %v", driver, err)
		}
		// Replacing keeps only the new set.
		if err := st.SaveEvents(ctx, want[:1]); err != nil {
			t.Fatalf("%s: SaveEvents replace: %v", driver, err)
		}
		got, err = st.LoadEvents(ctx)
		if err != nil {
			t.Fatalf("%s: LoadEvents: %v", driver, err)
		}
		if len(got) != 1 || got[0].ID != "keynote" || !got[0].StartTime.Equal(want[0].StartTime) {
			t.Fatalf("%s: got %+v", driver, got)
		}
		if got[0].CertificateAvailableFrom == nil || !got[0].CertificateAvailableFrom.Equal(*want[0].CertificateAvailableFrom) {
			t.Fatalf("%s: certificate time lost", driver)
		}
	}
}

func TestTransitionsAppendAndQuery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	open := lifecycle.CalculateStatus(sampleEvents()[0], time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC))
	closed := lifecycle.CalculateStatus(sampleEvents()[0], time.Date(2024, 3, 14, 10, 30, 0, 0, time.UTC))
	at := time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC)

	for driver, st := range openTestStores(t) {
		for i := 0; i < 3; i++ {
			tr := Transition{EventID: "keynote", From: open, To: closed, At: at.Add(time.Duration(i) * time.Minute)}
			if err := st.AppendTransition(ctx, tr); err != nil {
				t.Fatalf("%s: AppendTransition: %v", driver, err)
			}
		}
		if err := st.AppendTransition(ctx, Transition{EventID: "other", From: open, To: closed, At: at}); err != nil {
			t.Fatal(err)
		}

		all, err := st.Transitions(ctx, "", 0)
		if err != nil || len(all) != 4 {
			t.Fatalf("%s: all = %d, %v", driver, len(all), err)
		}
		last, err := st.Transitions(ctx, "keynote", 2)
		if err != nil {
			t.Fatalf("%s: Transitions: %v", driver, err)
		}
		if len(last) != 2 || !last[0].At.Equal(at.Add(time.Minute)) || !last[1].At.Equal(at.Add(2*time.Minute)) {
			t.Fatalf("%s: limited query = %+v", driver, last)
		}
		if last[0].ID == "" || last[0].ID == last[1].ID {
			t.Fatalf("%s: ids not generated uniquely: %q %q", driver, last[0].ID, last[1].ID)
		}
		if last[1].From.Sub != lifecycle.RegistrationOpen || last[1].To.Sub != lifecycle.RegistrationClosed {
			t.Fatalf("%s: statuses = %s -> %s", driver, last[1].From, last[1].To)
		}
	}
}

func TestClosedFileStore(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "s.json")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}
	if err := st.AppendTransition(context.Background(), Transition{EventID: "x"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
