package model

import (
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	start := time.Date(2025, 3, 1, 14, 30, 0, 0, time.UTC)
	cases := []struct {
		name    string
		ev      Event
		wantErr bool
	}{
		{name: "ok", ev: Event{Title: "x", Start: start, End: start.Add(time.Hour)}},
		{name: "zero length", ev: Event{Title: "x", Start: start, End: start}},
		{name: "no title", ev: Event{Start: start, End: start}, wantErr: true},
		{name: "end before start", ev: Event{Title: "x", Start: start, End: start.Add(-time.Second)}, wantErr: true},
		{name: "sub-second start", ev: Event{Title: "x", Start: start.Add(time.Millisecond), End: start.Add(time.Hour)}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.ev.Validate(); (err != nil) != tc.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	ev := Event{
		Title: "x",
		Start: time.Date(2025, 3, 1, 9, 30, 0, 999_000_000, est),
		End:   time.Date(2025, 3, 1, 10, 0, 0, 1, est),
	}.Normalize()

	if want := time.Date(2025, 3, 1, 14, 30, 0, 0, time.UTC); !ev.Start.Equal(want) || ev.Start.Location() != time.UTC {
		t.Errorf("start = %v, want %v", ev.Start, want)
	}
	if want := time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC); !ev.End.Equal(want) {
		t.Errorf("end = %v, want %v", ev.End, want)
	}
	if err := ev.Validate(); err != nil {
		t.Errorf("normalized event invalid: %v", err)
	}
}
