package ics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"magiccal/internal/codec"
	"magiccal/internal/model"
)

var fixedNow = func() time.Time { return time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC) }

func doc(lines ...string) []byte {
	return []byte(strings.Join(lines, "\r\n") + "\r\n")
}

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		ev   model.Event
	}{
		{
			name: "timed",
			ev: model.Event{
				Title:       "Dinner with Sarah",
				Description: "Dinner with Sarah tomorrow at 7pm",
				Start:       time.Date(2025, 1, 16, 3, 0, 0, 0, time.UTC),
				End:         time.Date(2025, 1, 16, 4, 0, 0, 0, time.UTC),
			},
		},
		{
			name: "all-day aligned",
			ev: model.Event{
				Title:  "Offsite",
				Start:  time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC),
				End:    time.Date(2025, 1, 21, 0, 0, 0, 0, time.UTC),
				AllDay: true,
			},
		},
		{
			name: "all-day with default duration",
			ev: model.Event{
				Title:  "Meeting",
				Start:  time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC),
				End:    time.Date(2025, 1, 20, 1, 0, 0, 0, time.UTC),
				AllDay: true,
			},
		},
		{
			name: "text escaping",
			ev: model.Event{
				Title:       "Review; part 1, draft",
				Description: "line one\nline two, with comma; and semicolon",
				Location:    "Room 4, Floor 2",
				Start:       time.Date(2025, 3, 1, 14, 30, 0, 0, time.UTC),
				End:         time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC),
			},
		},
		{
			name: "sub-second normalized",
			ev: model.Event{
				Title: "Review",
				Start: time.Date(2025, 3, 1, 14, 30, 0, 500_000_000, time.UTC),
				End:   time.Date(2025, 3, 1, 15, 0, 0, 250_000_000, time.UTC),
			}.Normalize(),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Serialize(tc.ev, SerializeOptions{Now: fixedNow})
			if err != nil {
				t.Fatalf("Serialize: %v", err)
			}
			got, err := Parse(out)
			if err != nil {
				t.Fatalf("Parse: %v\n%s", err, out)
			}
			if got.Title != tc.ev.Title {
				t.Errorf("title = %q, want %q", got.Title, tc.ev.Title)
			}
			if got.Description != tc.ev.Description {
				t.Errorf("description = %q, want %q", got.Description, tc.ev.Description)
			}
			if got.Location != tc.ev.Location {
				t.Errorf("location = %q, want %q", got.Location, tc.ev.Location)
			}
			if !got.Start.Equal(tc.ev.Start) {
				t.Errorf("start = %v, want %v", got.Start, tc.ev.Start)
			}
			if !got.End.Equal(tc.ev.End) {
				t.Errorf("end = %v, want %v", got.End, tc.ev.End)
			}
			if got.AllDay != tc.ev.AllDay {
				t.Errorf("allDay = %v, want %v", got.AllDay, tc.ev.AllDay)
			}
		})
	}
}

func TestSerializeDocumentShape(t *testing.T) {
	ev := model.Event{
		Title: "Standup",
		Start: time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 2, 3, 9, 15, 0, 0, time.UTC),
	}
	out, err := Serialize(ev, SerializeOptions{Now: fixedNow})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	s := string(out)

	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:" + DefaultProductID,
		"CALSCALE:GREGORIAN",
		"BEGIN:VEVENT",
		"DTSTAMP:20250110T080000Z",
		"DTSTART:20250203T090000Z",
		"DTEND:20250203T091500Z",
		"SUMMARY:Standup",
		"STATUS:CONFIRMED",
		"END:VEVENT",
		"END:VCALENDAR",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q\n%s", want, s)
		}
	}
	if strings.Index(s, "BEGIN:VEVENT") > strings.Index(s, "END:VEVENT") {
		t.Errorf("VEVENT block out of order\n%s", s)
	}

	again, err := Serialize(ev, SerializeOptions{Now: fixedNow})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if string(again) != s {
		t.Errorf("output not deterministic for a fixed clock")
	}
}

func TestSerializeAllDayUsesDateValues(t *testing.T) {
	ev := model.Event{
		Title:  "Holiday",
		Start:  time.Date(2025, 7, 4, 0, 0, 0, 0, time.UTC),
		End:    time.Date(2025, 7, 5, 0, 0, 0, 0, time.UTC),
		AllDay: true,
	}
	out, err := Serialize(ev, SerializeOptions{Now: fixedNow, ProductID: "-//Test//EN"})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	s := string(out)
	for _, want := range []string{"DTSTART;VALUE=DATE:20250704", "DTEND;VALUE=DATE:20250705", "PRODID:-//Test//EN"} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q\n%s", want, s)
		}
	}
}

func TestSerializeRejectsInvalidEvent(t *testing.T) {
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	cases := map[string]model.Event{
		"empty title": {Start: start, End: start},
		"zero start":  {Title: "x"},
		"end before":  {Title: "x", Start: start, End: start.Add(-time.Minute)},
		"sub-second":  {Title: "x", Start: start.Add(500 * time.Millisecond), End: start.Add(time.Hour)},
	}
	for name, ev := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Serialize(ev, SerializeOptions{}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParseDefaults(t *testing.T) {
	cases := []struct {
		name      string
		doc       []byte
		wantTitle string
		wantStart time.Time
		wantEnd   time.Time
		wantAll   bool
	}{
		{
			name: "untitled without end",
			doc: doc(
				"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//x//EN",
				"BEGIN:VEVENT", "UID:1", "DTSTART:20250301T100000Z",
				"END:VEVENT", "END:VCALENDAR",
			),
			wantTitle: UntitledTitle,
			wantStart: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			name: "duration",
			doc: doc(
				"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//x//EN",
				"BEGIN:VEVENT", "UID:1", "SUMMARY:Call", "DTSTART:20250301T100000Z",
				"DURATION:PT1H30M", "END:VEVENT", "END:VCALENDAR",
			),
			wantTitle: "Call",
			wantStart: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, 3, 1, 11, 30, 0, 0, time.UTC),
		},
		{
			name: "date only start",
			doc: doc(
				"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//x//EN",
				"BEGIN:VEVENT", "UID:1", "SUMMARY:Trip", "DTSTART;VALUE=DATE:20250301",
				"END:VEVENT", "END:VCALENDAR",
			),
			wantTitle: "Trip",
			wantStart: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC),
			wantAll:   true,
		},
		{
			name: "tzid",
			doc: doc(
				"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//x//EN",
				"BEGIN:VEVENT", "UID:1", "SUMMARY:Sync",
				"DTSTART;TZID=America/New_York:20250115T090000",
				"DTEND;TZID=America/New_York:20250115T100000",
				"END:VEVENT", "END:VCALENDAR",
			),
			wantTitle: "Sync",
			wantStart: time.Date(2025, 1, 15, 14, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, 1, 15, 15, 0, 0, 0, time.UTC),
		},
		{
			name: "end before start is clamped",
			doc: doc(
				"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//x//EN",
				"BEGIN:VEVENT", "UID:1", "SUMMARY:Odd",
				"DTSTART:20250301T100000Z", "DTEND:20250301T090000Z",
				"END:VEVENT", "END:VCALENDAR",
			),
			wantTitle: "Odd",
			wantStart: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.doc)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if got.Title != tc.wantTitle {
				t.Errorf("title = %q, want %q", got.Title, tc.wantTitle)
			}
			if !got.Start.Equal(tc.wantStart) {
				t.Errorf("start = %v, want %v", got.Start, tc.wantStart)
			}
			if !got.End.Equal(tc.wantEnd) {
				t.Errorf("end = %v, want %v", got.End, tc.wantEnd)
			}
			if got.AllDay != tc.wantAll {
				t.Errorf("allDay = %v, want %v", got.AllDay, tc.wantAll)
			}
		})
	}
}

func TestParseFirstEventWins(t *testing.T) {
	got, err := Parse(doc(
		"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//x//EN",
		"BEGIN:VEVENT", "UID:1", "SUMMARY:First", "DTSTART:20250301T100000Z", "END:VEVENT",
		"BEGIN:VEVENT", "UID:2", "SUMMARY:Second", "DTSTART:20250302T100000Z", "END:VEVENT",
		"END:VCALENDAR",
	))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Title != "First" {
		t.Errorf("title = %q, want First", got.Title)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		doc  []byte
		want error
	}{
		{
			name: "no event",
			doc:  doc("BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//x//EN", "END:VCALENDAR"),
			want: ErrNoEventBlock,
		},
		{
			name: "empty",
			doc:  []byte("  \n"),
			want: ErrMalformedDocument,
		},
		{
			name: "plain text",
			doc:  []byte("hello"),
			want: ErrMalformedDocument,
		},
		{
			name: "truncated",
			doc: doc(
				"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//x//EN",
				"BEGIN:VEVENT", "UID:1", "SUMMARY:Cut", "DTSTART:20250301T100000Z",
			),
			want: ErrMalformedDocument,
		},
		{
			name: "bad start",
			doc: doc(
				"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//x//EN",
				"BEGIN:VEVENT", "UID:1", "SUMMARY:Bad", "DTSTART:2025-13-45",
				"END:VEVENT", "END:VCALENDAR",
			),
			want: ErrMalformedDocument,
		},
		{
			name: "missing start",
			doc: doc(
				"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//x//EN",
				"BEGIN:VEVENT", "UID:1", "SUMMARY:None",
				"END:VEVENT", "END:VCALENDAR",
			),
			want: ErrMalformedDocument,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.doc)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCodecRegistry(t *testing.T) {
	c := NewCodec(SerializeOptions{Now: fixedNow})
	reg := codec.NewRegistry(c)

	got, err := reg.Lookup(codec.FormatICS)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.MIMEType() != "text/calendar" || got.Extension() != ".ics" {
		t.Errorf("unexpected codec metadata %q %q", got.MIMEType(), got.Extension())
	}
	if _, err := reg.Lookup("vcs"); !errors.Is(err, codec.ErrUnknownFormat) {
		t.Errorf("Lookup(vcs) err = %v", err)
	}

	ev := model.Event{
		Title: "Codec",
		Start: time.Date(2025, 5, 5, 12, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 5, 5, 13, 0, 0, 0, time.UTC),
	}
	out, err := got.Encode(ev)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	back, err := got.Decode(out)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if back.Title != ev.Title || !back.Start.Equal(ev.Start) {
		t.Errorf("decoded %+v", back)
	}
}

func TestParseEscapedText(t *testing.T) {
	got, err := Parse(doc(
		"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//x//EN",
		"BEGIN:VEVENT", "UID:1", "DTSTART:20250301T100000Z",
		`SUMMARY:Review\, draft\; v2`,
		`DESCRIPTION:C:\\new folder\nsecond line`,
		`LOCATION:Room 4\, Floor 2`,
		"END:VEVENT", "END:VCALENDAR",
	))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if want := "Review, draft; v2"; got.Title != want {
		t.Errorf("title = %q, want %q", got.Title, want)
	}
	if want := "C:\\new folder\nsecond line"; got.Description != want {
		t.Errorf("description = %q, want %q", got.Description, want)
	}
	if want := "Room 4, Floor 2"; got.Location != want {
		t.Errorf("location = %q, want %q", got.Location, want)
	}
}

func TestSerializeEscapesTextOnce(t *testing.T) {
	ev := model.Event{
		Title:       "Review, draft",
		Description: "line one\r\nline two",
		Location:    `Room 4; C:\share`,
		Start:       time.Date(2025, 3, 1, 14, 30, 0, 0, time.UTC),
		End:         time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC),
	}
	out, err := Serialize(ev, SerializeOptions{Now: fixedNow})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	s := string(out)
	for _, want := range []string{
		`SUMMARY:Review\, draft` + "\r\n",
		`DESCRIPTION:line one\nline two` + "\r\n",
		`LOCATION:Room 4\; C:\\share` + "\r\n",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q\n%s", want, s)
		}
	}
}

func TestSerializeAllDayExactEnd(t *testing.T) {
	ev := model.Event{
		Title:  "Meeting",
		Start:  time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC),
		End:    time.Date(2025, 1, 20, 1, 0, 0, 0, time.UTC),
		AllDay: true,
	}
	out, err := Serialize(ev, SerializeOptions{Now: fixedNow})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	s := string(out)
	for _, want := range []string{
		"DTSTART;VALUE=DATE:20250120",
		"DTEND;VALUE=DATE:20250121",
		"X-MAGICCAL-END:20250120T010000Z",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q\n%s", want, s)
		}
	}

	// Other clients only see the DATE values.
	stripped := strings.Replace(s, "X-MAGICCAL-END:20250120T010000Z\r\n", "", 1)
	got, err := Parse([]byte(stripped))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if want := time.Date(2025, 1, 21, 0, 0, 0, 0, time.UTC); !got.End.Equal(want) {
		t.Errorf("end without exact end = %v, want %v", got.End, want)
	}
}

func TestParseWithUntitledOverride(t *testing.T) {
	in := doc(
		"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//x//EN",
		"BEGIN:VEVENT", "UID:1", "DTSTART:20250301T100000Z",
		"END:VEVENT", "END:VCALENDAR",
	)
	c := NewCodec(SerializeOptions{}).WithParseOptions(ParseOptions{UntitledTitle: "(no title)"})
	got, err := c.Decode(in)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Title != "(no title)" {
		t.Errorf("title = %q", got.Title)
	}
}
