package model

import (
	"errors"
	"time"
)

// DefaultDuration is applied when the source did not pin an end time.
const DefaultDuration = time.Hour

// Event is the normalized calendar-event record produced by the text
// pipeline and the document codecs. It is passed by value and never mutated
// after construction.
type Event struct {
	Title       string `json:"title" jsonschema:"required,description=The title of the event"`
	Description string `json:"description,omitempty" jsonschema:"description=A brief description of the event"`
	Location    string `json:"location,omitempty" jsonschema:"description=The physical location or link"`

	// Start / End are stored in UTC. For all-day events they sit on
	// midnight UTC of the intended calendar date.
	Start time.Time `json:"start" jsonschema:"required,description=Start instant in RFC 3339 (UTC)"`
	End   time.Time `json:"end" jsonschema:"required,description=End instant in RFC 3339 (UTC)"`

	AllDay bool `json:"all_day" jsonschema:"required,description=True if the event lasts all day"`
}

// Duration returns End - Start.
func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Validate reports whether the record satisfies the model invariants.
func (e Event) Validate() error {
	if e.Title == "" {
		return errors.New("event: title is empty")
	}
	if e.Start.IsZero() {
		return errors.New("event: start is zero")
	}
	if e.End.Before(e.Start) {
		return errors.New("event: end is before start")
	}
	// Documents carry whole seconds.
	if e.Start.Nanosecond() != 0 || e.End.Nanosecond() != 0 {
		return errors.New("event: instants have sub-second precision")
	}
	return nil
}

// Normalize returns e with Start and End in UTC, truncated to the second.
func (e Event) Normalize() Event {
	e.Start = e.Start.UTC().Truncate(time.Second)
	e.End = e.End.UTC().Truncate(time.Second)
	return e
}

// Span locates a match inside a source string (byte offsets).
type Span struct {
	Offset int
	Length int
}

// End returns the exclusive end offset.
func (s Span) End() int {
	return s.Offset + s.Length
}

// Token is a single date/time reference found by the scanner.
type Token struct {
	Span  Span
	Start time.Time
	// End is set only when the source text spelled out an end (a range).
	End *time.Time
	// HourSpecified is false when only a date or weekday was pinned.
	HourSpecified bool
}
