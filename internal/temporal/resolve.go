package temporal

import (
	"errors"
	"iter"
	"time"

	appLog "magiccal/internal/log"
	"magiccal/internal/model"
)

// ErrNoTemporalMatch is returned when the text contains no recognizable
// date or time.
var ErrNoTemporalMatch = errors.New("no date or time found in text")

// Resolution is the outcome of resolving a token sequence.
type Resolution struct {
	Start  time.Time
	End    time.Time
	AllDay bool
	Span   model.Span
}

// Resolve picks the first token as the authoritative match and derives the
// event window from it.
//
//   - End is the token's explicit end, otherwise Start + defaultDuration
//     (model.DefaultDuration when defaultDuration <= 0).
//   - AllDay is true when the token did not pin a time of day. All-day
//     instants are moved to midnight UTC of the same calendar date.
//   - An end before the start is clamped to the start.
//
// Returned instants are in UTC.
func Resolve(tokens iter.Seq[model.Token], defaultDuration time.Duration) (Resolution, error) {
	var (
		first model.Token
		found bool
	)
	for tok := range tokens {
		first, found = tok, true
		break
	}
	if !found {
		return Resolution{}, ErrNoTemporalMatch
	}

	if defaultDuration <= 0 {
		defaultDuration = model.DefaultDuration
	}

	start := first.Start
	end := start.Add(defaultDuration)
	if first.End != nil {
		end = *first.End
	}

	allDay := !first.HourSpecified
	if allDay {
		d := end.Sub(start)
		start = floatingDate(start)
		end = start.Add(d)
	}

	if end.Before(start) {
		appLog.Debug("resolved end before start; clamping", "start", start, "end", end)
		end = start
	}

	return Resolution{
		Start:  start.UTC(),
		End:    end.UTC(),
		AllDay: allDay,
		Span:   first.Span,
	}, nil
}

// floatingDate keeps the wall-clock calendar date of t and places it at
// midnight UTC.
func floatingDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
