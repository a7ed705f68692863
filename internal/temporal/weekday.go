package temporal

import (
	"time"

	"github.com/teambition/rrule-go"
)

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// weekdayOnOrAfter returns the first day on or after from (a local
// midnight) that falls on wd. It asks a single-occurrence weekly rule so the
// same engine that expands BYDAY in calendar feeds decides the date.
func weekdayOnOrAfter(from time.Time, wd time.Weekday) time.Time {
	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   from,
		Byweekday: []rrule.Weekday{rruleWeekdays[wd]},
		Count:     1,
	})
	if err == nil {
		if occ := r.All(); len(occ) > 0 {
			o := occ[0].In(from.Location())
			return time.Date(o.Year(), o.Month(), o.Day(), 0, 0, 0, 0, from.Location())
		}
	}

	delta := (int(wd) - int(from.Weekday()) + 7) % 7
	return from.AddDate(0, 0, delta)
}
