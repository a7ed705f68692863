package ics

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // TZID parameters must resolve without a system zoneinfo

	duration "github.com/ChannelMeter/iso8601duration"
	ical "github.com/arran4/golang-ical"

	appLog "magiccal/internal/log"
	"magiccal/internal/model"
)

const (
	// UntitledTitle is used when the VEVENT carries no SUMMARY.
	UntitledTitle = "Untitled Event"

	layoutUTC   = "20060102T150405Z"
	layoutLocal = "20060102T150405"
	layoutDate  = "20060102"
)

var (
	// ErrNoEventBlock means the document parsed but holds no VEVENT.
	ErrNoEventBlock = errors.New("no event found in calendar document")
	// ErrMalformedDocument means the document or its first VEVENT could not
	// be parsed.
	ErrMalformedDocument = errors.New("malformed calendar document")
)

// ParseOptions controls document import.
type ParseOptions struct {
	// UntitledTitle replaces a missing SUMMARY. Empty means UntitledTitle.
	UntitledTitle string
}

// Parse reads an iCalendar document and returns its first VEVENT as a
// model.Event.
//
//   - SUMMARY defaults to UntitledTitle; DESCRIPTION and LOCATION default to
//     empty and are unescaped per RFC 5545 TEXT rules.
//   - All-day is detected from DTSTART: VALUE=DATE or no time component.
//     Date-only values become midnight UTC of that date.
//   - A missing DTEND is derived from DURATION, else one day for all-day
//     events, else the start.
//
// Any structural or timestamp problem yields ErrMalformedDocument and no
// partial record.
func Parse(doc []byte) (model.Event, error) {
	return ParseWithOptions(doc, ParseOptions{})
}

// ParseWithOptions is Parse with a configurable fallback title.
func ParseWithOptions(doc []byte, opts ParseOptions) (model.Event, error) {
	if opts.UntitledTitle == "" {
		opts.UntitledTitle = UntitledTitle
	}
	if len(bytes.TrimSpace(doc)) == 0 {
		return model.Event{}, fmt.Errorf("%w: empty document", ErrMalformedDocument)
	}
	if err := checkStructure(doc); err != nil {
		return model.Event{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(doc))
	if err != nil {
		appLog.Debug("ics parse failed", "err", err)
		return model.Event{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	events := cal.Events()
	if len(events) == 0 {
		return model.Event{}, ErrNoEventBlock
	}
	if len(events) > 1 {
		appLog.Debug("ics document has several events; using the first", "event_count", len(events))
	}

	ev, err := parseVEvent(events[0], opts.UntitledTitle)
	if err != nil {
		return model.Event{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return ev, nil
}

func parseVEvent(ve *ical.VEvent, untitled string) (model.Event, error) {
	var out model.Event

	out.Title = untitled
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil && p.Value != "" {
		out.Title = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	start, allDay, err := parseTimestamp(dtStart.Value, dtStart.ICalParameters)
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	out.Start = start
	out.AllDay = allDay

	switch {
	case ve.GetProperty(ical.ComponentPropertyDtEnd) != nil:
		p := ve.GetProperty(ical.ComponentPropertyDtEnd)
		end, _, err := parseTimestamp(p.Value, p.ICalParameters)
		if err != nil {
			return out, fmt.Errorf("DTEND: %w", err)
		}
		out.End = end
	case ve.GetProperty(ical.ComponentPropertyDuration) != nil:
		p := ve.GetProperty(ical.ComponentPropertyDuration)
		d, err := duration.FromString(strings.TrimSpace(p.Value))
		if err != nil {
			return out, fmt.Errorf("DURATION: %w", err)
		}
		out.End = start.Add(d.ToDuration())
	case allDay:
		out.End = start.AddDate(0, 0, 1)
	default:
		out.End = start
	}

	if p := ve.GetProperty(propertyExactEnd); p != nil && allDay {
		if end, err := time.Parse(layoutUTC, strings.TrimSpace(p.Value)); err == nil {
			out.End = end.UTC()
		} else {
			appLog.Debug("ignoring unparsable exact end", "value", p.Value, "err", err)
		}
	}

	if out.End.Before(out.Start) {
		appLog.Debug("ics event ends before it starts; clamping", "start", out.Start, "end", out.End)
		out.End = out.Start
	}

	return out, nil
}

// parseTimestamp parses a DATE or DATE-TIME value. The result is in UTC;
// date-only values are midnight UTC of that date.
func parseTimestamp(v string, params map[string][]string) (time.Time, bool, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false, errors.New("empty time value")
	}

	dateOnly := !strings.Contains(v, "T")
	if vs, ok := params[string(ical.ParameterValue)]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		dateOnly = true
	}

	if dateOnly {
		t, err := time.ParseInLocation(layoutDate, v, time.UTC)
		if err != nil {
			return time.Time{}, false, err
		}
		return t, true, nil
	}

	// UTC form, e.g., 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse(layoutUTC, v)
		if err != nil {
			return time.Time{}, false, err
		}
		return t.UTC(), false, nil
	}

	loc := time.Local
	if tzs, ok := params[string(ical.ParameterTzid)]; ok && len(tzs) > 0 {
		name := strings.Trim(tzs[0], `"`)
		if l, err := time.LoadLocation(name); err == nil {
			loc = l
		} else {
			appLog.Error("unknown TZID; treating time as local", err, "tzid", name)
		}
	}

	t, err := time.ParseInLocation(layoutLocal, v, loc)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.UTC(), false, nil
}

// checkStructure verifies that BEGIN/END lines nest and close, so that a
// truncated download is reported instead of silently accepted.
func checkStructure(doc []byte) error {
	var stack []string
	sc := bufio.NewScanner(bytes.NewReader(doc))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	seenCalendar := false
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" || line[0] == ' ' || line[0] == '\t' {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch strings.ToUpper(name) {
		case "BEGIN":
			value = strings.ToUpper(strings.TrimSpace(value))
			if len(stack) == 0 {
				if value != "VCALENDAR" || seenCalendar {
					return fmt.Errorf("unexpected BEGIN:%s at top level", value)
				}
				seenCalendar = true
			}
			stack = append(stack, value)
		case "END":
			value = strings.ToUpper(strings.TrimSpace(value))
			if len(stack) == 0 || stack[len(stack)-1] != value {
				return fmt.Errorf("unexpected END:%s", value)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if !seenCalendar {
		return errors.New("missing BEGIN:VCALENDAR")
	}
	if len(stack) > 0 {
		return fmt.Errorf("truncated document: %s not closed", stack[len(stack)-1])
	}
	return nil
}
