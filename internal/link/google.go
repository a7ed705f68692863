// Package link formats a normalized event for hand-off to calendar
// applications: a Google Calendar "add event" URL and an iCalendar
// delivery descriptor.
package link

import (
	"net/url"
	"strings"

	"magiccal/internal/model"
)

// DefaultBaseURL is the Google Calendar event template endpoint.
const DefaultBaseURL = "https://calendar.google.com/calendar/render"

const (
	layoutTimed  = "20060102T150405Z"
	layoutAllDay = "20060102"
)

// Builder renders calendar deep-links against a configurable base URL.
type Builder struct {
	// BaseURL defaults to DefaultBaseURL when empty.
	BaseURL string
}

// GoogleCalendarURL builds a deep-link against DefaultBaseURL.
func GoogleCalendarURL(ev model.Event) string {
	return Builder{}.GoogleCalendarURL(ev)
}

// GoogleCalendarURL returns the "add event" URL for ev. Parameters are
// emitted in a fixed order: action, text, dates, details, location.
//
// Timed events use UTC YYYYMMDDThhmmssZ; all-day events use YYYYMMDD, and a
// single-day all-day event gets an end one day after its start since the
// Google end date is exclusive.
func (b Builder) GoogleCalendarURL(ev model.Event) string {
	base := b.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}

	var sb strings.Builder
	sb.WriteString(base)
	sb.WriteString("?action=TEMPLATE")
	sb.WriteString("&text=")
	sb.WriteString(encodeComponent(ev.Title))
	sb.WriteString("&dates=")
	sb.WriteString(formatDates(ev))
	sb.WriteString("&details=")
	sb.WriteString(encodeComponent(ev.Description))
	sb.WriteString("&location=")
	sb.WriteString(encodeComponent(ev.Location))
	return sb.String()
}

func formatDates(ev model.Event) string {
	start, end := ev.Start.UTC(), ev.End.UTC()
	if !ev.AllDay {
		return start.Format(layoutTimed) + "/" + end.Format(layoutTimed)
	}

	s, e := start.Format(layoutAllDay), end.Format(layoutAllDay)
	if s == e {
		e = end.AddDate(0, 0, 1).Format(layoutAllDay)
	}
	return s + "/" + e
}

// componentUnescaper restores the characters that url.QueryEscape encodes but
// a URI component keeps literal.
var componentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// encodeComponent percent-encodes s the way browsers encode a URI component:
// space is %20 and only A-Z a-z 0-9 - _ . ! ~ * ' ( ) stay literal.
func encodeComponent(s string) string {
	return componentUnescaper.Replace(url.QueryEscape(s))
}
