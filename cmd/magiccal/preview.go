package main

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"magiccal/internal/model"
)

const cardWidth = 60

var (
	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
	titleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Faint(true)
)

// renderCard formats ev as a bordered terminal card. Timed events are shown
// in loc; all-day events by their calendar date.
func renderCard(ev model.Event, loc *time.Location, width int) string {
	inner := width - 4
	if inner < 20 {
		inner = 20
	}

	lines := []string{titleStyle.Render(wordwrap.String(ev.Title, inner))}
	lines = append(lines, labelStyle.Render("When  ")+formatWhen(ev, loc))
	if ev.Location != "" {
		lines = append(lines, labelStyle.Render("Where ")+ev.Location)
	}
	if ev.Description != "" && ev.Description != ev.Title {
		lines = append(lines, "", wordwrap.String(ev.Description, inner))
	}

	return cardStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func formatWhen(ev model.Event, loc *time.Location) string {
	if ev.AllDay {
		start := ev.Start.UTC().Format("Mon Jan 2, 2006")
		// An exclusive end on the next midnight is still a single day.
		last := ev.End.UTC().Add(-time.Nanosecond)
		if !last.After(ev.Start) || last.Format("20060102") == ev.Start.UTC().Format("20060102") {
			return start + " (all day)"
		}
		return start + " - " + last.Format("Mon Jan 2, 2006") + " (all day)"
	}

	start, end := ev.Start.In(loc), ev.End.In(loc)
	if start.Format("20060102") == end.Format("20060102") {
		return start.Format("Mon Jan 2, 2006 15:04") + "-" + end.Format("15:04 MST")
	}
	return start.Format("Mon Jan 2, 2006 15:04") + " - " + end.Format("Mon Jan 2, 2006 15:04 MST")
}
