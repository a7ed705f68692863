package extract

import (
	"strings"

	"magiccal/internal/model"
)

// DefaultTitle is used when nothing is left of the text once the date/time
// expression has been removed.
const DefaultTitle = "New Event"

// ExtractTitle derives an event title from text by cutting out the matched
// date/time span.
//
// A venue clause that directly follows the span ("... at Mario's") is left
// out of the title when there is text before the span. Leading "at "/"on "
// and a trailing " at" are stripped, since removing "7pm" from
// "dinner at 7pm" leaves the preposition behind.
// An empty result becomes fallback.
func ExtractTitle(text string, span model.Span, fallback string) string {
	before, after := text, ""
	if span.Offset >= 0 && span.End() <= len(text) && span.Length > 0 {
		before, after = text[:span.Offset], text[span.End():]
	}

	if isVenueClause(after) && strings.TrimSpace(before) != "" {
		after = ""
	}

	title := strings.Join(strings.Fields(before+" "+after), " ")
	title = trimPrepositions(title)

	if title == "" {
		return fallback
	}
	return title
}

func isVenueClause(s string) bool {
	s = strings.ToLower(strings.TrimLeft(s, " \t"))
	return strings.HasPrefix(s, "at ") || strings.HasPrefix(s, "@ ")
}

func trimPrepositions(s string) string {
	for {
		lower := strings.ToLower(s)
		switch {
		case strings.HasPrefix(lower, "at "), strings.HasPrefix(lower, "on "):
			s = strings.TrimSpace(s[3:])
		case lower == "at", lower == "on":
			return ""
		case strings.HasSuffix(lower, " at"):
			s = strings.TrimSpace(s[:len(s)-3])
		default:
			return s
		}
	}
}
