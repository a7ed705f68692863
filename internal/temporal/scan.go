// Package temporal locates date/time references in free text and resolves
// them into absolute instants.
//
// The recognized phrasings are an explicit, bounded list (see matchers):
// relative days, weekdays, "in N units", absolute dates, clock times and
// time ranges. Everything is resolved against a caller-supplied reference
// instant in that instant's location.
package temporal

import (
	"iter"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"magiccal/internal/model"
)

type kind int

const (
	// kindDate pins a calendar date only.
	kindDate kind = iota
	// kindTime pins a time of day (optionally a range) without a date.
	kindTime
	// kindInstant is already a complete instant ("in 2 hours").
	kindInstant
)

// component is one raw match before date and time parts are combined.
type component struct {
	kind       kind
	start, end int

	// kindDate
	date     time.Time
	absolute bool
	weekday  bool

	// kindTime
	hour, minute       int
	hasEnd             bool
	endHour, endMinute int

	// kindInstant
	instant time.Time
}

type matcher struct {
	re    *regexp.Regexp
	build func(text string, m []int, now time.Time) (component, bool)
}

const (
	monthPattern    = `january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec`
	weekdayPattern  = `monday|tuesday|wednesday|thursday|friday|saturday|sunday|mon|tues|tue|wed|thurs|thur|thu|fri|sat|sun`
	meridiemPattern = `([ap])\.?m\b\.?`
	datePrefix      = `(?:\b(?:on|at)\s+)?`
	timePrefix      = `(?:\b(?:at|from|by)\s+|@\s*)?`
	numberPattern   = `\d+|a\s+couple\s+of|couple\s+of|a\s+few|few|an?|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve`
)

var (
	reRelativeDay = regexp.MustCompile(`(?i)` + datePrefix + `\b(day\s+after\s+tomorrow|today|tonight|tomorrow|tmrw|tmr|yesterday)\b`)
	reWeekday     = regexp.MustCompile(`(?i)` + datePrefix + `\b(?:(next|this|coming|last)\s+)?(` + weekdayPattern + `)\b`)
	reRelative    = regexp.MustCompile(`(?i)\b(next|this)\s+(week|month|year)\b`)
	reOffset      = regexp.MustCompile(`(?i)\bin\s+(` + numberPattern + `)\s+(minutes?|mins?|hours?|hrs?|days?|weeks?|months?|years?)\b`)
	reMonthDay    = regexp.MustCompile(`(?i)` + datePrefix + `\b(` + monthPattern + `)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b(?:,?\s+(\d{4})\b)?`)
	reDayMonth    = regexp.MustCompile(`(?i)` + datePrefix + `\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(` + monthPattern + `)\b\.?(?:,?\s+(\d{4})\b)?`)
	reNumeric     = regexp.MustCompile(`(?i)` + datePrefix + `\b(\d{1,2})/(\d{1,2})(?:/(\d{4}|\d{2}))?\b`)
	reISODate     = regexp.MustCompile(`(?i)` + datePrefix + `\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	reTimeRange   = regexp.MustCompile(`(?i)` + timePrefix + `\b(\d{1,2})(?::([0-5]\d))?\s*(?:` + meridiemPattern + `)?\s*(?:-|–|—|\bto\b|\buntil\b|\btill\b)\s*(\d{1,2})(?::([0-5]\d))?\s*(?:` + meridiemPattern + `)?`)
	reTime12      = regexp.MustCompile(`(?i)` + timePrefix + `\b(\d{1,2})(?::([0-5]\d))?\s*` + meridiemPattern)
	reTime24      = regexp.MustCompile(`(?i)` + timePrefix + `\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	reNamedTime   = regexp.MustCompile(`(?i)` + timePrefix + `\b(noon|midday|midnight)\b`)
	reBareHour    = regexp.MustCompile(`(?i)(?:\bat\s+|@\s*)(\d{1,2})(?:\s*o'?clock)?\b`)

	// reConnector matches the text allowed between a date part and a time
	// part that belong to the same expression.
	reConnector = regexp.MustCompile(`(?i)^[\s,]*(?:(?:at|on|by)\s+|@\s*)?[\s,]*$`)
)

var matchers = []matcher{
	{re: reRelativeDay, build: buildRelativeDay},
	{re: reWeekday, build: buildWeekday},
	{re: reRelative, build: buildRelative},
	{re: reOffset, build: buildOffset},
	{re: reMonthDay, build: buildMonthDay},
	{re: reDayMonth, build: buildDayMonth},
	{re: reNumeric, build: buildNumeric},
	{re: reISODate, build: buildISODate},
	{re: reTimeRange, build: buildTimeRange},
	{re: reTime12, build: buildTime12},
	{re: reTime24, build: buildTime24},
	{re: reNamedTime, build: buildNamedTime},
	{re: reBareHour, build: buildBareHour},
}

// Scan returns the date/time references found in text, left to right.
//
// The sequence is lazy and restartable: nothing is matched until it is
// ranged over, and each range performs a fresh scan. Matches never
// overlap; at a given position the longest candidate wins and an earlier
// candidate wins over a later one it overlaps. Text without any reference
// yields an empty sequence.
func Scan(text string, now time.Time) iter.Seq[model.Token] {
	return func(yield func(model.Token) bool) {
		comps := collect(text, now)
		combine(text, comps, now, yield)
	}
}

// collect runs every matcher and keeps a non-overlapping subset.
func collect(text string, now time.Time) []component {
	var cands []component
	for _, mt := range matchers {
		for _, m := range mt.re.FindAllStringSubmatchIndex(text, -1) {
			c, ok := mt.build(text, m, now)
			if !ok {
				continue
			}
			c.start, c.end = m[0], m[1]
			cands = append(cands, c)
		}
	}

	slices.SortStableFunc(cands, func(a, b component) int {
		if a.start != b.start {
			return a.start - b.start
		}
		return (b.end - b.start) - (a.end - a.start)
	})

	out := make([]component, 0, len(cands))
	lastEnd := -1
	for _, c := range cands {
		if c.start < lastEnd {
			continue
		}
		out = append(out, c)
		lastEnd = c.end
	}
	return out
}

// combine folds adjacent date and time components into single tokens and
// yields them in order.
func combine(text string, comps []component, now time.Time, yield func(model.Token) bool) {
	for i := 0; i < len(comps); i++ {
		c := comps[i]
		if i+1 < len(comps) {
			n := comps[i+1]
			if reConnector.MatchString(text[c.end:n.start]) {
				switch {
				case c.weekday && n.kind == kindDate && n.absolute:
					// "Monday, March 3": the absolute date carries the meaning.
					n.start = c.start
					comps[i+1] = n
					continue
				case c.kind == kindDate && n.kind == kindTime:
					if !yield(makeToken(c.start, n.end, c.date, n, now)) {
						return
					}
					i++
					continue
				case c.kind == kindTime && n.kind == kindDate:
					if !yield(makeToken(c.start, n.end, n.date, c, now)) {
						return
					}
					i++
					continue
				}
			}
		}

		var tok model.Token
		switch c.kind {
		case kindDate:
			tok = model.Token{Span: span(c.start, c.end), Start: c.date}
		case kindTime:
			tok = makeToken(c.start, c.end, startOfDay(now), c, now)
		case kindInstant:
			tok = model.Token{Span: span(c.start, c.end), Start: c.instant, HourSpecified: true}
		}
		if !yield(tok) {
			return
		}
	}
}

func makeToken(start, end int, date time.Time, tc component, now time.Time) model.Token {
	loc := now.Location()
	begin := time.Date(date.Year(), date.Month(), date.Day(), tc.hour, tc.minute, 0, 0, loc)
	tok := model.Token{
		Span:          span(start, end),
		Start:         begin,
		HourSpecified: true,
	}
	if tc.hasEnd {
		finish := time.Date(date.Year(), date.Month(), date.Day(), tc.endHour, tc.endMinute, 0, 0, loc)
		if finish.Before(begin) {
			finish = finish.AddDate(0, 0, 1)
		}
		tok.End = &finish
	}
	return tok
}

func span(start, end int) model.Span {
	return model.Span{Offset: start, Length: end - start}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// group returns submatch i, or "" when it did not participate.
func group(text string, m []int, i int) string {
	if 2*i+1 >= len(m) || m[2*i] < 0 {
		return ""
	}
	return text[m[2*i]:m[2*i+1]]
}

func buildRelativeDay(text string, m []int, now time.Time) (component, bool) {
	today := startOfDay(now)
	word := strings.Join(strings.Fields(strings.ToLower(group(text, m, 1))), " ")

	var d time.Time
	switch word {
	case "today", "tonight":
		d = today
	case "tomorrow", "tmrw", "tmr":
		d = today.AddDate(0, 0, 1)
	case "day after tomorrow":
		d = today.AddDate(0, 0, 2)
	case "yesterday":
		d = today.AddDate(0, 0, -1)
	default:
		return component{}, false
	}
	return component{kind: kindDate, date: d}, true
}

func buildWeekday(text string, m []int, now time.Time) (component, bool) {
	modifier := strings.ToLower(group(text, m, 1))
	name := strings.ToLower(group(text, m, 2))

	wd, ok := weekdays[name]
	if !ok {
		return component{}, false
	}
	// "sat" and "sun" are ordinary words; only accept them with a modifier.
	if modifier == "" && (name == "sat" || name == "sun") {
		return component{}, false
	}

	today := startOfDay(now)
	var d time.Time
	switch modifier {
	case "next":
		d = weekdayOnOrAfter(today.AddDate(0, 0, 1), wd)
	case "last":
		d = weekdayOnOrAfter(today.AddDate(0, 0, -7), wd)
	default:
		d = weekdayOnOrAfter(today, wd)
	}
	return component{kind: kindDate, date: d, weekday: modifier == ""}, true
}

func buildRelative(text string, m []int, now time.Time) (component, bool) {
	modifier := strings.ToLower(group(text, m, 1))
	unit := strings.ToLower(group(text, m, 2))
	today := startOfDay(now)

	if modifier == "this" {
		switch unit {
		case "week":
			return component{kind: kindDate, date: today}, true
		default:
			return component{}, false
		}
	}

	switch unit {
	case "week":
		return component{kind: kindDate, date: today.AddDate(0, 0, 7)}, true
	case "month":
		return component{kind: kindDate, date: today.AddDate(0, 1, 0)}, true
	case "year":
		return component{kind: kindDate, date: today.AddDate(1, 0, 0)}, true
	}
	return component{}, false
}

func buildOffset(text string, m []int, now time.Time) (component, bool) {
	n, ok := parseCount(group(text, m, 1))
	if !ok {
		return component{}, false
	}
	unit := strings.ToLower(group(text, m, 2))
	today := startOfDay(now)

	switch {
	case strings.HasPrefix(unit, "min"):
		return component{kind: kindInstant, instant: now.Add(time.Duration(n) * time.Minute).Truncate(time.Minute)}, true
	case strings.HasPrefix(unit, "h"):
		return component{kind: kindInstant, instant: now.Add(time.Duration(n) * time.Hour).Truncate(time.Minute)}, true
	case strings.HasPrefix(unit, "day"):
		return component{kind: kindDate, date: today.AddDate(0, 0, n)}, true
	case strings.HasPrefix(unit, "week"):
		return component{kind: kindDate, date: today.AddDate(0, 0, 7*n)}, true
	case strings.HasPrefix(unit, "month"):
		return component{kind: kindDate, date: today.AddDate(0, n, 0)}, true
	case strings.HasPrefix(unit, "year"):
		return component{kind: kindDate, date: today.AddDate(n, 0, 0)}, true
	}
	return component{}, false
}

func buildMonthDay(text string, m []int, now time.Time) (component, bool) {
	return absoluteDate(now, group(text, m, 3), months[strings.ToLower(group(text, m, 1))], group(text, m, 2))
}

func buildDayMonth(text string, m []int, now time.Time) (component, bool) {
	return absoluteDate(now, group(text, m, 3), months[strings.ToLower(group(text, m, 2))], group(text, m, 1))
}

func buildNumeric(text string, m []int, now time.Time) (component, bool) {
	month, err := strconv.Atoi(group(text, m, 1))
	if err != nil {
		return component{}, false
	}
	year := group(text, m, 3)
	if len(year) == 2 {
		year = "20" + year
	}
	return absoluteDate(now, year, time.Month(month), group(text, m, 2))
}

func buildISODate(text string, m []int, now time.Time) (component, bool) {
	month, err := strconv.Atoi(group(text, m, 2))
	if err != nil {
		return component{}, false
	}
	return absoluteDate(now, group(text, m, 1), time.Month(month), group(text, m, 3))
}

// absoluteDate validates the parts and, when the year is missing, picks the
// year that puts the date closest to now.
func absoluteDate(now time.Time, yearStr string, month time.Month, dayStr string) (component, bool) {
	day, err := strconv.Atoi(dayStr)
	if err != nil || month < time.January || month > time.December || day < 1 || day > 31 {
		return component{}, false
	}

	loc := now.Location()
	today := startOfDay(now)

	if yearStr != "" {
		year, err := strconv.Atoi(yearStr)
		if err != nil {
			return component{}, false
		}
		d, ok := validDate(year, month, day, loc)
		if !ok {
			return component{}, false
		}
		return component{kind: kindDate, date: d, absolute: true}, true
	}

	var (
		best  time.Time
		found bool
	)
	for _, year := range []int{now.Year(), now.Year() + 1, now.Year() - 1} {
		d, ok := validDate(year, month, day, loc)
		if !ok {
			continue
		}
		if !found || absDuration(d.Sub(today)) < absDuration(best.Sub(today)) {
			best, found = d, true
		}
	}
	if !found {
		return component{}, false
	}
	return component{kind: kindDate, date: best, absolute: true}, true
}

func validDate(year int, month time.Month, day int, loc *time.Location) (time.Time, bool) {
	d := time.Date(year, month, day, 0, 0, 0, 0, loc)
	if d.Year() != year || d.Month() != month || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func buildTimeRange(text string, m []int, _ time.Time) (component, bool) {
	h1, err1 := strconv.Atoi(group(text, m, 1))
	h2, err2 := strconv.Atoi(group(text, m, 4))
	if err1 != nil || err2 != nil {
		return component{}, false
	}
	min1, min2 := atoiOrZero(group(text, m, 2)), atoiOrZero(group(text, m, 5))
	mer1, mer2 := strings.ToLower(group(text, m, 3)), strings.ToLower(group(text, m, 6))

	// Without any meridiem only "HH:MM-HH:MM" is unambiguous enough.
	if mer1 == "" && mer2 == "" && (group(text, m, 2) == "" || group(text, m, 5) == "") {
		return component{}, false
	}

	var start, end int
	var ok bool
	switch {
	case mer2 != "":
		if end, ok = toHour24(h2, mer2); !ok {
			return component{}, false
		}
		if mer1 != "" {
			start, ok = toHour24(h1, mer1)
			break
		}
		start, ok = toHour24(h1, mer2)
		if ok && start*60+min1 > end*60+min2 {
			start, ok = toHour24(h1, opposite(mer2))
		}
	case mer1 != "":
		if start, ok = toHour24(h1, mer1); !ok {
			return component{}, false
		}
		// "9am-5" ends in the afternoon, not at 5am the next day.
		end, ok = toHour24(h2, mer1)
		if ok && end*60+min2 <= start*60+min1 {
			end, ok = toHour24(h2, opposite(mer1))
		}
		if !ok {
			end, ok = toHour24(h2, "")
		}
	default:
		start, ok = toHour24(h1, "")
		if ok {
			end, ok = toHour24(h2, "")
		}
	}
	if !ok {
		return component{}, false
	}

	return component{
		kind:      kindTime,
		hour:      start,
		minute:    min1,
		hasEnd:    true,
		endHour:   end,
		endMinute: min2,
	}, true
}

func buildTime12(text string, m []int, _ time.Time) (component, bool) {
	h, err := strconv.Atoi(group(text, m, 1))
	if err != nil {
		return component{}, false
	}
	hour, ok := toHour24(h, strings.ToLower(group(text, m, 3)))
	if !ok {
		return component{}, false
	}
	return component{kind: kindTime, hour: hour, minute: atoiOrZero(group(text, m, 2))}, true
}

func buildTime24(text string, m []int, _ time.Time) (component, bool) {
	h, err := strconv.Atoi(group(text, m, 1))
	if err != nil {
		return component{}, false
	}
	return component{kind: kindTime, hour: h, minute: atoiOrZero(group(text, m, 2))}, true
}

func buildNamedTime(text string, m []int, _ time.Time) (component, bool) {
	switch strings.ToLower(group(text, m, 1)) {
	case "noon", "midday":
		return component{kind: kindTime, hour: 12}, true
	case "midnight":
		return component{kind: kindTime, hour: 0}, true
	}
	return component{}, false
}

// buildBareHour handles "at 7". Hours 1-7 are read as evening, which is
// what people usually mean when they leave out the meridiem.
func buildBareHour(text string, m []int, _ time.Time) (component, bool) {
	// "at 5/3" or "at 5.30" belong to other patterns.
	if rest := text[m[1]:]; rest != "" {
		if strings.ContainsRune("/-:0123456789", rune(rest[0])) {
			return component{}, false
		}
		if rest[0] == '.' && len(rest) > 1 && rest[1] >= '0' && rest[1] <= '9' {
			return component{}, false
		}
	}
	h, err := strconv.Atoi(group(text, m, 1))
	if err != nil || h < 1 || h > 12 {
		return component{}, false
	}
	if h <= 7 {
		h += 12
	}
	return component{kind: kindTime, hour: h}, true
}

func toHour24(h int, meridiem string) (int, bool) {
	switch meridiem {
	case "a":
		if h < 1 || h > 12 {
			return 0, false
		}
		return h % 12, true
	case "p":
		if h < 1 || h > 12 {
			return 0, false
		}
		return h%12 + 12, true
	default:
		if h < 0 || h > 23 {
			return 0, false
		}
		return h, true
	}
}

func opposite(meridiem string) string {
	if meridiem == "a" {
		return "p"
	}
	return "a"
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func parseCount(s string) (int, bool) {
	s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
	if n, err := strconv.Atoi(s); err == nil {
		return n, n > 0
	}
	n, ok := numberWords[s]
	return n, ok
}

var numberWords = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11,
	"twelve": 12, "a couple of": 2, "couple of": 2, "a few": 3, "few": 3,
}

var months = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sept": time.September, "sep": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

var weekdays = map[string]time.Weekday{
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tues": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thurs": time.Thursday, "thur": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
	"sunday": time.Sunday, "sun": time.Sunday,
}
