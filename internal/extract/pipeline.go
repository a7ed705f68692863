// Package extract turns free-form text into a normalized calendar event.
package extract

import (
	"time"

	"magiccal/internal/model"
	"magiccal/internal/temporal"
)

// ErrNoTemporalMatch is returned when the text has no recognizable date or
// time. The caller should ask the user to rephrase.
var ErrNoTemporalMatch = temporal.ErrNoTemporalMatch

// Options configures a Parser.
type Options struct {
	// DefaultDuration is used when the text does not state an end time.
	// Zero means model.DefaultDuration.
	DefaultDuration time.Duration
	// DefaultTitle replaces an empty extracted title. Empty means
	// DefaultTitle.
	DefaultTitle string
}

// Parser runs scanner, resolver and title extraction. It holds only its
// immutable options and is safe for concurrent use.
type Parser struct {
	opts Options
}

// NewParser returns a Parser with defaults filled in.
func NewParser(opts Options) *Parser {
	if opts.DefaultDuration <= 0 {
		opts.DefaultDuration = model.DefaultDuration
	}
	if opts.DefaultTitle == "" {
		opts.DefaultTitle = DefaultTitle
	}
	return &Parser{opts: opts}
}

// Parse extracts an event from text, resolving relative expressions
// against now. The description is the unmodified input and the location is
// left unset.
func (p *Parser) Parse(text string, now time.Time) (model.Event, error) {
	res, err := temporal.Resolve(temporal.Scan(text, now), p.opts.DefaultDuration)
	if err != nil {
		return model.Event{}, err
	}

	return model.Event{
		Title:       ExtractTitle(text, res.Span, p.opts.DefaultTitle),
		Description: text,
		Start:       res.Start,
		End:         res.End,
		AllDay:      res.AllDay,
	}.Normalize(), nil
}

var defaultParser = NewParser(Options{})

// ParseText is Parse with default options.
func ParseText(text string, now time.Time) (model.Event, error) {
	return defaultParser.Parse(text, now)
}
