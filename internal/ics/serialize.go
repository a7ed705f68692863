package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"magiccal/internal/codec"
	"magiccal/internal/model"
)

const (
	// DefaultProductID is written as PRODID.
	DefaultProductID = "-//Magic Calendar//EN"

	MIMEType  = "text/calendar"
	Extension = ".ics"

	// propertyExactEnd carries the UTC end of an all-day event whose end is
	// not on a date boundary. DTEND then holds the following date.
	propertyExactEnd = ical.ComponentProperty("X-MAGICCAL-END")
)

// SerializeOptions controls document generation.
type SerializeOptions struct {
	// Now stamps DTSTAMP. Nil means time.Now.
	Now func() time.Time
	// ProductID overrides DefaultProductID.
	ProductID string
}

// Serialize renders ev as a complete single-event iCalendar document.
//
// Timed events carry UTC DATE-TIME values. All-day events carry VALUE=DATE
// on both DTSTART and DTEND; an end that is not on a date boundary is rounded
// up to the next date and the exact instant kept in X-MAGICCAL-END. TEXT
// values are escaped by the encoder, newlines becoming the two characters `\n`.
func Serialize(ev model.Event, opts SerializeOptions) ([]byte, error) {
	if err := ev.Validate(); err != nil {
		return nil, fmt.Errorf("ics: serialize: %w", err)
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	productID := opts.ProductID
	if productID == "" {
		productID = DefaultProductID
	}

	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetCalscale("GREGORIAN")

	ve := cal.AddEvent(eventUID(ev))
	ve.SetDtStampTime(now().UTC())

	if ev.AllDay {
		ve.SetAllDayStartAt(ev.Start.UTC())
		end := ev.End.UTC()
		if !isDateAligned(end) {
			ve.SetProperty(propertyExactEnd, end.Format(layoutUTC))
			end = end.Truncate(24 * time.Hour).AddDate(0, 0, 1)
		}
		ve.SetAllDayEndAt(end)
	} else {
		ve.SetStartAt(ev.Start.UTC())
		ve.SetEndAt(ev.End.UTC())
	}

	ve.SetProperty(ical.ComponentPropertySummary, normalizeNewlines(ev.Title))
	ve.SetProperty(ical.ComponentPropertyDescription, normalizeNewlines(ev.Description))
	ve.SetProperty(ical.ComponentPropertyLocation, normalizeNewlines(ev.Location))
	ve.SetProperty(ical.ComponentPropertyStatus, string(ical.ObjectStatusConfirmed))

	return []byte(cal.Serialize()), nil
}

// eventUID is a name-based UUID so the same event always serializes to the
// same bytes for a given clock.
func eventUID(ev model.Event) string {
	name := strings.Join([]string{
		ev.Title,
		ev.Start.UTC().Format(time.RFC3339),
		ev.End.UTC().Format(time.RFC3339),
		fmt.Sprint(ev.AllDay),
	}, "|")
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("magiccal:"+name)).String()
}

func isDateAligned(t time.Time) bool {
	u := t.UTC()
	return u.Hour() == 0 && u.Minute() == 0 && u.Second() == 0 && u.Nanosecond() == 0
}

var newlines = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// normalizeNewlines leaves only LF, which the encoder turns into `\n`.
func normalizeNewlines(s string) string {
	return newlines.Replace(s)
}

// Codec is the iCalendar implementation of codec.Codec.
type Codec struct {
	opts  SerializeOptions
	popts ParseOptions
}

// NewCodec returns an iCalendar codec using opts for encoding.
func NewCodec(opts SerializeOptions) *Codec {
	return &Codec{opts: opts}
}

// WithParseOptions returns a copy of c that decodes with p.
func (c *Codec) WithParseOptions(p ParseOptions) *Codec {
	cp := *c
	cp.popts = p
	return &cp
}

func (c *Codec) Format() codec.Format { return codec.FormatICS }

func (c *Codec) Decode(doc []byte) (model.Event, error) { return ParseWithOptions(doc, c.popts) }

func (c *Codec) Encode(ev model.Event) ([]byte, error) { return Serialize(ev, c.opts) }

func (c *Codec) MIMEType() string { return MIMEType }

func (c *Codec) Extension() string { return Extension }
