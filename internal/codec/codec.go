// Package codec defines the interchange-format abstraction used by the
// document import/export paths. Each format (only iCalendar today) plugs
// in as a Codec so the text pipeline never needs to know about it.
package codec

import (
	"errors"
	"fmt"
	"sort"

	"magiccal/internal/model"
)

// Format tags an interchange format.
type Format string

const (
	FormatICS Format = "ics"
)

// ErrUnknownFormat is returned by Registry.Lookup for unregistered formats.
var ErrUnknownFormat = errors.New("unknown interchange format")

// Codec converts between a document format and model.Event.
type Codec interface {
	Format() Format
	// Decode parses a document and returns its first event.
	Decode(doc []byte) (model.Event, error)
	// Encode renders a single-event document.
	Encode(ev model.Event) ([]byte, error)
	// MIMEType is the media type of encoded documents.
	MIMEType() string
	// Extension is the file extension including the leading dot.
	Extension() string
}

// Registry maps format tags to codecs. It is built once at startup and is
// read-only afterwards.
type Registry struct {
	codecs map[Format]Codec
}

// NewRegistry registers the given codecs. A later codec with the same
// format replaces an earlier one.
func NewRegistry(codecs ...Codec) *Registry {
	r := &Registry{codecs: make(map[Format]Codec, len(codecs))}
	for _, c := range codecs {
		r.codecs[c.Format()] = c
	}
	return r
}

// Lookup returns the codec registered for f.
func (r *Registry) Lookup(f Format) (Codec, error) {
	c, ok := r.codecs[f]
	if !ok {
		return nil, fmt.Errorf("codec: %w: %q", ErrUnknownFormat, f)
	}
	return c, nil
}

// Formats lists the registered formats in sorted order.
func (r *Registry) Formats() []Format {
	out := make([]Format, 0, len(r.codecs))
	for f := range r.codecs {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
