package web

import (
	"errors"
	"net/http"

	"magiccal/internal/codec"
	"magiccal/internal/extract"
	"magiccal/internal/ics"
	"magiccal/internal/link"
)

// errBadRequest marks request-shape problems (bad JSON, missing fields).
var errBadRequest = errors.New("bad request")

// userMessage maps a domain error to an HTTP status and a message that can
// be shown to the user as-is.
func userMessage(err error) (int, string) {
	switch {
	case errors.Is(err, extract.ErrNoTemporalMatch):
		return http.StatusUnprocessableEntity,
			`Couldn't find a date or time in that text. Try something like "Lunch tomorrow at noon".`
	case errors.Is(err, ics.ErrNoEventBlock):
		return http.StatusUnprocessableEntity, "That calendar file doesn't contain any events."
	case errors.Is(err, ics.ErrMalformedDocument):
		return http.StatusUnprocessableEntity, "That calendar file couldn't be read."
	case errors.Is(err, link.ErrUnknownPlatform):
		return http.StatusBadRequest, `Unknown platform; use "download" or "direct-open".`
	case errors.Is(err, codec.ErrUnknownFormat):
		return http.StatusBadRequest, "Unsupported calendar format."
	case errors.Is(err, ics.ErrPrivateAddress):
		return http.StatusBadRequest, "That address can't be imported from."
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "Something went wrong."
	}
}
