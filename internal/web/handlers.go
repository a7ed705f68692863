package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jinzhu/copier"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"magiccal/internal/codec"
	"magiccal/internal/ics"
	"magiccal/internal/link"
	appLog "magiccal/internal/log"
	"magiccal/internal/model"
)

// eventDTO is the JSON view of model.Event used in requests and responses.
// The local fields are output only and render the instants in the server
// timezone; all-day events show their calendar dates instead.
type eventDTO struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"all_day"`

	StartLocal string `json:"start_local,omitempty" copier:"-"`
	EndLocal   string `json:"end_local,omitempty" copier:"-"`
	Timezone   string `json:"timezone,omitempty" copier:"-"`
}

const layoutLocalDate = "2006-01-02"

// localize fills the output-only fields of dto for ev in loc.
func localize(dto *eventDTO, ev model.Event, loc *time.Location) {
	if ev.AllDay {
		// All-day ends are exclusive; show the last covered date.
		last := ev.End.UTC()
		if last.After(ev.Start) {
			last = last.Add(-time.Nanosecond)
		}
		dto.StartLocal = ev.Start.UTC().Format(layoutLocalDate)
		dto.EndLocal = last.Format(layoutLocalDate)
		return
	}
	dto.StartLocal = ev.Start.In(loc).Format(time.RFC3339)
	dto.EndLocal = ev.End.In(loc).Format(time.RFC3339)
	dto.Timezone = loc.String()
}

// eventResponse is returned by the parse endpoints.
type eventResponse struct {
	Event           eventDTO `json:"event"`
	DurationMinutes int      `json:"duration_minutes"`
	GoogleURL       string   `json:"google_url"`
}

type parseTextRequest struct {
	Text string `json:"text"`
	// Now overrides the reference instant; defaults to the server clock in
	// the configured timezone.
	Now *time.Time `json:"now,omitempty"`
}

type parseURLRequest struct {
	URL string `json:"url"`
}

type linkResponse struct {
	URL string `json:"url"`
}

func (s *Server) handleParseText(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "parse text")
	defer span.End()

	var req parseTextRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(ctx, w, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.fail(ctx, w, fmt.Errorf("%w: text is empty", errBadRequest))
		return
	}

	now := s.now().In(s.cfg.Location())
	if req.Now != nil {
		now = req.Now.In(s.cfg.Location())
	}

	ev, err := s.parser.Parse(req.Text, now)
	if err != nil {
		s.fail(ctx, w, err)
		return
	}
	span.SetAttributes(attribute.Bool("event.all_day", ev.AllDay))

	appLog.Debug("parsed text", "title", ev.Title, "start", ev.Start, "all_day", ev.AllDay)
	writeJSON(w, http.StatusOK, s.eventResponse(ev))
}

// handleParseDocument accepts a raw iCalendar body or a multipart upload
// with a "file" field.
func (s *Server) handleParseDocument(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "parse document")
	defer span.End()

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var (
		doc []byte
		err error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		doc, err = readUpload(r)
	} else {
		doc, err = io.ReadAll(r.Body)
	}
	if err != nil {
		s.fail(ctx, w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	span.SetAttributes(attribute.Int("document.bytes", len(doc)))

	dec, err := s.codecFor(r)
	if err != nil {
		s.fail(ctx, w, err)
		return
	}
	ev, err := dec.Decode(doc)
	if err != nil {
		s.fail(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.eventResponse(ev))
}

func readUpload(r *http.Request) ([]byte, error) {
	f, _, err := r.FormFile("file")
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) handleParseURL(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "parse url")
	defer span.End()

	var req parseURLRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(ctx, w, err)
		return
	}
	u, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		s.fail(ctx, w, fmt.Errorf("%w: url must be an absolute http(s) URL", errBadRequest))
		return
	}
	if !s.cfg.AllowPrivateFetch {
		if err := ics.CheckPublicHost(ctx, u.Hostname()); err != nil {
			s.fail(ctx, w, err)
			return
		}
	}

	res, err := s.fetcher.Fetch(ctx, ics.Source{ID: u.Host, URL: u.String()})
	if err != nil {
		span.RecordError(err)
		appLog.Error("remote calendar fetch failed", err, "host", u.Host)
		writeError(w, http.StatusBadGateway, "Couldn't download that calendar file.")
		return
	}
	span.SetAttributes(attribute.Bool("fetch.from_cache", res.FromCache))

	dec, err := s.codecFor(r)
	if err != nil {
		s.fail(ctx, w, err)
		return
	}
	ev, err := dec.Decode(res.Body)
	if err != nil {
		s.fail(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.eventResponse(ev))
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "build link")
	defer span.End()

	ev, err := s.readEvent(w, r)
	if err != nil {
		s.fail(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, linkResponse{URL: s.links.GoogleCalendarURL(ev)})
}

// handleExport returns the encoded document itself, as an attachment for
// platform=download (the default) or inline for platform=direct-open.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "export event")
	defer span.End()

	action, err := s.deliver(w, r, link.PlatformDownload)
	if err != nil {
		s.fail(ctx, w, err)
		return
	}
	span.SetAttributes(attribute.String("delivery.mechanism", string(action.Mechanism)))

	w.Header().Set("Content-Type", action.MIMEType+"; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType(action.Disposition, map[string]string{"filename": action.FileName}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(action.Content)
}

// handleDeliver returns the delivery descriptor as JSON; the presentation
// layer performs the hand-off.
func (s *Server) handleDeliver(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "deliver event")
	defer span.End()

	action, err := s.deliver(w, r, "")
	if err != nil {
		s.fail(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

func (s *Server) deliver(w http.ResponseWriter, r *http.Request, fallback link.Platform) (link.DeliveryAction, error) {
	raw := r.URL.Query().Get("platform")
	platform := fallback
	if raw != "" || fallback == "" {
		p, err := link.ParsePlatform(raw)
		if err != nil {
			return link.DeliveryAction{}, err
		}
		platform = p
	}

	enc, err := s.codecFor(r)
	if err != nil {
		return link.DeliveryAction{}, err
	}
	ev, err := s.readEvent(w, r)
	if err != nil {
		return link.DeliveryAction{}, err
	}
	return link.Deliver(ev, platform, enc)
}

// codecFor picks the interchange codec from ?format=, defaulting to ics.
func (s *Server) codecFor(r *http.Request) (codec.Codec, error) {
	f := codec.Format(strings.ToLower(r.URL.Query().Get("format")))
	if f == "" {
		f = codec.FormatICS
	}
	return s.codecs.Lookup(f)
}

func (s *Server) readEvent(w http.ResponseWriter, r *http.Request) (model.Event, error) {
	var dto eventDTO
	if err := decodeJSON(w, r, &dto); err != nil {
		return model.Event{}, err
	}

	var ev model.Event
	if err := copier.Copy(&ev, &dto); err != nil {
		return model.Event{}, err
	}
	ev = ev.Normalize()
	if err := ev.Validate(); err != nil {
		return model.Event{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return ev, nil
}

func (s *Server) eventResponse(ev model.Event) eventResponse {
	var dto eventDTO
	if err := copier.Copy(&dto, &ev); err != nil {
		appLog.Error("event copy failed", err)
	}
	localize(&dto, ev, s.cfg.Location())
	return eventResponse{
		Event:           dto,
		DurationMinutes: int(ev.Duration() / time.Minute),
		GoogleURL:       s.links.GoogleCalendarURL(ev),
	}
}

func (s *Server) fail(ctx context.Context, w http.ResponseWriter, err error) {
	status, msg := userMessage(err)
	if status >= http.StatusInternalServerError {
		appLog.Error("request failed", err)
	} else {
		appLog.Debug("request rejected", "err", err, "status", status)
	}
	trace.SpanFromContext(ctx).RecordError(err)
	writeError(w, status, msg)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", errBadRequest)
		}
		return fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err)
	}
	return nil
}
