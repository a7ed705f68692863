package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/invopop/jsonschema"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"magiccal/internal/codec"
	"magiccal/internal/config"
	"magiccal/internal/extract"
	"magiccal/internal/ics"
	"magiccal/internal/link"
	appLog "magiccal/internal/log"
	"magiccal/internal/model"
)

// maxBodyBytes bounds request bodies (text, event JSON, uploaded documents).
const maxBodyBytes = 4 << 20

// Server provides the HTTP API over the text parser, the document codecs
// and the link formatter.
type Server struct {
	cfg     *config.Config
	mux     *http.ServeMux
	parser  *extract.Parser
	codecs  *codec.Registry
	links   link.Builder
	fetcher *ics.Fetcher
	schema  *jsonschema.Schema

	// now is the reference clock for relative expressions.
	now func() time.Time
}

// NewServer constructs a new Server. fetcher may be nil, in which case
// /api/parse/url is not served.
func NewServer(cfg *config.Config, fetcher *ics.Fetcher) *Server {
	icsCodec := ics.NewCodec(ics.SerializeOptions{ProductID: cfg.ProductID}).
		WithParseOptions(ics.ParseOptions{UntitledTitle: cfg.UntitledTitle})

	reflector := jsonschema.Reflector{DoNotReference: true}

	s := &Server{
		cfg: cfg,
		mux: http.NewServeMux(),
		parser: extract.NewParser(extract.Options{
			DefaultDuration: cfg.DefaultDuration(),
			DefaultTitle:    cfg.DefaultTitle,
		}),
		codecs:  codec.NewRegistry(icsCodec),
		links:   link.Builder{BaseURL: cfg.CalendarBaseURL},
		fetcher: fetcher,
		schema:  reflector.Reflect(&model.Event{}),
		now:     time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the instrumented http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		h = s.basicAuthMiddleware(h)
	}
	return otelhttp.NewHandler(h, "magiccal",
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Either credential empty means disabled.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="magiccal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// StartServer serves s on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func StartServer(ctx context.Context, cfg *config.Config, s *Server) error {
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	appLog.Info("shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/parse/text", s.handleParseText)
	s.mux.HandleFunc("POST /api/parse/ics", s.handleParseDocument)
	if s.fetcher != nil {
		s.mux.HandleFunc("POST /api/parse/url", s.handleParseURL)
	}
	s.mux.HandleFunc("POST /api/link", s.handleLink)
	s.mux.HandleFunc("POST /api/export", s.handleExport)
	s.mux.HandleFunc("POST /api/deliver", s.handleDeliver)
	s.mux.HandleFunc("GET /api/schema/event", s.handleSchema)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleSchema(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.schema)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
