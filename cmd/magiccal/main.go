package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"magiccal/internal/config"
	"magiccal/internal/extract"
	"magiccal/internal/ics"
	"magiccal/internal/link"
	appLog "magiccal/internal/log"
	"magiccal/internal/model"
	"magiccal/internal/web"
)

// flagConfig holds CLI flag values; non-empty values override the config file.
type flagConfig struct {
	configPath string
	listen     string
	text       string
	file       string
	url        string
	out        string
	platform   string
	serve      bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	if conf.Telemetry {
		appLog.EnableTelemetry()
	}

	appLog.Debug("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"default_duration", conf.DefaultDuration().String(),
		"cache_dir", conf.CacheDir,
		"cache_prune", conf.CachePrune,
		"serve", flags.serve,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var client *http.Client
	if !conf.AllowPrivateFetch {
		client = ics.NewPublicClient()
	}
	fetcher := ics.NewFetcher(conf.CacheDir, client)

	if flags.serve {
		if err := serve(ctx, conf, fetcher); err != nil {
			appLog.Error("server failed", err)
			os.Exit(1)
		}
		return
	}

	if err := runOnce(ctx, conf, fetcher, flags, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// serve runs the HTTP API and the cache prune schedule until ctx ends.
func serve(ctx context.Context, conf *config.Config, fetcher *ics.Fetcher) error {
	sched := cron.New()
	maxAge := conf.CacheMaxAge()
	if _, err := sched.AddFunc(conf.CachePrune, func() {
		if _, err := fetcher.Prune(maxAge); err != nil {
			appLog.Error("cache prune failed", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule cache prune: %w", err)
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	return web.StartServer(ctx, conf, web.NewServer(conf, fetcher))
}

// runOnce converts a single input to an event, prints a preview and
// optionally writes or delivers the document.
func runOnce(ctx context.Context, conf *config.Config, fetcher *ics.Fetcher, flags flagConfig, w io.Writer) error {
	ev, err := loadEvent(ctx, conf, fetcher, flags)
	if err != nil {
		return err
	}

	links := link.Builder{BaseURL: conf.CalendarBaseURL}
	fmt.Fprintln(w, renderCard(ev, conf.Location(), cardWidth))
	fmt.Fprintln(w, links.GoogleCalendarURL(ev))

	enc := ics.NewCodec(ics.SerializeOptions{ProductID: conf.ProductID})

	if flags.out != "" {
		doc, err := enc.Encode(ev)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(flags.out), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(flags.out, doc, 0o644); err != nil {
			return err
		}
		appLog.Info("wrote calendar document", "path", flags.out, "bytes", len(doc))
	}

	if flags.platform != "" {
		platform, err := link.ParsePlatform(flags.platform)
		if err != nil {
			return err
		}
		action, err := link.Deliver(ev, platform, enc)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s %s (%s)\n", action.Mechanism, action.FileName, action.Disposition)
		if action.URI != "" {
			fmt.Fprintln(w, action.URI)
		}
	}
	return nil
}

func loadEvent(ctx context.Context, conf *config.Config, fetcher *ics.Fetcher, flags flagConfig) (model.Event, error) {
	parseOpts := ics.ParseOptions{UntitledTitle: conf.UntitledTitle}

	switch {
	case flags.text != "":
		parser := extract.NewParser(extract.Options{
			DefaultDuration: conf.DefaultDuration(),
			DefaultTitle:    conf.DefaultTitle,
		})
		return parser.Parse(flags.text, time.Now().In(conf.Location()))

	case flags.file != "":
		doc, err := os.ReadFile(flags.file)
		if err != nil {
			return model.Event{}, err
		}
		return ics.ParseWithOptions(doc, parseOpts)

	case flags.url != "":
		res, err := fetcher.Fetch(ctx, ics.Source{ID: "cli", URL: flags.url})
		if err != nil {
			return model.Event{}, err
		}
		return ics.ParseWithOptions(res.Body, parseOpts)

	default:
		return model.Event{}, errors.New("one of -text, -file, -url or -serve is required")
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./magiccal.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.text, "text", "", "Free-form text describing an event")
	flag.StringVar(&cfg.file, "file", "", "Path to an .ics document to import")
	flag.StringVar(&cfg.url, "url", "", "URL of an .ics document to import")
	flag.StringVar(&cfg.out, "out", "", "Write the event as an .ics document to this path")
	flag.StringVar(&cfg.platform, "platform", "", "Print a delivery descriptor: download or direct-open")
	flag.BoolVar(&cfg.serve, "serve", false, "Run the HTTP API")

	flag.Parse()

	return cfg
}
