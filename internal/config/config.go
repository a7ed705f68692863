package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// NOTE: YAML-based load/save with first-run config creation and 0600
// permissions. CLI flags override individual fields after Load.

const (
	defaultListen          = "127.0.0.1:8080"
	defaultDurationMinutes = 60
	defaultTitle           = "New Event"
	defaultUntitledTitle   = "Untitled Event"
	defaultProductID       = "-//Magic Calendar//EN"
	defaultCalendarBaseURL = "https://calendar.google.com/calendar/render"
	defaultLogLevel        = "INFO"
	defaultCacheDir        = "./var/ics-cache"
	defaultCachePrune      = "0 * * * *"
	defaultCacheMaxAge     = 24
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone used as the reference for relative
	// expressions ("tomorrow", "7pm"). Empty means the process local zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// DefaultDurationMinutes is the event length when text gives no end.
	DefaultDurationMinutes int `yaml:"default_duration_minutes" json:"default_duration_minutes"`

	// DefaultTitle replaces an empty title extracted from text.
	DefaultTitle string `yaml:"default_title" json:"default_title"`

	// UntitledTitle is shown for imported events without SUMMARY.
	UntitledTitle string `yaml:"untitled_title" json:"untitled_title"`

	// ProductID is written as PRODID in exported documents.
	ProductID string `yaml:"product_id" json:"product_id"`

	// CalendarBaseURL is the web calendar "add event" endpoint.
	CalendarBaseURL string `yaml:"calendar_base_url" json:"calendar_base_url"`

	// LogLevel is one of DEBUG, INFO, ERROR.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Telemetry routes logs through the OpenTelemetry bridge.
	Telemetry bool `yaml:"telemetry" json:"telemetry"`

	// CacheDir holds the remote document cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// CachePrune is a cron-style schedule (e.g. "0 * * * *") for removing
	// stale cache entries in serve mode.
	CachePrune string `yaml:"cache_prune" json:"cache_prune"`

	// CacheMaxAgeHours is how long an unrefreshed cache entry is kept.
	CacheMaxAgeHours int `yaml:"cache_max_age_hours" json:"cache_max_age_hours"`

	// AllowPrivateFetch lets remote imports reach loopback and private
	// networks. Off by default.
	AllowPrivateFetch bool `yaml:"allow_private_fetch" json:"allow_private_fetch"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:                 defaultListen,
		DefaultDurationMinutes: defaultDurationMinutes,
		DefaultTitle:           defaultTitle,
		UntitledTitle:          defaultUntitledTitle,
		ProductID:              defaultProductID,
		CalendarBaseURL:        defaultCalendarBaseURL,
		LogLevel:               defaultLogLevel,
		CacheDir:               defaultCacheDir,
		CachePrune:             defaultCachePrune,
		CacheMaxAgeHours:       defaultCacheMaxAge,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.DefaultDurationMinutes <= 0 {
		c.DefaultDurationMinutes = defaultDurationMinutes
	}
	if c.DefaultTitle == "" {
		c.DefaultTitle = defaultTitle
	}
	if c.UntitledTitle == "" {
		c.UntitledTitle = defaultUntitledTitle
	}
	if c.ProductID == "" {
		c.ProductID = defaultProductID
	}
	if c.CalendarBaseURL == "" {
		c.CalendarBaseURL = defaultCalendarBaseURL
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.CachePrune == "" {
		c.CachePrune = defaultCachePrune
	}
	if c.CacheMaxAgeHours <= 0 {
		c.CacheMaxAgeHours = defaultCacheMaxAge
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.Password == "" {
		c.BasicAuth = nil
	}
}

// Validate checks fields that Normalize cannot repair.
func (c *Config) Validate() error {
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
		}
	}
	if _, err := cron.ParseStandard(c.CachePrune); err != nil {
		return fmt.Errorf("config: cache_prune %q: %w", c.CachePrune, err)
	}
	return nil
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// DefaultDuration returns DefaultDurationMinutes as a time.Duration.
func (c *Config) DefaultDuration() time.Duration {
	return time.Duration(c.DefaultDurationMinutes) * time.Minute
}

// CacheMaxAge returns CacheMaxAgeHours as a time.Duration.
func (c *Config) CacheMaxAge() time.Duration {
	return time.Duration(c.CacheMaxAgeHours) * time.Hour
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults and validate
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the given configuration to the specified path atomically
// (temp file in the same directory, then rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".magiccal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
