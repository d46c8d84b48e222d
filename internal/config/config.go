package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/crimson-sun/logbook/internal/model"
)

// Config holds all logbook configuration.
type Config struct {
	SeverityFilter      string        `yaml:"severity_filter"`
	CaptureTimestamps   bool          `yaml:"capture_timestamps"`
	FullTimestampFormat bool          `yaml:"full_timestamp_format"`
	TickInterval        time.Duration `yaml:"tick_interval"`

	Persist  PersistConfig  `yaml:"persist"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Sources  SourcesConfig  `yaml:"sources"`
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
}

// PersistConfig controls incremental writing of the collapsed log.
type PersistConfig struct {
	Incremental bool   `yaml:"incremental"`
	Path        string `yaml:"path"`
	Async       bool   `yaml:"async"`    // background writer instead of the coalescing one
	MaxSize     int64  `yaml:"max_size"` // rotate after this many bytes; 0 disables
	Sync        bool   `yaml:"sync"`     // fsync after every append
	Echo        bool   `yaml:"echo"`     // also write lines to stdout
	WebhookURL  string `yaml:"webhook_url"`
}

// SnapshotConfig controls full exports.
type SnapshotConfig struct {
	Dir      string `yaml:"dir"`
	Schedule string `yaml:"schedule"` // cron expression; empty disables
	Catalog  string `yaml:"catalog"`  // bbolt file; empty disables
}

// SourcesConfig selects event producers for "logbook run".
type SourcesConfig struct {
	Stdin     bool     `yaml:"stdin"`
	Tail      []string `yaml:"tail"`
	FromStart bool     `yaml:"from_start"`
	SelfLog   bool     `yaml:"self_log"` // record logbook's own warnings and errors
}

// HTTPConfig holds API server settings.
type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables the API
}

// LogConfig holds diagnostic logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json", "text"
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		SeverityFilter: "all",
		TickInterval:   100 * time.Millisecond,
		Persist: PersistConfig{
			Incremental: true,
			Path:        "logs/logbook.log",
		},
		Snapshot: SnapshotConfig{Dir: "snapshots"},
		Log:      LogConfig{Level: "info", Format: "json"},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is not empty), then LOGBOOK_* environment variables.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.SeverityFilter = getenv("LOGBOOK_SEVERITY_FILTER", c.SeverityFilter)
	c.CaptureTimestamps = getenvBool("LOGBOOK_CAPTURE_TIMESTAMPS", c.CaptureTimestamps)
	c.FullTimestampFormat = getenvBool("LOGBOOK_FULL_TIMESTAMPS", c.FullTimestampFormat)
	c.TickInterval = getenvDuration("LOGBOOK_TICK_INTERVAL", c.TickInterval)

	c.Persist.Incremental = getenvBool("LOGBOOK_PERSIST", c.Persist.Incremental)
	c.Persist.Path = getenv("LOGBOOK_PERSIST_PATH", c.Persist.Path)
	c.Persist.Async = getenvBool("LOGBOOK_PERSIST_ASYNC", c.Persist.Async)
	c.Persist.MaxSize = int64(getenvInt("LOGBOOK_PERSIST_MAX_SIZE", int(c.Persist.MaxSize)))
	c.Persist.Sync = getenvBool("LOGBOOK_PERSIST_SYNC", c.Persist.Sync)
	c.Persist.Echo = getenvBool("LOGBOOK_PERSIST_ECHO", c.Persist.Echo)
	c.Persist.WebhookURL = getenv("LOGBOOK_WEBHOOK_URL", c.Persist.WebhookURL)

	c.Snapshot.Dir = getenv("LOGBOOK_SNAPSHOT_DIR", c.Snapshot.Dir)
	c.Snapshot.Schedule = getenv("LOGBOOK_SNAPSHOT_SCHEDULE", c.Snapshot.Schedule)
	c.Snapshot.Catalog = getenv("LOGBOOK_SNAPSHOT_CATALOG", c.Snapshot.Catalog)

	c.Sources.Stdin = getenvBool("LOGBOOK_STDIN", c.Sources.Stdin)
	if v := os.Getenv("LOGBOOK_TAIL"); v != "" {
		c.Sources.Tail = splitList(v)
	}
	c.Sources.FromStart = getenvBool("LOGBOOK_TAIL_FROM_START", c.Sources.FromStart)
	c.Sources.SelfLog = getenvBool("LOGBOOK_SELF_LOG", c.Sources.SelfLog)

	c.HTTP.Addr = getenv("LOGBOOK_HTTP_ADDR", c.HTTP.Addr)
	c.Log.Level = getenv("LOGBOOK_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getenv("LOGBOOK_LOG_FORMAT", c.Log.Format)
}

// Filter returns the parsed severity filter. Call Validate first.
func (c Config) Filter() model.Filter {
	f, err := model.ParseFilter(c.SeverityFilter)
	if err != nil {
		return model.FilterAll
	}
	return f
}

// Validate checks the configuration and returns every problem found.
func (c Config) Validate() error {
	var errs []error
	if _, err := model.ParseFilter(c.SeverityFilter); err != nil {
		errs = append(errs, fmt.Errorf("severity_filter: %w", err))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval))
	}
	if c.Persist.Incremental && c.Persist.Path == "" && !c.Persist.Echo && c.Persist.WebhookURL == "" {
		errs = append(errs, errors.New("persist: incremental persistence needs a path, echo or webhook_url"))
	}
	if c.Persist.MaxSize < 0 {
		errs = append(errs, fmt.Errorf("persist.max_size must be >= 0, got %d", c.Persist.MaxSize))
	}
	if c.Persist.WebhookURL != "" {
		u, err := url.Parse(c.Persist.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("persist.webhook_url %q is not an http(s) URL", c.Persist.WebhookURL))
		}
	}
	if c.Snapshot.Schedule != "" && c.Snapshot.Dir == "" {
		errs = append(errs, errors.New("snapshot.schedule needs snapshot.dir"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be json or text", c.Log.Format))
	}
	return errors.Join(errs...)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
