package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	appLog "mirrorcal/internal/log"
)

// ErrEmptyPath is returned by Load and Save when no config path is given.
var ErrEmptyPath = errors.New("config path is empty")

// CalendarConfig describes a single calendar source and its optional
// overrides of the module-wide settings. A nil field means "not set here";
// see Config.Resolve.
type CalendarConfig struct {
	// URL identifies the source. webcal:// is rewritten to http:// by Normalize.
	URL  string  `yaml:"url" json:"url" validate:"required"`
	Name *string `yaml:"name,omitempty" json:"name,omitempty"`

	Symbol          StringList `yaml:"symbol,omitempty" json:"symbol,omitempty"`
	RecurringSymbol StringList `yaml:"recurring_symbol,omitempty" json:"recurring_symbol,omitempty"`
	FullDaySymbol   StringList `yaml:"full_day_symbol,omitempty" json:"full_day_symbol,omitempty"`
	SymbolClassName *string    `yaml:"symbol_class_name,omitempty" json:"symbol_class_name,omitempty"`

	SymbolClass *string `yaml:"symbol_class,omitempty" json:"symbol_class,omitempty"`
	TitleClass  *string `yaml:"title_class,omitempty" json:"title_class,omitempty"`
	TimeClass   *string `yaml:"time_class,omitempty" json:"time_class,omitempty"`
	Color       *string `yaml:"color,omitempty" json:"color,omitempty"`
	BgColor     *string `yaml:"bg_color,omitempty" json:"bg_color,omitempty"`

	RepeatingCountTitle *string `yaml:"repeating_count_title,omitempty" json:"repeating_count_title,omitempty"`

	MaximumEntries      *int            `yaml:"maximum_entries,omitempty" json:"maximum_entries,omitempty" validate:"omitempty,gte=0"`
	MaximumNumberOfDays *int            `yaml:"maximum_number_of_days,omitempty" json:"maximum_number_of_days,omitempty" validate:"omitempty,gte=0"`
	PastDaysCount       *int            `yaml:"past_days_count,omitempty" json:"past_days_count,omitempty" validate:"omitempty,gte=0"`
	ExcludedEvents      []ExcludedEvent `yaml:"excluded_events,omitempty" json:"excluded_events,omitempty"`
	BroadcastPastEvents *bool           `yaml:"broadcast_past_events,omitempty" json:"broadcast_past_events,omitempty"`
	FetchInterval       *time.Duration  `yaml:"fetch_interval,omitempty" json:"fetch_interval,omitempty"`
}

// TitleTransform rewrites an event title. Search is either a plain pattern
// (applied globally, case sensitive) or "/pattern/flags" with flags from
// "gim".
type TitleTransform struct {
	Search  string `yaml:"search" json:"search"`
	Replace string `yaml:"replace" json:"replace"`
}

// CustomEvent attaches presentation overrides to events whose title matches
// Keyword (a case-insensitive regular expression).
type CustomEvent struct {
	Keyword    string          `yaml:"keyword" json:"keyword" validate:"required"`
	Symbol     string          `yaml:"symbol,omitempty" json:"symbol,omitempty"`
	Color      string          `yaml:"color,omitempty" json:"color,omitempty"`
	EventClass string          `yaml:"event_class,omitempty" json:"event_class,omitempty"`
	Transform  *TitleTransform `yaml:"transform,omitempty" json:"transform,omitempty"`
}

// SnapshotConfig controls the headless Chromium capture of the weekly grid.
type SnapshotConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	OutputPath string `yaml:"output_path" json:"output_path"`
	Width      int    `yaml:"width" json:"width" validate:"gte=0"`
	Height     int    `yaml:"height" json:"height" validate:"gte=0"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration. Besides the process
// settings it carries the module-wide defaults that every calendar source
// falls back to.
type Config struct {
	// Listen is the HTTP listen address for the Web UI, API and ingest.
	Listen string `yaml:"listen" json:"listen" validate:"required"`

	// Timezone is the IANA timezone used for all day arithmetic. Empty means
	// the host's local zone.
	Timezone string `yaml:"timezone" json:"timezone" validate:"omitempty,timezone"`

	LogLevel string `yaml:"log_level" json:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// RefreshCron is the cadence of the self update that keeps
	// time-relative output fresh without new data.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	Snapshot SnapshotConfig `yaml:"snapshot" json:"snapshot"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	// FetcherURL, if set, receives outbound notifications (ADD_CALENDAR,
	// FETCH_CALENDAR, ...) as JSON POSTs.
	FetcherURL string `yaml:"fetcher_url,omitempty" json:"fetcher_url,omitempty" validate:"omitempty,url"`

	MaximumEntries      int           `yaml:"maximum_entries" json:"maximum_entries" validate:"gte=0"`
	MaximumNumberOfDays int           `yaml:"maximum_number_of_days" json:"maximum_number_of_days" validate:"gte=0"`
	LimitDays           int           `yaml:"limit_days" json:"limit_days" validate:"gte=0"`
	NumberOfDays        int           `yaml:"number_of_days" json:"number_of_days" validate:"gte=1,lte=366"`
	PastDaysCount       int           `yaml:"past_days_count" json:"past_days_count" validate:"gte=0"`
	FetchInterval       time.Duration `yaml:"fetch_interval" json:"fetch_interval"`

	DefaultSymbol              string `yaml:"default_symbol" json:"default_symbol"`
	DefaultSymbolClassName     string `yaml:"default_symbol_class_name" json:"default_symbol_class_name"`
	DisplayRepeatingCountTitle bool   `yaml:"display_repeating_count_title" json:"display_repeating_count_title"`
	DefaultRepeatingCountTitle string `yaml:"default_repeating_count_title" json:"default_repeating_count_title"`
	MaxTitleLength             int    `yaml:"max_title_length" json:"max_title_length" validate:"gte=0"`
	WrapEvents                 bool   `yaml:"wrap_events" json:"wrap_events"`
	MaxTitleLines              int    `yaml:"max_title_lines" json:"max_title_lines" validate:"gte=0"`
	TableClass                 string `yaml:"table_class" json:"table_class"`

	HidePrivate         bool `yaml:"hide_private" json:"hide_private"`
	HideOngoing         bool `yaml:"hide_ongoing" json:"hide_ongoing"`
	HideDuplicates      bool `yaml:"hide_duplicates" json:"hide_duplicates"`
	SliceMultiDayEvents bool `yaml:"slice_multi_day_events" json:"slice_multi_day_events"`
	LimitDaysNeverSkip  bool `yaml:"limit_days_never_skip" json:"limit_days_never_skip"`
	BroadcastEvents     bool `yaml:"broadcast_events" json:"broadcast_events"`
	BroadcastPastEvents bool `yaml:"broadcast_past_events" json:"broadcast_past_events"`
	UpdateOnFetch       bool `yaml:"update_on_fetch" json:"update_on_fetch"`

	ExcludedEvents []ExcludedEvent  `yaml:"excluded_events" json:"excluded_events"`
	CustomEvents   []CustomEvent    `yaml:"custom_events" json:"custom_events" validate:"dive"`
	Calendars      []CalendarConfig `yaml:"calendars" json:"calendars" validate:"dive"`
}

const (
	defaultListen         = "127.0.0.1:8080"
	defaultRefreshCron    = "* * * * *"
	defaultFetchInterval  = 5 * time.Minute
	defaultSnapshotPath   = "./cache/preview.png"
	defaultSnapshotWidth  = 1080
	defaultSnapshotHeight = 640
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      defaultListen,
		RefreshCron: defaultRefreshCron,
		Snapshot: SnapshotConfig{
			OutputPath: defaultSnapshotPath,
			Width:      defaultSnapshotWidth,
			Height:     defaultSnapshotHeight,
		},

		MaximumEntries:      10,
		MaximumNumberOfDays: 365,
		LimitDays:           7,
		NumberOfDays:        7,
		PastDaysCount:       1,
		FetchInterval:       defaultFetchInterval,

		DefaultSymbol:          "calendar-alt",
		DefaultSymbolClassName: "fas fa-fw fa-",
		MaxTitleLength:         25,
		MaxTitleLines:          3,
		TableClass:             "small",

		HideDuplicates:      true,
		BroadcastEvents:     true,
		BroadcastPastEvents: true,
		UpdateOnFetch:       true,

		ExcludedEvents: []ExcludedEvent{},
		CustomEvents: []CustomEvent{
			{Keyword: ".*", Transform: &TitleTransform{Search: "De verjaardag van ", Replace: ""}},
			{Keyword: ".*", Transform: &TitleTransform{Search: "'s birthday", Replace: ""}},
		},
		Calendars: []CalendarConfig{
			{
				URL:    "https://www.calendarlabs.com/templates/ical/US-Holidays.ics",
				Symbol: StringList{"calendar-alt"},
			},
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.Snapshot.OutputPath == "" {
		c.Snapshot.OutputPath = defaultSnapshotPath
	}
	if c.Snapshot.Width <= 0 {
		c.Snapshot.Width = defaultSnapshotWidth
	}
	if c.Snapshot.Height <= 0 {
		c.Snapshot.Height = defaultSnapshotHeight
	}

	// Zero is meaningful for limit_days (no limit) and past_days_count, so
	// only negative values are reset there.
	if c.MaximumEntries <= 0 {
		c.MaximumEntries = 10
	}
	if c.MaximumNumberOfDays <= 0 {
		c.MaximumNumberOfDays = 365
	}
	if c.LimitDays < 0 {
		c.LimitDays = 0
	}
	if c.NumberOfDays <= 0 {
		c.NumberOfDays = 7
	}
	if c.PastDaysCount < 0 {
		c.PastDaysCount = 0
	}
	if c.FetchInterval <= 0 {
		c.FetchInterval = defaultFetchInterval
	}
	if c.MaxTitleLines <= 0 {
		c.MaxTitleLines = 3
	}
	if c.TableClass == "" {
		c.TableClass = "small"
	}
	if c.ExcludedEvents == nil {
		c.ExcludedEvents = []ExcludedEvent{}
	}
	if c.CustomEvents == nil {
		c.CustomEvents = []CustomEvent{}
	}
	if c.Calendars == nil {
		c.Calendars = []CalendarConfig{}
	}
	for i := range c.Calendars {
		c.Calendars[i].URL = NormalizeURL(c.Calendars[i].URL)
	}
}

// NormalizeURL rewrites the webcal:// scheme to http:// so that a source is
// identified by the same key the fetcher reports back.
func NormalizeURL(u string) string {
	u = strings.TrimSpace(u)
	if strings.HasPrefix(u, "webcal://") {
		return "http://" + strings.TrimPrefix(u, "webcal://")
	}
	return u
}

// Location returns the display timezone, falling back to time.Local when
// the configured name is empty or unknown.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", c.Timezone)
		return time.Local
	}
	return loc
}

// HasCalendar reports whether url is one of the configured sources.
func (c *Config) HasCalendar(url string) bool {
	for _, cal := range c.Calendars {
		if cal.URL == url {
			return true
		}
	}
	return false
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML on top of DefaultConfig, so absent keys keep their defaults
//   - normalize and validate
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
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

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document on top of the defaults, then normalizes and
// validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return ErrEmptyPath
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

	tmp, err := os.CreateTemp(dir, ".mirrorcal-config-*.tmp")
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

// Save delegates to the package-level Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

// RedactURL hides sensitive parts of a calendar URL for logging purposes.
//
//	https://example.com/path/to/private.ics?token=abcd
//	-> https://example.com/...(redacted)
func RedactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := strings.Index(u, "://")
	if i == -1 {
		return "calendar://...(redacted)"
	}
	rest := u[i+3:]
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		rest = rest[:j]
	}
	return u[:i+3] + rest + redactedSuffix
}
