package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// RecurringClass describes a class that repeats on a fixed rule, e.g. every
// Monday evening.
type RecurringClass struct {
	// ID names the rule; generated classes remember it as their origin.
	ID string `yaml:"id" json:"id"`
	// Location is where the class takes place. Defaults to DefaultLocation.
	Location string `yaml:"location" json:"location"`
	// RRule is an RFC 5545 recurrence rule, e.g. "FREQ=WEEKLY;BYDAY=MO".
	RRule string `yaml:"rrule" json:"rrule"`
	// Start is the first occurrence as local wall time "2006-01-02T15:04"
	// in Timezone. The time of day applies to every occurrence.
	Start string `yaml:"start" json:"start"`
}

// ICSConfig describes a published timetable whose events become classes.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label used in logs.
	Name string `yaml:"name" json:"name"`
	// Location overrides the LOCATION of imported events when set.
	Location string `yaml:"location,omitempty" json:"location,omitempty"`
}

// BasicAuthConfig holds the administrator credentials. Admin endpoints are
// disabled while it is unset.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// LogConfig controls log verbosity and the optional rotated log file.
type LogConfig struct {
	// Level is one of "debug", "info", "error".
	Level string `yaml:"level" json:"level"`
	// File, if set, receives a copy of every log line.
	File       string `yaml:"file,omitempty" json:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty" json:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty" json:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty" json:"max_age_days,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone in which calendar days are compared.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Database is the SQLite file holding the class collection.
	Database string `yaml:"database" json:"database"`

	// DefaultLocation is used for classes stored without a location.
	DefaultLocation string `yaml:"default_location" json:"default_location"`

	// ClassDurationMinutes is the length of a class, used for ICS export.
	ClassDurationMinutes int `yaml:"class_duration_minutes" json:"class_duration_minutes"`

	// CalendarName is the name of the exported ICS calendar and the page title.
	CalendarName string `yaml:"calendar_name" json:"calendar_name"`

	// GenerateCron is a cron-style schedule string (e.g. "0 3 * * *") for
	// materializing recurring and imported classes.
	GenerateCron string `yaml:"generate_cron" json:"generate_cron"`

	// HorizonDays is how far ahead classes are generated.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	Recurring []RecurringClass `yaml:"recurring" json:"recurring"`

	// ICS is the list of imported timetables.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// CacheDir stores HTTP cache metadata for ICS timetables.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// SessionLimit bounds the number of browsing sessions kept in memory.
	SessionLimit int `yaml:"session_limit" json:"session_limit"`

	// CookieDays is the lifetime of the remembered sign-up name.
	CookieDays int `yaml:"cookie_days" json:"cookie_days"`

	// SecureCookies marks cookies Secure. Disable only for plain-HTTP development.
	SecureCookies bool `yaml:"secure_cookies" json:"secure_cookies"`

	// BasicAuth, if set, protects the admin endpoints with HTTP Basic Auth.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	Log LogConfig `yaml:"log" json:"log"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:               "127.0.0.1:8080",
		Timezone:             "America/Chicago",
		Database:             "/var/lib/classcal/classcal.db",
		DefaultLocation:      "Studio A",
		ClassDurationMinutes: 60,
		CalendarName:         "Class Schedule",
		GenerateCron:         "0 3 * * *",
		HorizonDays:          28,
		Recurring:            []RecurringClass{},
		ICS:                  []ICSConfig{},
		CacheDir:             "/var/lib/classcal/ics-cache",
		SessionLimit:         1024,
		CookieDays:           365,
		SecureCookies:        true,
		BasicAuth:            nil,
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.Database == "" {
		c.Database = def.Database
	}
	c.DefaultLocation = strings.TrimSpace(c.DefaultLocation)
	if c.DefaultLocation == "" {
		c.DefaultLocation = def.DefaultLocation
	}
	if c.ClassDurationMinutes <= 0 {
		c.ClassDurationMinutes = def.ClassDurationMinutes
	}
	if c.CalendarName == "" {
		c.CalendarName = def.CalendarName
	}
	if c.GenerateCron == "" {
		c.GenerateCron = def.GenerateCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = def.HorizonDays
	}
	if c.Recurring == nil {
		c.Recurring = []RecurringClass{}
	}
	for i := range c.Recurring {
		r := &c.Recurring[i]
		if r.ID == "" {
			r.ID = "recurring-" + strings.ToLower(strings.ReplaceAll(r.RRule, ";", "-"))
		}
		if strings.TrimSpace(r.Location) == "" {
			r.Location = c.DefaultLocation
		}
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.SessionLimit <= 0 {
		c.SessionLimit = def.SessionLimit
	}
	if c.CookieDays <= 0 {
		c.CookieDays = def.CookieDays
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = def.Log.MaxSizeMB
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = def.Log.MaxBackups
	}
	if c.Log.MaxAgeDays <= 0 {
		c.Log.MaxAgeDays = def.Log.MaxAgeDays
	}
}

// AdminEnabled reports whether admin credentials are configured. Empty user
// names or passwords count as unset.
func (c *Config) AdminEnabled() bool {
	return c.BasicAuth != nil && c.BasicAuth.Username != "" && c.BasicAuth.Password != ""
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
//   - normalize defaults
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

	// Start from defaults so that booleans missing from the file keep their
	// default value.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

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

	tmp, err := os.CreateTemp(dir, ".classcal-config-*.tmp")
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

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
