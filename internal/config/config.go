package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// GridConfig controls the geometry of the 24-hour grid.
type GridConfig struct {
	// HourHeight is the pixel height of one hour row.
	HourHeight float64 `yaml:"hour_height" json:"hour_height"`
	// SnapMinutes is the snapping quantum and minimum event length.
	SnapMinutes int `yaml:"snap_minutes" json:"snap_minutes"`
	// DefaultDurationMinutes is the length of new drafts.
	DefaultDurationMinutes int `yaml:"default_duration_minutes" json:"default_duration_minutes"`
	// GutterPercent is the horizontal gap between side-by-side events.
	GutterPercent float64 `yaml:"gutter_percent" json:"gutter_percent"`
}

// GestureConfig holds the gesture recognition thresholds.
type GestureConfig struct {
	LongPressMs        int     `yaml:"long_press_ms" json:"long_press_ms"`
	JitterPx           float64 `yaml:"jitter_px" json:"jitter_px"`
	SwipeDistanceRatio float64 `yaml:"swipe_distance_ratio" json:"swipe_distance_ratio"`
	SwipeVelocity      float64 `yaml:"swipe_velocity" json:"swipe_velocity"`
	FlingWindowMs      int     `yaml:"fling_window_ms" json:"fling_window_ms"`
	ViewportWidth      float64 `yaml:"viewport_width" json:"viewport_width"`
}

// RecurrenceConfig bounds how far repeat rules are materialized.
type RecurrenceConfig struct {
	DailyHorizonDays  int `yaml:"daily_horizon_days" json:"daily_horizon_days"`
	WeeklyOccurrences int `yaml:"weekly_occurrences" json:"weekly_occurrences"`
}

// Storage selects and configures the key-value backend.
type Storage struct {
	// Driver is one of "file", "sqlite", "redis" or "memory".
	Driver string `yaml:"driver" json:"driver"`
	// Path is the directory (file) or database file (sqlite).
	Path string `yaml:"path" json:"path"`
	// Key is the key the event list is stored under.
	Key string `yaml:"key" json:"key"`

	RedisAddr     string `yaml:"redis_addr,omitempty" json:"redis_addr,omitempty"`
	RedisPassword string `yaml:"redis_password,omitempty" json:"redis_password,omitempty"`
	RedisDB       int    `yaml:"redis_db,omitempty" json:"redis_db,omitempty"`

	// TimeoutMs bounds a single get/set round trip.
	TimeoutMs int `yaml:"timeout_ms" json:"timeout_ms"`
}

// Timeout returns TimeoutMs as a duration.
func (s Storage) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// RefreshCron is a cron-style schedule string used to refresh the
	// now-indicator. It must fire at least once per minute to keep it current.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Grid       GridConfig       `yaml:"grid" json:"grid"`
	Gesture    GestureConfig    `yaml:"gesture" json:"gesture"`
	Recurrence RecurrenceConfig `yaml:"recurrence" json:"recurrence"`
	Storage    Storage          `yaml:"storage" json:"storage"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		RefreshCron: "* * * * *",
		LogLevel:    "info",
		Grid: GridConfig{
			HourHeight:             60,
			SnapMinutes:            15,
			DefaultDurationMinutes: 60,
			GutterPercent:          1,
		},
		Gesture: GestureConfig{
			LongPressMs:        400,
			JitterPx:           10,
			SwipeDistanceRatio: 0.25,
			SwipeVelocity:      0.5,
			FlingWindowMs:      300,
			ViewportWidth:      390,
		},
		Recurrence: RecurrenceConfig{
			DailyHorizonDays:  7,
			WeeklyOccurrences: 4,
		},
		Storage: Storage{
			Driver:    "file",
			Path:      "data",
			Key:       "calendarEvents",
			TimeoutMs: 2000,
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
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = def.LogLevel
	}

	if c.Grid.HourHeight <= 0 {
		c.Grid.HourHeight = def.Grid.HourHeight
	}
	if c.Grid.SnapMinutes <= 0 || 60%c.Grid.SnapMinutes != 0 {
		c.Grid.SnapMinutes = def.Grid.SnapMinutes
	}
	if c.Grid.DefaultDurationMinutes < c.Grid.SnapMinutes {
		c.Grid.DefaultDurationMinutes = def.Grid.DefaultDurationMinutes
	}
	if c.Grid.GutterPercent < 0 || c.Grid.GutterPercent >= 50 {
		c.Grid.GutterPercent = def.Grid.GutterPercent
	}

	if c.Gesture.LongPressMs <= 0 {
		c.Gesture.LongPressMs = def.Gesture.LongPressMs
	}
	if c.Gesture.JitterPx <= 0 {
		c.Gesture.JitterPx = def.Gesture.JitterPx
	}
	if c.Gesture.SwipeDistanceRatio <= 0 || c.Gesture.SwipeDistanceRatio >= 1 {
		c.Gesture.SwipeDistanceRatio = def.Gesture.SwipeDistanceRatio
	}
	if c.Gesture.SwipeVelocity <= 0 {
		c.Gesture.SwipeVelocity = def.Gesture.SwipeVelocity
	}
	if c.Gesture.FlingWindowMs <= 0 {
		c.Gesture.FlingWindowMs = def.Gesture.FlingWindowMs
	}
	if c.Gesture.ViewportWidth <= 0 {
		c.Gesture.ViewportWidth = def.Gesture.ViewportWidth
	}

	if c.Recurrence.DailyHorizonDays <= 0 {
		c.Recurrence.DailyHorizonDays = def.Recurrence.DailyHorizonDays
	}
	if c.Recurrence.WeeklyOccurrences <= 0 {
		c.Recurrence.WeeklyOccurrences = def.Recurrence.WeeklyOccurrences
	}

	switch c.Storage.Driver {
	case "file", "sqlite", "redis", "memory":
	case "":
		c.Storage.Driver = def.Storage.Driver
	default:
		// Unknown driver; fall back to file storage rather than refuse to start.
		c.Storage.Driver = def.Storage.Driver
	}
	if c.Storage.Path == "" {
		c.Storage.Path = def.Storage.Path
	}
	if c.Storage.Key == "" {
		c.Storage.Key = def.Storage.Key
	}
	if c.Storage.Driver == "redis" && c.Storage.RedisAddr == "" {
		c.Storage.RedisAddr = "127.0.0.1:6379"
	}
	if c.Storage.TimeoutMs <= 0 {
		c.Storage.TimeoutMs = def.Storage.TimeoutMs
	}

	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.Password == "" {
		c.BasicAuth = nil
	}
}

// ApplyEnv overlays DAYCAL_* environment variables onto c. A .env file in the
// working directory is loaded first if present; real environment variables
// win over it.
func (c *Config) ApplyEnv() {
	_ = godotenv.Load()

	if v := os.Getenv("DAYCAL_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("DAYCAL_REFRESH"); v != "" {
		c.RefreshCron = v
	}
	if v := os.Getenv("DAYCAL_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("DAYCAL_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("DAYCAL_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("DAYCAL_STORAGE_KEY"); v != "" {
		c.Storage.Key = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Storage.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Storage.RedisPassword = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Storage.RedisDB = n
		}
	}
	user, pass := os.Getenv("DAYCAL_BASIC_AUTH_USER"), os.Getenv("DAYCAL_BASIC_AUTH_PASSWORD")
	if user != "" || pass != "" {
		c.BasicAuth = &BasicAuthConfig{Username: user, Password: pass}
	}

	c.Normalize()
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
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path atomically
// (temp file + rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, ".daycal-config-*.tmp")
}

// WriteFileAtomic writes data next to path under a temporary name, syncs it,
// sets 0600 and renames it over path. The parent directory is created 0700.
func WriteFileAtomic(path string, data []byte, pattern string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
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
