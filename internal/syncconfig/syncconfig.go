// Package syncconfig resolves attendx settings.
// Priority: environment (including a .env file) > ~/.config/attendx/config.json > defaults.
package syncconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Defaults.
const (
	DefaultServerURL       = "http://localhost:8080"
	DefaultSyncInterval    = 30 * time.Second
	DefaultRequestTimeout  = 10 * time.Second
	DefaultMaxAutoAttempts = 5
	DefaultDuplicateWindow = 5 * time.Minute
	DefaultRetentionDays   = 7
	DefaultProbeInterval   = 15 * time.Second
)

// SyncSettings is the "sync" block of config.json. Durations are strings
// ("30s", "5m").
type SyncSettings struct {
	Interval        string `json:"interval,omitempty"`
	RequestTimeout  string `json:"request_timeout,omitempty"`
	MaxAutoAttempts *int   `json:"max_auto_attempts,omitempty"`
	DuplicateWindow string `json:"duplicate_window,omitempty"`
	RetentionDays   *int   `json:"retention_days,omitempty"`
	ProbeInterval   string `json:"probe_interval,omitempty"`
}

// Config is the global config stored at ~/.config/attendx/config.json.
type Config struct {
	ServerURL string       `json:"server_url,omitempty"`
	APIKey    string       `json:"api_key,omitempty"`
	DeviceID  string       `json:"device_id,omitempty"`
	DataDir   string       `json:"data_dir,omitempty"`
	Sync      SyncSettings `json:"sync"`
}

// envOverrides holds the environment layer. Unset variables stay zero and
// do not override the lower layers.
type envOverrides struct {
	ServerURL       string        `env:"ATTENDX_SERVER_URL"`
	APIKey          string        `env:"ATTENDX_API_KEY"`
	DeviceID        string        `env:"ATTENDX_DEVICE_ID"`
	DataDir         string        `env:"ATTENDX_DATA_DIR"`
	SyncInterval    time.Duration `env:"ATTENDX_SYNC_INTERVAL"`
	RequestTimeout  time.Duration `env:"ATTENDX_REQUEST_TIMEOUT"`
	MaxAutoAttempts int           `env:"ATTENDX_MAX_AUTO_ATTEMPTS"`
	DuplicateWindow time.Duration `env:"ATTENDX_DUPLICATE_WINDOW"`
	RetentionDays   int           `env:"ATTENDX_RETENTION_DAYS"`
	ProbeInterval   time.Duration `env:"ATTENDX_PROBE_INTERVAL"`
	Debug           bool          `env:"ATTENDX_DEBUG"`
}

// Settings is the resolved configuration.
type Settings struct {
	ServerURL       string
	APIKey          string
	DeviceID        string
	DataDir         string
	SyncInterval    time.Duration
	RequestTimeout  time.Duration
	MaxAutoAttempts int
	DuplicateWindow time.Duration
	RetentionDays   int
	ProbeInterval   time.Duration
	Debug           bool
}

// ConfigDir returns ~/.config/attendx, creating it if necessary.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".config", "attendx")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// LoadConfig reads the global config. A missing file is an empty config.
func LoadConfig() (*Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config.json: %w", err)
	}
	return &cfg, nil
}

// SaveConfig writes the global config (0600, it may hold an API key).
func SaveConfig(cfg *Config) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0600)
}

// LoadDotEnv loads .env from the working directory. Variables already set
// in the environment win. A missing file is not an error.
func LoadDotEnv() error {
	err := godotenv.Load()
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Load resolves the settings from all layers. A device ID is generated and
// persisted on first use.
func Load() (*Settings, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	file, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	s := resolve(file, &ov)
	if s.DeviceID == "" {
		id, err := ensureDeviceID(file)
		if err != nil {
			return nil, err
		}
		s.DeviceID = id
	}
	return s, nil
}

func resolve(file *Config, ov *envOverrides) *Settings {
	s := &Settings{
		ServerURL:       DefaultServerURL,
		SyncInterval:    DefaultSyncInterval,
		RequestTimeout:  DefaultRequestTimeout,
		MaxAutoAttempts: DefaultMaxAutoAttempts,
		DuplicateWindow: DefaultDuplicateWindow,
		RetentionDays:   DefaultRetentionDays,
		ProbeInterval:   DefaultProbeInterval,
	}

	// config.json
	setString(&s.ServerURL, file.ServerURL)
	setString(&s.APIKey, file.APIKey)
	setString(&s.DeviceID, file.DeviceID)
	setString(&s.DataDir, file.DataDir)
	setDuration(&s.SyncInterval, parseDuration(file.Sync.Interval))
	setDuration(&s.RequestTimeout, parseDuration(file.Sync.RequestTimeout))
	setDuration(&s.DuplicateWindow, parseDuration(file.Sync.DuplicateWindow))
	setDuration(&s.ProbeInterval, parseDuration(file.Sync.ProbeInterval))
	if p := file.Sync.MaxAutoAttempts; p != nil && *p > 0 {
		s.MaxAutoAttempts = *p
	}
	if p := file.Sync.RetentionDays; p != nil && *p > 0 {
		s.RetentionDays = *p
	}

	// environment
	setString(&s.ServerURL, ov.ServerURL)
	setString(&s.APIKey, ov.APIKey)
	setString(&s.DeviceID, ov.DeviceID)
	setString(&s.DataDir, ov.DataDir)
	setDuration(&s.SyncInterval, ov.SyncInterval)
	setDuration(&s.RequestTimeout, ov.RequestTimeout)
	setDuration(&s.DuplicateWindow, ov.DuplicateWindow)
	setDuration(&s.ProbeInterval, ov.ProbeInterval)
	if ov.MaxAutoAttempts > 0 {
		s.MaxAutoAttempts = ov.MaxAutoAttempts
	}
	if ov.RetentionDays > 0 {
		s.RetentionDays = ov.RetentionDays
	}
	s.Debug = ov.Debug
	return s
}

// ensureDeviceID generates a device ID and stores it in config.json.
func ensureDeviceID(file *Config) (string, error) {
	id, err := GenerateDeviceID()
	if err != nil {
		return "", err
	}
	file.DeviceID = id
	if err := SaveConfig(file); err != nil {
		return "", fmt.Errorf("save device id: %w", err)
	}
	return id, nil
}

// GenerateDeviceID creates a new random device ID.
func GenerateDeviceID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

// parseDuration returns 0 for empty or invalid values so the lower layer wins.
func parseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
