package config

import "strings"

// Config is the on-disk configuration for sendlater.
//
// The file may be JSON or YAML (by extension); both are decoded strictly,
// unknown fields are rejected.
type Config struct {
	HTTP     HTTPConfig     `json:"http"`
	Upload   UploadConfig   `json:"upload"`
	Telegram TelegramConfig `json:"telegram"`
	Journal  JournalConfig  `json:"journal,omitempty"`
	Logging  LoggingConfig  `json:"logging"`
	Sweep    SweepConfig    `json:"sweep,omitempty"`

	// Destinations are the delivery targets offered on GET /destinations.
	// Telegram has no chat enumeration API, so the set is configured.
	Destinations []Destination `json:"destinations"`
}

type HTTPConfig struct {
	// Address is host:port. The SENDLATER_PORT environment variable, when
	// set, overrides the port part.
	Address string `json:"address,omitempty"`
}

type UploadConfig struct {
	Dir string `json:"dir,omitempty"`

	// MaxBytes caps a single uploaded payload. 0 means the default (32 MiB).
	MaxBytes int64 `json:"max_bytes,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout Duration `json:"poll_timeout,omitempty"`
}

// JournalConfig controls the durable task record.
//
// Driver values:
//   - "file":   dependency-free JSONL journal
//   - "sqlite": SQLite database file
//   - "badger": BadgerDB directory
//
// If Driver is empty or "none", the journal is disabled and scheduled
// tasks are lost on restart.
type JournalConfig struct {
	Driver string `json:"driver,omitempty"`
	Path   string `json:"path,omitempty"`

	// BusyTimeout applies to the sqlite driver only.
	BusyTimeout Duration `json:"busy_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string            `json:"level,omitempty"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file,omitempty"`
	Notify  NotifyConfig      `json:"notify,omitempty"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// NotifyConfig forwards warn+ log records onto the event bus.
type NotifyConfig struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// SweepConfig controls the orphaned-upload sweeper.
type SweepConfig struct {
	Enabled bool `json:"enabled"`

	// Every is the sweep interval (default "1h").
	Every Duration `json:"every,omitempty"`

	// Retention is how old an unreferenced upload must be before removal
	// (default "24h").
	Retention Duration `json:"retention,omitempty"`
}

type Destination struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

func (c *Config) withDefaults() {
	if strings.TrimSpace(c.HTTP.Address) == "" {
		c.HTTP.Address = "127.0.0.1:8080"
	}
	if strings.TrimSpace(c.Upload.Dir) == "" {
		c.Upload.Dir = "./uploads"
	}
	if c.Upload.MaxBytes <= 0 {
		c.Upload.MaxBytes = 32 << 20
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
}
