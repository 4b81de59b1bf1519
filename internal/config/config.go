// Package config loads the bot configuration from a JSON or YAML file.
// Both formats go through the same strict JSON decoder so unknown keys
// are caught early instead of being silently ignored.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Catalog   CatalogConfig   `json:"catalog"`
	Relay     RelayConfig     `json:"relay"`
	Broadcast BroadcastConfig `json:"broadcast,omitempty"`
	Scheduler SchedulerConfig `json:"scheduler,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the document store backend.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./data" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type CatalogConfig struct {
	Path string `json:"path"`
	// Watch reloads the catalog file on change.
	Watch bool `json:"watch,omitempty"`
}

type RelayConfig struct {
	// ModeratorChat is the chat id of the moderator group.
	ModeratorChat int64 `json:"moderator_chat"`
}

type BroadcastConfig struct {
	Workers    int `json:"workers,omitempty"`
	RatePerSec int `json:"rate_per_sec,omitempty"`
	// PruneOn lists delivery-failure kinds that remove a recipient from
	// the registry ("blocked", "deactivated", "not_found"). Empty uses
	// the default (blocked + deactivated).
	PruneOn []string `json:"prune_on,omitempty"`
}

type SchedulerConfig struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone,omitempty"`
	// PollInterval is a Go duration string; default "20s".
	PollInterval string       `json:"poll_interval,omitempty"`
	Slots        []SlotConfig `json:"slots,omitempty"`
}

type SlotConfig struct {
	ID   string `json:"id"`
	At   string `json:"at"` // "HH:MM" in the scheduler timezone
	Text string `json:"text"`
}

// Load reads, decodes and validates a config file. The format is chosen
// by file extension (.yaml/.yml vs everything-else-is-JSON).
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	jsonBytes, format, err := coerceToJSONBytes(path, raw)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(jsonBytes))
	dec.DisallowUnknownFields()
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config (%s): %w", format, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("config: telegram.token is required")
	}
	if c.Relay.ModeratorChat == 0 {
		return errors.New("config: relay.moderator_chat is required")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("config: storage.path is required")
	}
	if strings.TrimSpace(c.Catalog.Path) == "" {
		return errors.New("config: catalog.path is required")
	}
	if c.Scheduler.Enabled && len(c.Scheduler.Slots) == 0 {
		return errors.New("config: scheduler.enabled with no slots")
	}
	for _, s := range c.Scheduler.Slots {
		if strings.TrimSpace(s.ID) == "" || strings.TrimSpace(s.At) == "" {
			return errors.New("config: scheduler slot needs id and at")
		}
	}
	return nil
}

// ParseDuration parses an optional Go duration string, falling back to def
// when the field is empty.
func ParseDuration(s string, def time.Duration) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return d, nil
}
