package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/yhkl-dev/naviplay/domain"
)

// Config represents the complete application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Client       ClientConfig       `mapstructure:"client"`
	Player       PlayerConfig       `mapstructure:"player"`
	Library      LibraryConfig      `mapstructure:"library"`
	UI           UIConfig           `mapstructure:"ui"`
	MediaSession MediaSessionConfig `mapstructure:"media_session"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains catalog API connection settings
type ServerConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
}

// ClientConfig contains HTTP client settings
type ClientConfig struct {
	UserAgent   string `mapstructure:"user_agent"`
	HTTPTimeout int    `mapstructure:"http_timeout"` // in seconds
}

// PlayerConfig contains playback settings
type PlayerConfig struct {
	Backend             string  `mapstructure:"backend"` // mpv or local
	Volume              float64 `mapstructure:"volume"`
	PlayMode            string  `mapstructure:"play_mode"`
	LyricSyncIntervalMS int     `mapstructure:"lyric_sync_interval_ms"`
	FrameIntervalMS     int     `mapstructure:"frame_interval_ms"`
}

// LibraryConfig contains catalog paging settings
type LibraryConfig struct {
	PageSize int `mapstructure:"page_size"`
}

// UIConfig contains user interface settings
type UIConfig struct {
	ProgressBarWidth int `mapstructure:"progress_bar_width"`
}

// MediaSessionConfig controls the OS media control integration
type MediaSessionConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Name    string `mapstructure:"name"`
}

// LoggingConfig controls the log file
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

const (
	BackendMPV   = "mpv"
	BackendLocal = "local"
)

// GetHTTPTimeout returns the HTTP timeout as a time.Duration
func (c *ClientConfig) GetHTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeout) * time.Second
}

// GetLyricSyncInterval returns the lyric recompute interval
func (p *PlayerConfig) GetLyricSyncInterval() time.Duration {
	return time.Duration(p.LyricSyncIntervalMS) * time.Millisecond
}

// GetFrameInterval returns the lyric loop wake-up interval
func (p *PlayerConfig) GetFrameInterval() time.Duration {
	return time.Duration(p.FrameIntervalMS) * time.Millisecond
}

// GetPlayMode parses the configured play mode
func (p *PlayerConfig) GetPlayMode() domain.PlayMode {
	mode, err := domain.ParsePlayMode(p.PlayMode)
	if err != nil {
		return domain.Sequential
	}
	return mode
}

// Validate checks value ranges and enumerations
func (c *Config) Validate() error {
	if c.Player.Volume < 0 || c.Player.Volume > 1 {
		return fmt.Errorf("player.volume must be within [0,1], got %v", c.Player.Volume)
	}
	switch c.Player.Backend {
	case BackendMPV, BackendLocal:
	default:
		return fmt.Errorf("player.backend must be %q or %q, got %q", BackendMPV, BackendLocal, c.Player.Backend)
	}
	if _, err := domain.ParsePlayMode(c.Player.PlayMode); err != nil {
		return fmt.Errorf("player.play_mode: %w", err)
	}
	if c.Player.LyricSyncIntervalMS <= 0 || c.Player.FrameIntervalMS <= 0 {
		return fmt.Errorf("player intervals must be positive")
	}
	if c.Library.PageSize <= 0 {
		return fmt.Errorf("library.page_size must be positive, got %d", c.Library.PageSize)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Logging.Level)); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		Client: ClientConfig{
			UserAgent:   "naviplay",
			HTTPTimeout: 30,
		},
		Player: PlayerConfig{
			Backend:             BackendMPV,
			Volume:              0.5,
			PlayMode:            domain.Sequential.String(),
			LyricSyncIntervalMS: 100,
			FrameIntervalMS:     16,
		},
		Library: LibraryConfig{
			PageSize: 50,
		},
		UI: UIConfig{
			ProgressBarWidth: 30,
		},
		MediaSession: MediaSessionConfig{
			Enabled: true,
			Name:    "naviplay",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(os.TempDir(), "naviplay.log"),
		},
	}
}
