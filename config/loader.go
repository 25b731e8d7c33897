package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Loader reads config.toml and environment overrides.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader. An empty file searches
// $HOME/.config/naviplay/ and the working directory for config.toml.
func NewLoader(file string) *Loader {
	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath("$HOME/.config/naviplay/")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("NAVIPLAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Names used by the catalog deployment.
	_ = v.BindEnv("server.url", "NAVIPLAY_SERVER_URL", "MUSIC_API_URL")
	_ = v.BindEnv("server.api_key", "NAVIPLAY_SERVER_API_KEY", "MUSIC_API_KEY")

	setDefaults(v)
	return &Loader{v: v}
}

// Load reads the configuration from config.toml and returns a Config struct
func Load() (*Config, error) {
	return NewLoader("").Load()
}

func setDefaults(v *viper.Viper) {
	defaults := DefaultConfig()
	v.SetDefault("client.user_agent", defaults.Client.UserAgent)
	v.SetDefault("client.http_timeout", defaults.Client.HTTPTimeout)
	v.SetDefault("player.backend", defaults.Player.Backend)
	v.SetDefault("player.volume", defaults.Player.Volume)
	v.SetDefault("player.play_mode", defaults.Player.PlayMode)
	v.SetDefault("player.lyric_sync_interval_ms", defaults.Player.LyricSyncIntervalMS)
	v.SetDefault("player.frame_interval_ms", defaults.Player.FrameIntervalMS)
	v.SetDefault("library.page_size", defaults.Library.PageSize)
	v.SetDefault("ui.progress_bar_width", defaults.UI.ProgressBarWidth)
	v.SetDefault("media_session.enabled", defaults.MediaSession.Enabled)
	v.SetDefault("media_session.name", defaults.MediaSession.Name)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.file", defaults.Logging.File)
}

// Load reads the file (a missing file is fine when the environment
// supplies the required keys), validates and returns the configuration.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		log.Debug().Msg("no config file found, using defaults and environment")
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	required := []string{
		"server.url",
		"server.api_key",
	}
	for _, key := range required {
		if l.v.GetString(key) == "" {
			return nil, fmt.Errorf("missing required config: %s", key)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Watch calls fn with the new configuration whenever the config file
// changes. Invalid edits are logged and skipped.
func (l *Loader) Watch(fn func(*Config)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		l.reload(e, fn)
	})
	l.v.WatchConfig()
}

func (l *Loader) reload(e fsnotify.Event, fn func(*Config)) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	cfg, err := l.decode()
	if err != nil {
		log.Warn().Err(err).Str("file", e.Name).Msg("ignoring config change")
		return
	}
	log.Info().Str("file", e.Name).Msg("config reloaded")
	fn(cfg)
}
