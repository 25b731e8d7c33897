package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/yhkl-dev/naviplay/config"
	"github.com/yhkl-dev/naviplay/library"
	"github.com/yhkl-dev/naviplay/localplayer"
	"github.com/yhkl-dev/naviplay/mediasession"
	"github.com/yhkl-dev/naviplay/mpvplayer"
	"github.com/yhkl-dev/naviplay/musicapi"
	"github.com/yhkl-dev/naviplay/playback"
	"github.com/yhkl-dev/naviplay/player"
	"github.com/yhkl-dev/naviplay/ui"
)

func main() {
	configFile := pflag.StringP("config", "c", "", "path to config.toml")
	backend := pflag.StringP("backend", "b", "", "audio backend override (mpv|local)")
	pflag.Parse()

	loader := config.NewLoader(*configFile)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *backend != "" {
		cfg.Player.Backend = *backend
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid backend: %v\n", err)
			os.Exit(1)
		}
	}

	logFile, err := setupLogging(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := musicapi.Init(cfg.Server.URL, cfg.Server.APIKey, cfg.Client.UserAgent, cfg.Client.GetHTTPTimeout())
	client.PageSize = cfg.Library.PageSize
	lib := library.NewCatalogLibrary(client)

	clock, err := newClock(ctx, cfg.Player.Backend)
	if err != nil {
		log.Error().Err(err).Str("backend", cfg.Player.Backend).Msg("failed to initialize audio backend")
		fmt.Fprintf(os.Stderr, "Failed to initialize %s backend: %v\n", cfg.Player.Backend, err)
		os.Exit(1)
	}

	engine := playback.New(clock, lib, playback.Options{
		Volume:        cfg.Player.Volume,
		PlayMode:      cfg.Player.GetPlayMode(),
		FrameInterval: cfg.Player.GetFrameInterval(),
		SyncInterval:  cfg.Player.GetLyricSyncInterval(),
		Session:       mediasession.NewBridge(newSink(cfg.MediaSession)),
	})

	loader.Watch(func(updated *config.Config) {
		log.Info().Float64("volume", updated.Player.Volume).Str("play_mode", updated.Player.PlayMode).Msg("configuration reloaded")
		engine.SetVolume(updated.Player.Volume)
		engine.SetPlayMode(updated.Player.GetPlayMode())
	})

	app := ui.NewApp(ctx, cfg, engine)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			log.Info().Stringer("signal", sig).Msg("received signal, shutting down")
			app.Stop()
		case <-ctx.Done():
		}
	}()

	runErr := app.Run()

	cancel()
	if err := engine.Close(); err != nil {
		log.Warn().Err(err).Msg("engine shutdown")
	}

	if runErr != nil {
		log.Error().Err(runErr).Msg("application error")
		fmt.Fprintf(os.Stderr, "Application error: %v\n", runErr)
		os.Exit(1)
	}
	log.Info().Msg("exited normally")
}

// setupLogging sends logs to a file because the terminal belongs to the UI.
func setupLogging(cfg config.LoggingConfig) (*os.File, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(f).With().Timestamp().Logger()
	return f, nil
}

func newClock(ctx context.Context, backend string) (player.Clock, error) {
	switch backend {
	case config.BackendLocal:
		return localplayer.NewClock(), nil
	default:
		c, err := mpvplayer.NewClock(ctx)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// newSink registers an MPRIS player when enabled. Without a session bus the
// engine still runs, it just has no OS media controls.
func newSink(cfg config.MediaSessionConfig) mediasession.Sink {
	if !cfg.Enabled {
		return mediasession.NoopSink{}
	}
	sink, err := mediasession.NewMPRISSink(cfg.Name)
	if err != nil {
		log.Warn().Err(err).Msg("media session unavailable")
		return mediasession.NoopSink{}
	}
	return sink
}
