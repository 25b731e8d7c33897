// Package mediasession surfaces playback state to the operating system's
// media controls and routes its transport buttons back into the player.
package mediasession

import (
	"math"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/yhkl-dev/naviplay/domain"
)

// PlaybackState is the coarse state shown by OS media controls.
type PlaybackState int

const (
	StateNone PlaybackState = iota
	StatePaused
	StatePlaying
)

func (s PlaybackState) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "none"
	}
}

// Metadata describes the now-playing track.
type Metadata struct {
	URL        string
	Title      string
	Artist     string
	Album      string
	ArtworkURL string
	Duration   float64 // seconds, 0 if unknown
}

// PositionState is the playback position reported to the OS.
type PositionState struct {
	Duration float64
	Rate     float64
	Position float64
}

// SeekRequest is an absolute seek requested by the OS.
type SeekRequest struct {
	Seconds float64
}

// Handlers receive OS transport intents. Nil handlers are ignored.
type Handlers struct {
	OnPlay     func()
	OnPause    func()
	OnNext     func()
	OnPrevious func()
	OnSeek     func(SeekRequest)
}

// Sink is an OS media surface.
type Sink interface {
	SetMetadata(Metadata) error
	SetPlaybackState(PlaybackState) error
	SetPositionState(PositionState) error
	SetHandlers(Handlers) error
	Close() error
}

// Bridge forwards engine state to a Sink. Every call is best effort: sink
// errors are logged and dropped.
type Bridge struct {
	sink Sink

	mu    sync.Mutex
	state PlaybackState
	meta  Metadata
}

// NewBridge wraps sink. A nil sink is replaced by NoopSink.
func NewBridge(sink Sink) *Bridge {
	if sink == nil {
		sink = NoopSink{}
	}
	return &Bridge{sink: sink}
}

// Connect installs the transport handlers on the sink.
func (b *Bridge) Connect(h Handlers) {
	if b == nil {
		return
	}
	if err := b.sink.SetHandlers(h); err != nil {
		log.Debug().Err(err).Msg("media session: set handlers")
	}
}

// UpdateMetadata publishes track as now playing. A nil track is ignored.
func (b *Bridge) UpdateMetadata(track *domain.Track, duration float64) {
	if b == nil || track == nil {
		return
	}
	meta := Metadata{
		URL:        track.URL,
		Title:      track.Title,
		Artist:     track.Artist,
		Album:      track.Album,
		ArtworkURL: track.CoverURL,
		Duration:   duration,
	}
	if meta.Duration <= 0 {
		meta.Duration = float64(track.Duration)
	}

	b.mu.Lock()
	b.meta = meta
	b.mu.Unlock()

	if err := b.sink.SetMetadata(meta); err != nil {
		log.Debug().Err(err).Msg("media session: set metadata")
	}
}

// UpdatePlaybackState publishes playing/paused, or none when stopped is set.
func (b *Bridge) UpdatePlaybackState(playing, stopped bool) {
	if b == nil {
		return
	}
	state := StatePaused
	switch {
	case stopped:
		state = StateNone
	case playing:
		state = StatePlaying
	}

	b.mu.Lock()
	b.state = state
	b.mu.Unlock()

	if err := b.sink.SetPlaybackState(state); err != nil {
		log.Debug().Err(err).Msg("media session: set playback state")
	}
}

// UpdatePosition publishes the position at rate 1. Non-finite values are
// reported as 0.
func (b *Bridge) UpdatePosition(duration, position float64) {
	if b == nil {
		return
	}
	ps := PositionState{
		Duration: finite(duration),
		Rate:     1,
		Position: finite(position),
	}
	if ps.Duration > 0 && ps.Position > ps.Duration {
		ps.Position = ps.Duration
	}
	if err := b.sink.SetPositionState(ps); err != nil {
		log.Debug().Err(err).Msg("media session: set position")
	}
}

// State returns the last published playback state.
func (b *Bridge) State() PlaybackState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Metadata returns the last published metadata.
func (b *Bridge) Metadata() Metadata {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.meta
}

// Close releases the sink.
func (b *Bridge) Close() error {
	if b == nil {
		return nil
	}
	return b.sink.Close()
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// NoopSink discards everything. It stands in when no OS media surface is
// available.
type NoopSink struct{}

func (NoopSink) SetMetadata(Metadata) error           { return nil }
func (NoopSink) SetPlaybackState(PlaybackState) error { return nil }
func (NoopSink) SetPositionState(PositionState) error { return nil }
func (NoopSink) SetHandlers(Handlers) error           { return nil }
func (NoopSink) Close() error                         { return nil }
