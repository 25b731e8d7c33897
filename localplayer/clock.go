// Package localplayer plays local audio files through the system speaker.
// Files are decoded up front, so a bound resource is always fully buffered
// and ready to play as soon as Bind returns.
package localplayer

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"
	"github.com/rs/zerolog/log"

	"github.com/yhkl-dev/naviplay/domain"
	"github.com/yhkl-dev/naviplay/player"
)

const (
	DefaultSampleRate = beep.SampleRate(44100)
	SpeakerBuffer     = 100 * time.Millisecond
	resampleQuality   = 4
)

// Verify Clock implements player.Clock at compile time.
var _ player.Clock = (*Clock)(nil)

// Clock implements player.Clock with beep.
type Clock struct {
	mu sync.Mutex

	sampleRate  beep.SampleRate
	initialized bool

	url      string
	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	volume   *effects.Volume

	level      float64
	muted      bool
	generation uint64

	listeners player.ListenerSet
}

// NewClock creates a speaker-backed clock. The speaker is initialized on
// the first Bind.
func NewClock() *Clock {
	return &Clock{
		sampleRate: DefaultSampleRate,
		level:      1,
	}
}

// Bind implements player.Clock. url may be a plain path or a file:// URL.
func (c *Clock) Bind(url string) error {
	streamer, format, err := decodeFile(strings.TrimPrefix(url, "file://"))
	if err != nil {
		return player.Wrap("bind", err)
	}

	c.mu.Lock()
	if !c.initialized {
		if err := speaker.Init(c.sampleRate, c.sampleRate.N(SpeakerBuffer)); err != nil {
			c.mu.Unlock()
			streamer.Close()
			return player.Wrap("bind", fmt.Errorf("speaker init: %w", err))
		}
		c.initialized = true
	}
	c.releaseLocked()

	c.generation++
	gen := c.generation
	c.url = url
	c.streamer = streamer
	c.format = format

	resampled := beep.Resample(resampleQuality, format.SampleRate, c.sampleRate, streamer)
	c.ctrl = &beep.Ctrl{
		Streamer: beep.Seq(resampled, beep.Callback(func() { go c.finished(gen) })),
		Paused:   true,
	}
	c.volume = &effects.Volume{Streamer: c.ctrl, Base: 2}
	c.applyVolumeLocked()
	speaker.Play(c.volume)
	c.mu.Unlock()

	c.emit(player.EventMetadata)
	c.emit(player.EventProgress)
	c.emit(player.EventReady)
	return nil
}

// Release implements player.Clock.
func (c *Clock) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return player.Wrap("release", c.releaseLocked())
}

func (c *Clock) releaseLocked() error {
	if c.streamer == nil {
		return nil
	}
	speaker.Clear()
	err := c.streamer.Close()
	c.streamer = nil
	c.ctrl = nil
	c.volume = nil
	c.url = ""
	return err
}

// Play implements player.Clock.
func (c *Clock) Play() error {
	return c.setPaused("play", false)
}

// Pause implements player.Clock.
func (c *Clock) Pause() error {
	return c.setPaused("pause", true)
}

func (c *Clock) setPaused(op string, paused bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctrl == nil {
		if paused {
			return nil
		}
		return player.Wrap(op, player.ErrNotBound)
	}
	speaker.Lock()
	c.ctrl.Paused = paused
	speaker.Unlock()
	return nil
}

// CanPlay implements player.Clock.
func (c *Clock) CanPlay() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamer != nil
}

// Position implements player.Clock.
func (c *Clock) Position() (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.streamer == nil {
		return 0, player.Wrap("position", player.ErrNotBound)
	}
	speaker.Lock()
	pos := c.streamer.Position()
	speaker.Unlock()
	return c.format.SampleRate.D(pos).Seconds(), nil
}

// SetPosition implements player.Clock.
func (c *Clock) SetPosition(seconds float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.streamer == nil {
		return player.Wrap("seek", player.ErrNotBound)
	}
	target := c.format.SampleRate.N(time.Duration(seconds * float64(time.Second)))
	if target < 0 {
		target = 0
	}
	if last := c.streamer.Len() - 1; target > last {
		target = last
	}
	speaker.Lock()
	err := c.streamer.Seek(target)
	speaker.Unlock()
	return player.Wrap("seek", err)
}

// Duration implements player.Clock.
func (c *Clock) Duration() (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.streamer == nil {
		return 0, nil
	}
	return c.format.SampleRate.D(c.streamer.Len()).Seconds(), nil
}

// Buffered implements player.Clock. A decoded file is buffered end to end.
func (c *Clock) Buffered() ([]domain.BufferedRange, error) {
	d, _ := c.Duration()
	if d <= 0 {
		return nil, nil
	}
	return []domain.BufferedRange{{Start: 0, End: d}}, nil
}

// SetVolume implements player.Clock.
func (c *Clock) SetVolume(v float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.level = v
	c.applyVolumeLocked()
	return nil
}

// SetMuted implements player.Clock.
func (c *Clock) SetMuted(muted bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = muted
	c.applyVolumeLocked()
	return nil
}

// applyVolumeLocked maps a linear [0,1] level onto beep's log2 volume.
func (c *Clock) applyVolumeLocked() {
	if c.volume == nil {
		return
	}
	speaker.Lock()
	defer speaker.Unlock()
	c.volume.Silent = c.muted || c.level <= 0
	if c.level > 0 {
		c.volume.Volume = math.Log2(c.level)
	}
}

// Subscribe implements player.Clock.
func (c *Clock) Subscribe(l player.Listener) func() {
	return c.listeners.Add(l)
}

// Close implements player.Clock.
func (c *Clock) Close() error {
	return c.Release()
}

func (c *Clock) finished(gen uint64) {
	c.mu.Lock()
	current := gen == c.generation && c.streamer != nil
	c.mu.Unlock()
	if !current {
		return
	}
	log.Debug().Msg("local track finished")
	c.emit(player.EventEnded)
}

func (c *Clock) emit(kind player.EventKind) {
	c.mu.Lock()
	url := c.url
	c.mu.Unlock()
	c.listeners.Emit(player.Event{Kind: kind, URL: url})
}

func decodeFile(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	case ".ogg", ".oga":
		streamer, format, err = vorbis.Decode(f)
	case ".wav":
		streamer, format, err = wav.Decode(f)
	default:
		err = fmt.Errorf("unsupported audio format: %s", filepath.Ext(path))
	}
	if err != nil {
		f.Close()
		return nil, beep.Format{}, err
	}
	return streamer, format, nil
}
