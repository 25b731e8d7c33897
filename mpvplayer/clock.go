package mpvplayer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wildeyedskies/go-mpv/mpv"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/yhkl-dev/naviplay/domain"
	"github.com/yhkl-dev/naviplay/player"
)

// Verify Clock implements player.Clock at compile time.
var _ player.Clock = (*Clock)(nil)

// Clock implements player.Clock on top of libmpv. It is meant for streamed
// URLs: readiness comes from mpv's file-loaded event and buffered ranges
// from the demuxer cache.
type Clock struct {
	instance *Mpvplayer

	mu  sync.Mutex
	url string

	ready  *atomic.Bool
	closed *atomic.Bool

	listeners player.ListenerSet

	cancel context.CancelFunc
	done   chan struct{}
}

// NewClock creates the mpv handle and starts its event pump.
func NewClock(ctx context.Context) (*Clock, error) {
	mpvInstance, err := CreateMPVInstance()
	if err != nil {
		return nil, fmt.Errorf("failed to create MPV instance: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &Clock{
		instance: &Mpvplayer{Mpv: mpvInstance},
		ready:    atomic.NewBool(false),
		closed:   atomic.NewBool(false),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go c.pump(ctx)
	return c, nil
}

// Bind implements player.Clock.
func (c *Clock) Bind(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ready.Store(false)
	if err := c.instance.SetPaused(true); err != nil {
		return player.Wrap("bind", err)
	}
	if err := c.instance.Load(url); err != nil {
		return player.Wrap("bind", err)
	}
	c.url = url
	return nil
}

// Release implements player.Clock.
func (c *Clock) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ready.Store(false)
	if c.url == "" {
		return nil
	}
	c.url = ""
	return player.Wrap("release", c.instance.Stop())
}

// Play implements player.Clock.
func (c *Clock) Play() error {
	if c.boundURL() == "" {
		return player.Wrap("play", player.ErrNotBound)
	}
	return player.Wrap("play", c.instance.SetPaused(false))
}

// Pause implements player.Clock.
func (c *Clock) Pause() error {
	return player.Wrap("pause", c.instance.SetPaused(true))
}

// CanPlay implements player.Clock.
func (c *Clock) CanPlay() bool {
	return c.ready.Load()
}

// Position implements player.Clock.
func (c *Clock) Position() (float64, error) {
	if c.boundURL() == "" {
		return 0, player.Wrap("position", player.ErrNotBound)
	}
	pos, err := c.instance.GetProgress()
	return pos, player.Wrap("position", err)
}

// SetPosition implements player.Clock.
func (c *Clock) SetPosition(seconds float64) error {
	if c.boundURL() == "" {
		return player.Wrap("seek", player.ErrNotBound)
	}
	return player.Wrap("seek", c.instance.Seek(seconds))
}

// Duration implements player.Clock.
func (c *Clock) Duration() (float64, error) {
	if !c.ready.Load() {
		return 0, nil
	}
	d, err := c.instance.GetDuration()
	return d, player.Wrap("duration", err)
}

// Buffered implements player.Clock.
func (c *Clock) Buffered() ([]domain.BufferedRange, error) {
	if c.boundURL() == "" {
		return nil, nil
	}
	ranges, err := c.instance.CacheRanges()
	if err != nil {
		return nil, player.Wrap("buffered", err)
	}
	out := make([]domain.BufferedRange, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, domain.BufferedRange{Start: r.Start, End: r.End})
	}
	return out, nil
}

// SetVolume implements player.Clock.
func (c *Clock) SetVolume(v float64) error {
	return player.Wrap("volume", c.instance.SetVolume(v*100))
}

// SetMuted implements player.Clock.
func (c *Clock) SetMuted(muted bool) error {
	return player.Wrap("mute", c.instance.SetMute(muted))
}

// Subscribe implements player.Clock.
func (c *Clock) Subscribe(l player.Listener) func() {
	return c.listeners.Add(l)
}

// Close stops the event pump and destroys the mpv handle.
func (c *Clock) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cancel()
	<-c.done

	var err error
	err = multierr.Append(err, c.instance.Stop())
	err = multierr.Append(err, c.instance.Command([]string{"quit"}))
	c.instance.TerminateDestroy()
	return err
}

func (c *Clock) boundURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url
}

func (c *Clock) emit(kind player.EventKind) {
	c.listeners.Emit(player.Event{Kind: kind, URL: c.boundURL()})
}

// pump translates mpv events into clock events until ctx is cancelled.
func (c *Clock) pump(ctx context.Context) {
	defer close(c.done)
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("mpv event pump panic recovered: %v", r)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		e := c.instance.WaitEvent(0.1)
		if e == nil || e.Event_Id == mpv.EVENT_NONE {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		switch e.Event_Id {
		case mpv.EVENT_FILE_LOADED:
			path, err := c.instance.Path()
			if err != nil {
				log.Debug().Err(err).Msg("read loaded path")
				continue
			}
			c.fileLoaded(path)
		case mpv.EVENT_PROPERTY_CHANGE:
			c.handlePropertyChange(e.Reply_Userdata)
		case mpv.EVENT_SHUTDOWN:
			log.Debug().Msg("mpv shut down")
			return
		}
	}
}

// fileLoaded marks the clock ready when path is still the bound locator.
// A file-loaded event queued for an earlier Bind is dropped.
func (c *Clock) fileLoaded(path string) {
	c.mu.Lock()
	bound := c.url
	if bound == "" || path != bound {
		c.mu.Unlock()
		log.Debug().Str("path", path).Str("bound", bound).Msg("ignoring file-loaded for a replaced file")
		return
	}
	c.ready.Store(true)
	c.mu.Unlock()

	c.listeners.Emit(player.Event{Kind: player.EventMetadata, URL: bound})
	c.listeners.Emit(player.Event{Kind: player.EventReady, URL: bound})
}

func (c *Clock) handlePropertyChange(id uint64) {
	switch id {
	case ObserveCacheTime:
		c.emit(player.EventProgress)
	case ObserveDuration:
		if c.ready.Load() {
			c.emit(player.EventMetadata)
		}
	case ObserveEOF:
		eof, err := c.instance.EOFReached()
		if err == nil && eof {
			c.emit(player.EventEnded)
		}
	}
}
