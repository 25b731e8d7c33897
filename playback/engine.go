// Package playback is the transport state machine: it decides what is
// loaded into the playback clock and keeps lyrics, buffering and the OS
// media session in step with it.
package playback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/yhkl-dev/naviplay/buffer"
	"github.com/yhkl-dev/naviplay/domain"
	"github.com/yhkl-dev/naviplay/library"
	"github.com/yhkl-dev/naviplay/lyrics"
	"github.com/yhkl-dev/naviplay/mediasession"
	"github.com/yhkl-dev/naviplay/player"
	"github.com/yhkl-dev/naviplay/playlist"
)

var ErrInvalidIndex = errors.New("track index out of range")

const (
	NoLyricsText          = "No lyrics"
	LyricsUnavailableText = "Lyrics unavailable"

	defaultRestoreVolume = 0.5
	subscriberBuffer     = 16
)

// Options configure an Engine.
type Options struct {
	Volume        float64
	PlayMode      domain.PlayMode
	FrameInterval time.Duration
	SyncInterval  time.Duration
	// Session receives now-playing updates. May be nil.
	Session *mediasession.Bridge
}

// Engine owns the playback session. All methods are safe for concurrent
// use. Transport methods never return hardware errors: those are logged
// and the engine falls back to a paused state.
type Engine struct {
	clock    player.Clock
	library  library.Library
	playlist *playlist.Manager
	lyrics   *lyrics.Cache
	syncer   *lyrics.Syncer
	buffer   *buffer.Tracker
	session  *mediasession.Bridge

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	// token is minted by every load; continuations compare against it.
	token *atomic.Uint64

	// hwMu serializes the synchronous part of a load (pause, release,
	// bind) so two loads never interleave their hardware commands.
	hwMu sync.Mutex

	mu             sync.Mutex
	loadCancel     context.CancelFunc
	current        *domain.Track
	bound          string
	status         domain.Status
	playing        bool
	position       float64
	duration       float64
	volume         float64
	previousVolume float64
	muted          bool
	lyricText      string
	lyricsLoading  bool
	lyricGen       uint64
	closed         bool
	unsubscribe    func()

	subMu       sync.Mutex
	subscribers map[<-chan Snapshot]chan Snapshot
}

// New creates an engine around clock. lib provides catalog searches and
// lyric text.
func New(clock player.Clock, lib library.Library, opts Options) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	volume := clamp01(opts.Volume)

	e := &Engine{
		clock:          clock,
		library:        lib,
		playlist:       playlist.NewManager(),
		lyrics:         lyrics.NewCache(lib),
		session:        opts.Session,
		ctx:            ctx,
		cancel:         cancel,
		token:          atomic.NewUint64(0),
		status:         domain.StatusIdle,
		volume:         volume,
		previousVolume: defaultRestoreVolume,
		muted:          volume == 0,
		subscribers:    make(map[<-chan Snapshot]chan Snapshot),
	}
	if volume > 0 {
		e.previousVolume = volume
	}
	e.playlist.SetPlayMode(opts.PlayMode)
	e.syncer = lyrics.NewSyncer(clock.Position, e.onSyncTick, opts.FrameInterval, opts.SyncInterval)
	e.buffer = buffer.NewTracker(clock, func(float64) { e.notify() })
	e.unsubscribe = clock.Subscribe(e.handleClockEvent)

	e.session.Connect(mediasession.Handlers{
		OnPlay:     func() { e.background(func(ctx context.Context) { _ = e.Play(ctx) }) },
		OnPause:    e.Pause,
		OnNext:     func() { e.background(func(ctx context.Context) { _ = e.Next(ctx) }) },
		OnPrevious: func() { e.background(func(ctx context.Context) { _ = e.Previous(ctx) }) },
		OnSeek: func(r mediasession.SeekRequest) {
			e.background(func(ctx context.Context) { e.Seek(ctx, int64(r.Seconds*1000)) })
		},
	})
	return e
}

// Playlist exposes the collection manager.
func (e *Engine) Playlist() *playlist.Manager {
	return e.playlist
}

// SelectTrack loads the track at index of the active collection and plays
// it once the clock reports it playable. It blocks until then, until a
// newer load supersedes this one, or until ctx is done. A superseded load
// returns nil and leaves all state to the newer one.
func (e *Engine) SelectTrack(ctx context.Context, index int) error {
	track, err := e.playlist.Track(index)
	if err != nil {
		log.Warn().Int("index", index).Err(err).Msg("select track: invalid index")
		return fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}

	e.hwMu.Lock()
	token := e.token.Inc()
	loadCtx, cancel := context.WithCancel(e.ctx)
	defer cancel()

	e.mu.Lock()
	if e.loadCancel != nil {
		e.loadCancel()
	}
	e.loadCancel = cancel
	t := track
	e.current = &t
	e.bound = ""
	e.status = domain.StatusLoading
	e.playing = false
	e.position = 0
	e.duration = 0
	volume, muted := e.volume, e.muted
	e.mu.Unlock()

	e.syncer.Stop()
	e.buffer.Reset()
	e.notify()

	warnHardware(e.clock.Pause(), "pause before load")
	warnHardware(e.clock.Release(), "release previous track")
	bindErr := e.clock.Bind(track.URL)
	if bindErr == nil {
		e.mu.Lock()
		e.bound = track.URL
		e.mu.Unlock()
		warnHardware(e.clock.SetVolume(volume), "apply volume")
		warnHardware(e.clock.SetMuted(muted), "apply mute")
		e.buffer.Attach()
	}
	e.hwMu.Unlock()

	e.loadLyrics(track)
	e.session.UpdateMetadata(&track, 0)

	if bindErr != nil {
		log.Warn().Err(bindErr).Str("url", track.URL).Msg("load track failed")
		e.settlePaused(token)
		return nil
	}

	if err := e.awaitReady(ctx, loadCtx, track.URL); err != nil {
		if !e.isCurrent(token) {
			log.Debug().Str("url", track.URL).Msg("load superseded while waiting for readiness")
			return nil
		}
		e.settlePaused(token)
		return err
	}
	if !e.isCurrent(token) {
		log.Debug().Str("url", track.URL).Msg("load superseded")
		return nil
	}

	// The flag flips before Play so observers see the intent immediately.
	if !e.setPlaying(token, true) {
		return nil
	}
	playErr := e.clock.Play()
	if !e.isCurrent(token) {
		log.Debug().Str("url", track.URL).Msg("play acknowledged for a superseded load")
		return nil
	}
	if playErr != nil {
		log.Warn().Err(playErr).Str("url", track.URL).Msg("play failed")
		e.settlePaused(token)
		return nil
	}

	duration, err := e.clock.Duration()
	if err != nil {
		log.Debug().Err(err).Msg("read duration")
	}
	e.mu.Lock()
	if e.token.Load() == token {
		if duration > 0 {
			e.duration = duration
		}
		e.syncer.Start()
	}
	e.mu.Unlock()

	e.session.UpdateMetadata(&track, duration)
	e.session.UpdatePlaybackState(true, false)
	e.preloadNext()
	e.notify()
	return nil
}

// awaitReady blocks until the bound resource can play.
func (e *Engine) awaitReady(ctx, loadCtx context.Context, url string) error {
	ready := make(chan struct{}, 1)
	unsubscribe := e.clock.Subscribe(func(ev player.Event) {
		if ev.Kind != player.EventReady || (ev.URL != "" && ev.URL != url) {
			return
		}
		select {
		case ready <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	if e.clock.CanPlay() {
		return nil
	}
	select {
	case <-ready:
		return nil
	case <-loadCtx.Done():
		return loadCtx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) isCurrent(token uint64) bool {
	return e.token.Load() == token
}

func (e *Engine) setPlaying(token uint64, playing bool) bool {
	e.mu.Lock()
	if e.token.Load() != token {
		e.mu.Unlock()
		return false
	}
	e.playing = playing
	if playing {
		e.status = domain.StatusPlaying
	} else {
		e.status = domain.StatusPaused
	}
	e.mu.Unlock()
	e.notify()
	return true
}

// settlePaused moves a still-current load to the paused state.
func (e *Engine) settlePaused(token uint64) {
	e.mu.Lock()
	if e.token.Load() != token {
		e.mu.Unlock()
		return
	}
	e.playing = false
	e.status = domain.StatusPaused
	e.syncer.Stop()
	e.mu.Unlock()

	e.session.UpdatePlaybackState(false, false)
	e.notify()
}

// TogglePlay pauses a playing track or resumes a paused one. With nothing
// selected it starts the first track of the active collection.
func (e *Engine) TogglePlay(ctx context.Context) error {
	e.mu.Lock()
	playing := e.playing
	e.mu.Unlock()

	if playing {
		e.Pause()
		return nil
	}
	return e.Play(ctx)
}

// Play resumes the current track. A track that is selected but not bound
// (after a removal) is loaded first.
func (e *Engine) Play(ctx context.Context) error {
	e.mu.Lock()
	current := e.current
	bound := e.bound
	status := e.status
	playing := e.playing
	e.mu.Unlock()

	if current == nil {
		if e.playlist.Len() > 0 {
			return e.SelectTrack(ctx, 0)
		}
		return nil
	}
	if playing || status == domain.StatusLoading {
		return nil
	}
	if bound != current.URL {
		idx := e.playlist.CurrentIndex(current.URL)
		if idx < 0 {
			log.Warn().Str("url", current.URL).Msg("play: current track is no longer in the collection")
			return nil
		}
		return e.SelectTrack(ctx, idx)
	}

	token := e.token.Load()
	if !e.setPlaying(token, true) {
		return nil
	}
	if err := e.clock.Play(); err != nil {
		log.Warn().Err(err).Msg("resume failed")
		e.settlePaused(token)
		return nil
	}

	duration, _ := e.clock.Duration()
	e.mu.Lock()
	if e.token.Load() == token {
		if e.duration == 0 && duration > 0 {
			e.duration = duration
		}
		e.syncer.Start()
	}
	e.mu.Unlock()

	e.session.UpdatePlaybackState(true, false)
	e.notify()
	return nil
}

// Pause pauses playback. A pending load is abandoned.
func (e *Engine) Pause() {
	e.mu.Lock()
	if e.current == nil {
		e.mu.Unlock()
		return
	}
	if e.status == domain.StatusLoading {
		e.token.Inc()
		if e.loadCancel != nil {
			e.loadCancel()
			e.loadCancel = nil
		}
	}
	e.playing = false
	e.status = domain.StatusPaused
	e.syncer.Stop()
	e.mu.Unlock()

	warnHardware(e.clock.Pause(), "pause")
	e.session.UpdatePlaybackState(false, false)
	e.notify()
}

// Next selects the track after the current one under the play mode.
func (e *Engine) Next(ctx context.Context) error {
	idx, ok := e.playlist.NextIndex(e.currentURL())
	if !ok {
		return nil
	}
	return e.SelectTrack(ctx, idx)
}

// Previous selects the track before the current one under the play mode.
func (e *Engine) Previous(ctx context.Context) error {
	idx, ok := e.playlist.PrevIndex(e.currentURL())
	if !ok {
		return nil
	}
	return e.SelectTrack(ctx, idx)
}

// Seek moves playback to ms, recomputes the lyric line at once and resumes
// playback if it was paused. Range checks are the caller's job.
func (e *Engine) Seek(ctx context.Context, ms int64) {
	e.mu.Lock()
	current := e.current
	playing := e.playing
	duration := e.duration
	e.mu.Unlock()
	if current == nil {
		return
	}

	seconds := float64(ms) / 1000
	if err := e.clock.SetPosition(seconds); err != nil {
		log.Warn().Err(err).Float64("seconds", seconds).Msg("seek failed")
		return
	}
	e.mu.Lock()
	e.position = seconds
	e.mu.Unlock()
	e.syncer.ForceSync(ms)
	e.session.UpdatePosition(duration, seconds)
	e.notify()

	if !playing {
		_ = e.Play(ctx)
	}
}

// SeekBy seeks relative to the current position, clamped to the track.
func (e *Engine) SeekBy(ctx context.Context, delta time.Duration) {
	e.mu.Lock()
	target := e.position + delta.Seconds()
	if e.duration > 0 {
		target = math.Min(target, e.duration)
	}
	e.mu.Unlock()
	e.Seek(ctx, int64(math.Max(0, target)*1000))
}

// BeginSeek suspends lyric syncing while the user drags a seek control.
func (e *Engine) BeginSeek() { e.syncer.BeginSeek() }

// EndSeek resumes lyric syncing.
func (e *Engine) EndSeek() { e.syncer.EndSeek() }

// SetVolume clamps v to [0,1]. Zero mutes; a positive value unmutes and is
// remembered for ToggleMute. The value is kept even when the hardware
// rejects it.
func (e *Engine) SetVolume(v float64) {
	v = clamp01(v)

	e.mu.Lock()
	e.volume = v
	e.muted = v == 0
	if v > 0 {
		e.previousVolume = v
	}
	muted := e.muted
	bound := e.bound != ""
	e.mu.Unlock()

	if bound {
		warnHardware(e.clock.SetVolume(v), "set volume")
		warnHardware(e.clock.SetMuted(muted), "set mute")
	}
	e.notify()
}

// ToggleMute flips the mute flag. Unmuting at volume 0 restores the last
// positive volume.
func (e *Engine) ToggleMute() {
	e.mu.Lock()
	if e.muted {
		e.muted = false
		if e.volume == 0 {
			e.volume = e.previousVolume
			if e.volume == 0 {
				e.volume = defaultRestoreVolume
			}
		}
	} else {
		if e.volume > 0 {
			e.previousVolume = e.volume
		}
		e.muted = true
	}
	volume, muted := e.volume, e.muted
	bound := e.bound != ""
	e.mu.Unlock()

	if bound {
		warnHardware(e.clock.SetMuted(muted), "toggle mute")
		if !muted {
			warnHardware(e.clock.SetVolume(volume), "restore volume")
		}
	}
	e.notify()
}

// SetPlayMode changes the play mode.
func (e *Engine) SetPlayMode(mode domain.PlayMode) {
	e.playlist.SetPlayMode(mode)
	e.notify()
}

// CyclePlayMode advances sequential → repeat-one → shuffle → sequential.
func (e *Engine) CyclePlayMode() domain.PlayMode {
	mode := e.playlist.Mode().Next()
	e.SetPlayMode(mode)
	return mode
}

// LoadCollection fills collection id from a catalog search and activates
// it. On failure an empty collection is installed and the error returned.
func (e *Engine) LoadCollection(ctx context.Context, id, name string, q library.SearchQuery) (int, error) {
	tracks, err := e.library.SearchTracks(ctx, q)
	if err != nil {
		log.Warn().Err(err).Str("collection", id).Msg("catalog search failed")
		tracks = nil
	}
	e.playlist.SetCollection(id, name, tracks)
	e.notify()
	return len(tracks), err
}

// AppendFromCatalog appends a further page of search results to collection id.
func (e *Engine) AppendFromCatalog(ctx context.Context, id string, q library.SearchQuery) (int, error) {
	tracks, err := e.library.SearchTracks(ctx, q)
	if err != nil {
		log.Warn().Err(err).Str("collection", id).Msg("catalog search failed")
		return 0, err
	}
	if err := e.playlist.AppendTracks(id, tracks); err != nil {
		return 0, err
	}
	e.notify()
	return len(tracks), nil
}

// ActivateCollection switches the active collection. The current track
// keeps playing; navigation continues from its position in the new
// collection, or from the start if it is not there.
func (e *Engine) ActivateCollection(id string) error {
	if err := e.playlist.SetActive(id); err != nil {
		return err
	}
	e.notify()
	return nil
}

// RemoveAt removes a track from the active collection. Removing the
// current track selects its replacement without playing it; removing the
// last track resets the engine.
func (e *Engine) RemoveAt(index int) error {
	r, err := e.playlist.RemoveAt(index, e.currentURL())
	if err != nil {
		log.Warn().Int("index", index).Err(err).Msg("remove track")
		if errors.Is(err, playlist.ErrIndexOutOfRange) {
			return fmt.Errorf("%w: %d", ErrInvalidIndex, index)
		}
		return err
	}

	switch {
	case r.Empty:
		e.Reset()
	case r.WasCurrent:
		e.selectPaused(r.Replacement)
	default:
		e.notify()
	}
	return nil
}

// ClearCollection empties the active collection and resets the engine.
func (e *Engine) ClearCollection() error {
	if err := e.playlist.Clear(); err != nil {
		return err
	}
	e.Reset()
	return nil
}

// selectPaused makes track current without binding or playing it.
func (e *Engine) selectPaused(track domain.Track) {
	e.hwMu.Lock()
	e.token.Inc()
	e.mu.Lock()
	if e.loadCancel != nil {
		e.loadCancel()
		e.loadCancel = nil
	}
	t := track
	e.current = &t
	e.bound = ""
	e.status = domain.StatusPaused
	e.playing = false
	e.position = 0
	e.duration = 0
	e.syncer.Stop()
	e.mu.Unlock()

	warnHardware(e.clock.Pause(), "pause")
	warnHardware(e.clock.Release(), "release")
	e.buffer.Reset()
	e.hwMu.Unlock()

	e.loadLyrics(track)
	e.session.UpdateMetadata(&track, 0)
	e.session.UpdatePlaybackState(false, false)
	e.notify()
}

// Reset stops playback and clears the session.
func (e *Engine) Reset() {
	e.hwMu.Lock()
	e.token.Inc()
	e.mu.Lock()
	if e.loadCancel != nil {
		e.loadCancel()
		e.loadCancel = nil
	}
	e.current = nil
	e.bound = ""
	e.status = domain.StatusIdle
	e.playing = false
	e.position = 0
	e.duration = 0
	e.lyricText = ""
	e.lyricsLoading = false
	e.lyricGen++
	e.syncer.Stop()
	e.mu.Unlock()

	warnHardware(e.clock.Pause(), "pause")
	warnHardware(e.clock.Release(), "release")
	e.buffer.Detach()
	e.buffer.Reset()
	e.hwMu.Unlock()

	e.syncer.SetTimeline(nil)
	e.session.UpdatePlaybackState(false, true)
	e.notify()
}

// Close resets the engine, waits for background work and releases the
// clock and the media session.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	unsubscribe := e.unsubscribe
	e.mu.Unlock()

	e.Reset()
	unsubscribe()
	e.cancel()
	e.wg.Wait()
	e.lyrics.Wait()

	e.subMu.Lock()
	for key, ch := range e.subscribers {
		close(ch)
		delete(e.subscribers, key)
	}
	e.subMu.Unlock()

	return multierr.Combine(e.clock.Close(), e.session.Close())
}

func (e *Engine) handleClockEvent(ev player.Event) {
	e.mu.Lock()
	bound := e.bound
	status := e.status
	e.mu.Unlock()
	if bound == "" || (ev.URL != "" && ev.URL != bound) {
		return
	}

	switch ev.Kind {
	case player.EventEnded:
		if status != domain.StatusPlaying {
			return
		}
		log.Debug().Str("url", bound).Msg("track ended")
		e.background(func(ctx context.Context) {
			if err := e.Next(ctx); err != nil {
				log.Warn().Err(err).Msg("advance after track end")
			}
		})
	case player.EventMetadata:
		duration, err := e.clock.Duration()
		if err != nil || duration <= 0 {
			return
		}
		e.mu.Lock()
		changed := e.bound == bound && e.duration != duration
		if changed {
			e.duration = duration
		}
		current := e.current
		e.mu.Unlock()
		if changed {
			e.session.UpdateMetadata(current, duration)
			e.notify()
		}
	}
}

func (e *Engine) onSyncTick(_ int, seconds float64) {
	e.mu.Lock()
	if e.status != domain.StatusPlaying {
		e.mu.Unlock()
		return
	}
	e.position = seconds
	duration := e.duration
	e.mu.Unlock()

	e.session.UpdatePosition(duration, seconds)
	e.notify()
}

// loadLyrics shows the lyrics of track, fetching them in the background
// on a cache miss.
func (e *Engine) loadLyrics(track domain.Track) {
	e.mu.Lock()
	e.lyricGen++
	gen := e.lyricGen
	e.mu.Unlock()

	if track.LyricURL == "" {
		e.applyLyrics(gen, NoLyricsText, nil)
		return
	}
	if entry, ok := e.lyrics.Get(track.LyricURL); ok {
		e.applyLyrics(gen, entry.Raw, entry.Timeline)
		return
	}

	e.mu.Lock()
	e.lyricText = ""
	e.lyricsLoading = true
	e.mu.Unlock()
	e.syncer.SetTimeline(nil)

	e.background(func(ctx context.Context) {
		entry, err := e.lyrics.Load(ctx, track.LyricURL)
		if err != nil {
			log.Warn().Err(err).Str("url", track.LyricURL).Msg("fetch lyrics")
			e.applyLyrics(gen, LyricsUnavailableText, nil)
			return
		}
		e.applyLyrics(gen, entry.Raw, entry.Timeline)
	})
}

func (e *Engine) applyLyrics(gen uint64, text string, tl lyrics.Timeline) {
	e.mu.Lock()
	if gen != e.lyricGen {
		e.mu.Unlock()
		return
	}
	e.lyricText = text
	e.lyricsLoading = false
	e.syncer.SetTimeline(tl)
	position := e.position
	e.mu.Unlock()

	e.syncer.ForceSync(int64(position * 1000))
	e.notify()
}

func (e *Engine) preloadNext() {
	idx, ok := e.playlist.PeekNext(e.currentURL())
	if !ok {
		return
	}
	if next, err := e.playlist.Track(idx); err == nil {
		e.lyrics.Preload(e.ctx, next.LyricURL)
	}
}

// background runs fn on the engine's wait group with the engine context.
func (e *Engine) background(fn func(ctx context.Context)) {
	if e.ctx.Err() != nil {
		return
	}
	e.wg.Go(func() { fn(e.ctx) })
}

func (e *Engine) currentURL() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return ""
	}
	return e.current.URL
}

func warnHardware(err error, msg string) {
	if err != nil {
		log.Warn().Err(err).Msg(msg)
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
