package lyrics

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
)

const (
	DefaultFrameInterval = 16 * time.Millisecond
	DefaultSyncInterval  = 100 * time.Millisecond
)

// PositionFunc reports the playback position in seconds.
type PositionFunc func() (float64, error)

// TickFunc receives the recomputed line index and the position it was
// computed from.
type TickFunc func(line int, seconds float64)

// Syncer runs the lyric reconciliation loop. The loop wakes every frame but
// recomputes at most once per sync interval, and not at all while a seek
// gesture is in progress.
type Syncer struct {
	position PositionFunc
	onTick   TickFunc
	frame    time.Duration
	interval time.Duration

	seeking *atomic.Bool

	mu       sync.Mutex
	timeline Timeline
	line     int
	lastSync time.Time
	cancel   context.CancelFunc
}

// NewSyncer creates a stopped Syncer. Zero intervals fall back to the
// defaults. onTick may be nil.
func NewSyncer(position PositionFunc, onTick TickFunc, frame, interval time.Duration) *Syncer {
	if frame <= 0 {
		frame = DefaultFrameInterval
	}
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &Syncer{
		position: position,
		onTick:   onTick,
		frame:    frame,
		interval: interval,
		seeking:  atomic.NewBool(false),
	}
}

// SetTimeline replaces the timeline and resets the current line.
func (s *Syncer) SetTimeline(tl Timeline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeline = tl
	s.line = 0
}

// Timeline returns the active timeline.
func (s *Syncer) Timeline() Timeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline
}

// Line returns the current line index.
func (s *Syncer) Line() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.line
}

// Start launches the loop. Starting a running Syncer does nothing.
func (s *Syncer) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(ctx)
}

// Stop ends the loop and forgets the last sync time. Stopping a stopped
// Syncer does nothing.
func (s *Syncer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.lastSync = time.Time{}
}

// Running reports whether the loop is active.
func (s *Syncer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// BeginSeek suspends recomputation until EndSeek.
func (s *Syncer) BeginSeek() { s.seeking.Store(true) }

// EndSeek resumes recomputation.
func (s *Syncer) EndSeek() { s.seeking.Store(false) }

// Seeking reports whether a seek gesture is in progress.
func (s *Syncer) Seeking() bool { return s.seeking.Load() }

// ForceSync recomputes the line for ms immediately, bypassing the throttle
// and the seek latch.
func (s *Syncer) ForceSync(ms int64) int {
	s.mu.Lock()
	s.line = s.timeline.FindLine(ms)
	s.lastSync = time.Now()
	line := s.line
	s.mu.Unlock()
	return line
}

func (s *Syncer) run(ctx context.Context) {
	ticker := time.NewTicker(s.frame)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			s.tick(now)
		case <-ctx.Done():
			return
		}
	}
}

// tick performs one frame of the loop and reports whether it recomputed.
func (s *Syncer) tick(now time.Time) bool {
	if s.seeking.Load() {
		return false
	}

	s.mu.Lock()
	if !s.lastSync.IsZero() && now.Sub(s.lastSync) < s.interval {
		s.mu.Unlock()
		return false
	}
	s.lastSync = now
	s.mu.Unlock()

	seconds, err := s.position()
	if err != nil {
		log.Debug().Err(err).Msg("lyric sync: read position")
		return false
	}

	s.mu.Lock()
	s.line = s.timeline.FindLine(int64(seconds * 1000))
	line := s.line
	s.mu.Unlock()

	if s.onTick != nil {
		s.onTick(line, seconds)
	}
	return true
}
