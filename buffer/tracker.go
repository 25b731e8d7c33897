// Package buffer derives a normalized buffered-range set and a buffered
// fraction from a player.Clock.
package buffer

import (
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/yhkl-dev/naviplay/domain"
	"github.com/yhkl-dev/naviplay/player"
)

// Tracker follows the buffered ranges of the resource bound to a clock.
type Tracker struct {
	clock    player.Clock
	onChange func(fraction float64)

	mu          sync.Mutex
	ranges      []domain.BufferedRange
	fraction    float64
	unsubscribe func()
}

// NewTracker creates a detached tracker. onChange, when non-nil, is called
// after every recomputation that changed the fraction.
func NewTracker(clock player.Clock, onChange func(fraction float64)) *Tracker {
	return &Tracker{clock: clock, onChange: onChange}
}

// Attach subscribes to the clock's progress, metadata and ready events.
// Calling Attach on an attached tracker does nothing.
func (t *Tracker) Attach() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.unsubscribe != nil {
		return
	}
	t.unsubscribe = t.clock.Subscribe(t.handle)
}

// Detach removes the subscription installed by Attach. Calling Detach on a
// detached tracker does nothing.
func (t *Tracker) Detach() {
	t.mu.Lock()
	unsubscribe := t.unsubscribe
	t.unsubscribe = nil
	t.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// Attached reports whether the tracker is subscribed to its clock.
func (t *Tracker) Attached() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unsubscribe != nil
}

func (t *Tracker) handle(ev player.Event) {
	switch ev.Kind {
	case player.EventProgress, player.EventMetadata, player.EventReady:
		t.Refresh()
	}
}

// Refresh re-reads the clock's buffered ranges in full and recomputes the
// fraction. The fraction is left unchanged when no ranges or no positive
// duration are known.
func (t *Tracker) Refresh() {
	raw, err := t.clock.Buffered()
	if err != nil {
		log.Debug().Err(err).Msg("read buffered ranges")
		return
	}
	duration, err := t.clock.Duration()
	if err != nil {
		log.Debug().Err(err).Msg("read duration")
		duration = 0
	}

	ranges := Normalize(raw)

	t.mu.Lock()
	t.ranges = ranges
	changed := false
	if f, ok := Fraction(ranges, duration); ok && f != t.fraction {
		t.fraction = f
		changed = true
	}
	fraction := t.fraction
	t.mu.Unlock()

	if changed && t.onChange != nil {
		t.onChange(fraction)
	}
}

// Reset clears the range set and the fraction.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ranges = nil
	t.fraction = 0
}

// Ranges returns a copy of the normalized range set.
func (t *Tracker) Ranges() []domain.BufferedRange {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.BufferedRange, len(t.ranges))
	copy(out, t.ranges)
	return out
}

// Fraction returns the buffered fraction in [0,1].
func (t *Tracker) Fraction() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fraction
}

// Normalize drops empty or invalid ranges, orders the rest by start and
// merges overlapping or touching ranges.
func Normalize(raw []domain.BufferedRange) []domain.BufferedRange {
	out := make([]domain.BufferedRange, 0, len(raw))
	for _, r := range raw {
		if math.IsNaN(r.Start) || math.IsNaN(r.End) || r.End <= r.Start {
			continue
		}
		if r.Start < 0 {
			r.Start = 0
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })

	merged := out[:0]
	for _, r := range out {
		if n := len(merged); n > 0 && r.Start <= merged[n-1].End {
			if r.End > merged[n-1].End {
				merged[n-1].End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// Fraction computes min(1, last.End/duration). Only the last range counts:
// for a stream with a gap, earlier ranges are not reflected. ok is false
// when ranges is empty or duration is not positive.
func Fraction(ranges []domain.BufferedRange, duration float64) (fraction float64, ok bool) {
	if len(ranges) == 0 || !(duration > 0) {
		return 0, false
	}
	return math.Min(1, ranges[len(ranges)-1].End/duration), true
}
