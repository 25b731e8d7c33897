package player

import (
	"errors"
	"fmt"

	"github.com/yhkl-dev/naviplay/domain"
)

// ErrNotBound is returned by position-dependent calls before Bind.
var ErrNotBound = errors.New("no media bound")

// EventKind identifies a hardware event.
type EventKind int

const (
	// EventProgress fires when more of the resource has been downloaded.
	EventProgress EventKind = iota
	// EventMetadata fires once duration becomes known.
	EventMetadata
	// EventReady fires when the bound resource can start playing.
	EventReady
	// EventEnded fires when playback reaches the end of the resource.
	EventEnded
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventMetadata:
		return "metadata"
	case EventReady:
		return "ready"
	case EventEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Event is emitted by a Clock to its listeners.
type Event struct {
	Kind EventKind
	URL  string // resource bound when the event was produced
}

// Listener receives clock events. Listeners are called from the clock's
// event goroutine and must not block.
type Listener func(Event)

// Clock wraps one hardware playback resource. It abstracts the concrete
// backend (libmpv, a local decoder, or a mock in tests).
//
// Every method may fail with a *HardwareError; callers are expected to catch
// it and degrade rather than propagate.
type Clock interface {
	// Bind assigns a new resource. The previous binding is dropped.
	Bind(url string) error

	// Release drops the current binding, if any.
	Release() error

	// Play starts or resumes playback and returns once the backend
	// acknowledged the request.
	Play() error

	// Pause pauses playback.
	Pause() error

	// CanPlay reports whether the bound resource is buffered enough to play.
	CanPlay() bool

	// Position returns the playback position in seconds.
	Position() (float64, error)

	// SetPosition moves the playback position, in seconds.
	SetPosition(seconds float64) error

	// Duration returns the resource duration in seconds (0 if unknown).
	Duration() (float64, error)

	// Buffered returns the full list of buffered ranges, ascending by start.
	Buffered() ([]domain.BufferedRange, error)

	// SetVolume sets the output volume in [0,1].
	SetVolume(v float64) error

	// SetMuted mutes or unmutes the output.
	SetMuted(muted bool) error

	// Subscribe registers a listener and returns its unsubscribe function.
	Subscribe(l Listener) (unsubscribe func())

	// Close releases all backend resources.
	Close() error
}

// HardwareError wraps a failure reported by the playback backend.
type HardwareError struct {
	Op  string
	Err error
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *HardwareError) Unwrap() error {
	return e.Err
}

// Wrap returns err as a *HardwareError for op, or nil when err is nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &HardwareError{Op: op, Err: err}
}
