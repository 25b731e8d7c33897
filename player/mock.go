package player

import (
	"sync"

	"github.com/yhkl-dev/naviplay/domain"
)

// Verify Mock implements Clock at compile time.
var _ Clock = (*Mock)(nil)

// Mock is an in-memory Clock for tests. Events are only emitted when the
// test asks for them.
type Mock struct {
	mu sync.Mutex

	url       string
	canPlay   bool
	autoReady bool
	playing   bool
	closed    bool

	position float64
	duration float64
	buffered []domain.BufferedRange
	volume   float64
	muted    bool

	playErr   error
	pauseErr  error
	seekErr   error
	volumeErr error
	playHook  func(url string)

	calls []string

	listeners ListenerSet
}

// NewMock creates a Mock whose resources never become ready on their own.
func NewMock() *Mock {
	return &Mock{volume: 1}
}

// NewReadyMock creates a Mock whose resources are playable right after Bind.
func NewReadyMock() *Mock {
	m := NewMock()
	m.autoReady = true
	return m
}

func (m *Mock) record(call string) {
	m.calls = append(m.calls, call)
}

// Bind implements Clock.
func (m *Mock) Bind(url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("bind:" + url)
	m.url = url
	m.canPlay = m.autoReady
	m.playing = false
	m.position = 0
	m.duration = 0
	m.buffered = nil
	return nil
}

// Release implements Clock.
func (m *Mock) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("release")
	m.url = ""
	m.canPlay = false
	m.playing = false
	return nil
}

// Play implements Clock. A hook installed with SetPlayHook runs first and
// may block to simulate a slow acknowledgement.
func (m *Mock) Play() error {
	m.mu.Lock()
	hook := m.playHook
	url := m.url
	m.mu.Unlock()

	if hook != nil {
		hook(url)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("play")
	if m.playErr != nil {
		return Wrap("play", m.playErr)
	}
	m.playing = true
	return nil
}

// Pause implements Clock.
func (m *Mock) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("pause")
	if m.pauseErr != nil {
		return Wrap("pause", m.pauseErr)
	}
	m.playing = false
	return nil
}

// CanPlay implements Clock.
func (m *Mock) CanPlay() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canPlay
}

// Position implements Clock.
func (m *Mock) Position() (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position, nil
}

// SetPosition implements Clock. Tests also use it to move the clock.
func (m *Mock) SetPosition(seconds float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seekErr != nil {
		return Wrap("seek", m.seekErr)
	}
	m.position = seconds
	return nil
}

// Duration implements Clock.
func (m *Mock) Duration() (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration, nil
}

// Buffered implements Clock.
func (m *Mock) Buffered() ([]domain.BufferedRange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.BufferedRange, len(m.buffered))
	copy(out, m.buffered)
	return out, nil
}

// SetVolume implements Clock.
func (m *Mock) SetVolume(v float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.volumeErr != nil {
		return Wrap("volume", m.volumeErr)
	}
	m.volume = v
	return nil
}

// SetMuted implements Clock.
func (m *Mock) SetMuted(muted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.volumeErr != nil {
		return Wrap("mute", m.volumeErr)
	}
	m.muted = muted
	return nil
}

// Subscribe implements Clock.
func (m *Mock) Subscribe(l Listener) func() {
	return m.listeners.Add(l)
}

// Close implements Clock.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// MarkReady makes the bound resource playable and emits EventReady.
func (m *Mock) MarkReady() {
	m.mu.Lock()
	m.canPlay = true
	url := m.url
	m.mu.Unlock()
	m.listeners.Emit(Event{Kind: EventReady, URL: url})
}

// Emit sends an event of the given kind to all listeners.
func (m *Mock) Emit(kind EventKind) {
	m.mu.Lock()
	url := m.url
	m.mu.Unlock()
	m.listeners.Emit(Event{Kind: kind, URL: url})
}

// SetDuration sets the value returned by Duration.
func (m *Mock) SetDuration(d float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duration = d
}

// SetBuffered sets the ranges returned by Buffered.
func (m *Mock) SetBuffered(ranges []domain.BufferedRange) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffered = ranges
}

// SetPlayError makes subsequent Play calls fail with err.
func (m *Mock) SetPlayError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playErr = err
}

// SetPauseError makes subsequent Pause calls fail with err.
func (m *Mock) SetPauseError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauseErr = err
}

// SetSeekError makes subsequent SetPosition calls fail with err.
func (m *Mock) SetSeekError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seekErr = err
}

// SetVolumeError makes subsequent SetVolume/SetMuted calls fail with err.
func (m *Mock) SetVolumeError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volumeErr = err
}

// SetPlayHook installs a function run at the start of every Play call.
func (m *Mock) SetPlayHook(hook func(url string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playHook = hook
}

// URL returns the bound resource ("" if none).
func (m *Mock) URL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.url
}

// IsPlaying reports whether the mock is currently playing.
func (m *Mock) IsPlaying() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing
}

// Volume returns the last volume written.
func (m *Mock) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

// Muted returns the last mute flag written.
func (m *Mock) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Calls returns the recorded call log.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// ListenerCount returns the number of registered listeners.
func (m *Mock) ListenerCount() int {
	return m.listeners.Len()
}
