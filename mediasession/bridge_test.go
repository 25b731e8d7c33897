package mediasession

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/yhkl-dev/naviplay/domain"
)

type recordingSink struct {
	mu        sync.Mutex
	metadata  []Metadata
	states    []PlaybackState
	positions []PositionState
	handlers  Handlers
	err       error
	closed    bool
}

func (s *recordingSink) SetMetadata(m Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata = append(s.metadata, m)
	return s.err
}

func (s *recordingSink) SetPlaybackState(st PlaybackState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, st)
	return s.err
}

func (s *recordingSink) SetPositionState(ps PositionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = append(s.positions, ps)
	return s.err
}

func (s *recordingSink) SetHandlers(h Handlers) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = h
	return s.err
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func TestBridgeMetadata(t *testing.T) {
	sink := &recordingSink{}
	b := NewBridge(sink)

	b.UpdateMetadata(nil, 0)
	if len(sink.metadata) != 0 {
		t.Fatal("nil track must not publish metadata")
	}

	track := &domain.Track{URL: "a.mp3", Title: "A", Artist: "Artist", Album: "Album", CoverURL: "cover.png", Duration: 200}
	b.UpdateMetadata(track, 0)
	got := sink.metadata[0]
	want := Metadata{URL: "a.mp3", Title: "A", Artist: "Artist", Album: "Album", ArtworkURL: "cover.png", Duration: 200}
	if got != want {
		t.Errorf("metadata = %+v, want %+v", got, want)
	}

	b.UpdateMetadata(track, 201.5)
	if sink.metadata[1].Duration != 201.5 {
		t.Errorf("hardware duration should win: %v", sink.metadata[1].Duration)
	}
	if b.Metadata().Title != "A" {
		t.Errorf("Metadata() = %+v", b.Metadata())
	}
}

func TestBridgePlaybackState(t *testing.T) {
	sink := &recordingSink{}
	b := NewBridge(sink)
	b.UpdatePlaybackState(true, false)
	b.UpdatePlaybackState(false, false)
	b.UpdatePlaybackState(true, true)

	want := []PlaybackState{StatePlaying, StatePaused, StateNone}
	for i, st := range want {
		if sink.states[i] != st {
			t.Errorf("state %d = %v, want %v", i, sink.states[i], st)
		}
	}
	if b.State() != StateNone {
		t.Errorf("State() = %v", b.State())
	}
}

func TestBridgePositionSanitized(t *testing.T) {
	sink := &recordingSink{}
	b := NewBridge(sink)
	b.UpdatePosition(math.NaN(), 12)
	b.UpdatePosition(100, 150)
	b.UpdatePosition(math.Inf(1), -3)

	want := []PositionState{
		{Duration: 0, Rate: 1, Position: 12},
		{Duration: 100, Rate: 1, Position: 100},
		{Duration: 0, Rate: 1, Position: 0},
	}
	for i, ps := range want {
		if sink.positions[i] != ps {
			t.Errorf("position %d = %+v, want %+v", i, sink.positions[i], ps)
		}
	}
}

func TestBridgeSwallowsSinkErrors(t *testing.T) {
	sink := &recordingSink{err: errors.New("no media session")}
	b := NewBridge(sink)
	b.Connect(Handlers{})
	b.UpdateMetadata(&domain.Track{URL: "x"}, 1)
	b.UpdatePlaybackState(true, false)
	b.UpdatePosition(1, 0)
	if len(sink.states) != 1 {
		t.Errorf("calls after error were not attempted")
	}
}

func TestBridgeConnectRoutesHandlers(t *testing.T) {
	sink := &recordingSink{}
	b := NewBridge(sink)
	var got []string
	b.Connect(Handlers{
		OnPlay: func() { got = append(got, "play") },
		OnSeek: func(r SeekRequest) {
			if r.Seconds == 42 {
				got = append(got, "seek")
			}
		},
	})
	sink.handlers.OnPlay()
	sink.handlers.OnSeek(SeekRequest{Seconds: 42})
	if len(got) != 2 {
		t.Errorf("handlers routed = %v", got)
	}
}

func TestNilBridgeAndNoopSink(t *testing.T) {
	var b *Bridge
	b.UpdateMetadata(&domain.Track{}, 0)
	b.UpdatePlaybackState(true, false)
	b.UpdatePosition(1, 1)
	b.Connect(Handlers{})
	if err := b.Close(); err != nil {
		t.Errorf("nil Close() = %v", err)
	}

	nb := NewBridge(nil)
	nb.UpdatePlaybackState(true, false)
	if err := nb.Close(); err != nil {
		t.Errorf("noop Close() = %v", err)
	}
}

func TestTrackObjectPath(t *testing.T) {
	a := trackObjectPath("http://host/a.mp3")
	if a != trackObjectPath("http://host/a.mp3") {
		t.Error("object path not stable")
	}
	if a == trackObjectPath("http://host/b.mp3") {
		t.Error("different locators share an object path")
	}
	if !a.IsValid() {
		t.Errorf("%q is not a valid object path", a)
	}
	if trackObjectPath("") != noTrackID {
		t.Error("empty locator should map to NoTrack")
	}
}
