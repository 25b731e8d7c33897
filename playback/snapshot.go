package playback

import (
	"github.com/yhkl-dev/naviplay/domain"
	"github.com/yhkl-dev/naviplay/lyrics"
)

// Snapshot is a consistent copy of the observable session state.
type Snapshot struct {
	Track    *domain.Track
	Index    int
	Status   domain.Status
	Playing  bool
	Position float64
	Duration float64
	Buffered float64

	Volume float64
	Muted  bool
	Mode   domain.PlayMode

	Lyrics        string
	LyricsLoading bool
	Timeline      lyrics.Timeline
	LyricLine     int

	CollectionID string
	TrackCount   int
	HasNext      bool
	HasPrevious  bool
}

// CurrentLyric returns the text of the current lyric line.
func (s Snapshot) CurrentLyric() string {
	return s.Timeline.Text(s.LyricLine)
}

// Snapshot returns the current session state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	s := Snapshot{
		Status:        e.status,
		Playing:       e.playing,
		Position:      e.position,
		Duration:      e.duration,
		Volume:        e.volume,
		Muted:         e.muted,
		Lyrics:        e.lyricText,
		LyricsLoading: e.lyricsLoading,
		Index:         -1,
	}
	if e.current != nil {
		t := *e.current
		s.Track = &t
	}
	e.mu.Unlock()

	url := ""
	if s.Track != nil {
		url = s.Track.URL
		if s.Duration == 0 {
			s.Duration = float64(s.Track.Duration)
		}
	}
	s.Mode = e.playlist.Mode()
	s.Index = e.playlist.CurrentIndex(url)
	s.CollectionID = e.playlist.ActiveID()
	s.TrackCount = e.playlist.Len()
	s.HasNext = e.playlist.HasNext(url)
	s.HasPrevious = e.playlist.HasPrevious(url)
	s.Buffered = e.buffer.Fraction()
	s.Timeline = e.syncer.Timeline()
	s.LyricLine = e.syncer.Line()
	return s
}

// Subscribe returns a channel receiving a Snapshot after every state
// change. Slow readers miss updates rather than block the engine.
func (e *Engine) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, subscriberBuffer)
	e.subMu.Lock()
	e.subscribers[ch] = ch
	e.subMu.Unlock()
	return ch
}

// Unsubscribe closes and removes a channel returned by Subscribe.
func (e *Engine) Unsubscribe(ch <-chan Snapshot) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	if c, ok := e.subscribers[ch]; ok {
		close(c)
		delete(e.subscribers, ch)
	}
}

func (e *Engine) notify() {
	e.subMu.Lock()
	n := len(e.subscribers)
	e.subMu.Unlock()
	if n == 0 {
		return
	}

	snap := e.Snapshot()
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
}
