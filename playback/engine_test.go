package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/yhkl-dev/naviplay/domain"
	"github.com/yhkl-dev/naviplay/library"
	"github.com/yhkl-dev/naviplay/mediasession"
	"github.com/yhkl-dev/naviplay/player"
)

type fakeLibrary struct {
	mu        sync.Mutex
	tracks    []domain.Track
	lyrics    map[string]string
	searchErr error
}

func (l *fakeLibrary) SearchTracks(_ context.Context, _ library.SearchQuery) ([]domain.Track, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.searchErr != nil {
		return nil, l.searchErr
	}
	return append([]domain.Track(nil), l.tracks...), nil
}

func (l *fakeLibrary) FetchLyrics(_ context.Context, url string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	text, ok := l.lyrics[url]
	if !ok {
		return "", errors.New("lyrics not found")
	}
	return text, nil
}

func (l *fakeLibrary) Ping(context.Context) error { return nil }

func testTracks(n int) []domain.Track {
	out := make([]domain.Track, n)
	for i := range out {
		out[i] = domain.Track{
			URL:      fmt.Sprintf("http://music/%d.mp3", i),
			LyricURL: fmt.Sprintf("http://music/%d.lrc", i),
			Title:    fmt.Sprintf("Song %d", i),
			Artist:   "Artist",
		}
	}
	return out
}

func newTestEngine(t *testing.T, clock *player.Mock, n int) (*Engine, *fakeLibrary) {
	t.Helper()
	lib := &fakeLibrary{tracks: testTracks(n), lyrics: map[string]string{}}
	for _, tr := range lib.tracks {
		lib.lyrics[tr.LyricURL] = "[00:00.00]intro\n[00:02.00]verse\n[00:04.00]chorus"
	}
	e := New(clock, lib, Options{Volume: 0.5})
	t.Cleanup(func() { e.Close() })
	if _, err := e.LoadCollection(context.Background(), "main", "Main", library.SearchQuery{}); err != nil {
		t.Fatal(err)
	}
	return e, lib
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func countCalls(calls []string, name string) int {
	n := 0
	for _, c := range calls {
		if c == name {
			n++
		}
	}
	return n
}

func TestSelectTrackPlays(t *testing.T) {
	clock := player.NewReadyMock()
	e, _ := newTestEngine(t, clock, 3)
	tracks := e.Playlist().Tracks()

	for i := range tracks {
		if err := e.SelectTrack(context.Background(), i); err != nil {
			t.Fatalf("SelectTrack(%d) = %v", i, err)
		}
		s := e.Snapshot()
		if s.Track == nil || s.Track.URL != tracks[i].URL {
			t.Fatalf("current = %v, want %s", s.Track, tracks[i].URL)
		}
		if s.Position != 0 || s.Index != i {
			t.Errorf("position %v index %d, want 0 %d", s.Position, s.Index, i)
		}
		if !s.Playing || s.Status != domain.StatusPlaying {
			t.Errorf("status = %v playing = %v", s.Status, s.Playing)
		}
		if clock.URL() != tracks[i].URL || !clock.IsPlaying() {
			t.Errorf("clock bound %q playing %v", clock.URL(), clock.IsPlaying())
		}
	}
	if got := clock.Volume(); got != 0.5 {
		t.Errorf("volume applied on bind = %v, want 0.5", got)
	}
}

func TestSelectTrackInvalidIndex(t *testing.T) {
	clock := player.NewReadyMock()
	e, _ := newTestEngine(t, clock, 2)

	for _, idx := range []int{-1, 2, 100} {
		err := e.SelectTrack(context.Background(), idx)
		if !errors.Is(err, ErrInvalidIndex) {
			t.Errorf("SelectTrack(%d) = %v, want ErrInvalidIndex", idx, err)
		}
	}
	s := e.Snapshot()
	if s.Track != nil || s.Status != domain.StatusIdle || s.Playing {
		t.Errorf("state changed: %+v", s)
	}
	if calls := clock.Calls(); len(calls) != 0 {
		t.Errorf("clock touched: %v", calls)
	}
}

func TestRapidSelectionKeepsLatest(t *testing.T) {
	clock := player.NewMock()
	e, _ := newTestEngine(t, clock, 2)
	tracks := e.Playlist().Tracks()
	ctx := context.Background()

	errs := make(chan error, 2)
	go func() { errs <- e.SelectTrack(ctx, 0) }()
	waitFor(t, "first bind", func() bool { return clock.URL() == tracks[0].URL })

	go func() { errs <- e.SelectTrack(ctx, 1) }()
	waitFor(t, "second bind", func() bool { return clock.URL() == tracks[1].URL })

	// The second load may not be waiting for readiness yet; MarkReady sets
	// the playable flag, which it checks on entry.
	clock.MarkReady()
	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			if err != nil {
				t.Errorf("SelectTrack() = %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("SelectTrack did not settle")
		}
	}

	s := e.Snapshot()
	if s.Track == nil || s.Track.URL != tracks[1].URL {
		t.Fatalf("current = %v, want %s", s.Track, tracks[1].URL)
	}
	if !s.Playing {
		t.Error("second selection should be playing")
	}
	if n := countCalls(clock.Calls(), "play"); n != 1 {
		t.Errorf("play issued %d times, want 1", n)
	}
}

func TestSupersededDuringPlayAcknowledgement(t *testing.T) {
	clock := player.NewReadyMock()
	e, _ := newTestEngine(t, clock, 2)
	tracks := e.Playlist().Tracks()
	ctx := context.Background()

	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	clock.SetPlayHook(func(url string) {
		if url == tracks[0].URL {
			entered <- struct{}{}
			<-release
		}
	})

	first := make(chan error, 1)
	go func() { first <- e.SelectTrack(ctx, 0) }()
	<-entered

	if err := e.SelectTrack(ctx, 1); err != nil {
		t.Fatal(err)
	}
	close(release)
	if err := <-first; err != nil {
		t.Fatal(err)
	}

	s := e.Snapshot()
	if s.Track.URL != tracks[1].URL || !s.Playing || s.Status != domain.StatusPlaying {
		t.Errorf("state = %+v, want track 1 playing", s)
	}
}

func TestPlayFailureRevertsToPaused(t *testing.T) {
	clock := player.NewReadyMock()
	clock.SetPlayError(errors.New("autoplay blocked"))
	e, _ := newTestEngine(t, clock, 1)

	if err := e.SelectTrack(context.Background(), 0); err != nil {
		t.Fatalf("hardware failure must not surface: %v", err)
	}
	s := e.Snapshot()
	if s.Playing || s.Status != domain.StatusPaused {
		t.Errorf("status = %v playing = %v, want paused", s.Status, s.Playing)
	}
	if e.syncer.Running() {
		t.Error("lyric loop running after failed play")
	}

	// The next explicit action retries.
	clock.SetPlayError(nil)
	if err := e.TogglePlay(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !e.Snapshot().Playing {
		t.Error("TogglePlay() after failure did not resume")
	}
}

func TestSelectTrackCallerCancel(t *testing.T) {
	clock := player.NewMock()
	e, _ := newTestEngine(t, clock, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.SelectTrack(ctx, 0) }()
	waitFor(t, "bind", func() bool { return clock.URL() != "" })
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("SelectTrack() = %v, want context.Canceled", err)
	}
	if s := e.Snapshot(); s.Status != domain.StatusPaused || s.Playing {
		t.Errorf("status = %v, want paused", s.Status)
	}
}

func TestTogglePlay(t *testing.T) {
	clock := player.NewReadyMock()
	e, _ := newTestEngine(t, clock, 2)
	ctx := context.Background()

	if err := e.TogglePlay(ctx); err != nil {
		t.Fatal(err)
	}
	s := e.Snapshot()
	if s.Index != 0 || !s.Playing {
		t.Fatalf("TogglePlay() with nothing selected: index %d playing %v", s.Index, s.Playing)
	}
	if !e.syncer.Running() {
		t.Error("lyric loop not running while playing")
	}

	e.TogglePlay(ctx)
	if e.Snapshot().Playing || clock.IsPlaying() {
		t.Error("TogglePlay() did not pause")
	}
	if e.syncer.Running() {
		t.Error("lyric loop running while paused")
	}

	e.TogglePlay(ctx)
	if !e.Snapshot().Playing || !clock.IsPlaying() {
		t.Error("TogglePlay() did not resume")
	}
}

func TestTogglePlayEmptyCollection(t *testing.T) {
	clock := player.NewReadyMock()
	e, _ := newTestEngine(t, clock, 0)
	if err := e.TogglePlay(context.Background()); err != nil {
		t.Fatal(err)
	}
	if e.Snapshot().Track != nil || len(clock.Calls()) != 0 {
		t.Error("TogglePlay() on empty collection should do nothing")
	}
	if err := e.Next(context.Background()); err != nil || e.Snapshot().Track != nil {
		t.Error("Next() on empty collection should do nothing")
	}
}

func TestNextPreviousSequential(t *testing.T) {
	clock := player.NewReadyMock()
	e, _ := newTestEngine(t, clock, 3)
	ctx := context.Background()

	e.SelectTrack(ctx, 2)
	e.Next(ctx)
	if got := e.Snapshot().Index; got != 0 {
		t.Errorf("Next() at end -> %d, want 0", got)
	}
	e.Previous(ctx)
	if got := e.Snapshot().Index; got != 0 {
		t.Errorf("Previous() at start -> %d, want 0", got)
	}

	e.SetPlayMode(domain.RepeatOne)
	e.SelectTrack(ctx, 1)
	e.Next(ctx)
	if got := e.Snapshot().Index; got != 1 {
		t.Errorf("repeat-one Next() -> %d, want 1", got)
	}
}

func TestTrackEndedAdvances(t *testing.T) {
	clock := player.NewReadyMock()
	e, _ := newTestEngine(t, clock, 2)
	tracks := e.Playlist().Tracks()
	e.SelectTrack(context.Background(), 0)

	clock.Emit(player.EventEnded)
	waitFor(t, "advance to track 1", func() bool {
		s := e.Snapshot()
		return s.Track != nil && s.Track.URL == tracks[1].URL && s.Playing
	})
}

func TestSeek(t *testing.T) {
	clock := player.NewReadyMock()
	e, _ := newTestEngine(t, clock, 1)
	ctx := context.Background()
	e.SelectTrack(ctx, 0)
	waitFor(t, "lyrics", func() bool { return len(e.Snapshot().Timeline) == 3 })

	e.Pause()
	e.Seek(ctx, 2500)

	pos, _ := clock.Position()
	if pos != 2.5 {
		t.Errorf("clock position = %v, want 2.5", pos)
	}
	s := e.Snapshot()
	if s.LyricLine != 1 || s.CurrentLyric() != "verse" {
		t.Errorf("lyric line = %d %q, want 1 verse", s.LyricLine, s.CurrentLyric())
	}
	if !s.Playing || !clock.IsPlaying() {
		t.Error("Seek() should resume playback")
	}
}

func TestSeekFailureKeepsState(t *testing.T) {
	clock := player.NewReadyMock()
	e, _ := newTestEngine(t, clock, 1)
	ctx := context.Background()
	e.SelectTrack(ctx, 0)
	clock.SetSeekError(errors.New("not seekable"))
	e.Seek(ctx, 9000)
	if s := e.Snapshot(); s.Position != 0 || !s.Playing {
		t.Errorf("state after failed seek = %+v", s)
	}
}

func TestVolume(t *testing.T) {
	clock := player.NewReadyMock()
	e, _ := newTestEngine(t, clock, 1)

	// No binding yet: session state changes, hardware untouched.
	e.SetVolume(0.8)
	if s := e.Snapshot(); s.Volume != 0.8 || s.Muted {
		t.Errorf("volume %v muted %v", s.Volume, s.Muted)
	}
	if clock.Volume() != 1 {
		t.Errorf("hardware volume written without binding: %v", clock.Volume())
	}

	e.SelectTrack(context.Background(), 0)
	if clock.Volume() != 0.8 {
		t.Errorf("volume not carried into the new binding: %v", clock.Volume())
	}

	e.SetVolume(1.7)
	if s := e.Snapshot(); s.Volume != 1 {
		t.Errorf("volume not clamped: %v", s.Volume)
	}
	e.SetVolume(-1)
	if s := e.Snapshot(); s.Volume != 0 || !s.Muted || !clock.Muted() {
		t.Errorf("zero volume should mute: %+v", s)
	}

	e.ToggleMute()
	if s := e.Snapshot(); s.Muted || s.Volume != 1 || clock.Volume() != 1 {
		t.Errorf("unmute should restore last positive volume: %v %v", s.Volume, s.Muted)
	}

	e.SetVolume(0.3)
	e.ToggleMute()
	if s := e.Snapshot(); !s.Muted || s.Volume != 0.3 {
		t.Errorf("mute: %v %v", s.Volume, s.Muted)
	}
	e.ToggleMute()
	if s := e.Snapshot(); s.Muted || s.Volume != 0.3 {
		t.Errorf("unmute: %v %v", s.Volume, s.Muted)
	}
}

func TestVolumeHardwareErrorKeepsSessionValue(t *testing.T) {
	clock := player.NewReadyMock()
	e, _ := newTestEngine(t, clock, 1)
	e.SelectTrack(context.Background(), 0)

	clock.SetVolumeError(errors.New("unsupported"))
	e.SetVolume(0.2)
	if s := e.Snapshot(); s.Volume != 0.2 {
		t.Errorf("volume = %v, want 0.2", s.Volume)
	}
}

func TestLyrics(t *testing.T) {
	clock := player.NewReadyMock()
	e, lib := newTestEngine(t, clock, 3)
	ctx := context.Background()
	tracks := e.Playlist().Tracks()

	e.SelectTrack(ctx, 0)
	waitFor(t, "lyrics loaded", func() bool {
		s := e.Snapshot()
		return !s.LyricsLoading && s.Lyrics == lib.lyrics[tracks[0].LyricURL]
	})
	// The next track's lyrics are warmed in the background.
	waitFor(t, "preload", func() bool {
		_, ok := e.lyrics.Get(tracks[1].LyricURL)
		return ok
	})

	lib.mu.Lock()
	delete(lib.lyrics, tracks[2].LyricURL)
	lib.mu.Unlock()
	e.SelectTrack(ctx, 2)
	waitFor(t, "unavailable placeholder", func() bool {
		return e.Snapshot().Lyrics == LyricsUnavailableText
	})

	e.Playlist().SetCollection("bare", "Bare", []domain.Track{{URL: "http://music/bare.mp3"}})
	e.SelectTrack(ctx, 0)
	if got := e.Snapshot().Lyrics; got != NoLyricsText {
		t.Errorf("lyrics without locator = %q", got)
	}
}

func TestRemoveCurrentSelectsReplacementPaused(t *testing.T) {
	clock := player.NewReadyMock()
	e, _ := newTestEngine(t, clock, 3)
	ctx := context.Background()
	tracks := e.Playlist().Tracks()
	e.SelectTrack(ctx, 2)

	if err := e.RemoveAt(2); err != nil {
		t.Fatal(err)
	}
	s := e.Snapshot()
	if s.Track == nil || s.Track.URL != tracks[1].URL {
		t.Fatalf("replacement = %v, want %s", s.Track, tracks[1].URL)
	}
	if s.Playing || s.Status != domain.StatusPaused {
		t.Errorf("replacement should not auto-play: %v", s.Status)
	}
	if clock.URL() != "" {
		t.Errorf("old binding kept: %q", clock.URL())
	}

	// Resuming loads the replacement.
	if err := e.TogglePlay(ctx); err != nil {
		t.Fatal(err)
	}
	if clock.URL() != tracks[1].URL || !e.Snapshot().Playing {
		t.Error("TogglePlay() did not load the replacement")
	}

	if err := e.RemoveAt(5); !errors.Is(err, ErrInvalidIndex) {
		t.Errorf("RemoveAt(5) = %v", err)
	}
}

func TestRemoveLastTrackResets(t *testing.T) {
	clock := player.NewReadyMock()
	e, _ := newTestEngine(t, clock, 1)
	e.SelectTrack(context.Background(), 0)

	if err := e.RemoveAt(0); err != nil {
		t.Fatal(err)
	}
	s := e.Snapshot()
	if s.Track != nil || s.Status != domain.StatusIdle || s.Playing {
		t.Errorf("state after emptying = %+v", s)
	}
}

func TestResetDetachesListeners(t *testing.T) {
	clock := player.NewReadyMock()
	e, _ := newTestEngine(t, clock, 2)
	ctx := context.Background()
	base := clock.ListenerCount()

	for i := 0; i < 5; i++ {
		e.SelectTrack(ctx, i%2)
	}
	if got := clock.ListenerCount(); got != base+1 {
		t.Errorf("listeners after repeated loads = %d, want %d", got, base+1)
	}
	e.Reset()
	if got := clock.ListenerCount(); got != base {
		t.Errorf("listeners after Reset = %d, want %d", got, base)
	}

	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if clock.ListenerCount() != 0 || !clock.Closed() {
		t.Errorf("Close() left %d listeners, closed=%v", clock.ListenerCount(), clock.Closed())
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestLoadCollectionFailureInstallsEmpty(t *testing.T) {
	clock := player.NewReadyMock()
	e, lib := newTestEngine(t, clock, 3)
	lib.searchErr = errors.New("upstream down")

	n, err := e.LoadCollection(context.Background(), "search", "Search", library.SearchQuery{Query: "x"})
	if err == nil || n != 0 {
		t.Errorf("LoadCollection() = %d, %v", n, err)
	}
	if e.Playlist().ActiveID() != "search" || e.Playlist().Len() != 0 {
		t.Error("failed search should install an empty collection")
	}
}

func TestActivateCollectionKeepsCurrentTrack(t *testing.T) {
	clock := player.NewReadyMock()
	e, lib := newTestEngine(t, clock, 3)
	if err := e.SelectTrack(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	lib.mu.Lock()
	lib.tracks = testTracks(5)[3:]
	lib.mu.Unlock()
	if _, err := e.LoadCollection(context.Background(), "other", "Other", library.SearchQuery{}); err != nil {
		t.Fatal(err)
	}
	s := e.Snapshot()
	if s.CollectionID != "other" || s.Index != -1 || !s.Playing {
		t.Errorf("after switching: collection %q index %d playing %v", s.CollectionID, s.Index, s.Playing)
	}

	if err := e.ActivateCollection("main"); err != nil {
		t.Fatal(err)
	}
	s = e.Snapshot()
	if s.CollectionID != "main" || s.Index != 1 || s.TrackCount != 3 {
		t.Errorf("after restoring: collection %q index %d count %d", s.CollectionID, s.Index, s.TrackCount)
	}

	if err := e.ActivateCollection("missing"); err == nil {
		t.Error("expected error for unknown collection")
	}
}

func TestSubscribe(t *testing.T) {
	clock := player.NewReadyMock()
	e, _ := newTestEngine(t, clock, 1)
	ch := e.Subscribe()

	e.SetVolume(0.25)
	select {
	case s := <-ch:
		if s.Volume != 0.25 {
			t.Errorf("snapshot volume = %v", s.Volume)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}

	e.Unsubscribe(ch)
	// Unsubscribe closes the channel; this drains and terminates.
	for range ch {
	}
}

type recordingSink struct {
	mediasession.NoopSink
	mu       sync.Mutex
	handlers mediasession.Handlers
	states   []mediasession.PlaybackState
	titles   []string
}

func (s *recordingSink) SetHandlers(h mediasession.Handlers) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = h
	return nil
}

func (s *recordingSink) SetPlaybackState(st mediasession.PlaybackState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, st)
	return nil
}

func (s *recordingSink) SetMetadata(m mediasession.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles = append(s.titles, m.Title)
	return nil
}

func (s *recordingSink) lastState() mediasession.PlaybackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.states) == 0 {
		return mediasession.StateNone
	}
	return s.states[len(s.states)-1]
}

func TestMediaSessionRouting(t *testing.T) {
	clock := player.NewReadyMock()
	sink := &recordingSink{}
	lib := &fakeLibrary{tracks: testTracks(2)}
	e := New(clock, lib, Options{Volume: 1, Session: mediasession.NewBridge(sink)})
	defer e.Close()
	e.LoadCollection(context.Background(), "main", "Main", library.SearchQuery{})

	// Handlers run in the background; wg.Wait lets each settle.
	sink.handlers.OnPlay()
	e.wg.Wait()
	if s := e.Snapshot(); !s.Playing || s.Index != 0 {
		t.Fatalf("OS play: %+v", s)
	}
	if sink.lastState() != mediasession.StatePlaying {
		t.Errorf("session state = %v", sink.lastState())
	}

	sink.handlers.OnNext()
	e.wg.Wait()
	if s := e.Snapshot(); s.Index != 1 || !s.Playing {
		t.Errorf("OS next: index %d playing %v", s.Index, s.Playing)
	}

	sink.handlers.OnPause()
	if e.Snapshot().Playing || sink.lastState() != mediasession.StatePaused {
		t.Error("OS pause not applied")
	}

	sink.handlers.OnSeek(mediasession.SeekRequest{Seconds: 3})
	e.wg.Wait()
	if pos, _ := clock.Position(); pos != 3 {
		t.Errorf("OS seek: position %v, want 3", pos)
	}

	e.Reset()
	if sink.lastState() != mediasession.StateNone {
		t.Errorf("state after Reset = %v, want none", sink.lastState())
	}
}
