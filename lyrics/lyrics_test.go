package lyrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yhkl-dev/naviplay/domain"
)

func TestParse(t *testing.T) {
	got := Parse("[00:01.50]Hello\n[00:02.00][00:05.00]World")
	want := Timeline{
		{Time: 1500, Text: "Hello"},
		{Time: 2000, Text: "World"},
		{Time: 5000, Text: "World"},
	}
	if len(got) != len(want) {
		t.Fatalf("Parse() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestParseFractions(t *testing.T) {
	tests := []struct {
		line string
		want int64
	}{
		{"[00:00.5]a", 500},
		{"[00:00.05]a", 50},
		{"[00:00.123]a", 123},
		{"[01:02]a", 62000},
		{"[10:00.00]a", 600000},
	}
	for _, tt := range tests {
		got := Parse(tt.line)
		if len(got) != 1 || got[0].Time != tt.want {
			t.Errorf("Parse(%q) = %v, want time %d", tt.line, got, tt.want)
		}
	}
}

func TestParseSortsAndSkipsUnstamped(t *testing.T) {
	raw := "[ti:Song]\r\nplain text\r\n[00:09.00]late\r\n[00:03.00]early\r\n"
	got := Parse(raw)
	if len(got) != 2 {
		t.Fatalf("Parse() = %v, want 2 entries", got)
	}
	if got[0].Text != "early" || got[1].Text != "late" {
		t.Errorf("Parse() order = %v", got)
	}
}

func TestFindLine(t *testing.T) {
	tl := Timeline{{Time: 1000}, {Time: 2000}, {Time: 2000}, {Time: 5000}}
	tests := []struct {
		ms   int64
		want int
	}{
		{0, 0},
		{999, 0},
		{1000, 0},
		{1999, 0},
		{2000, 2},
		{4999, 2},
		{5000, 3},
		{99999, 3},
	}
	for _, tt := range tests {
		if got := tl.FindLine(tt.ms); got != tt.want {
			t.Errorf("FindLine(%d) = %d, want %d", tt.ms, got, tt.want)
		}
		if tl.FindLine(tt.ms) != tl.FindLine(tt.ms) {
			t.Errorf("FindLine(%d) not stable", tt.ms)
		}
	}
	if got := Timeline(nil).FindLine(1234); got != 0 {
		t.Errorf("empty FindLine = %d, want 0", got)
	}
}

// Brute-force check: the result is the greatest index with Time <= ms,
// clamped to the timeline bounds.
func TestFindLineMatchesLinearScan(t *testing.T) {
	tl := Parse("[00:01.00]a\n[00:01.00]b\n[00:02.50]c\n[00:04.00]d\n[00:04.10]e\n[01:00.00]f")
	for ms := int64(-100); ms <= 61000; ms += 50 {
		want := 0
		for i, l := range tl {
			if l.Time <= ms {
				want = i
			}
		}
		if got := tl.FindLine(ms); got != want {
			t.Fatalf("FindLine(%d) = %d, want %d", ms, got, want)
		}
	}
}

type fakeFetcher struct {
	mu    sync.Mutex
	texts map[string]string
	calls map[string]int

	// when set, each fetch signals started and then blocks on release
	started chan string
	release chan struct{}
}

func newFakeFetcher(texts map[string]string) *fakeFetcher {
	return &fakeFetcher{texts: texts, calls: make(map[string]int)}
}

func (f *fakeFetcher) FetchLyrics(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	f.calls[url]++
	started, release := f.started, f.release
	f.mu.Unlock()
	if started != nil {
		started <- url
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	text, ok := f.texts[url]
	if !ok {
		return "", errors.New("not found")
	}
	return text, nil
}

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func TestCacheLoad(t *testing.T) {
	f := newFakeFetcher(map[string]string{"a.lrc": "[00:01.00]one"})
	c := NewCache(f)
	ctx := context.Background()

	e, err := c.Load(ctx, "a.lrc")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if e.Raw != "[00:01.00]one" || len(e.Timeline) != 1 {
		t.Errorf("Load() = %+v", e)
	}
	if _, err := c.Load(ctx, "a.lrc"); err != nil {
		t.Fatal(err)
	}
	if n := f.count("a.lrc"); n != 1 {
		t.Errorf("fetch count = %d, want 1", n)
	}

	if _, err := c.Load(ctx, "missing.lrc"); err == nil {
		t.Error("expected error for missing lyrics")
	}
	if _, ok := c.Get("missing.lrc"); ok {
		t.Error("failed fetch must not be cached")
	}
}

func TestCachePreload(t *testing.T) {
	f := newFakeFetcher(map[string]string{"next.lrc": "[00:02.00]two"})
	c := NewCache(f)
	ctx := context.Background()

	c.Preload(ctx, "next.lrc")
	c.Preload(ctx, "broken.lrc")
	c.Preload(ctx, "")
	c.Wait()

	if _, ok := c.Get("next.lrc"); !ok {
		t.Error("next.lrc not preloaded")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}

	c.Preload(ctx, "next.lrc")
	c.Wait()
	if n := f.count("next.lrc"); n != 1 {
		t.Errorf("fetch count after cached preload = %d, want 1", n)
	}
}

func TestCacheLoadWaitsForPreload(t *testing.T) {
	f := newFakeFetcher(map[string]string{"next.lrc": "[00:02.00]two"})
	f.started = make(chan string, 4)
	f.release = make(chan struct{})
	c := NewCache(f)
	ctx := context.Background()

	c.Preload(ctx, "next.lrc")
	<-f.started

	type result struct {
		e   Entry
		err error
	}
	loaded := make(chan result, 1)
	go func() {
		e, err := c.Load(ctx, "next.lrc")
		loaded <- result{e, err}
	}()

	select {
	case r := <-loaded:
		t.Fatalf("Load() returned %+v before the preload finished", r)
	case <-time.After(20 * time.Millisecond):
	}

	close(f.release)
	r := <-loaded
	if r.err != nil || len(r.e.Timeline) != 1 {
		t.Fatalf("Load() = %+v, %v", r.e, r.err)
	}
	c.Wait()
	if n := f.count("next.lrc"); n != 1 {
		t.Errorf("fetch count = %d, want 1", n)
	}
}

func TestCacheLoadCancelledWhileWaiting(t *testing.T) {
	f := newFakeFetcher(map[string]string{"slow.lrc": "[00:01.00]slow"})
	f.started = make(chan string, 4)
	f.release = make(chan struct{})
	c := NewCache(f)

	c.Preload(context.Background(), "slow.lrc")
	<-f.started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Load(ctx, "slow.lrc"); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled", err)
	}
	close(f.release)
	c.Wait()
}

func newTestSyncer(pos *float64) (*Syncer, *[]int) {
	var lines []int
	s := NewSyncer(
		func() (float64, error) { return *pos, nil },
		func(line int, _ float64) { lines = append(lines, line) },
		time.Millisecond, 100*time.Millisecond,
	)
	s.SetTimeline(Timeline{{Time: 0}, {Time: 1000, Text: "one"}, {Time: 2000, Text: "two"}})
	return s, &lines
}

func TestSyncerThrottle(t *testing.T) {
	pos := 1.5
	s, lines := newTestSyncer(&pos)
	base := time.Unix(1000, 0)

	if !s.tick(base) {
		t.Fatal("first tick should recompute")
	}
	if s.tick(base.Add(50 * time.Millisecond)) {
		t.Error("tick within interval should be throttled")
	}
	pos = 2.5
	if !s.tick(base.Add(100 * time.Millisecond)) {
		t.Error("tick after interval should recompute")
	}
	if got := *lines; len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("lines = %v, want [1 2]", got)
	}
	if s.Line() != 2 {
		t.Errorf("Line() = %d, want 2", s.Line())
	}
}

func TestSyncerSeekLatch(t *testing.T) {
	pos := 1.5
	s, lines := newTestSyncer(&pos)
	s.BeginSeek()
	if s.tick(time.Unix(1000, 0)) {
		t.Error("tick must not recompute while seeking")
	}
	if len(*lines) != 0 {
		t.Errorf("onTick called while seeking: %v", *lines)
	}
	s.EndSeek()
	if !s.tick(time.Unix(1000, 0)) {
		t.Error("tick should recompute after EndSeek")
	}
}

func TestSyncerForceSync(t *testing.T) {
	pos := 0.0
	s, _ := newTestSyncer(&pos)
	s.BeginSeek()
	if got := s.ForceSync(2100); got != 2 {
		t.Errorf("ForceSync() = %d, want 2", got)
	}
	if s.Line() != 2 {
		t.Errorf("Line() = %d, want 2", s.Line())
	}
}

func TestSyncerStartStopIdempotent(t *testing.T) {
	pos := 0.0
	s, _ := newTestSyncer(&pos)
	s.Stop()
	s.Start()
	s.Start()
	if !s.Running() {
		t.Fatal("Running() = false after Start")
	}
	s.Stop()
	s.Stop()
	if s.Running() {
		t.Error("Running() = true after Stop")
	}
}

func TestSyncerStopResetsThrottle(t *testing.T) {
	pos := 1.0
	s, _ := newTestSyncer(&pos)
	base := time.Unix(1000, 0)
	s.tick(base)
	s.Stop()
	if !s.tick(base.Add(time.Millisecond)) {
		t.Error("tick after Stop should not be throttled by the previous sync")
	}
}

func TestTimelineText(t *testing.T) {
	tl := Timeline{domain.LyricLine{Time: 0, Text: "x"}}
	if tl.Text(0) != "x" || tl.Text(1) != "" || tl.Text(-1) != "" {
		t.Error("Text() bounds handling")
	}
}
