// Package lyrics parses timed lyrics, caches them per lyric resource and
// keeps the current line in step with a playback clock.
package lyrics

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/yhkl-dev/naviplay/domain"
)

var timestampRe = regexp.MustCompile(`\[(\d{1,3}):(\d{2})(?:\.(\d{1,3}))?\]`)

// Timeline is a time-ascending sequence of lyric lines.
type Timeline []domain.LyricLine

// Parse reads LRC text. A line stamped with several timestamps yields one
// entry per timestamp, all sharing the line's text. Lines without a
// timestamp are ignored.
func Parse(raw string) Timeline {
	var out Timeline
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		stamps := timestampRe.FindAllStringSubmatch(line, -1)
		if len(stamps) == 0 {
			continue
		}
		text := strings.TrimSpace(timestampRe.ReplaceAllString(line, ""))
		for _, m := range stamps {
			out = append(out, domain.LyricLine{Time: stampMillis(m), Text: text})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// stampMillis converts a timestamp match. The fraction is right-padded to
// three digits, so ".5" is 500ms.
func stampMillis(m []string) int64 {
	minutes, _ := strconv.ParseInt(m[1], 10, 64)
	seconds, _ := strconv.ParseInt(m[2], 10, 64)
	var ms int64
	if frac := m[3]; frac != "" {
		ms, _ = strconv.ParseInt(frac+strings.Repeat("0", 3-len(frac)), 10, 64)
	}
	return minutes*60*1000 + seconds*1000 + ms
}

// FindLine returns the index of the last entry whose time is at or before
// ms. It returns 0 for an empty timeline or a time before the first entry.
func (tl Timeline) FindLine(ms int64) int {
	n := len(tl)
	if n == 0 || ms < tl[0].Time {
		return 0
	}
	if ms >= tl[n-1].Time {
		return n - 1
	}
	// First index with Time > ms, minus one.
	return sort.Search(n, func(i int) bool { return tl[i].Time > ms }) - 1
}

// Text returns the text at index i, or "" when i is out of range.
func (tl Timeline) Text(i int) string {
	if i < 0 || i >= len(tl) {
		return ""
	}
	return tl[i].Text
}
