package ui

import (
	"fmt"
	"math"
	"strings"

	"github.com/rivo/tview"
	"github.com/yhkl-dev/naviplay/domain"
	"github.com/yhkl-dev/naviplay/lyrics"
	"github.com/yhkl-dev/naviplay/playback"
)

// FormatDuration converts seconds to MM:SS format
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	minutes := seconds / 60
	seconds = seconds % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// FormatSeconds formats a clock reading, treating NaN and negatives as zero.
func FormatSeconds(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return FormatDuration(0)
	}
	return FormatDuration(int(seconds))
}

// FormatVolume renders a 0..1 volume as a percentage.
func FormatVolume(volume float64, muted bool) string {
	if muted {
		return "muted"
	}
	return fmt.Sprintf("%.0f%%", volume*100)
}

// CreateProgressBar draws played and buffered fractions of the track.
func CreateProgressBar(played, buffered float64, width int) string {
	played = clampFraction(played)
	buffered = math.Max(clampFraction(buffered), played)

	playedWidth := int(played * float64(width))
	bufferedWidth := int(buffered * float64(width))

	var b strings.Builder
	for i := 0; i < width; i++ {
		switch {
		case i < playedWidth:
			b.WriteString("[lightgreen]▓")
		case i < bufferedWidth:
			b.WriteString("[gray]▒")
		default:
			b.WriteString("[darkgray]░")
		}
	}
	fmt.Fprintf(&b, "[white] %.1f%%", played*100)
	return b.String()
}

// CreateProgressText creates the progress time display
func CreateProgressText(snap playback.Snapshot) string {
	return fmt.Sprintf(`
[darkgray]%s/%s [darkgray][v-] [white]%s [darkgray][v+] [darkgray]%s [gray]%s`,
		FormatSeconds(snap.Position), FormatSeconds(snap.Duration),
		FormatVolume(snap.Volume, snap.Muted), tview.Escape("["+snap.Mode.String()+"]"), tview.Escape(snap.CurrentLyric()))
}

// FormatStatus returns the coloured title line for the current track.
func FormatStatus(snap playback.Snapshot) string {
	if snap.Track == nil {
		return "[darkgray]Nothing selected"
	}
	title := tview.Escape(snap.Track.Title)
	switch snap.Status {
	case domain.StatusLoading:
		return fmt.Sprintf("[yellow]%s [darkgray](Loading...)", title)
	case domain.StatusPlaying:
		return fmt.Sprintf("[lightgreen]%s", title)
	case domain.StatusPaused:
		return fmt.Sprintf("[yellow]%s [darkgray](PAUSED)", title)
	default:
		return fmt.Sprintf("[white]%s", title)
	}
}

// FormatSongInfo creates the now-playing panel for a snapshot
func FormatSongInfo(snap playback.Snapshot, progressWidth int) string {
	track := snap.Track
	if track == nil {
		return CreateWelcomeMessage(snap.TrackCount)
	}

	played := 0.0
	if snap.Duration > 0 {
		played = snap.Position / snap.Duration
	}

	position := "-"
	if snap.Index >= 0 {
		position = fmt.Sprintf("%d/%d", snap.Index+1, snap.TrackCount)
	}

	return fmt.Sprintf(`
[white]Current %s:
%s

[darkgray]duration %s  buffered %.0f%%

[gray]Artist: [white]%s
[gray]Album:  [white]%s
%s

%s`,
		position, FormatStatus(snap),
		FormatSeconds(snap.Duration), clampFraction(snap.Buffered)*100,
		tview.Escape(track.Artist), tview.Escape(track.Album),
		CreateProgressBar(played, snap.Buffered, progressWidth),
		FormatLyrics(snap, 2))
}

// FormatLyrics shows the current lyric line with up to radius lines of
// context on either side. Without a timeline the raw lyric text (usually a
// placeholder) is shown instead.
func FormatLyrics(snap playback.Snapshot, radius int) string {
	if snap.LyricsLoading {
		return "[darkgray]Loading lyrics..."
	}
	if len(snap.Timeline) == 0 {
		if snap.Lyrics == "" {
			return ""
		}
		return "[darkgray]" + tview.Escape(snap.Lyrics)
	}
	return formatTimeline(snap.Timeline, snap.LyricLine, radius)
}

func formatTimeline(tl lyrics.Timeline, line, radius int) string {
	start := max(0, line-radius)
	end := min(len(tl), line+radius+1)

	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		text := tview.Escape(tl[i].Text)
		if i == line {
			lines = append(lines, "[lightgreen::b]"+text+"[-:-:-]")
		} else {
			lines = append(lines, "[darkgray]"+text)
		}
	}
	return strings.Join(lines, "\n")
}

// CreateWelcomeMessage creates the welcome screen message
func CreateWelcomeMessage(totalSongs int) string {
	return fmt.Sprintf(`
[lightgreen] Welcome to naviplay
[darkgray]Ready to Play Music!

[gray]  SPACE (play/pause) | N/P (next/prev)
[gray]  ←/→ (seek) | +/- (volume) | M (mute)
[gray]  S (play mode) | J/K (page) | gg/G (nav)
[gray]  / (search) | ? (help) | C (collections)
[gray]  ESC to exit

[darkgray]// %d songs loaded`, totalSongs)
}

func clampFraction(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
