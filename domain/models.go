package domain

import (
	"fmt"
	"strings"
)

// Track is a playable audio item. Two tracks are the same track iff their
// URLs are equal.
type Track struct {
	URL      string // playable resource locator
	LyricURL string // optional lyric resource locator
	Title    string
	Artist   string
	Album    string
	CoverURL string
	Duration int // in seconds, as reported by the catalog (0 if unknown)
}

// SameAs reports whether t and other refer to the same resource.
func (t Track) SameAs(other Track) bool {
	return t.URL == other.URL
}

// LyricLine is one entry of a lyric timeline.
type LyricLine struct {
	Time int64 // milliseconds from track start
	Text string
}

// BufferedRange is a downloaded span of the current resource, in seconds.
type BufferedRange struct {
	Start float64
	End   float64
}

// PlayMode selects how next/previous indices are computed.
type PlayMode int

const (
	Sequential PlayMode = iota
	RepeatOne
	Shuffle
)

var playModeNames = map[PlayMode]string{
	Sequential: "sequential",
	RepeatOne:  "repeat-one",
	Shuffle:    "shuffle",
}

func (m PlayMode) String() string {
	if name, ok := playModeNames[m]; ok {
		return name
	}
	return "unknown"
}

// Next cycles sequential -> repeat-one -> shuffle -> sequential.
func (m PlayMode) Next() PlayMode {
	return (m + 1) % 3
}

// ParsePlayMode parses the names used in configuration files.
func ParsePlayMode(s string) (PlayMode, error) {
	for mode, name := range playModeNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return mode, nil
		}
	}
	return Sequential, fmt.Errorf("unknown play mode %q", s)
}

// Status is the orchestrator's transport state.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusPlaying
	StatusPaused
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return "unknown"
	}
}
