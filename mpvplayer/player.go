package mpvplayer

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/wildeyedskies/go-mpv/mpv"
)

// Reply IDs used when observing properties, so the event pump can tell
// which property changed without decoding the event payload.
const (
	ObserveCacheTime uint64 = iota + 1
	ObserveDuration
	ObserveEOF
)

// CacheRange is one seekable span of the demuxer cache, in seconds.
type CacheRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type cacheState struct {
	SeekableRanges []CacheRange `json:"seekable-ranges"`
}

// Mpvplayer is a thin command/property layer over a libmpv handle.
type Mpvplayer struct {
	*mpv.Mpv
}

// Load replaces the current file with url. The file starts paused when
// the pause property is set beforehand.
func (m *Mpvplayer) Load(url string) error {
	return m.Command([]string{"loadfile", url, "replace"})
}

func (m *Mpvplayer) Stop() error {
	return m.Command([]string{"stop"})
}

func (m *Mpvplayer) SetPaused(paused bool) error {
	return m.Command([]string{"set", "pause", yesNo(paused)})
}

func (m *Mpvplayer) IsPaused() (bool, error) {
	pause, err := m.GetProperty("pause", mpv.FORMAT_FLAG)
	if err != nil {
		return false, err
	}
	return pause.(bool), nil
}

func (m *Mpvplayer) IsSongLoaded() (bool, error) {
	idle, err := m.GetProperty("idle-active", mpv.FORMAT_FLAG)
	if err != nil {
		return false, err
	}
	return !idle.(bool), nil
}

// Seek jumps to an absolute position in seconds.
func (m *Mpvplayer) Seek(seconds float64) error {
	return m.Command([]string{"seek", strconv.FormatFloat(seconds, 'f', 3, 64), "absolute"})
}

// SetVolume sets the mpv volume in percent (0-100).
func (m *Mpvplayer) SetVolume(percent float64) error {
	return m.Command([]string{"set", "volume", strconv.FormatFloat(percent, 'f', 1, 64)})
}

func (m *Mpvplayer) SetMute(muted bool) error {
	return m.Command([]string{"set", "mute", yesNo(muted)})
}

func (m *Mpvplayer) GetProgress() (float64, error) {
	return m.getDouble("time-pos")
}

func (m *Mpvplayer) GetDuration() (float64, error) {
	return m.getDouble("duration")
}

func (m *Mpvplayer) EOFReached() (bool, error) {
	eof, err := m.GetProperty("eof-reached", mpv.FORMAT_FLAG)
	if err != nil {
		return false, err
	}
	return eof.(bool), nil
}

// Path returns the locator of the file mpv has loaded, as passed to loadfile.
func (m *Mpvplayer) Path() (string, error) {
	raw, err := m.GetProperty("path", mpv.FORMAT_STRING)
	if err != nil {
		return "", err
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("unexpected path type %T", raw)
	}
	return s, nil
}

// CacheRanges returns the seekable ranges of the demuxer cache.
func (m *Mpvplayer) CacheRanges() ([]CacheRange, error) {
	raw, err := m.GetProperty("demuxer-cache-state", mpv.FORMAT_STRING)
	if err != nil {
		return nil, err
	}
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected demuxer-cache-state type %T", raw)
	}
	return ParseCacheState(s)
}

// ParseCacheState decodes the JSON form of mpv's demuxer-cache-state node.
func ParseCacheState(s string) ([]CacheRange, error) {
	if s == "" {
		return nil, nil
	}
	var state cacheState
	if err := json.Unmarshal([]byte(s), &state); err != nil {
		return nil, fmt.Errorf("failed to decode cache state: %w", err)
	}
	return state.SeekableRanges, nil
}

func (m *Mpvplayer) getDouble(name string) (float64, error) {
	v, err := m.GetProperty(name, mpv.FORMAT_DOUBLE)
	if err != nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("unexpected %s type %T", name, v)
	}
	return f, nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// CreateMPVInstance creates an audio-only libmpv handle that keeps the last
// file open at EOF so the end of a track is observable as a property.
func CreateMPVInstance() (*mpv.Mpv, error) {
	mpvInstance := mpv.Create()

	mpvInstance.SetOptionString("audio-display", "no")
	mpvInstance.SetOptionString("video", "no")
	mpvInstance.SetOptionString("keep-open", "yes")
	mpvInstance.SetOptionString("idle", "yes")
	mpvInstance.SetOptionString("cache", "yes")
	mpvInstance.ObserveProperty(ObserveCacheTime, "demuxer-cache-time", mpv.FORMAT_DOUBLE)
	mpvInstance.ObserveProperty(ObserveDuration, "duration", mpv.FORMAT_DOUBLE)
	mpvInstance.ObserveProperty(ObserveEOF, "eof-reached", mpv.FORMAT_FLAG)

	err := mpvInstance.Initialize()
	if err != nil {
		mpvInstance.TerminateDestroy()
		return nil, err
	}
	return mpvInstance, nil
}
