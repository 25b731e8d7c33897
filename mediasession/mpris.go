package mediasession

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
)

const (
	mprisPath        = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	mprisRootIface   = "org.mpris.MediaPlayer2"
	mprisPlayerIface = "org.mpris.MediaPlayer2.Player"
	mprisNamePrefix  = "org.mpris.MediaPlayer2."
	noTrackID        = dbus.ObjectPath("/org/mpris/MediaPlayer2/TrackList/NoTrack")
)

// MPRISSink publishes the session on the D-Bus session bus as an
// org.mpris.MediaPlayer2 player.
type MPRISSink struct {
	conn  *dbus.Conn
	props *prop.Properties
	name  string

	mu       sync.Mutex
	handlers Handlers
	state    PlaybackState
	position PositionState
	trackID  dbus.ObjectPath
}

// NewMPRISSink connects to the session bus and claims
// org.mpris.MediaPlayer2.<identity>.
func NewMPRISSink(identity string) (*MPRISSink, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}

	s := &MPRISSink{conn: conn, name: mprisNamePrefix + identity, trackID: noTrackID}
	if err := s.export(identity); err != nil {
		conn.Close()
		return nil, err
	}

	reply, err := conn.RequestName(s.name, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("request name %s: %w", s.name, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, fmt.Errorf("name %s already taken", s.name)
	}

	log.Info().Str("name", s.name).Msg("MPRIS media session registered")
	return s, nil
}

func (s *MPRISSink) export(identity string) error {
	root := &mprisRoot{}
	player := &mprisPlayer{sink: s}

	if err := s.conn.Export(root, mprisPath, mprisRootIface); err != nil {
		return fmt.Errorf("export %s: %w", mprisRootIface, err)
	}
	if err := s.conn.Export(player, mprisPath, mprisPlayerIface); err != nil {
		return fmt.Errorf("export %s: %w", mprisPlayerIface, err)
	}

	props, err := prop.Export(s.conn, mprisPath, prop.Map{
		mprisRootIface: {
			"CanQuit":             {Value: false, Emit: prop.EmitConst},
			"CanRaise":            {Value: false, Emit: prop.EmitConst},
			"HasTrackList":        {Value: false, Emit: prop.EmitConst},
			"Identity":            {Value: identity, Emit: prop.EmitConst},
			"SupportedUriSchemes": {Value: []string{"http", "https", "file"}, Emit: prop.EmitConst},
			"SupportedMimeTypes":  {Value: []string{"audio/mpeg", "audio/ogg", "audio/wav"}, Emit: prop.EmitConst},
		},
		mprisPlayerIface: {
			"PlaybackStatus": {Value: "Stopped", Emit: prop.EmitTrue},
			"LoopStatus":     {Value: "None", Emit: prop.EmitTrue},
			"Rate":           {Value: 1.0, Emit: prop.EmitTrue},
			"Shuffle":        {Value: false, Emit: prop.EmitTrue},
			"Metadata":       {Value: map[string]dbus.Variant{"mpris:trackid": dbus.MakeVariant(noTrackID)}, Emit: prop.EmitTrue},
			"Volume":         {Value: 1.0, Emit: prop.EmitTrue},
			"Position":       {Value: int64(0), Emit: prop.EmitFalse},
			"MinimumRate":    {Value: 1.0, Emit: prop.EmitConst},
			"MaximumRate":    {Value: 1.0, Emit: prop.EmitConst},
			"CanGoNext":      {Value: true, Emit: prop.EmitConst},
			"CanGoPrevious":  {Value: true, Emit: prop.EmitConst},
			"CanPlay":        {Value: true, Emit: prop.EmitConst},
			"CanPause":       {Value: true, Emit: prop.EmitConst},
			"CanSeek":        {Value: true, Emit: prop.EmitConst},
			"CanControl":     {Value: true, Emit: prop.EmitConst},
		},
	})
	if err != nil {
		return fmt.Errorf("export properties: %w", err)
	}
	s.props = props

	node := &introspect.Node{
		Name: string(mprisPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name:       mprisRootIface,
				Methods:    introspect.Methods(root),
				Properties: props.Introspection(mprisRootIface),
			},
			{
				Name:       mprisPlayerIface,
				Methods:    introspect.Methods(player),
				Properties: props.Introspection(mprisPlayerIface),
				Signals: []introspect.Signal{{
					Name: "Seeked",
					Args: []introspect.Arg{{Name: "Position", Type: "x"}},
				}},
			},
		},
	}
	if err := s.conn.Export(introspect.NewIntrospectable(node), mprisPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export introspection: %w", err)
	}
	return nil
}

// SetMetadata implements Sink.
func (s *MPRISSink) SetMetadata(m Metadata) error {
	id := trackObjectPath(m.URL)
	s.mu.Lock()
	s.trackID = id
	s.mu.Unlock()

	meta := map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(id),
		"xesam:title":   dbus.MakeVariant(m.Title),
		"xesam:artist":  dbus.MakeVariant([]string{m.Artist}),
		"xesam:url":     dbus.MakeVariant(m.URL),
	}
	if m.Album != "" {
		meta["xesam:album"] = dbus.MakeVariant(m.Album)
	}
	if m.ArtworkURL != "" {
		meta["mpris:artUrl"] = dbus.MakeVariant(m.ArtworkURL)
	}
	if m.Duration > 0 {
		meta["mpris:length"] = dbus.MakeVariant(microseconds(m.Duration))
	}
	return s.set(mprisPlayerIface, "Metadata", meta)
}

// SetPlaybackState implements Sink.
func (s *MPRISSink) SetPlaybackState(state PlaybackState) error {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	status := "Stopped"
	switch state {
	case StatePlaying:
		status = "Playing"
	case StatePaused:
		status = "Paused"
	}
	return s.set(mprisPlayerIface, "PlaybackStatus", status)
}

// SetPositionState implements Sink. Position is not signalled on change,
// clients poll it.
func (s *MPRISSink) SetPositionState(ps PositionState) error {
	s.mu.Lock()
	s.position = ps
	s.mu.Unlock()
	return s.set(mprisPlayerIface, "Position", microseconds(ps.Position))
}

// SetHandlers implements Sink.
func (s *MPRISSink) SetHandlers(h Handlers) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = h
	return nil
}

// Close implements Sink.
func (s *MPRISSink) Close() error {
	_, relErr := s.conn.ReleaseName(s.name)
	return multierr.Combine(relErr, s.conn.Close())
}

func (s *MPRISSink) set(iface, name string, v any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("set %s.%s: %v", iface, name, r)
		}
	}()
	s.props.SetMust(iface, name, v)
	return nil
}

func (s *MPRISSink) snapshot() (Handlers, PlaybackState, PositionState, dbus.ObjectPath) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handlers, s.state, s.position, s.trackID
}

func (s *MPRISSink) seekTo(seconds float64) {
	h, _, ps, _ := s.snapshot()
	if seconds < 0 {
		seconds = 0
	}
	if ps.Duration > 0 && seconds > ps.Duration {
		// MPRIS: seeking past the end behaves like Next.
		if h.OnNext != nil {
			h.OnNext()
		}
		return
	}
	if h.OnSeek != nil {
		h.OnSeek(SeekRequest{Seconds: seconds})
	}
	if err := s.conn.Emit(mprisPath, mprisPlayerIface+".Seeked", microseconds(seconds)); err != nil {
		log.Debug().Err(err).Msg("emit Seeked")
	}
}

type mprisRoot struct{}

func (mprisRoot) Raise() *dbus.Error { return nil }
func (mprisRoot) Quit() *dbus.Error  { return nil }

type mprisPlayer struct {
	sink *MPRISSink
}

func (p *mprisPlayer) Play() *dbus.Error {
	if h, _, _, _ := p.sink.snapshot(); h.OnPlay != nil {
		h.OnPlay()
	}
	return nil
}

func (p *mprisPlayer) Pause() *dbus.Error {
	if h, _, _, _ := p.sink.snapshot(); h.OnPause != nil {
		h.OnPause()
	}
	return nil
}

func (p *mprisPlayer) Stop() *dbus.Error {
	return p.Pause()
}

func (p *mprisPlayer) PlayPause() *dbus.Error {
	if _, state, _, _ := p.sink.snapshot(); state == StatePlaying {
		return p.Pause()
	}
	return p.Play()
}

func (p *mprisPlayer) Next() *dbus.Error {
	if h, _, _, _ := p.sink.snapshot(); h.OnNext != nil {
		h.OnNext()
	}
	return nil
}

func (p *mprisPlayer) Previous() *dbus.Error {
	if h, _, _, _ := p.sink.snapshot(); h.OnPrevious != nil {
		h.OnPrevious()
	}
	return nil
}

// Seek moves relative to the current position; offset is in microseconds.
func (p *mprisPlayer) Seek(offset int64) *dbus.Error {
	_, _, ps, _ := p.sink.snapshot()
	p.sink.seekTo(ps.Position + float64(offset)/1e6)
	return nil
}

// SetPosition is ignored unless trackID names the current track.
func (p *mprisPlayer) SetPosition(trackID dbus.ObjectPath, position int64) *dbus.Error {
	if _, _, _, current := p.sink.snapshot(); trackID != current {
		return nil
	}
	p.sink.seekTo(float64(position) / 1e6)
	return nil
}

func (p *mprisPlayer) OpenUri(string) *dbus.Error {
	return dbus.MakeFailedError(errors.New("OpenUri is not supported"))
}

func microseconds(seconds float64) int64 {
	return int64(seconds * 1e6)
}

// trackObjectPath derives a stable D-Bus object path from a locator.
func trackObjectPath(url string) dbus.ObjectPath {
	if url == "" {
		return noTrackID
	}
	h := fnv.New64a()
	h.Write([]byte(url))
	return dbus.ObjectPath(fmt.Sprintf("/org/naviplay/track/%x", h.Sum64()))
}
