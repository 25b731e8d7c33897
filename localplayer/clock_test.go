package localplayer

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/yhkl-dev/naviplay/player"
)

func TestDecodeFileUnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.xyz")
	if err := os.WriteFile(path, []byte("not audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := decodeFile(path); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestDecodeFileMissing(t *testing.T) {
	if _, _, err := decodeFile(filepath.Join(t.TempDir(), "missing.mp3")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestBindFailureIsHardwareError(t *testing.T) {
	c := NewClock()
	err := c.Bind("file://" + filepath.Join(t.TempDir(), "missing.wav"))
	var hwErr *player.HardwareError
	if !errors.As(err, &hwErr) {
		t.Fatalf("Bind error = %v, want HardwareError", err)
	}
	if hwErr.Op != "bind" {
		t.Errorf("Op = %q, want bind", hwErr.Op)
	}
}

func TestUnboundClock(t *testing.T) {
	c := NewClock()
	if c.CanPlay() {
		t.Error("unbound clock should not be playable")
	}
	if err := c.Play(); !errors.Is(err, player.ErrNotBound) {
		t.Errorf("Play() = %v, want ErrNotBound", err)
	}
	if err := c.Pause(); err != nil {
		t.Errorf("Pause() on unbound clock = %v", err)
	}
	if _, err := c.Position(); !errors.Is(err, player.ErrNotBound) {
		t.Errorf("Position() = %v, want ErrNotBound", err)
	}
	ranges, err := c.Buffered()
	if err != nil || len(ranges) != 0 {
		t.Errorf("Buffered() = %v, %v", ranges, err)
	}
	if err := c.SetVolume(0.5); err != nil {
		t.Errorf("SetVolume() = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}
