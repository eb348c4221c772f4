package audio

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"
	"time"

	"github.com/austinkregel/local-media/arrangerd/internal/analysis"
)

const testRate = 8000

func toneSamples(seconds, hz float64) []int {
	n := int(seconds * testRate)
	out := make([]int, n)
	for i := range out {
		out[i] = int(16000 * math.Sin(2*math.Pi*hz*float64(i)/testRate))
	}
	return out
}

func newTestPlayer(t *testing.T, seconds, speed float64) (*Player, string) {
	t.Helper()
	dir, err := os.MkdirTemp("", "arrangerd-player-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := writeWAV(t, dir, testRate, 1, toneSamples(seconds, 1000))
	p := NewPlayer(NewPacedOutput(testRate, 1, 100, speed), nil)
	t.Cleanup(func() { p.Close() })
	return p, path
}

func TestPlayerPlaysToEnd(t *testing.T) {
	p, path := newTestPlayer(t, 0.5, 10)

	ended := make(chan string, 1)
	p.SetOnTrackEnd(func(path string) { ended <- path })

	if err := p.Play(context.Background(), path); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if !p.IsPlaying() {
		t.Error("Expected player to be playing")
	}
	if d := p.Duration(); d != 0.5 {
		t.Errorf("Expected duration 0.5s, got %f", d)
	}

	select {
	case got := <-ended:
		if got != path {
			t.Errorf("Expected end of %s, got %s", path, got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Expected track to finish")
	}

	if s := p.Status(); s.State != StateStopped {
		t.Errorf("Expected stopped state, got %s", s.State)
	}
	if p.IsReady() {
		t.Error("Expected a stopped player not to be ready")
	}
}

func TestPlayerPauseResumeStop(t *testing.T) {
	p, path := newTestPlayer(t, 5, 1)

	if err := p.Pause(); !errors.Is(err, ErrNotPlaying) {
		t.Errorf("Expected ErrNotPlaying before play, got %v", err)
	}

	if err := p.Play(context.Background(), path); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := p.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if err := p.Pause(); err != nil {
		t.Errorf("Expected repeated pause to be a no-op, got %v", err)
	}
	paused := p.CurrentTime()
	if paused <= 0 {
		t.Errorf("Expected playback to have advanced, got %f", paused)
	}
	time.Sleep(60 * time.Millisecond)
	if now := p.CurrentTime(); now != paused {
		t.Errorf("Expected position frozen while paused, got %f then %f", paused, now)
	}
	if p.IsReady() {
		t.Error("Expected a paused player not to be ready")
	}

	if err := p.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if now := p.CurrentTime(); now <= paused {
		t.Errorf("Expected position to advance after resume, got %f", now)
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	s := p.Status()
	if s.State != StateStopped || s.Position != 0 || s.Path != "" {
		t.Errorf("Expected cleared status after stop, got %+v", s)
	}
}

func TestPlayerUnsupportedFile(t *testing.T) {
	p, _ := newTestPlayer(t, 0.1, 1)

	err := p.Play(context.Background(), "cover.jpg")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}
	if p.Status().State != StateStopped {
		t.Errorf("Expected stopped state, got %s", p.Status().State)
	}
}

func TestPlayerSingleBinding(t *testing.T) {
	p, _ := newTestPlayer(t, 0.1, 1)

	if err := p.Bind(); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if err := p.Bind(); !errors.Is(err, ErrSamplerBound) {
		t.Errorf("Expected ErrSamplerBound, got %v", err)
	}
	p.Release()
}

func TestPlayerFeedsEngine(t *testing.T) {
	p, path := newTestPlayer(t, 3, 2)

	if err := p.Play(context.Background(), path); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	engine := analysis.NewEngine(analysis.EngineConfig{})
	if err := engine.Start(context.Background(), p); err != nil {
		t.Fatalf("Engine start failed: %v", err)
	}
	defer engine.Stop()

	if err := engine.Start(context.Background(), p); err != nil {
		t.Fatalf("Restarting against the same player failed: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	var snap *analysis.Snapshot
	for time.Now().Before(deadline) {
		if s, ready := engine.Latest(); s != nil && ready {
			snap = s
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if snap == nil {
		t.Fatal("Expected a snapshot from live playback")
	}
	// A 1 kHz tone lands in the mid band
	if snap.FrequencyBands.Mid <= snap.FrequencyBands.High {
		t.Errorf("Expected mid energy above high, got %+v", snap.FrequencyBands)
	}

	// A second engine cannot attach while the first holds the player
	other := analysis.NewEngine(analysis.EngineConfig{})
	if err := other.Start(context.Background(), p); !errors.Is(err, analysis.ErrSourceUnavailable) {
		t.Errorf("Expected ErrSourceUnavailable, got %v", err)
	}
}
