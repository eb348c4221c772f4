package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSource struct {
	mu       sync.Mutex
	ready    bool
	freq     []uint8
	wave     []uint8
	time     float64
	duration float64
	bound    bool
	panics   bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		ready:    true,
		freq:     make([]uint8, testBins),
		wave:     flatWaveform(2 * testBins),
		duration: 120,
	}
}

func (s *fakeSource) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *fakeSource) SampleFrequency() []uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panics {
		panic("sampler failure")
	}
	out := make([]uint8, len(s.freq))
	copy(out, s.freq)
	return out
}

func (s *fakeSource) SampleWaveform() []uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint8, len(s.wave))
	copy(out, s.wave)
	return out
}

func (s *fakeSource) SampleRate() int { return testSampleRate }

func (s *fakeSource) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.time
}

func (s *fakeSource) Duration() float64 { return s.duration }
func (s *fakeSource) IsPlaying() bool   { return true }

func (s *fakeSource) Bind() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bound {
		return errors.New("already bound")
	}
	s.bound = true
	return nil
}

func (s *fakeSource) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bound = false
}

func (s *fakeSource) setSpectrum(subBass, high uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.freq {
		s.freq[i] = 0
	}
	subStart, subEnd := binRange(Bands[0])
	for i := subStart; i <= subEnd; i++ {
		s.freq[i] = subBass
	}
	highStart, highEnd := binRange(Bands[5])
	for i := highStart + 1; i <= highEnd; i++ {
		s.freq[i] = high
	}
}

type manualClock struct {
	ch chan time.Time
}

func newManualClock() *manualClock {
	return &manualClock{ch: make(chan time.Time)}
}

func (c *manualClock) C() <-chan time.Time { return c.ch }
func (c *manualClock) Stop()               {}

func newTestEngine(clock *manualClock) *Engine {
	return NewEngine(EngineConfig{
		SilenceBackoff: -1,
		NewClock:       func() FrameClock { return clock },
	})
}

func waitForState(t *testing.T, e *Engine, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Expected state %s, got %s", want, e.State())
}

func TestEngineEndToEnd(t *testing.T) {
	src := newFakeSource()
	e := newTestEngine(newManualClock())
	if err := e.attach(src); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	defer e.Stop()

	base := time.Unix(1000, 0)
	for frame := 1; frame <= 10; frame++ {
		src.setSpectrum(uint8(10*frame), uint8(25*frame))
		if out := e.tick(base.Add(time.Duration(frame) * 100 * time.Millisecond)); out != tickContinue {
			t.Fatalf("Frame %d: unexpected outcome %d", frame, out)
		}

		snap, ready := e.Latest()
		if snap == nil || !ready {
			t.Fatalf("Frame %d: expected a published snapshot", frame)
		}

		if frame >= 5 {
			if !snap.DetectedElements.DrumElements.Kick {
				t.Errorf("Frame %d: expected kick", frame)
			}
			if !snap.DetectedElements.DrumElements.Cymbals {
				t.Errorf("Frame %d: expected cymbals", frame)
			}
		}
		if frame < 5 && len(snap.Arrangement) != 0 {
			t.Errorf("Frame %d: expected no arrangement before 5 frames", frame)
		}
	}

	snap, _ := e.Latest()
	s := EstimateStructure(120)
	found := false
	for _, a := range snap.Arrangement {
		if a.Name == "Kick" {
			found = true
			if a.StartTime != s.Intro || a.EndTime != 120-s.Outro {
				t.Errorf("Expected Kick at [%f, %f], got [%f, %f]", s.Intro, 120-s.Outro, a.StartTime, a.EndTime)
			}
		}
	}
	if !found {
		t.Errorf("Expected a Kick entry in %+v", snap.Arrangement)
	}
	if snap.Structure != s {
		t.Errorf("Expected structure %+v, got %+v", s, snap.Structure)
	}
}

func TestEnginePublishThrottle(t *testing.T) {
	src := newFakeSource()
	src.setSpectrum(50, 50)
	e := newTestEngine(newManualClock())
	if err := e.attach(src); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	defer e.Stop()

	var published int
	e.Subscribe(func(s *Snapshot, ready bool) {
		if s != nil {
			published++
		}
	})

	base := time.Unix(1000, 0)
	// 60 fps for one second
	for i := 0; i < 60; i++ {
		e.tick(base.Add(time.Duration(i) * time.Second / 60))
	}

	if published < 9 || published > 10 {
		t.Errorf("Expected about 10 publications per second, got %d", published)
	}
	if e.history.Len() != DefaultHistorySize {
		t.Errorf("Expected history to fill every tick, got %d", e.history.Len())
	}
}

func TestEngineArrangementThrottle(t *testing.T) {
	src := newFakeSource()
	src.setSpectrum(50, 0)
	e := newTestEngine(newManualClock())
	if err := e.attach(src); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	defer e.Stop()

	base := time.Unix(1000, 0)
	tick := func(i int) *Snapshot {
		e.tick(base.Add(time.Duration(i) * time.Second))
		snap, _ := e.Latest()
		return snap
	}

	for i := 0; i < 5; i++ {
		tick(i)
	}
	first, _ := e.Latest()
	if len(first.Arrangement) == 0 {
		t.Fatal("Expected an arrangement after 5 frames")
	}

	// New element appears, but fewer than 5 playback seconds have passed
	src.setSpectrum(50, 150)
	src.time = 2
	snap := tick(5)
	if !snap.DetectedElements.DrumElements.Cymbals {
		t.Fatal("Expected cymbals to be detected")
	}
	if hasArranged(snap.Arrangement, "Cymbals") {
		t.Error("Expected arrangement unchanged within 5s")
	}

	src.time = 5
	snap = tick(6)
	if !hasArranged(snap.Arrangement, "Cymbals") {
		t.Errorf("Expected rebuilt arrangement with cymbals, got %+v", snap.Arrangement)
	}

	// Seeking backwards forces a rebuild
	src.setSpectrum(50, 0)
	src.time = 1
	snap = tick(7)
	if hasArranged(snap.Arrangement, "Cymbals") {
		t.Error("Expected rebuild after seeking backwards")
	}
}

func hasArranged(entries []ArrangementElement, name string) bool {
	for _, a := range entries {
		if a.Name == name {
			return true
		}
	}
	return false
}

func TestEngineZeroStreakHalts(t *testing.T) {
	src := newFakeSource()
	e := newTestEngine(newManualClock())
	if err := e.attach(src); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	defer e.Stop()

	now := time.Unix(1000, 0)
	for i := 1; i < DefaultZeroStreakLimit; i++ {
		if out := e.tick(now); out != tickBackoff {
			t.Fatalf("Zero tick %d: expected backoff, got %d", i, out)
		}
	}
	if out := e.tick(now); out != tickHalt {
		t.Fatalf("Expected halt on zero tick %d, got %d", DefaultZeroStreakLimit, out)
	}
	if snap, _ := e.Latest(); snap != nil {
		t.Error("Expected no snapshot from silent ticks")
	}
}

func TestEngineLoopHaltsOnSilence(t *testing.T) {
	src := newFakeSource()
	clock := newManualClock()
	e := newTestEngine(clock)

	var published int
	var mu sync.Mutex
	e.Subscribe(func(s *Snapshot, ready bool) {
		mu.Lock()
		defer mu.Unlock()
		if s != nil {
			published++
		}
	})

	if err := e.Start(context.Background(), src); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer e.Stop()

	now := time.Unix(1000, 0)
	for i := 0; i < DefaultZeroStreakLimit; i++ {
		clock.ch <- now
	}
	waitForState(t, e, StateHalted)

	select {
	case clock.ch <- now:
		t.Error("Expected halted loop to stop consuming frames")
	case <-time.After(50 * time.Millisecond):
	}

	mu.Lock()
	defer mu.Unlock()
	if published != 0 {
		t.Errorf("Expected no snapshots, got %d", published)
	}
}

func TestEngineSilenceAfterHistoryKeepsRunning(t *testing.T) {
	src := newFakeSource()
	src.setSpectrum(50, 50)
	e := newTestEngine(newManualClock())
	if err := e.attach(src); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	defer e.Stop()

	now := time.Unix(1000, 0)
	e.tick(now)
	src.setSpectrum(0, 0)
	for i := 0; i < DefaultZeroStreakLimit+5; i++ {
		now = now.Add(time.Second)
		if out := e.tick(now); out != tickContinue {
			t.Fatalf("Expected silence with history to continue, got %d", out)
		}
	}
}

func TestEngineNotReady(t *testing.T) {
	src := newFakeSource()
	src.ready = false
	src.panics = true // sampling must not be attempted
	e := newTestEngine(newManualClock())
	if err := e.attach(src); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	defer e.Stop()

	if out := e.tick(time.Now()); out != tickNotReady {
		t.Errorf("Expected not-ready outcome, got %d", out)
	}
	if e.State() != StateReady {
		t.Errorf("Expected state ready, got %s", e.State())
	}
	if e.failures != 0 {
		t.Errorf("Expected no sampling while not ready, got %d failures", e.failures)
	}
}

func TestEngineRecoversFromTickPanic(t *testing.T) {
	src := newFakeSource()
	src.panics = true
	e := newTestEngine(newManualClock())
	if err := e.attach(src); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	defer e.Stop()

	if out := e.tick(time.Now()); out != tickContinue {
		t.Errorf("Expected the loop to continue after a failed tick, got %d", out)
	}
	if e.failures != 1 {
		t.Errorf("Expected 1 recorded failure, got %d", e.failures)
	}
}

func TestEngineStopIsIdempotent(t *testing.T) {
	src := newFakeSource()
	src.setSpectrum(50, 50)
	clock := newManualClock()
	e := newTestEngine(clock)

	var cleared int
	e.Subscribe(func(s *Snapshot, ready bool) {
		if s == nil && !ready {
			cleared++
		}
	})

	if err := e.Start(context.Background(), src); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	now := time.Unix(1000, 0)
	for i := 0; i < 8; i++ {
		now = now.Add(100 * time.Millisecond)
		clock.ch <- now
	}
	waitForState(t, e, StateRunning)

	for i := 0; i < 2; i++ {
		e.Stop()
		if e.history.Len() != 0 {
			t.Errorf("Stop %d: expected empty history, got %d", i+1, e.history.Len())
		}
		if e.transients.HistoryLen() != 0 {
			t.Errorf("Stop %d: expected empty peak history, got %d", i+1, e.transients.HistoryLen())
		}
		if snap, ready := e.Latest(); snap != nil || ready {
			t.Errorf("Stop %d: expected no snapshot", i+1)
		}
		if e.State() != StateIdle {
			t.Errorf("Stop %d: expected idle, got %s", i+1, e.State())
		}
	}

	if cleared != 1 {
		t.Errorf("Expected subscriber cleared once, got %d", cleared)
	}
	if src.bound {
		t.Error("Expected source released after Stop")
	}
}

func TestEngineStartRejectsBoundSource(t *testing.T) {
	src := newFakeSource()
	src.bound = true
	e := newTestEngine(newManualClock())

	err := e.Start(context.Background(), src)
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("Expected ErrSourceUnavailable, got %v", err)
	}
	if e.State() != StateIdle {
		t.Errorf("Expected idle after failed start, got %s", e.State())
	}
}

func TestEngineRestartResetsSession(t *testing.T) {
	first := newFakeSource()
	first.setSpectrum(50, 50)
	clock := newManualClock()
	e := newTestEngine(clock)

	if err := e.Start(context.Background(), first); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	clock.ch <- time.Unix(1000, 0)
	waitForState(t, e, StateRunning)
	// Second frame is only received once the first tick has published
	clock.ch <- time.Unix(1001, 0)
	snap, _ := e.Latest()
	firstSession := snap.SessionID

	second := newFakeSource()
	if err := e.Start(context.Background(), second); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	defer e.Stop()

	if first.bound {
		t.Error("Expected first source released on track change")
	}
	if snap, _ := e.Latest(); snap != nil {
		t.Error("Expected snapshot cleared on track change")
	}
	if e.sessionID == firstSession || e.sessionID == "" {
		t.Errorf("Expected a new session id, got %q", e.sessionID)
	}
}

func TestEngineContextCancelHalts(t *testing.T) {
	src := newFakeSource()
	e := newTestEngine(newManualClock())

	ctx, cancel := context.WithCancel(context.Background())
	if err := e.Start(ctx, src); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	cancel()
	waitForState(t, e, StateHalted)

	e.Stop()
	if e.State() != StateIdle {
		t.Errorf("Expected idle after Stop, got %s", e.State())
	}
}
