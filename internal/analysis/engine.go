package analysis

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultFrameRate matches a typical display refresh cadence
	DefaultFrameRate            = 60
	DefaultHistorySize          = 20
	DefaultPublishInterval      = 100 * time.Millisecond
	DefaultArrangementInterval  = 5 * time.Second
	DefaultMinArrangementFrames = 5
	// DefaultZeroStreakLimit silent ticks before any audio halt the loop
	DefaultZeroStreakLimit = 50
	DefaultSilenceBackoff  = time.Second

	// Log only every Nth tick failure
	failureLogEvery = 30
)

// State is the engine lifecycle state
type State string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateRunning      State = "running"
	// StateHalted means the loop stopped on its own (silence circuit breaker
	// or cancelled context). Buffers are kept until Stop.
	StateHalted State = "halted"
)

// EngineConfig contains tuning for the analysis loop
type EngineConfig struct {
	FrameRate            int
	HistorySize          int
	PeakHistorySize      int
	PublishInterval      time.Duration
	ArrangementInterval  time.Duration // measured in playback time
	MinArrangementFrames int
	ZeroStreakLimit      int
	SilenceBackoff       time.Duration // negative disables the backoff

	// NewClock overrides the frame clock (tests)
	NewClock func() FrameClock
}

// Snapshot is the published analysis output for one tick. It is never
// modified after publication.
type Snapshot struct {
	SessionID        string               `json:"sessionId"`
	Timestamp        int64                `json:"timestamp"` // Unix ms
	PlaybackTime     float64              `json:"playbackTime"`
	FrequencyBands   FrequencyBands       `json:"frequencyBands"`
	Characteristics  Characteristics      `json:"characteristics"`
	DetectedElements DetectedElements     `json:"detectedElements"`
	Transients       TransientHints       `json:"transients"`
	Arrangement      []ArrangementElement `json:"arrangement"`
	Structure        Structure            `json:"structure"`
}

// SnapshotFunc receives published snapshots. A nil snapshot with ready=false
// means the session ended. It runs on the engine goroutine and must not call
// Start or Stop.
type SnapshotFunc func(snapshot *Snapshot, ready bool)

type tickOutcome int

const (
	tickContinue tickOutcome = iota
	tickNotReady
	tickBackoff
	tickHalt
)

// Engine runs the analysis loop against one source at a time
type Engine struct {
	cfg EngineConfig

	// Serializes Start and Stop; never taken by the loop
	lifecycleMu sync.Mutex

	mu         sync.Mutex
	state      State
	snapshot   *Snapshot
	subscriber SnapshotFunc

	// Session fields, only written while the loop is not running
	source    Source
	sessionID string
	stopChan  chan struct{}
	done      chan struct{}

	// Owned by the loop goroutine
	history     *Ring[FrequencyBands]
	transients  *TransientDetector
	zeroStreak  int
	failures    int
	lastPublish time.Time
	arrangement []ArrangementElement
	structure   Structure
	arranged    bool
	arrangedAt  float64
}

// NewEngine creates an idle engine
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = DefaultFrameRate
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	if cfg.PeakHistorySize <= 0 {
		cfg.PeakHistorySize = PeakHistorySize
	}
	if cfg.PublishInterval <= 0 {
		cfg.PublishInterval = DefaultPublishInterval
	}
	if cfg.ArrangementInterval <= 0 {
		cfg.ArrangementInterval = DefaultArrangementInterval
	}
	if cfg.MinArrangementFrames <= 0 {
		cfg.MinArrangementFrames = DefaultMinArrangementFrames
	}
	if cfg.ZeroStreakLimit <= 0 {
		cfg.ZeroStreakLimit = DefaultZeroStreakLimit
	}
	if cfg.SilenceBackoff == 0 {
		cfg.SilenceBackoff = DefaultSilenceBackoff
	}
	if cfg.NewClock == nil {
		fps := cfg.FrameRate
		cfg.NewClock = func() FrameClock { return NewTickerClock(fps) }
	}

	return &Engine{
		cfg:        cfg,
		state:      StateIdle,
		history:    NewRing[FrequencyBands](cfg.HistorySize),
		transients: NewTransientDetector(cfg.PeakHistorySize),
	}
}

// Start begins analysis of src. Any running session is fully stopped first.
// The loop ends when Stop is called, ctx is cancelled, or the silence
// circuit breaker trips.
func (e *Engine) Start(ctx context.Context, src Source) error {
	if src == nil {
		return fmt.Errorf("%w: nil source", ErrSourceUnavailable)
	}

	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	e.stopLocked()

	e.setState(StateInitializing)
	if err := e.attach(src); err != nil {
		e.setState(StateIdle)
		return err
	}

	e.stopChan = make(chan struct{})
	e.done = make(chan struct{})
	go e.run(ctx, e.stopChan, e.done)

	log.Printf("[ANALYSIS] Session %s started", e.sessionID)
	return nil
}

// Stop halts the loop, waits for it to exit and discards all session state.
// Calling Stop on an idle engine is a no-op.
func (e *Engine) Stop() {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()
	e.stopLocked()
}

// Subscribe registers the single snapshot subscriber, replacing any previous one
func (e *Engine) Subscribe(fn SnapshotFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscriber = fn
}

// Latest returns the most recent snapshot and whether the engine is running
func (e *Engine) Latest() (*Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot, e.snapshot != nil && e.state == StateRunning
}

// State returns the lifecycle state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// attach binds src and prepares a fresh session
func (e *Engine) attach(src Source) error {
	if b, ok := src.(Binder); ok {
		if err := b.Bind(); err != nil {
			return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
	}
	e.source = src
	e.sessionID = uuid.NewString()
	e.resetLoopState()
	e.setState(StateReady)
	return nil
}

func (e *Engine) stopLocked() {
	if e.stopChan != nil {
		close(e.stopChan)
		<-e.done
		e.stopChan = nil
		e.done = nil
	}

	wasActive := e.source != nil
	if b, ok := e.source.(Binder); ok {
		b.Release()
	}
	sessionID := e.sessionID
	e.source = nil
	e.sessionID = ""
	e.resetLoopState()

	e.mu.Lock()
	e.state = StateIdle
	e.snapshot = nil
	fn := e.subscriber
	e.mu.Unlock()

	if wasActive {
		log.Printf("[ANALYSIS] Session %s stopped", sessionID)
		if fn != nil {
			fn(nil, false)
		}
	}
}

func (e *Engine) resetLoopState() {
	e.history.Clear()
	e.transients.Reset()
	e.zeroStreak = 0
	e.failures = 0
	e.lastPublish = time.Time{}
	e.arrangement = nil
	e.structure = Structure{}
	e.arranged = false
	e.arrangedAt = 0
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Engine) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	clock := e.cfg.NewClock()
	defer clock.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			log.Printf("[ANALYSIS] Context cancelled, halting loop")
			e.setState(StateHalted)
			return
		case now := <-clock.C():
			switch e.tick(now) {
			case tickHalt:
				log.Printf("[ANALYSIS] No signal after %d ticks, halting loop", e.zeroStreak)
				e.setState(StateHalted)
				return
			case tickBackoff:
				if e.cfg.SilenceBackoff < 0 {
					continue
				}
				select {
				case <-stop:
					return
				case <-ctx.Done():
					e.setState(StateHalted)
					return
				case <-time.After(e.cfg.SilenceBackoff):
				}
			}
		}
	}
}

// tick runs one iteration. A panic is contained to the tick.
func (e *Engine) tick(now time.Time) (outcome tickOutcome) {
	defer func() {
		if r := recover(); r != nil {
			e.failures++
			if e.failures%failureLogEvery == 1 {
				log.Printf("[ANALYSIS] Tick failed (%d total), rescheduling: %v", e.failures, r)
			}
			outcome = tickContinue
		}
	}()

	src := e.source
	if !src.IsReady() {
		return tickNotReady
	}
	e.markRunning()

	bands := AggregateBands(src.SampleFrequency(), src.SampleRate())
	if bands.Total() == 0 && e.history.Len() == 0 {
		e.zeroStreak++
		if e.zeroStreak >= e.cfg.ZeroStreakLimit {
			return tickHalt
		}
		return tickBackoff
	}
	e.zeroStreak = 0

	prior := e.history.Items()
	e.history.Push(bands)
	hints := e.transients.Detect(src.SampleWaveform())

	if !e.lastPublish.IsZero() && now.Sub(e.lastPublish) < e.cfg.PublishInterval {
		return tickContinue
	}
	e.lastPublish = now

	characteristics := EstimateCharacteristics(bands, prior)
	elements := Classify(bands, characteristics, hints)

	playback := src.CurrentTime()
	if e.history.Len() >= e.cfg.MinArrangementFrames && e.arrangementDue(playback) {
		e.arrangement, e.structure = BuildArrangement(elements, src.Duration())
		e.arranged = true
		e.arrangedAt = playback
	}

	e.publish(&Snapshot{
		SessionID:        e.sessionID,
		Timestamp:        now.UnixMilli(),
		PlaybackTime:     playback,
		FrequencyBands:   bands,
		Characteristics:  characteristics,
		DetectedElements: elements,
		Transients:       hints,
		Arrangement:      e.arrangement,
		Structure:        e.structure,
	})
	return tickContinue
}

// arrangementDue reports whether the arrangement should be rebuilt at the
// given playback position. Seeking backwards forces a rebuild.
func (e *Engine) arrangementDue(playback float64) bool {
	if !e.arranged {
		return true
	}
	if playback < e.arrangedAt {
		return true
	}
	return playback-e.arrangedAt >= e.cfg.ArrangementInterval.Seconds()
}

func (e *Engine) markRunning() {
	e.mu.Lock()
	if e.state == StateReady {
		e.state = StateRunning
	}
	e.mu.Unlock()
}

func (e *Engine) publish(s *Snapshot) {
	e.mu.Lock()
	e.snapshot = s
	ready := e.state == StateRunning
	fn := e.subscriber
	e.mu.Unlock()

	if fn != nil {
		fn(s, ready)
	}
}
