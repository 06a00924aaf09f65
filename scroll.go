package boardloop

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
)

// ScrollPhase is the state of a scrolling content pass.
type ScrollPhase int

const (
	// PhaseIdle means no pass is active.
	PhaseIdle ScrollPhase = iota

	// PhaseScrolling means content is moving.
	PhaseScrolling

	// PhaseCompleting means the end of content reached the view, the last
	// frame stays visible for a short grace interval.
	PhaseCompleting

	// PhaseDone is terminal, the pass is over and the gate is cleared.
	PhaseDone
)

// String implements fmt.Stringer.
func (p ScrollPhase) String() string {
	switch p {
	case PhaseScrolling:
		return "scrolling"
	case PhaseCompleting:
		return "completing"
	case PhaseDone:
		return "done"
	default:
		return "idle"
	}
}

// speedSample is one measured frame advance.
type speedSample struct {
	pixels  float64
	elapsed time.Duration
}

// sampleWindow bounds the speed measurement ring.
const sampleWindow = 32

// ScrollConfig controls a scroll controller.
type ScrollConfig struct {
	// Logger is an instance of contextualized logger, can be nil.
	Logger ctxd.Logger

	// Stats is metrics collector, can be nil.
	Stats stats.Tracker

	// Gate is the shared animation-busy flag, created if nil.
	Gate *Gate

	// BufferFraction pads the measured duration, default 0.1.
	BufferFraction float64

	// MinDuration is the lower clamp of DynamicDuration, default 10s.
	MinDuration time.Duration

	// MaxDuration is the upper clamp of DynamicDuration, default 90s.
	MaxDuration time.Duration

	// MaxDisplayTime is the hard ceiling of one pass regardless of content
	// size or measured speed, default 120s. It guarantees termination even if
	// speed measurement is wrong or content is pathologically long.
	MaxDisplayTime time.Duration

	// Grace keeps the last frame visible before Done, default 500ms.
	Grace time.Duration

	// Now is a time source, default time.Now.
	Now func() time.Time
}

// Scroll drives one horizontally-scrolling content pass.
//
// Exactly one pass is active at a time system-wide. The controller is the
// single writer of the animation gate: Start sets it, reaching PhaseDone
// clears it. Completion is an explicit terminal state, callers poll Phase or
// receive the Done channel instead of catching a raised signal.
type Scroll struct {
	config ScrollConfig
	log    ctxd.Logger
	stat   stats.Tracker
	gate   *Gate
	now    func() time.Time

	mu            sync.Mutex
	phase         ScrollPhase
	position      float64
	contentExtent float64
	viewExtent    float64
	loop          bool
	startTime     time.Time
	completingAt  time.Time
	done          chan struct{}

	samples   [sampleWindow]speedSample
	sampleIdx int
	sampleCnt int
}

// NewScroll creates a scroll controller.
func NewScroll(config ScrollConfig) *Scroll {
	if config.BufferFraction == 0 {
		config.BufferFraction = 0.1
	}

	if config.MinDuration == 0 {
		config.MinDuration = 10 * time.Second
	}

	if config.MaxDuration == 0 {
		config.MaxDuration = 90 * time.Second
	}

	if config.MaxDisplayTime == 0 {
		config.MaxDisplayTime = 120 * time.Second
	}

	if config.Grace == 0 {
		config.Grace = 500 * time.Millisecond
	}

	s := &Scroll{
		config: config,
		log:    config.Logger,
		stat:   config.Stats,
		gate:   config.Gate,
		now:    config.Now,
		phase:  PhaseIdle,
	}

	if s.log == nil {
		s.log = ctxd.NoOpLogger{}
	}

	if s.stat == nil {
		s.stat = stats.NoOp{}
	}

	if s.gate == nil {
		s.gate = &Gate{}
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// Gate returns the shared animation-busy flag of this controller.
func (s *Scroll) Gate() *Gate {
	return s.gate
}

// Start begins a pass and sets the animation gate.
//
// A pass already in flight is superseded, its Done channel is closed first.
func (s *Scroll) Start(contentExtent, viewExtent float64, loop bool) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil && (s.phase == PhaseScrolling || s.phase == PhaseCompleting) {
		close(s.done)
	}

	s.phase = PhaseScrolling
	s.position = 0
	s.contentExtent = contentExtent
	s.viewExtent = viewExtent
	s.loop = loop
	s.startTime = s.now()
	s.completingAt = time.Time{}
	s.sampleIdx = 0
	s.sampleCnt = 0
	s.done = make(chan struct{})

	s.gate.Set(true)

	s.log.Debug(context.Background(), "scroll pass started",
		"content", contentExtent,
		"view", viewExtent,
		"loop", loop)

	return s.done
}

// Done returns the completion channel of the current pass, closed on the
// transition to PhaseDone. Nil before the first Start.
func (s *Scroll) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.done
}

// Advance moves content by framePixels drawn over elapsed and records the
// speed sample. Called by the render loop once per frame.
func (s *Scroll) Advance(framePixels float64, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseScrolling && s.phase != PhaseCompleting {
		return
	}

	now := s.now()

	// The safety timeout takes precedence over position-based completion.
	if s.timedOutLocked(now) {
		return
	}

	if s.phase == PhaseCompleting {
		if now.Sub(s.completingAt) >= s.config.Grace {
			s.finishLocked(MetricScrollDone, "scroll pass completed")
		}

		return
	}

	s.position += framePixels
	s.pushSampleLocked(framePixels, elapsed)

	if s.loop {
		// Looping content wraps and never completes by position.
		if s.contentExtent > 0 && s.position >= s.contentExtent {
			s.position = math.Mod(s.position, s.contentExtent)
		}

		return
	}

	if s.position >= s.contentExtent-s.viewExtent {
		s.phase = PhaseCompleting
		s.completingAt = now
	}
}

// Phase reports the current phase, applying the safety timeout first so a
// stalled pass is observed as done without waiting for the next Advance.
func (s *Scroll) Phase() ScrollPhase {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseScrolling || s.phase == PhaseCompleting {
		s.timedOutLocked(s.now())
	}

	return s.phase
}

// Position returns the current scroll offset in pixels.
func (s *Scroll) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.position
}

// Stop aborts the pass, transitioning straight to PhaseDone.
func (s *Scroll) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseScrolling || s.phase == PhaseCompleting {
		s.finishLocked(MetricScrollDone, "scroll pass stopped")
	}
}

// ActualSpeed returns the measured speed in pixels per second, the arithmetic
// mean of the recent samples. Zero until the first sample.
func (s *Scroll) ActualSpeed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.actualSpeedLocked()
}

// DynamicDuration returns the bounded duration of the pass:
// contentExtent/actualSpeed padded by BufferFraction, clamped to
// [MinDuration, MaxDuration] and further capped by MaxDisplayTime.
func (s *Scroll) DynamicDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.config.MaxDuration

	if speed := s.actualSpeedLocked(); speed > 0 && s.contentExtent > 0 {
		base := time.Duration(float64(time.Second) * s.contentExtent / speed)
		d = time.Duration(float64(base) * (1 + s.config.BufferFraction))
	}

	if d < s.config.MinDuration {
		d = s.config.MinDuration
	}

	if d > s.config.MaxDuration {
		d = s.config.MaxDuration
	}

	if d > s.config.MaxDisplayTime {
		d = s.config.MaxDisplayTime
	}

	return d
}

func (s *Scroll) pushSampleLocked(pixels float64, elapsed time.Duration) {
	s.samples[s.sampleIdx] = speedSample{pixels: pixels, elapsed: elapsed}
	s.sampleIdx = (s.sampleIdx + 1) % sampleWindow

	if s.sampleCnt < sampleWindow {
		s.sampleCnt++
	}
}

func (s *Scroll) actualSpeedLocked() float64 {
	sum := 0.0
	n := 0

	for i := 0; i < s.sampleCnt; i++ {
		sm := s.samples[i]
		if sm.elapsed <= 0 {
			continue
		}

		sum += sm.pixels / sm.elapsed.Seconds()
		n++
	}

	if n == 0 {
		return 0
	}

	return sum / float64(n)
}

// timedOutLocked forces PhaseDone if the pass exceeded MaxDisplayTime.
func (s *Scroll) timedOutLocked(now time.Time) bool {
	if now.Sub(s.startTime) <= s.config.MaxDisplayTime {
		return false
	}

	s.log.Warn(context.Background(), "scroll pass hit safety timeout",
		"elapsed", now.Sub(s.startTime),
		"position", s.position)
	s.finishLocked(MetricScrollTimeout, "")

	return true
}

func (s *Scroll) finishLocked(metric, msg string) {
	s.phase = PhaseDone
	s.gate.Set(false)

	if s.done != nil {
		close(s.done)
		s.done = nil
	}

	if msg != "" {
		s.log.Debug(context.Background(), msg, "position", s.position)
	}

	s.stat.Add(context.Background(), metric, 1)
}
