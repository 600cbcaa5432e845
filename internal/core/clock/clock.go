// Package clock provides the fixed-timestep scheduler that converts a
// variable-rate host frame signal into physics-rate and render-rate
// callbacks.
package clock

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/apexsim/apexsim/internal/core/observability/log"
)

const (
	// DefaultFixedStep is the physics timestep in seconds.
	DefaultFixedStep = 1.0 / 60.0
	// DefaultMaxFrameDelta caps the raw frame delta so a stall cannot queue
	// an unbounded burst of fixed ticks (spiral-of-death guard).
	DefaultMaxFrameDelta = 0.1
)

// Callback receives a delta time in seconds. Fixed-update callbacks always
// receive the constant fixed step; update and render callbacks receive the
// (time-scaled) frame delta.
type Callback func(dt float64)

// Handle identifies a registered callback.
type Handle string

// Config tunes the scheduler.
type Config struct {
	FixedStep     float64
	MaxFrameDelta float64
	TimeScale     float64
}

// DefaultConfig returns the standard 60 Hz configuration.
func DefaultConfig() Config {
	return Config{
		FixedStep:     DefaultFixedStep,
		MaxFrameDelta: DefaultMaxFrameDelta,
		TimeScale:     1.0,
	}
}

// Scheduler is a single-threaded cooperative scheduler driven by the host's
// per-frame call to Frame. It is not itself a source of time: the host
// supplies a monotonic timestamp each frame, and the scheduler derives a
// capped frame delta and zero or more fixed-step ticks from it via a time
// accumulator.
//
// Time scale multiplies accumulation, not the fixed step size, so scaling
// changes how many fixed ticks run rather than their size.
type Scheduler struct {
	mu sync.Mutex

	step          float64
	maxFrameDelta float64
	timeScale     float64

	accumulator float64
	lastTime    float64
	hasLast     bool

	running bool
	paused  bool

	totalTime  float64
	frameCount int64

	update map[Handle]Callback
	fixed  map[Handle]Callback
	render map[Handle]Callback

	logger log.Log
}

// New creates a stopped scheduler.
func New(cfg Config, logger log.Log) *Scheduler {
	if cfg.FixedStep <= 0 {
		cfg.FixedStep = DefaultFixedStep
	}
	if cfg.MaxFrameDelta <= 0 {
		cfg.MaxFrameDelta = DefaultMaxFrameDelta
	}
	if cfg.TimeScale <= 0 {
		cfg.TimeScale = 1.0
	}
	return &Scheduler{
		step:          cfg.FixedStep,
		maxFrameDelta: cfg.MaxFrameDelta,
		timeScale:     cfg.TimeScale,
		update:        make(map[Handle]Callback),
		fixed:         make(map[Handle]Callback),
		render:        make(map[Handle]Callback),
		logger:        logger.With(log.String("component", "clock")),
	}
}

// Start begins accepting frames. Idempotent.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.paused = false
	s.hasLast = false
	s.accumulator = 0
	s.logger.Info("scheduler started", log.Float64("fixed_step", s.step))
}

// Stop halts the scheduler and discards accumulated time. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.accumulator = 0
	s.hasLast = false
	s.logger.Info("scheduler stopped", log.Int("frames", int(s.frameCount)))
}

// Pause suspends callback invocation while preserving state. The accumulator
// is frozen, so resuming does not produce a catch-up burst of fixed ticks.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// Resume re-enables callback invocation from where Pause left off. The time
// base is re-established on the next frame so wall time spent paused never
// reaches the accumulator.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	s.hasLast = false
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// SetTimeScale adjusts how fast simulated time accumulates relative to the
// host frame source. Non-positive values are ignored.
func (s *Scheduler) SetTimeScale(scale float64) {
	if scale <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeScale = scale
}

func (s *Scheduler) TimeScale() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeScale
}

// FixedStep returns the constant physics timestep in seconds.
func (s *Scheduler) FixedStep() float64 {
	return s.step
}

// TotalTime returns accumulated scaled simulation time.
func (s *Scheduler) TotalTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.totalTime * float64(time.Second))
}

// FrameCount returns the number of frames processed while running.
func (s *Scheduler) FrameCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameCount
}

// OnUpdate registers a variable-rate callback invoked once per frame before
// fixed ticks.
func (s *Scheduler) OnUpdate(cb Callback) Handle {
	return s.register(s.update, cb)
}

// OnFixedUpdate registers a callback invoked once per fixed tick with the
// constant step.
func (s *Scheduler) OnFixedUpdate(cb Callback) Handle {
	return s.register(s.fixed, cb)
}

// OnRender registers a callback invoked exactly once per frame, after fixed
// ticks, with the scaled frame delta.
func (s *Scheduler) OnRender(cb Callback) Handle {
	return s.register(s.render, cb)
}

// Remove unregisters a callback by handle. Unknown handles are ignored.
// Safe to call from within any callback.
func (s *Scheduler) Remove(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.update, h)
	delete(s.fixed, h)
	delete(s.render, h)
}

func (s *Scheduler) register(m map[Handle]Callback, cb Callback) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := Handle(uuid.NewString())
	m[h] = cb
	return h
}

// Frame advances the scheduler with a monotonic timestamp in seconds. The
// first frame after Start establishes the time base and runs no ticks.
// While paused, timestamps are consumed but no time accumulates.
func (s *Scheduler) Frame(now float64) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	if s.paused {
		s.mu.Unlock()
		return
	}
	if !s.hasLast {
		s.lastTime = now
		s.hasLast = true
		s.mu.Unlock()
		return
	}

	rawDelta := now - s.lastTime
	s.lastTime = now
	if rawDelta < 0 {
		rawDelta = 0
	}
	if rawDelta > s.maxFrameDelta {
		rawDelta = s.maxFrameDelta
	}

	scaledDelta := rawDelta * s.timeScale
	s.accumulator += scaledDelta
	s.totalTime += scaledDelta
	s.frameCount++

	fixedTicks := 0
	for acc := s.accumulator; acc >= s.step; acc -= s.step {
		fixedTicks++
	}
	s.accumulator -= float64(fixedTicks) * s.step
	s.mu.Unlock()

	s.invoke(s.update, scaledDelta)
	for i := 0; i < fixedTicks; i++ {
		s.invoke(s.fixed, s.step)
	}
	s.invoke(s.render, scaledDelta)
}

// invoke snapshots the registered handles so a callback may remove itself or
// others without corrupting iteration. Handles removed mid-frame are not
// invoked after their removal.
func (s *Scheduler) invoke(m map[Handle]Callback, dt float64) {
	s.mu.Lock()
	handles := make([]Handle, 0, len(m))
	for h := range m {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		s.mu.Lock()
		cb, ok := m[h]
		s.mu.Unlock()
		if ok {
			cb(dt)
		}
	}
}
