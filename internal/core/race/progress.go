// Package race implements the checkpoint/lap progression state machine:
// ordered checkpoint traversal, lap counting, timing and race-completion
// detection.
package race

import (
	"github.com/apexsim/apexsim/internal/core/observability/log"
	"github.com/apexsim/apexsim/internal/core/vmath"
)

// ProximityThreshold is the checkpoint trigger radius in world units. The
// test is position-only: a vehicle passing through in reverse or from an
// unexpected angle still triggers, a documented permissiveness.
const ProximityThreshold = 10.0

// State is the race lifecycle. Finished is terminal.
type State uint8

const (
	StateNotStarted State = iota
	StateCountdown
	StateRacing
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateCountdown:
		return "countdown"
	case StateRacing:
		return "racing"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Checkpoint is a track waypoint. Exactly one checkpoint in a sequence is
// the start/finish entry, conventionally index 0; it is crossed twice per
// lap boundary (once to start timing, once to close it).
type Checkpoint struct {
	Position      vmath.Vec3
	Index         int
	IsStartFinish bool
}

// Callbacks are lifecycle hooks fired by Update. All times are seconds.
type Callbacks struct {
	OnCheckpointPassed func(index int, cp Checkpoint)
	OnLapCompleted     func(lapIndex int, lapTime, bestLapTime float64)
	OnRaceFinished     func(totalTime float64, lapTimes []float64, bestLapTime float64)
}

// Snapshot is the published race state. Returned copies are deep and
// independent: mutating one never affects the tracker or other snapshots.
type Snapshot struct {
	State                  State     `json:"state"`
	CurrentCheckpointIndex int       `json:"currentCheckpointIndex"`
	LapsCompleted          int       `json:"lapsCompleted"`
	TotalLaps              int       `json:"totalLaps"`
	CurrentLapTime         float64   `json:"currentLapTime"`
	LastLapTime            float64   `json:"lastLapTime"`
	BestLapTime            *float64  `json:"bestLapTime"` // nil until a lap closes
	LapTimes               []float64 `json:"lapTimes"`
	RaceTimeElapsed        float64   `json:"raceTimeElapsed"`
	IsRaceStarted          bool      `json:"isRaceStarted"`
	IsRaceFinished         bool      `json:"isRaceFinished"`

	// One-tick transient flags, cleared on the next Update.
	LapCompletedThisTick     bool `json:"lapCompletedThisTick"`
	CheckpointPassedThisTick bool `json:"checkpointPassedThisTick"`
}

// Tracker owns the RaceState exclusively. External reads go through
// Snapshot(); no live references escape.
type Tracker struct {
	state          State
	checkpoints    []Checkpoint
	startFinishIdx int
	totalLaps      int
	cb             Callbacks

	current        int
	laps           int
	currentLapTime float64
	lastLapTime    float64
	bestLapTime    float64
	hasBestLap     bool
	lapTimes       []float64
	elapsed        float64

	lapCompletedThisTick     bool
	checkpointPassedThisTick bool

	logger log.Log
}

// NewTracker creates an unconfigured tracker in NotStarted.
func NewTracker(logger log.Log) *Tracker {
	return &Tracker{
		logger: logger.With(log.String("component", "race")),
	}
}

// Init loads the ordered checkpoint sequence. Configuration errors (empty
// sequence, zero or multiple start/finish entries, non-positive lap count)
// are reported to the log sink and the mutation is a no-op; the simulation
// is never halted over bad config.
func (t *Tracker) Init(checkpoints []Checkpoint, totalLaps int, cb Callbacks) {
	if len(checkpoints) == 0 {
		t.logger.Error("checkpoint sequence is empty, init ignored")
		return
	}
	if totalLaps <= 0 {
		t.logger.Error("total laps must be positive, init ignored", log.Int("total_laps", totalLaps))
		return
	}
	startFinish := -1
	for i, cp := range checkpoints {
		if cp.Index != i {
			t.logger.Error("checkpoint index out of order, init ignored",
				log.Int("position", i), log.Int("index", cp.Index))
			return
		}
		if cp.IsStartFinish {
			if startFinish >= 0 {
				t.logger.Error("multiple start/finish checkpoints, init ignored")
				return
			}
			startFinish = i
		}
	}
	if startFinish < 0 {
		t.logger.Error("no start/finish checkpoint, init ignored")
		return
	}

	t.checkpoints = make([]Checkpoint, len(checkpoints))
	copy(t.checkpoints, checkpoints)
	t.startFinishIdx = startFinish
	t.totalLaps = totalLaps
	t.cb = cb
	t.reset()
	t.state = StateNotStarted
	t.logger.Info("race initialized",
		log.Int("checkpoints", len(checkpoints)),
		log.Int("total_laps", totalLaps))
}

func (t *Tracker) reset() {
	t.current = 0
	t.laps = 0
	t.currentLapTime = 0
	t.lastLapTime = 0
	t.bestLapTime = 0
	t.hasBestLap = false
	t.lapTimes = nil
	t.elapsed = 0
	t.lapCompletedThisTick = false
	t.checkpointPassedThisTick = false
}

// BeginCountdown resets counters and enters Countdown. Timing does not run
// until StartRace.
func (t *Tracker) BeginCountdown() {
	if len(t.checkpoints) == 0 {
		t.logger.Error("countdown requested before init, ignored")
		return
	}
	t.reset()
	t.state = StateCountdown
}

// StartRace resets all counters and transitions to Racing. Lap-1 timing
// begins implicitly here; the first start/finish crossing does not close a
// lap.
func (t *Tracker) StartRace() {
	if len(t.checkpoints) == 0 {
		t.logger.Error("start requested before init, ignored")
		return
	}
	t.reset()
	t.state = StateRacing
	t.logger.Info("race started")
}

// State returns the current lifecycle state.
func (t *Tracker) State() State { return t.state }

// Update advances race timing by dt and tests checkpoint proximity against
// the vehicle position. No-op unless Racing; once Finished, timing stops for
// good. The transient flags live for exactly one tick even across the
// transition into Finished.
func (t *Tracker) Update(dt float64, vehiclePos vmath.Vec3) {
	t.lapCompletedThisTick = false
	t.checkpointPassedThisTick = false

	if t.state != StateRacing {
		return
	}

	t.elapsed += dt
	t.currentLapTime += dt

	cp := t.checkpoints[t.current]
	if vehiclePos.Dist(cp.Position) >= ProximityThreshold {
		return
	}

	t.checkpointPassedThisTick = true
	if t.cb.OnCheckpointPassed != nil {
		t.cb.OnCheckpointPassed(cp.Index, cp)
	}

	// A start/finish crossing closes the running lap, except the very first
	// one after StartRace (laps==0 guard): that one only begins lap-1 timing.
	if cp.IsStartFinish && t.laps > 0 {
		t.closeLap()
	}

	t.current = (t.current + 1) % len(t.checkpoints)
	if t.current == 0 {
		t.laps++
	}

	// The race finalizes when the closing start/finish crossing lands the
	// last lap, so lapTimes always carries exactly totalLaps entries at
	// finish time.
	if t.lapCompletedThisTick && len(t.lapTimes) >= t.totalLaps {
		t.finish()
	}
}

func (t *Tracker) closeLap() {
	lapTime := t.currentLapTime
	t.lapTimes = append(t.lapTimes, lapTime)
	t.lastLapTime = lapTime
	if !t.hasBestLap || lapTime < t.bestLapTime {
		t.bestLapTime = lapTime
		t.hasBestLap = true
	}
	t.currentLapTime = 0
	t.lapCompletedThisTick = true

	if t.cb.OnLapCompleted != nil {
		t.cb.OnLapCompleted(len(t.lapTimes), lapTime, t.bestLapTime)
	}
	t.logger.Info("lap completed",
		log.Int("lap", len(t.lapTimes)),
		log.Float64("lap_time", lapTime),
		log.Float64("best_lap_time", t.bestLapTime))
}

func (t *Tracker) finish() {
	t.state = StateFinished
	if t.cb.OnRaceFinished != nil {
		times := make([]float64, len(t.lapTimes))
		copy(times, t.lapTimes)
		t.cb.OnRaceFinished(t.elapsed, times, t.bestLapTime)
	}
	t.logger.Info("race finished",
		log.Int("laps", len(t.lapTimes)),
		log.Float64("total_time", t.elapsed))
}

// Snapshot returns a deep, independent copy of the race state.
func (t *Tracker) Snapshot() Snapshot {
	s := Snapshot{
		State:                    t.state,
		CurrentCheckpointIndex:   t.current,
		LapsCompleted:            t.laps,
		TotalLaps:                t.totalLaps,
		CurrentLapTime:           t.currentLapTime,
		LastLapTime:              t.lastLapTime,
		RaceTimeElapsed:          t.elapsed,
		IsRaceStarted:            t.state == StateRacing || t.state == StateFinished,
		IsRaceFinished:           t.state == StateFinished,
		LapCompletedThisTick:     t.lapCompletedThisTick,
		CheckpointPassedThisTick: t.checkpointPassedThisTick,
	}
	if t.hasBestLap {
		best := t.bestLapTime
		s.BestLapTime = &best
	}
	if len(t.lapTimes) > 0 {
		s.LapTimes = make([]float64, len(t.lapTimes))
		copy(s.LapTimes, t.lapTimes)
	}
	return s
}

// Checkpoints returns a copy of the configured sequence.
func (t *Tracker) Checkpoints() []Checkpoint {
	out := make([]Checkpoint, len(t.checkpoints))
	copy(out, t.checkpoints)
	return out
}
