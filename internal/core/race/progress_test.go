package race

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexsim/apexsim/internal/core/observability/log"
	"github.com/apexsim/apexsim/internal/core/vmath"
)

const tick = 1.0 / 60.0

func squareCheckpoints() []Checkpoint {
	return []Checkpoint{
		{Position: vmath.Vec3{}, Index: 0, IsStartFinish: true},
		{Position: vmath.Vec3{X: 100}, Index: 1},
		{Position: vmath.Vec3{X: 100, Z: 100}, Index: 2},
		{Position: vmath.Vec3{Z: 100}, Index: 3},
	}
}

func newRacingTracker(t *testing.T, totalLaps int, cb Callbacks) *Tracker {
	t.Helper()
	tr := NewTracker(log.Nop())
	tr.Init(squareCheckpoints(), totalLaps, cb)
	require.Equal(t, StateNotStarted, tr.State())
	tr.StartRace()
	require.Equal(t, StateRacing, tr.State())
	return tr
}

// driveTo advances the tracker with positions away from everything, then one
// update inside the target checkpoint's threshold.
func driveTo(tr *Tracker, cp Checkpoint) {
	tr.Update(tick, vmath.Vec3{X: 500, Z: 500})
	tr.Update(tick, cp.Position.Add(vmath.Vec3{X: 3}))
}

func TestFirstStartFinishCrossingDoesNotCloseLap(t *testing.T) {
	tr := newRacingTracker(t, 2, Callbacks{})
	tr.Update(tick, vmath.Vec3{X: 1}) // inside threshold of checkpoint 0

	s := tr.Snapshot()
	assert.Equal(t, 0, s.LapsCompleted)
	assert.Empty(t, s.LapTimes)
	assert.True(t, s.CheckpointPassedThisTick)
	assert.False(t, s.LapCompletedThisTick)
	assert.Equal(t, 1, s.CurrentCheckpointIndex)
}

func TestFullRaceScenario(t *testing.T) {
	var finishedTotal float64
	var finishedLaps []float64
	cps := squareCheckpoints()
	tr := newRacingTracker(t, 2, Callbacks{
		OnRaceFinished: func(total float64, lapTimes []float64, best float64) {
			finishedTotal = total
			finishedLaps = lapTimes
		},
	})

	// 0,1,2,3,0,1,2,3 — eight ordered passes.
	order := []int{0, 1, 2, 3, 0, 1, 2, 3}
	for _, idx := range order {
		driveTo(tr, cps[idx])
		assert.False(t, tr.Snapshot().IsRaceFinished)
	}

	// Ninth pass: the closing start/finish crossing ends the race.
	driveTo(tr, cps[0])
	s := tr.Snapshot()
	assert.True(t, s.IsRaceFinished)
	require.Len(t, s.LapTimes, 2)
	require.NotNil(t, s.BestLapTime)
	assert.Equal(t, min(s.LapTimes[0], s.LapTimes[1]), *s.BestLapTime)
	assert.Greater(t, finishedTotal, 0.0)
	assert.Len(t, finishedLaps, 2)

	// Further updates are no-ops: timing is frozen.
	before := tr.Snapshot()
	driveTo(tr, cps[1])
	after := tr.Snapshot()
	assert.Equal(t, before.RaceTimeElapsed, after.RaceTimeElapsed)
	assert.Equal(t, before.LapTimes, after.LapTimes)
	assert.False(t, after.CheckpointPassedThisTick)
	assert.False(t, after.LapCompletedThisTick)
}

func TestCheckpointsMustBePassedInOrder(t *testing.T) {
	cps := squareCheckpoints()
	tr := newRacingTracker(t, 1, Callbacks{})

	// Checkpoint 2 is not current; proximity to it does nothing.
	tr.Update(tick, cps[2].Position)
	s := tr.Snapshot()
	assert.Equal(t, 0, s.CurrentCheckpointIndex)
	assert.False(t, s.CheckpointPassedThisTick)
}

func TestDirectionAgnosticProximity(t *testing.T) {
	cps := squareCheckpoints()
	tr := newRacingTracker(t, 1, Callbacks{})

	// Approaching from the "wrong" side still counts.
	tr.Update(tick, cps[0].Position.Add(vmath.Vec3{X: -9, Z: 0}))
	assert.True(t, tr.Snapshot().CheckpointPassedThisTick)
}

func TestSnapshotIsDeepAndIdempotent(t *testing.T) {
	cps := squareCheckpoints()
	tr := newRacingTracker(t, 3, Callbacks{})
	for _, idx := range []int{0, 1, 2, 3, 0} {
		driveTo(tr, cps[idx])
	}

	a := tr.Snapshot()
	b := tr.Snapshot()
	assert.Equal(t, a, b, "snapshots without an intervening update are equal")

	require.NotEmpty(t, a.LapTimes)
	a.LapTimes[0] = -1
	*a.BestLapTime = -1
	c := tr.Snapshot()
	assert.NotEqual(t, -1.0, c.LapTimes[0], "mutating a snapshot must not leak inward")
	assert.NotEqual(t, -1.0, *c.BestLapTime)
	assert.NotEqual(t, -1.0, b.LapTimes[0], "snapshots must not share backing storage")
}

func TestCallbackSequence(t *testing.T) {
	var passed []int
	var lapsCompleted []int
	cps := squareCheckpoints()
	tr := newRacingTracker(t, 2, Callbacks{
		OnCheckpointPassed: func(index int, cp Checkpoint) { passed = append(passed, index) },
		OnLapCompleted: func(lap int, lapTime, best float64) {
			lapsCompleted = append(lapsCompleted, lap)
			assert.Greater(t, lapTime, 0.0)
			assert.LessOrEqual(t, best, lapTime)
		},
	})

	for _, idx := range []int{0, 1, 2, 3, 0, 1, 2, 3, 0} {
		driveTo(tr, cps[idx])
	}
	assert.Equal(t, []int{0, 1, 2, 3, 0, 1, 2, 3, 0}, passed)
	assert.Equal(t, []int{1, 2}, lapsCompleted)
}

func TestTransientFlagsClearNextTick(t *testing.T) {
	tr := newRacingTracker(t, 2, Callbacks{})
	tr.Update(tick, vmath.Vec3{X: 1})
	assert.True(t, tr.Snapshot().CheckpointPassedThisTick)

	tr.Update(tick, vmath.Vec3{X: 500})
	assert.False(t, tr.Snapshot().CheckpointPassedThisTick)
}

func TestTransientFlagsClearAfterFinish(t *testing.T) {
	cps := squareCheckpoints()
	tr := newRacingTracker(t, 1, Callbacks{})

	// The finishing start/finish crossing raises both flags for one tick.
	for _, idx := range []int{0, 1, 2, 3, 0} {
		driveTo(tr, cps[idx])
	}
	s := tr.Snapshot()
	require.True(t, s.IsRaceFinished)
	assert.True(t, s.CheckpointPassedThisTick)
	assert.True(t, s.LapCompletedThisTick)

	// One more update, and they are gone even though timing stays frozen.
	tr.Update(tick, vmath.Vec3{X: 500})
	after := tr.Snapshot()
	assert.False(t, after.CheckpointPassedThisTick)
	assert.False(t, after.LapCompletedThisTick)
	assert.Equal(t, s.RaceTimeElapsed, after.RaceTimeElapsed)
}

func TestUpdateNoOpUnlessRacing(t *testing.T) {
	tr := NewTracker(log.Nop())
	tr.Init(squareCheckpoints(), 2, Callbacks{})

	tr.Update(tick, vmath.Vec3{X: 1})
	s := tr.Snapshot()
	assert.Zero(t, s.RaceTimeElapsed)
	assert.False(t, s.CheckpointPassedThisTick)

	tr.BeginCountdown()
	tr.Update(tick, vmath.Vec3{X: 1})
	assert.Zero(t, tr.Snapshot().RaceTimeElapsed, "countdown does not run race timing")
}

func TestInvalidInitIsNoOp(t *testing.T) {
	tr := NewTracker(log.Nop())

	tr.Init(nil, 2, Callbacks{})
	tr.StartRace()
	assert.Equal(t, StateNotStarted, tr.State())

	double := squareCheckpoints()
	double[2].IsStartFinish = true
	tr.Init(double, 2, Callbacks{})
	tr.StartRace()
	assert.Equal(t, StateNotStarted, tr.State())

	none := squareCheckpoints()
	none[0].IsStartFinish = false
	tr.Init(none, 2, Callbacks{})
	tr.StartRace()
	assert.Equal(t, StateNotStarted, tr.State())

	tr.Init(squareCheckpoints(), 0, Callbacks{})
	tr.StartRace()
	assert.Equal(t, StateNotStarted, tr.State())
}

func TestLapTimingAccumulates(t *testing.T) {
	tr := newRacingTracker(t, 1, Callbacks{})

	for i := 0; i < 60; i++ {
		tr.Update(tick, vmath.Vec3{X: 500})
	}
	s := tr.Snapshot()
	assert.InDelta(t, 1.0, s.RaceTimeElapsed, 1e-9)
	assert.InDelta(t, 1.0, s.CurrentLapTime, 1e-9)
}
