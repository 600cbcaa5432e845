// Package session orchestrates one race: it owns the scheduler, the
// vehicles, the collision system and per-vehicle race progress, and
// publishes a single merged snapshot per fixed tick so observers never see
// a partially-updated mixed state.
package session

import (
	"sort"
	"sync"

	"github.com/apexsim/apexsim/internal/core/clock"
	"github.com/apexsim/apexsim/internal/core/collision"
	"github.com/apexsim/apexsim/internal/core/events/bus"
	"github.com/apexsim/apexsim/internal/core/observability/log"
	"github.com/apexsim/apexsim/internal/core/race"
	"github.com/apexsim/apexsim/internal/core/track"
	"github.com/apexsim/apexsim/internal/core/vehicle"
	"github.com/apexsim/apexsim/internal/core/vmath"
)

// Config tunes the race lifecycle.
type Config struct {
	CountdownSeconds float64
	// TotalLaps overrides the track's lap count when positive.
	TotalLaps int
}

// CheckpointEvent is the payload of bus.TypeCheckpointPassed.
type CheckpointEvent struct {
	VehicleID string
	Index     int
}

// LapEvent is the payload of bus.TypeLapCompleted.
type LapEvent struct {
	VehicleID   string
	Lap         int
	LapTime     float64
	BestLapTime float64
}

// FinishEvent is the payload of bus.TypeRaceFinished.
type FinishEvent struct {
	VehicleID   string
	TotalTime   float64
	LapTimes    []float64
	BestLapTime float64
}

// VehicleSnapshot merges one vehicle's pose, HUD metrics and race progress.
type VehicleSnapshot struct {
	ID        string            `json:"id"`
	Transform vehicle.Transform `json:"transform"`
	Metrics   vehicle.Metrics   `json:"metrics"`
	Race      race.Snapshot     `json:"race"`
}

// Snapshot is the outward-facing state published once per fixed tick.
type Snapshot struct {
	Tick      int64             `json:"tick"`
	SimTime   float64           `json:"simTime"`
	Countdown float64           `json:"countdown"` // seconds until Racing; 0 once underway
	Vehicles  []VehicleSnapshot `json:"vehicles"`
	Standings []string          `json:"standings"` // vehicle IDs, leader first
}

type participant struct {
	vehicle  *vehicle.Vehicle
	tracker  *race.Tracker
	collider *collision.Collider
}

// Session composes the simulation per fixed tick. Data flows one direction:
// control input → dynamics → collision (may mutate velocity) → race progress
// → snapshot publish.
type Session struct {
	sched      *clock.Scheduler
	collisions *collision.System
	trk        *track.Track
	events     bus.EventBus
	logger     log.Log

	countdownTotal     float64
	countdownRemaining float64
	totalLaps          int
	raceStarted        bool

	// mu guards participants and byID; vehicles join from connection
	// handler goroutines while the tick loop iterates.
	mu           sync.RWMutex
	participants []*participant
	byID         map[string]*participant

	pendingMu sync.Mutex
	pending   map[string]vehicle.ControlInput

	snapMu   sync.RWMutex
	snapshot Snapshot
	tick     int64
	simTime  float64

	onStateChanged func(Snapshot)
}

// New builds a session on the given track. The scheduler is created stopped;
// call StartRace then drive Frame from the host loop.
func New(cfg Config, trk *track.Track, events bus.EventBus, clockCfg clock.Config, logger log.Log) *Session {
	totalLaps := trk.TotalLaps()
	if cfg.TotalLaps > 0 {
		totalLaps = cfg.TotalLaps
	}
	s := &Session{
		sched:          clock.New(clockCfg, logger),
		collisions:     collision.NewSystem(logger),
		trk:            trk,
		events:         events,
		logger:         logger.With(log.String("component", "session")),
		countdownTotal: cfg.CountdownSeconds,
		totalLaps:      totalLaps,
		byID:           make(map[string]*participant),
		pending:        make(map[string]vehicle.ControlInput),
	}

	for _, box := range trk.StaticColliders() {
		s.collisions.AddStatic(collision.NewStatic(box))
	}
	s.sched.OnFixedUpdate(s.fixedTick)
	return s
}

// AddVehicle places a vehicle of the given archetype on the starting grid
// and returns its ID. Grid slots stagger sideways behind the start line.
func (s *Session) AddVehicle(arch vehicle.Archetype) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	cps := s.trk.Checkpoints()
	start := cps[0].Position
	slot := len(s.participants)
	spawn := vmath.Vec3{
		X: start.X + float64(slot%2)*3 - 1.5,
		Y: s.trk.HeightAt(start.X, start.Z) + arch.EquilibriumRideHeight(),
		Z: start.Z - float64(slot)*6,
	}

	v := vehicle.New(arch, spawn, s.logger)
	tracker := race.NewTracker(s.logger)
	id := v.ID()
	tracker.Init(cps, s.totalLaps, race.Callbacks{
		OnCheckpointPassed: func(index int, cp race.Checkpoint) {
			_ = s.events.Publish(bus.NewEvent(bus.TypeCheckpointPassed, id,
				CheckpointEvent{VehicleID: id, Index: index}))
		},
		OnLapCompleted: func(lap int, lapTime, best float64) {
			_ = s.events.Publish(bus.NewEvent(bus.TypeLapCompleted, id,
				LapEvent{VehicleID: id, Lap: lap, LapTime: lapTime, BestLapTime: best}))
		},
		OnRaceFinished: func(total float64, lapTimes []float64, best float64) {
			_ = s.events.Publish(bus.NewEvent(bus.TypeRaceFinished, id,
				FinishEvent{VehicleID: id, TotalTime: total, LapTimes: lapTimes, BestLapTime: best}))
		},
	})

	// Late joiners enter whatever phase the race is in.
	if s.raceStarted {
		if s.countdownRemaining > 0 {
			tracker.BeginCountdown()
		} else {
			tracker.StartRace()
		}
	}

	p := &participant{
		vehicle:  v,
		tracker:  tracker,
		collider: collision.NewDynamic(v, nil),
	}
	s.collisions.AddDynamic(p.collider)
	s.participants = append(s.participants, p)
	s.byID[id] = p

	s.logger.Info("vehicle added",
		log.String("vehicle_id", id),
		log.String("archetype", arch.Name),
		log.Int("grid_slot", slot))
	return id
}

// RemoveVehicle drops a vehicle from the session, typically when its client
// disconnects mid-race. Unknown IDs are a no-op.
func (s *Session) RemoveVehicle(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return
	}
	delete(s.byID, id)
	for i, q := range s.participants {
		if q == p {
			s.participants = append(s.participants[:i], s.participants[i+1:]...)
			break
		}
	}
	s.collisions.Remove(p.collider.ID())
	s.logger.Info("vehicle removed", log.String("vehicle_id", id))
}

// SubmitControls records the latest control vector for a vehicle. Controls
// are applied at the start of the next fixed tick; controls for unknown
// vehicle IDs are dropped there. Safe to call from any goroutine, including
// event bus handlers.
func (s *Session) SubmitControls(vehicleID string, in vehicle.ControlInput) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	cur := s.pending[vehicleID]
	if in.Throttle != nil {
		cur.Throttle = in.Throttle
	}
	if in.Brake != nil {
		cur.Brake = in.Brake
	}
	if in.Steering != nil {
		cur.Steering = in.Steering
	}
	s.pending[vehicleID] = cur
}

// OnStateChanged registers the per-tick snapshot callback. Invoked exactly
// once per fixed tick, after all sub-systems have run.
func (s *Session) OnStateChanged(fn func(Snapshot)) {
	s.onStateChanged = fn
}

// StartRace begins the countdown and starts the scheduler.
func (s *Session) StartRace() {
	s.mu.Lock()
	s.raceStarted = true
	s.countdownRemaining = s.countdownTotal
	for _, p := range s.participants {
		p.tracker.BeginCountdown()
	}
	if s.countdownRemaining <= 0 {
		s.beginRacing()
	}
	vehicles := len(s.participants)
	s.mu.Unlock()

	s.sched.Start()
	s.logger.Info("race starting",
		log.Int("vehicles", vehicles),
		log.Float64("countdown", s.countdownTotal))
}

func (s *Session) beginRacing() {
	s.countdownRemaining = 0
	for _, p := range s.participants {
		p.tracker.StartRace()
	}
}

// Frame feeds one host frame into the scheduler.
func (s *Session) Frame(now float64) {
	s.sched.Frame(now)
}

// Pause suspends the simulation without losing state.
func (s *Session) Pause() { s.sched.Pause() }

// Resume continues a paused simulation with no catch-up burst.
func (s *Session) Resume() { s.sched.Resume() }

// Stop halts the scheduler.
func (s *Session) Stop() { s.sched.Stop() }

// Scheduler exposes the clock for hosts that need time scale or metrics.
func (s *Session) Scheduler() *clock.Scheduler { return s.sched }

// Track returns the circuit this session races on.
func (s *Session) Track() *track.Track { return s.trk }

// fixedTick runs one simulation step. Ordering within the tick is strict:
// controls, dynamics, collision, race progress, then the single publish.
// The checkpoint/lap events fired by tracker updates are delivered while the
// participant lock is held; handlers must not call back into AddVehicle.
func (s *Session) fixedTick(dt float64) {
	s.mu.Lock()
	s.applyPendingControls(dt)

	if s.countdownRemaining > 0 {
		s.countdownRemaining -= dt
		if s.countdownRemaining <= 0 {
			s.beginRacing()
		}
	} else {
		for _, p := range s.participants {
			p.vehicle.Update(dt, s.trk.HeightAt)
		}
		s.collisions.Update(dt)
		for _, p := range s.participants {
			p.tracker.Update(dt, p.vehicle.Position())
		}
	}

	snap := s.buildSnapshot(dt)
	s.mu.Unlock()

	s.snapMu.Lock()
	s.snapshot = snap
	s.snapMu.Unlock()

	_ = s.events.Publish(bus.NewEvent(bus.TypeStateChanged, "session", snap))
	if s.onStateChanged != nil {
		s.onStateChanged(snap)
	}
}

func (s *Session) applyPendingControls(dt float64) {
	s.pendingMu.Lock()
	pending := s.pending
	s.pending = make(map[string]vehicle.ControlInput, len(pending))
	s.pendingMu.Unlock()

	for id := range pending {
		if _, ok := s.byID[id]; !ok {
			s.logger.Warn("controls for unknown vehicle dropped", log.String("vehicle_id", id))
		}
	}

	// Every vehicle gets a SetControls call each tick so steering keeps
	// approaching its target even without fresh input.
	for id, p := range s.byID {
		p.vehicle.SetControls(pending[id], dt)
	}
}

// buildSnapshot assembles the per-tick snapshot. Caller holds s.mu.
func (s *Session) buildSnapshot(dt float64) Snapshot {
	s.tick++
	s.simTime += dt

	snap := Snapshot{
		Tick:      s.tick,
		SimTime:   s.simTime,
		Countdown: s.countdownRemaining,
		Vehicles:  make([]VehicleSnapshot, 0, len(s.participants)),
	}
	for _, p := range s.participants {
		snap.Vehicles = append(snap.Vehicles, VehicleSnapshot{
			ID:        p.vehicle.ID(),
			Transform: p.vehicle.Transform(),
			Metrics:   p.vehicle.PerformanceMetrics(),
			Race:      p.tracker.Snapshot(),
		})
	}
	snap.Standings = s.standings()
	return snap
}

// standings orders vehicles by laps, then checkpoint index, then distance to
// the next checkpoint. Caller holds s.mu.
func (s *Session) standings() []string {
	cps := s.trk.Checkpoints()
	type entry struct {
		id       string
		laps     int
		cp       int
		distance float64
	}
	entries := make([]entry, 0, len(s.participants))
	for _, p := range s.participants {
		rs := p.tracker.Snapshot()
		next := cps[rs.CurrentCheckpointIndex]
		entries = append(entries, entry{
			id:       p.vehicle.ID(),
			laps:     rs.LapsCompleted,
			cp:       rs.CurrentCheckpointIndex,
			distance: p.vehicle.Position().Dist(next.Position),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].laps != entries[j].laps {
			return entries[i].laps > entries[j].laps
		}
		if entries[i].cp != entries[j].cp {
			return entries[i].cp > entries[j].cp
		}
		return entries[i].distance < entries[j].distance
	})

	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.id
	}
	return out
}

// Snapshot returns the latest published state. Safe from any goroutine.
// Copies are deep down to the per-vehicle race data, so callers can mutate
// them freely.
func (s *Session) Snapshot() Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	snap := s.snapshot
	snap.Vehicles = append([]VehicleSnapshot(nil), s.snapshot.Vehicles...)
	snap.Standings = append([]string(nil), s.snapshot.Standings...)
	for i := range snap.Vehicles {
		r := &snap.Vehicles[i].Race
		if r.LapTimes != nil {
			r.LapTimes = append([]float64(nil), r.LapTimes...)
		}
		if r.BestLapTime != nil {
			best := *r.BestLapTime
			r.BestLapTime = &best
		}
	}
	return snap
}
