// Package vehicle implements the per-wheel vehicle dynamics model: suspension
// sampling, force composition, velocity/orientation integration, wheel
// kinematics and derived performance metrics.
package vehicle

import (
	"math"

	"github.com/google/uuid"

	"github.com/apexsim/apexsim/internal/core/observability/log"
	"github.com/apexsim/apexsim/internal/core/vmath"
)

const (
	gravity = 9.81

	// Each wheel carries a quarter of the body weight; the model runs four
	// independent spring-dampers with no cross-coupling.
	wheelWeightShare = 0.25

	// Per-tick multiplicative yaw decay. A tuning constant, not a physical
	// drag coefficient.
	angularDamping = 0.95

	// Defensive cap on the integration step, on top of the scheduler's own
	// frame delta cap.
	maxUpdateDt = 0.1
)

// GroundHeightFunc samples terrain height at a world x/z position. A nil
// function means flat ground at y=0.
type GroundHeightFunc func(x, z float64) float64

// Controls is the current control vector. SteeringCurrent chases
// SteeringTarget at the archetype's steering rate rather than jumping.
type Controls struct {
	Throttle        float64 // [-1, 1]
	Brake           float64 // [0, 1]
	SteeringTarget  float64 // [-1, 1]
	SteeringCurrent float64 // [-1, 1]
}

// ControlInput carries optional control updates; nil fields leave the
// current value untouched. Out-of-range values are clamped, never rejected.
type ControlInput struct {
	Throttle *float64
	Brake    *float64
	Steering *float64
}

// Wheel is the per-wheel state. Front axle wheels are the ones with a
// positive local Z offset.
type Wheel struct {
	LocalOffset     vmath.Vec3
	OnGround        bool
	SuspensionForce float64 // newtons, never negative
	SpinAngle       float64 // radians
	SteeringAngle   float64 // radians, front axle only
	IsFrontAxle     bool
}

// Vehicle owns one VehicleState exclusively. All mutation happens through
// SetControls, Update and SetVelocity (the collision resolver's write path);
// everything else is read-only snapshots.
type Vehicle struct {
	id  string
	cfg Archetype

	position        vmath.Vec3
	orientation     vmath.Quat
	linearVelocity  vmath.Vec3
	angularVelocity vmath.Vec3

	controls Controls
	wheels   [4]Wheel

	// Derived each tick, not authoritative state.
	speedKmh float64
	rpm      float64
	gear     int

	logger log.Log
}

// WheelTransform is the render-facing slice of wheel state.
type WheelTransform struct {
	SpinAngle     float64 `json:"spinAngle"`
	SteeringAngle float64 `json:"steeringAngle"`
}

// Transform is the read-only pose snapshot for the render collaborator.
type Transform struct {
	Position    vmath.Vec3        `json:"position"`
	Orientation vmath.Quat        `json:"orientation"`
	Wheels      [4]WheelTransform `json:"wheels"`
}

// Metrics is the HUD-facing performance snapshot.
type Metrics struct {
	SpeedKmh       float64 `json:"speedKmh"`
	RPM            float64 `json:"rpm"`
	Gear           int     `json:"gear"`
	WheelsOnGround int     `json:"wheelsOnGround"`
}

// New creates a vehicle of the given archetype at a world position. Invalid
// archetype values are reported to the log sink and replaced by defaults
// rather than failing.
func New(cfg Archetype, position vmath.Vec3, logger log.Log) *Vehicle {
	def := DefaultArchetype()
	if cfg.MassKg <= 0 {
		logger.Warn("archetype mass must be positive, using default",
			log.String("archetype", cfg.Name),
			log.Float64("mass_kg", cfg.MassKg))
		cfg.MassKg = def.MassKg
	}
	if cfg.SuspensionStiffness <= 0 {
		logger.Warn("archetype suspension stiffness must be positive, using default",
			log.String("archetype", cfg.Name))
		cfg.SuspensionStiffness = def.SuspensionStiffness
	}
	if cfg.WheelRadius <= 0 {
		cfg.WheelRadius = def.WheelRadius
	}
	if cfg.WheelBase <= 0 {
		cfg.WheelBase = def.WheelBase
	}
	if cfg.SteeringSpeed <= 0 {
		cfg.SteeringSpeed = def.SteeringSpeed
	}

	v := &Vehicle{
		id:          uuid.NewString(),
		cfg:         cfg,
		position:    position,
		orientation: vmath.QuatIdentity(),
		gear:        1,
		rpm:         rpmFloor,
		logger:      logger.With(log.String("component", "vehicle"), log.String("archetype", cfg.Name)),
	}

	halfBase := cfg.WheelBase / 2
	halfTrack := cfg.TrackWidth / 2
	offsets := [4]vmath.Vec3{
		{X: -halfTrack, Z: halfBase},  // front left
		{X: halfTrack, Z: halfBase},   // front right
		{X: -halfTrack, Z: -halfBase}, // rear left
		{X: halfTrack, Z: -halfBase},  // rear right
	}
	for i, off := range offsets {
		v.wheels[i] = Wheel{LocalOffset: off, IsFrontAxle: off.Z > 0}
	}
	return v
}

// EquilibriumRideHeight returns the body height above ground at which the
// suspension exactly cancels gravity. Spawning here avoids a settle bounce.
func (a Archetype) EquilibriumRideHeight() float64 {
	return a.SuspensionRestHeight - gravity/a.SuspensionStiffness
}

func (v *Vehicle) ID() string { return v.id }

func (v *Vehicle) Archetype() Archetype { return v.cfg }

func (v *Vehicle) Position() vmath.Vec3 { return v.position }

func (v *Vehicle) Orientation() vmath.Quat { return v.orientation }

func (v *Vehicle) Velocity() vmath.Vec3 { return v.linearVelocity }

// SetVelocity replaces the linear velocity. Reserved for the collision
// resolver, which runs within the same tick as Update.
func (v *Vehicle) SetVelocity(vel vmath.Vec3) { v.linearVelocity = vel }

func (v *Vehicle) Mass() float64 { return v.cfg.MassKg }

func (v *Vehicle) Controls() Controls { return v.controls }

// HalfExtents returns the body's axis-aligned half sizes for collider setup.
func (v *Vehicle) HalfExtents() vmath.Vec3 {
	return vmath.Vec3{X: v.cfg.BodyWidth / 2, Y: v.cfg.BodyHeight / 2, Z: v.cfg.BodyLength / 2}
}

// SetControls applies a control update. Each supplied field is clamped to
// its valid range. Steering is not applied immediately: SteeringCurrent
// approaches SteeringTarget at the archetype's steering rate over dt — the
// caller's real timestep, so steering response does not vary with frame rate.
func (v *Vehicle) SetControls(in ControlInput, dt float64) {
	if in.Throttle != nil {
		v.controls.Throttle = vmath.Clamp(*in.Throttle, -1, 1)
	}
	if in.Brake != nil {
		v.controls.Brake = vmath.Clamp(*in.Brake, 0, 1)
	}
	if in.Steering != nil {
		v.controls.SteeringTarget = vmath.Clamp(*in.Steering, -1, 1)
	}
	if dt <= 0 {
		return
	}

	maxDelta := v.cfg.SteeringSpeed * dt
	diff := v.controls.SteeringTarget - v.controls.SteeringCurrent
	if math.Abs(diff) <= maxDelta {
		v.controls.SteeringCurrent = v.controls.SteeringTarget
	} else if diff > 0 {
		v.controls.SteeringCurrent += maxDelta
	} else {
		v.controls.SteeringCurrent -= maxDelta
	}
}

// Update advances the vehicle by dt seconds. Steps run in a fixed order:
// suspension sampling, force composition, integration, wheel kinematics,
// angular damping, derived metrics. No errors are raised; out-of-range
// inputs were already clamped at SetControls.
func (v *Vehicle) Update(dt float64, ground GroundHeightFunc) {
	dt = vmath.Clamp(dt, 0, maxUpdateDt)
	if dt == 0 {
		return
	}
	if ground == nil {
		ground = func(x, z float64) float64 { return 0 }
	}

	// 1. Suspension: four independent spring-dampers against the sampled
	// ground height. Force never pulls the body toward the ground.
	totalSuspension := 0.0
	grounded := 0
	for i := range v.wheels {
		w := &v.wheels[i]
		world := v.position.Add(v.orientation.Rotate(w.LocalOffset))
		dist := world.Y - ground(world.X, world.Z)
		w.OnGround = dist < v.cfg.SuspensionRestHeight+v.cfg.SuspensionTravel
		w.SuspensionForce = 0
		if !w.OnGround {
			continue
		}
		grounded++
		compression := v.cfg.SuspensionRestHeight - dist
		f := v.cfg.SuspensionStiffness*compression - v.cfg.SuspensionDamping*v.linearVelocity.Y
		if f > 0 {
			w.SuspensionForce = f * v.cfg.MassKg * wheelWeightShare
			totalSuspension += w.SuspensionForce
		}
	}

	// 2. Force composition.
	force := vmath.Vec3{Y: totalSuspension - v.cfg.MassKg*gravity}

	forward := v.orientation.Forward()
	if grounded > 0 && v.controls.Throttle != 0 {
		force = force.Add(forward.Scale(v.controls.Throttle * v.cfg.Acceleration * v.cfg.MassKg))
	}

	speedSq := v.linearVelocity.LenSq()
	if v.controls.Brake > 0 && speedSq > 0.1 {
		dir := v.linearVelocity.Normalize()
		force = force.Add(dir.Scale(-v.controls.Brake * v.cfg.Braking * v.cfg.MassKg))
	}

	speed := math.Sqrt(speedSq)
	force = force.Add(v.linearVelocity.Scale(-v.cfg.DragCoefficient * speed * v.cfg.MassKg))
	if grounded > 0 {
		force = force.Add(v.linearVelocity.Scale(-v.cfg.RollingResistance * v.cfg.MassKg))
	}

	if grounded > 0 && math.Abs(v.controls.SteeringCurrent) > 0.01 {
		steerAngle := v.controls.SteeringCurrent * v.cfg.MaxSteeringAngle
		forwardSpeed := v.linearVelocity.Dot(forward)
		v.angularVelocity.Y += steerAngle * forwardSpeed / v.cfg.WheelBase * dt
	}

	accel := force.Scale(1.0 / v.cfg.MassKg)
	v.linearVelocity = v.linearVelocity.Add(accel.Scale(dt))

	// Top speed bounds the horizontal component only; vertical motion is
	// gravity's business.
	horiz := vmath.Vec3{X: v.linearVelocity.X, Z: v.linearVelocity.Z}.ClampLen(v.cfg.MaxSpeedMps())
	v.linearVelocity.X, v.linearVelocity.Z = horiz.X, horiz.Z

	// 3. Integration. Orientation composes elementary axis rotations in
	// X, Y, Z order and renormalizes.
	v.position = v.position.Add(v.linearVelocity.Scale(dt))
	v.orientation = v.orientation.IntegrateEuler(v.angularVelocity, dt)

	// 4. Wheel kinematics: spin advances only while grounded; front wheels
	// carry the steering display angle.
	forwardSpeed := v.linearVelocity.Dot(forward)
	spinDelta := forwardSpeed * dt / v.cfg.WheelRadius
	steerDisplay := v.controls.SteeringCurrent * v.cfg.MaxSteeringAngle
	for i := range v.wheels {
		w := &v.wheels[i]
		if w.OnGround {
			w.SpinAngle += spinDelta
		}
		if w.IsFrontAxle {
			w.SteeringAngle = steerDisplay
		}
	}

	// 5. Angular damping.
	v.angularVelocity = v.angularVelocity.Scale(angularDamping)

	// 6. Derived metrics.
	v.speedKmh = v.linearVelocity.Len() * 3.6
	v.gear = v.cfg.gearForSpeed(v.speedKmh)
	wheelOmega := math.Abs(forwardSpeed) / v.cfg.WheelRadius
	rpm := wheelOmega * gearRatios[v.gear-1] * finalDriveRatio * 60 / (2 * math.Pi)
	v.rpm = vmath.Clamp(rpm, rpmFloor, rpmCeil)
}

// Transform returns a read-only pose snapshot for the render collaborator.
func (v *Vehicle) Transform() Transform {
	t := Transform{Position: v.position, Orientation: v.orientation}
	for i, w := range v.wheels {
		t.Wheels[i] = WheelTransform{SpinAngle: w.SpinAngle, SteeringAngle: w.SteeringAngle}
	}
	return t
}

// PerformanceMetrics returns the HUD snapshot.
func (v *Vehicle) PerformanceMetrics() Metrics {
	grounded := 0
	for _, w := range v.wheels {
		if w.OnGround {
			grounded++
		}
	}
	return Metrics{
		SpeedKmh:       v.speedKmh,
		RPM:            v.rpm,
		Gear:           v.gear,
		WheelsOnGround: grounded,
	}
}

// Wheels returns a copy of the per-wheel state.
func (v *Vehicle) Wheels() [4]Wheel {
	return v.wheels
}
