package vehicle

// Archetype is the immutable tuning set for one vehicle class. Loaded once
// from YAML and shared read-only by every instance of that class.
type Archetype struct {
	Name string `yaml:"name"`

	// Drivetrain.
	MaxSpeedKmh  float64 `yaml:"max_speed_kmh"`
	Acceleration float64 `yaml:"acceleration"` // m/s^2 at full throttle
	Deceleration float64 `yaml:"deceleration"` // engine braking, m/s^2
	Braking      float64 `yaml:"braking"`      // m/s^2 at full brake
	MassKg       float64 `yaml:"mass_kg"`

	// Steering.
	MaxSteeringAngle float64 `yaml:"max_steering_angle"` // radians at full lock
	SteeringSpeed    float64 `yaml:"steering_speed"`     // control units per second

	// Suspension: four independent 1-D spring-dampers.
	SuspensionStiffness  float64 `yaml:"suspension_stiffness"` // m/s^2 per meter of compression, per wheel share
	SuspensionDamping    float64 `yaml:"suspension_damping"`
	SuspensionTravel     float64 `yaml:"suspension_travel"`
	SuspensionRestHeight float64 `yaml:"suspension_rest_height"`

	// Geometry.
	WheelBase   float64 `yaml:"wheel_base"`
	TrackWidth  float64 `yaml:"track_width"`
	WheelRadius float64 `yaml:"wheel_radius"`
	BodyLength  float64 `yaml:"body_length"`
	BodyWidth   float64 `yaml:"body_width"`
	BodyHeight  float64 `yaml:"body_height"`

	// Resistances.
	DragCoefficient   float64 `yaml:"drag_coefficient"`
	RollingResistance float64 `yaml:"rolling_resistance"`
}

// Gear ratio table shared by all archetypes. Indexed by gear-1; paired with
// a final drive ratio the way a street transmission is specced.
var (
	gearRatios      = []float64{3.626, 2.188, 1.541, 1.213, 1.0, 0.767}
	finalDriveRatio = 4.1

	// Upshift points as fractions of the archetype's top speed. gearForSpeed
	// walks this table; anything past the last threshold is top gear.
	gearSpeedFractions = []float64{0.14, 0.28, 0.44, 0.62, 0.82}
)

const (
	rpmFloor = 800.0
	rpmCeil  = 8000.0
)

// DefaultArchetype is the baseline street car used when no YAML archetype is
// supplied.
func DefaultArchetype() Archetype {
	return Archetype{
		Name:                 "street",
		MaxSpeedKmh:          180,
		Acceleration:         9.0,
		Deceleration:         4.0,
		Braking:              14.0,
		MassKg:               1200,
		MaxSteeringAngle:     0.61, // ~35 degrees
		SteeringSpeed:        2.5,
		SuspensionStiffness:  60.0,
		SuspensionDamping:    8.0,
		SuspensionTravel:     0.25,
		SuspensionRestHeight: 0.45,
		WheelBase:            2.6,
		TrackWidth:           1.55,
		WheelRadius:          0.33,
		BodyLength:           4.2,
		BodyWidth:            1.8,
		BodyHeight:           1.3,
		DragCoefficient:      0.0025,
		RollingResistance:    0.08,
	}
}

// gearForSpeed picks a gear (1-based) from the fraction of top speed.
func (a Archetype) gearForSpeed(speedKmh float64) int {
	if a.MaxSpeedKmh <= 0 {
		return 1
	}
	frac := speedKmh / a.MaxSpeedKmh
	for i, threshold := range gearSpeedFractions {
		if frac < threshold {
			return i + 1
		}
	}
	return len(gearRatios)
}

// MaxSpeedMps converts the configured top speed to meters per second.
func (a Archetype) MaxSpeedMps() float64 {
	return a.MaxSpeedKmh / 3.6
}
