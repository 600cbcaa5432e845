// Package collision implements broad+narrow phase contact detection among
// dynamic bodies and against static geometry, with an elastic response
// resolver. There is no continuous collision detection: fast movers can
// tunnel through thin barriers at low tick rates, an accepted limitation at
// the fixed 60 Hz step.
package collision

import (
	"github.com/google/uuid"

	"github.com/apexsim/apexsim/internal/core/vmath"
)

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min, Max vmath.Vec3
}

// AABBAround builds a box from a center point and half extents.
func AABBAround(center, halfExtents vmath.Vec3) AABB {
	return AABB{Min: center.Sub(halfExtents), Max: center.Add(halfExtents)}
}

func (b AABB) Center() vmath.Vec3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

func (b AABB) HalfExtents() vmath.Vec3 {
	return b.Max.Sub(b.Min).Scale(0.5)
}

// Intersects reports axis-aligned overlap on all three axes.
func (b AABB) Intersects(o AABB) bool {
	return b.Min.X <= o.Max.X && b.Max.X >= o.Min.X &&
		b.Min.Y <= o.Max.Y && b.Max.Y >= o.Min.Y &&
		b.Min.Z <= o.Max.Z && b.Max.Z >= o.Min.Z
}

// Sphere is the broad-phase bounding volume, derived from the box.
type Sphere struct {
	Center vmath.Vec3
	Radius float64
}

func (s Sphere) Overlaps(o Sphere) bool {
	r := s.Radius + o.Radius
	return s.Center.DistSq(o.Center) <= r*r
}

func sphereFromBox(b AABB) Sphere {
	return Sphere{Center: b.Center(), Radius: b.HalfExtents().Len()}
}

// Body is the physics back-reference carried by dynamic colliders. Objects
// without one are treated as not collidable rather than as errors.
type Body interface {
	Mass() float64
	Position() vmath.Vec3
	Velocity() vmath.Vec3
	SetVelocity(vmath.Vec3)
	HalfExtents() vmath.Vec3
}

// Contact describes one detected collision: the midpoint of the two bounding
// sphere centers and the unit normal pointing from self toward other.
type Contact struct {
	Point  vmath.Vec3
	Normal vmath.Vec3
}

// Callback is an optional per-collider response hook. When absent, the
// default elastic response applies.
type Callback func(self, other *Collider, contact Contact)

// Collider attaches contact detection to a dynamic or static object.
// Dynamic bounds are recomputed every tick from the body pose; static bounds
// are fixed at registration (track geometry does not move).
type Collider struct {
	id       string
	isStatic bool
	box      AABB
	sphere   Sphere
	body     Body
	callback Callback
}

// NewDynamic registers a moving body. cb may be nil to use the default
// elastic response.
func NewDynamic(body Body, cb Callback) *Collider {
	c := &Collider{
		id:       uuid.NewString(),
		body:     body,
		callback: cb,
	}
	c.refresh()
	return c
}

// NewStatic registers fixed geometry. Static objects receive no callbacks;
// their bounds never change after registration.
func NewStatic(box AABB) *Collider {
	return &Collider{
		id:       uuid.NewString(),
		isStatic: true,
		box:      box,
		sphere:   sphereFromBox(box),
	}
}

func (c *Collider) ID() string { return c.id }

func (c *Collider) IsStatic() bool { return c.isStatic }

func (c *Collider) Box() AABB { return c.box }

func (c *Collider) Sphere() Sphere { return c.sphere }

func (c *Collider) Body() Body { return c.body }

// refresh recenters a dynamic collider's bounds on its body.
func (c *Collider) refresh() {
	if c.isStatic || c.body == nil {
		return
	}
	c.box = AABBAround(c.body.Position(), c.body.HalfExtents())
	c.sphere = sphereFromBox(c.box)
}
