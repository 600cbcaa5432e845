package collision

import (
	"github.com/apexsim/apexsim/internal/core/observability/log"
	"github.com/apexsim/apexsim/internal/core/vmath"
)

// System maintains the dynamic and static collider sets and runs pairwise
// contact detection each tick. Pairwise checks are O(n²) and run serially;
// vehicle counts stay small enough that a spatial index would be overhead.
type System struct {
	dynamic []*Collider
	static  []*Collider
	logger  log.Log
}

func NewSystem(logger log.Log) *System {
	return &System{logger: logger.With(log.String("component", "collision"))}
}

// AddDynamic registers a moving collider. Colliders without a physics body
// are accepted but skipped during detection.
func (s *System) AddDynamic(c *Collider) {
	if c == nil || c.isStatic {
		s.logger.Warn("ignoring invalid dynamic collider registration")
		return
	}
	s.dynamic = append(s.dynamic, c)
}

// AddStatic registers fixed geometry. Bounds are final at this point.
func (s *System) AddStatic(c *Collider) {
	if c == nil || !c.isStatic {
		s.logger.Warn("ignoring invalid static collider registration")
		return
	}
	s.static = append(s.static, c)
}

// Remove unregisters a collider by ID. Unknown IDs are a no-op.
func (s *System) Remove(id string) {
	s.dynamic = removeByID(s.dynamic, id)
	s.static = removeByID(s.static, id)
}

func removeByID(cs []*Collider, id string) []*Collider {
	for i, c := range cs {
		if c.id == id {
			return append(cs[:i], cs[i+1:]...)
		}
	}
	return cs
}

// Update refreshes dynamic bounds and resolves contacts. Order per tick:
// dynamic-dynamic pairs first, then each dynamic against every static.
// Only velocities change; there is no penetration resolution or positional
// correction.
func (s *System) Update(dt float64) {
	for _, c := range s.dynamic {
		c.refresh()
	}

	for i := 0; i < len(s.dynamic); i++ {
		for j := i + 1; j < len(s.dynamic); j++ {
			s.resolveDynamicPair(s.dynamic[i], s.dynamic[j])
		}
	}

	for _, d := range s.dynamic {
		for _, st := range s.static {
			s.resolveAgainstStatic(d, st)
		}
	}
}

func (s *System) resolveDynamicPair(a, b *Collider) {
	if a.body == nil || b.body == nil {
		return
	}
	if !a.sphere.Overlaps(b.sphere) {
		return
	}
	if !a.box.Intersects(b.box) {
		return
	}

	point := a.sphere.Center.Add(b.sphere.Center).Scale(0.5)
	normal := b.sphere.Center.Sub(a.sphere.Center).Normalize()
	if normal == (vmath.Vec3{}) {
		// Coincident centers carry no direction; skip rather than invent one.
		return
	}

	// Default responses are computed from pre-contact velocities before
	// either side mutates, so the exchange conserves momentum up to the
	// restitution factor.
	v1, v2 := ResolveElastic(
		a.body.Mass(), b.body.Mass(),
		a.body.Velocity(), b.body.Velocity(),
		normal, RestitutionDynamic,
	)

	if a.callback != nil {
		a.callback(a, b, Contact{Point: point, Normal: normal})
	} else {
		a.body.SetVelocity(v1)
	}
	if b.callback != nil {
		b.callback(b, a, Contact{Point: point, Normal: normal.Scale(-1)})
	} else {
		b.body.SetVelocity(v2)
	}
}

func (s *System) resolveAgainstStatic(d, st *Collider) {
	if d.body == nil {
		return
	}
	if !d.sphere.Overlaps(st.sphere) {
		return
	}
	if !d.box.Intersects(st.box) {
		return
	}

	point := d.sphere.Center.Add(st.sphere.Center).Scale(0.5)
	normal := st.sphere.Center.Sub(d.sphere.Center).Normalize()
	if normal == (vmath.Vec3{}) {
		return
	}

	// Static geometry never receives callbacks.
	if d.callback != nil {
		d.callback(d, st, Contact{Point: point, Normal: normal})
		return
	}
	d.body.SetVelocity(ReflectStatic(d.body.Velocity(), normal, RestitutionStatic))
}
