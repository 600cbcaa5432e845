package vmath

import "math"

// Quat is a unit quaternion describing an orientation.
type Quat struct {
	W, X, Y, Z float64
}

// QuatIdentity is the no-rotation orientation.
func QuatIdentity() Quat {
	return Quat{W: 1}
}

// QuatFromAxisAngle builds a rotation of angle radians about the given axis.
// The axis is normalized internally; a degenerate axis yields identity.
func QuatFromAxisAngle(axis Vec3, angle float64) Quat {
	n := axis.Normalize()
	if n == (Vec3{}) {
		return QuatIdentity()
	}
	half := angle * 0.5
	s := math.Sin(half)
	return Quat{
		W: math.Cos(half),
		X: n.X * s,
		Y: n.Y * s,
		Z: n.Z * s,
	}
}

// Mul composes two rotations; q.Mul(r) applies r first, then q.
func (q Quat) Mul(r Quat) Quat {
	return Quat{
		W: q.W*r.W - q.X*r.X - q.Y*r.Y - q.Z*r.Z,
		X: q.W*r.X + q.X*r.W + q.Y*r.Z - q.Z*r.Y,
		Y: q.W*r.Y - q.X*r.Z + q.Y*r.W + q.Z*r.X,
		Z: q.W*r.Z + q.X*r.Y - q.Y*r.X + q.Z*r.W,
	}
}

// Normalize rescales q to unit length. A degenerate quaternion collapses to
// identity rather than propagating NaNs through the integrator.
func (q Quat) Normalize() Quat {
	l := math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
	if l < 1e-9 {
		return QuatIdentity()
	}
	inv := 1.0 / l
	return Quat{q.W * inv, q.X * inv, q.Y * inv, q.Z * inv}
}

// Rotate applies the rotation to a vector.
func (q Quat) Rotate(v Vec3) Vec3 {
	// v' = v + 2*u x (u x v + w*v), u = (x,y,z)
	u := Vec3{q.X, q.Y, q.Z}
	t := u.Cross(v).Add(v.Scale(q.W)).Scale(2)
	return v.Add(u.Cross(t))
}

// Forward returns the body-local +Z axis in world space.
func (q Quat) Forward() Vec3 {
	return q.Rotate(Vec3{Z: 1})
}

// Up returns the body-local +Y axis in world space.
func (q Quat) Up() Vec3 {
	return q.Rotate(Vec3{Y: 1})
}

// Right returns the body-local +X axis in world space.
func (q Quat) Right() Vec3 {
	return q.Rotate(Vec3{X: 1})
}

// IntegrateEuler advances q by elementary axis rotations of w*dt applied in
// X, Y, Z order, then renormalizes. This is an approximation of proper
// angular integration; renormalization is the only drift correction.
func (q Quat) IntegrateEuler(w Vec3, dt float64) Quat {
	out := q
	if a := w.X * dt; a != 0 {
		out = out.Mul(QuatFromAxisAngle(Vec3{X: 1}, a))
	}
	if a := w.Y * dt; a != 0 {
		out = out.Mul(QuatFromAxisAngle(Vec3{Y: 1}, a))
	}
	if a := w.Z * dt; a != 0 {
		out = out.Mul(QuatFromAxisAngle(Vec3{Z: 1}, a))
	}
	return out.Normalize()
}
