package collision

import "github.com/apexsim/apexsim/internal/core/vmath"

// Energy-loss factors. Walls absorb more energy than vehicle-vehicle contact.
const (
	RestitutionDynamic = 0.8
	RestitutionStatic  = 0.5
)

// ResolveElastic computes post-contact velocities for two dynamic bodies
// along the contact normal using the standard two-body elastic formula,
// scaled by the restitution factor. Tangential components pass through
// unchanged. Pure function: callers apply the results.
func ResolveElastic(m1, m2 float64, v1, v2, normal vmath.Vec3, restitution float64) (vmath.Vec3, vmath.Vec3) {
	n := normal.Normalize()
	if n == (vmath.Vec3{}) || m1+m2 <= 0 {
		return v1, v2
	}

	u1 := v1.Dot(n)
	u2 := v2.Dot(n)

	nu1 := ((m1-m2)*u1 + 2*m2*u2) / (m1 + m2) * restitution
	nu2 := ((m2-m1)*u2 + 2*m1*u1) / (m1 + m2) * restitution

	out1 := v1.Add(n.Scale(nu1 - u1))
	out2 := v2.Add(n.Scale(nu2 - u2))
	return out1, out2
}

// ReflectStatic computes the velocity of a dynamic body after hitting static
// geometry: the normal component reflects scaled by restitution, as if the
// wall had infinite mass. Pure function.
func ReflectStatic(v, normal vmath.Vec3, restitution float64) vmath.Vec3 {
	n := normal.Normalize()
	if n == (vmath.Vec3{}) {
		return v
	}
	vn := v.Dot(n)
	tangent := v.Sub(n.Scale(vn))
	return tangent.Add(n.Scale(-vn * restitution))
}
