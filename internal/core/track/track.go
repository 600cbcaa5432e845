// Package track models a race track as a closed set of segment variants
// (straight, curve, ramp) plus environment props (tree, rock, building,
// mountain). Variants dispatch on a kind tag behind one capability surface:
// each piece reports its entry/exit pose, emits static colliders and
// contributes to the ground-height field.
package track

import (
	"math"

	"github.com/pkg/errors"

	"github.com/apexsim/apexsim/internal/core/collision"
	"github.com/apexsim/apexsim/internal/core/race"
	"github.com/apexsim/apexsim/internal/core/vmath"
)

// Pose is a position plus a yaw heading. Heading 0 faces +Z.
type Pose struct {
	Position vmath.Vec3
	Heading  float64
}

func (p Pose) forward() vmath.Vec3 {
	return vmath.Vec3{X: math.Sin(p.Heading), Z: math.Cos(p.Heading)}
}

func (p Pose) right() vmath.Vec3 {
	return vmath.Vec3{X: math.Cos(p.Heading), Z: -math.Sin(p.Heading)}
}

// SegmentKind tags the segment variant.
type SegmentKind string

const (
	SegmentStraight SegmentKind = "straight"
	SegmentCurve    SegmentKind = "curve"
	SegmentRamp     SegmentKind = "ramp"
)

// PropKind tags the environment prop variant.
type PropKind string

const (
	PropTree     PropKind = "tree"
	PropRock     PropKind = "rock"
	PropBuilding PropKind = "building"
	PropMountain PropKind = "mountain"
)

// propHalfExtents is the fixed behavioral surface per prop variant.
var propHalfExtents = map[PropKind]vmath.Vec3{
	PropTree:     {X: 0.5, Y: 3, Z: 0.5},
	PropRock:     {X: 1, Y: 1, Z: 1},
	PropBuilding: {X: 5, Y: 8, Z: 5},
	PropMountain: {X: 20, Y: 30, Z: 20},
}

const (
	barrierThickness = 0.5
	barrierHeight    = 2.0
)

// SegmentDef is one YAML segment entry. Which fields apply depends on Kind:
// straight/ramp use Length (and Rise for ramps), curve uses Radius and
// AngleDeg (positive sweeps right).
type SegmentDef struct {
	Kind     SegmentKind `yaml:"kind"`
	Length   float64     `yaml:"length"`
	Radius   float64     `yaml:"radius"`
	AngleDeg float64     `yaml:"angle_deg"`
	Rise     float64     `yaml:"rise"`
}

// PropDef places an environment prop in world space.
type PropDef struct {
	Kind PropKind `yaml:"kind"`
	X    float64  `yaml:"x"`
	Z    float64  `yaml:"z"`
}

// Definition is the YAML track description.
type Definition struct {
	Name      string       `yaml:"name"`
	TotalLaps int          `yaml:"total_laps"`
	Width     float64      `yaml:"width"`
	Segments  []SegmentDef `yaml:"segments"`
	Props     []PropDef    `yaml:"props"`
}

// rampPatch is one sloped region of the height field, linear along the
// segment direction within half a track width laterally.
type rampPatch struct {
	entry  vmath.Vec3
	dir    vmath.Vec3 // unit, XZ plane
	length float64
	width  float64
	rise   float64
}

func (r rampPatch) heightAt(x, z float64) (float64, bool) {
	d := vmath.Vec3{X: x - r.entry.X, Z: z - r.entry.Z}
	along := d.Dot(r.dir)
	if along < 0 || along > r.length {
		return 0, false
	}
	perp := vmath.Vec3{X: r.dir.Z, Z: -r.dir.X}
	if math.Abs(d.Dot(perp)) > r.width/2 {
		return 0, false
	}
	return r.entry.Y + r.rise*along/r.length, true
}

// Track is the built, immutable runtime form of a Definition.
type Track struct {
	name        string
	totalLaps   int
	checkpoints []race.Checkpoint
	colliders   []collision.AABB
	patches     []rampPatch
}

// Build walks the segment list from the origin pose, placing one checkpoint
// at every segment entry (index 0, the first, is the start/finish line) and
// emitting barrier and prop colliders.
func Build(def Definition) (*Track, error) {
	if len(def.Segments) == 0 {
		return nil, errors.New("track has no segments")
	}
	if def.TotalLaps <= 0 {
		return nil, errors.Errorf("track %q: total laps must be positive", def.Name)
	}
	width := def.Width
	if width <= 0 {
		width = 12
	}

	t := &Track{name: def.Name, totalLaps: def.TotalLaps}
	cursor := Pose{}
	for i, seg := range def.Segments {
		t.checkpoints = append(t.checkpoints, race.Checkpoint{
			Position:      cursor.Position,
			Index:         i,
			IsStartFinish: i == 0,
		})

		exit, err := advance(cursor, seg)
		if err != nil {
			return nil, errors.Wrapf(err, "segment %d", i)
		}

		if seg.Kind == SegmentRamp {
			t.patches = append(t.patches, rampPatch{
				entry:  cursor.Position,
				dir:    cursor.forward(),
				length: seg.Length,
				width:  width,
				rise:   seg.Rise,
			})
		}

		t.colliders = append(t.colliders, barrierBoxes(cursor, exit, width)...)
		cursor = exit
	}

	for i, prop := range def.Props {
		half, ok := propHalfExtents[prop.Kind]
		if !ok {
			return nil, errors.Errorf("prop %d: unknown kind %q", i, prop.Kind)
		}
		center := vmath.Vec3{X: prop.X, Y: half.Y, Z: prop.Z}
		t.colliders = append(t.colliders, collision.AABBAround(center, half))
	}

	return t, nil
}

// advance computes the exit pose of one segment from its entry pose.
func advance(entry Pose, seg SegmentDef) (Pose, error) {
	switch seg.Kind {
	case SegmentStraight:
		if seg.Length <= 0 {
			return Pose{}, errors.New("straight needs positive length")
		}
		return Pose{
			Position: entry.Position.Add(entry.forward().Scale(seg.Length)),
			Heading:  entry.Heading,
		}, nil

	case SegmentRamp:
		if seg.Length <= 0 {
			return Pose{}, errors.New("ramp needs positive length")
		}
		pos := entry.Position.Add(entry.forward().Scale(seg.Length))
		pos.Y += seg.Rise
		return Pose{Position: pos, Heading: entry.Heading}, nil

	case SegmentCurve:
		if seg.Radius <= 0 || seg.AngleDeg == 0 {
			return Pose{}, errors.New("curve needs positive radius and non-zero angle")
		}
		sweep := seg.AngleDeg * math.Pi / 180
		// Arc center sits on the side being turned toward; positive sweep
		// turns right.
		side := entry.right().Scale(math.Copysign(seg.Radius, sweep))
		center := entry.Position.Add(side)
		offset := entry.Position.Sub(center)
		rotated := rotateY(offset, sweep)
		return Pose{
			Position: center.Add(rotated),
			Heading:  entry.Heading + sweep,
		}, nil

	default:
		return Pose{}, errors.Errorf("unknown segment kind %q", seg.Kind)
	}
}

func rotateY(v vmath.Vec3, angle float64) vmath.Vec3 {
	sin, cos := math.Sin(angle), math.Cos(angle)
	return vmath.Vec3{
		X: v.X*cos + v.Z*sin,
		Y: v.Y,
		Z: -v.X*sin + v.Z*cos,
	}
}

// barrierBoxes emits the two side barriers of a segment as axis-aligned
// boxes spanning entry to exit. Curves get chord boxes — a coarse
// approximation that matches the resolver's own coarseness.
func barrierBoxes(entry, exit Pose, width float64) []collision.AABB {
	out := make([]collision.AABB, 0, 2)
	for _, side := range []float64{-1, 1} {
		a := entry.Position.Add(entry.right().Scale(side * (width/2 + barrierThickness)))
		b := exit.Position.Add(exit.right().Scale(side * (width/2 + barrierThickness)))
		box := collision.AABB{
			Min: vmath.Vec3{
				X: math.Min(a.X, b.X) - barrierThickness,
				Y: math.Min(a.Y, b.Y),
				Z: math.Min(a.Z, b.Z) - barrierThickness,
			},
			Max: vmath.Vec3{
				X: math.Max(a.X, b.X) + barrierThickness,
				Y: math.Max(a.Y, b.Y) + barrierHeight,
				Z: math.Max(a.Z, b.Z) + barrierThickness,
			},
		}
		out = append(out, box)
	}
	return out
}

func (t *Track) Name() string { return t.name }

func (t *Track) TotalLaps() int { return t.totalLaps }

// Checkpoints returns the ordered checkpoint sequence; index 0 is the
// start/finish line.
func (t *Track) Checkpoints() []race.Checkpoint {
	out := make([]race.Checkpoint, len(t.checkpoints))
	copy(out, t.checkpoints)
	return out
}

// StaticColliders returns the barrier and prop boxes for registration with
// the collision system.
func (t *Track) StaticColliders() []collision.AABB {
	out := make([]collision.AABB, len(t.colliders))
	copy(out, t.colliders)
	return out
}

// HeightAt samples the ground height at a world x/z position: the highest
// ramp patch covering the point, else flat ground at y=0.
func (t *Track) HeightAt(x, z float64) float64 {
	h := 0.0
	for _, p := range t.patches {
		if ph, ok := p.heightAt(x, z); ok && ph > h {
			h = ph
		}
	}
	return h
}
