package track

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexsim/apexsim/internal/core/vmath"
)

func TestStraightSegmentAdvance(t *testing.T) {
	exit, err := advance(Pose{}, SegmentDef{Kind: SegmentStraight, Length: 100})
	require.NoError(t, err)
	assert.InDelta(t, 0, exit.Position.X, 1e-9)
	assert.InDelta(t, 100, exit.Position.Z, 1e-9)
	assert.Zero(t, exit.Heading)
}

func TestCurveSegmentAdvance(t *testing.T) {
	// 90-degree right turn of radius 30 from the origin heading +Z.
	exit, err := advance(Pose{}, SegmentDef{Kind: SegmentCurve, Radius: 30, AngleDeg: 90})
	require.NoError(t, err)
	assert.InDelta(t, math.Pi/2, exit.Heading, 1e-9)
	assert.InDelta(t, 30, exit.Position.X, 1e-9)
	assert.InDelta(t, 30, exit.Position.Z, 1e-9)
}

func TestRampSegmentAdvanceAndHeight(t *testing.T) {
	def := Definition{
		Name:      "ramp-test",
		TotalLaps: 1,
		Width:     10,
		Segments: []SegmentDef{
			{Kind: SegmentRamp, Length: 50, Rise: 5},
		},
	}
	tr, err := Build(def)
	require.NoError(t, err)

	assert.InDelta(t, 0, tr.HeightAt(0, 0), 1e-9)
	assert.InDelta(t, 2.5, tr.HeightAt(0, 25), 1e-9)
	assert.InDelta(t, 5, tr.HeightAt(0, 50), 1e-9)
	assert.InDelta(t, 0, tr.HeightAt(100, 25), 1e-9, "off the ramp laterally means flat ground")
}

func TestClosedCircuitReturnsToStart(t *testing.T) {
	tr, err := Build(DefaultDefinition())
	require.NoError(t, err)

	cps := tr.Checkpoints()
	require.NotEmpty(t, cps)
	assert.True(t, cps[0].IsStartFinish)
	for i, cp := range cps {
		assert.Equal(t, i, cp.Index)
		if i > 0 {
			assert.False(t, cp.IsStartFinish)
		}
	}
}

func TestBuildEmitsCollidersForBarriersAndProps(t *testing.T) {
	def := DefaultDefinition()
	tr, err := Build(def)
	require.NoError(t, err)

	// Two barrier boxes per segment plus one box per prop.
	want := 2*len(def.Segments) + len(def.Props)
	assert.Len(t, tr.StaticColliders(), want)
}

func TestBuildRejectsInvalidDefinitions(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
	}{
		{"no segments", Definition{TotalLaps: 1}},
		{"zero laps", Definition{Segments: []SegmentDef{{Kind: SegmentStraight, Length: 10}}}},
		{"unknown segment kind", Definition{TotalLaps: 1, Segments: []SegmentDef{{Kind: "loop"}}}},
		{"curve without radius", Definition{TotalLaps: 1, Segments: []SegmentDef{{Kind: SegmentCurve, AngleDeg: 90}}}},
		{"straight without length", Definition{TotalLaps: 1, Segments: []SegmentDef{{Kind: SegmentStraight}}}},
		{"unknown prop kind", Definition{
			TotalLaps: 1,
			Segments:  []SegmentDef{{Kind: SegmentStraight, Length: 10}},
			Props:     []PropDef{{Kind: "volcano"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.def)
			assert.Error(t, err)
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "track.yaml")
	data := `
name: oval
total_laps: 2
width: 10
segments:
  - kind: straight
    length: 100
  - kind: curve
    radius: 25
    angle_deg: 180
  - kind: straight
    length: 100
  - kind: curve
    radius: 25
    angle_deg: 180
props:
  - kind: tree
    x: 20
    z: -15
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	tr, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "oval", tr.Name())
	assert.Equal(t, 2, tr.TotalLaps())
	assert.Len(t, tr.Checkpoints(), 4)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("does-not-exist.yaml")
	assert.Error(t, err)
}

func TestHeightFieldIgnoresDescendingRampOutsidePatch(t *testing.T) {
	def := Definition{
		Name:      "hill",
		TotalLaps: 1,
		Width:     10,
		Segments: []SegmentDef{
			{Kind: SegmentRamp, Length: 40, Rise: 4},
			{Kind: SegmentRamp, Length: 40, Rise: -4},
		},
	}
	tr, err := Build(def)
	require.NoError(t, err)

	assert.InDelta(t, 4, tr.HeightAt(0, 40), 1e-9, "crest of the hill")
	assert.InDelta(t, 2, tr.HeightAt(0, 60), 1e-9, "halfway down the far side")
	assert.InDelta(t, 0, tr.HeightAt(0, 200), 1e-9)
}

func TestPropVariantsHaveFixedExtents(t *testing.T) {
	def := Definition{
		TotalLaps: 1,
		Segments:  []SegmentDef{{Kind: SegmentStraight, Length: 10}},
		Props: []PropDef{
			{Kind: PropMountain, X: 100, Z: 100},
		},
	}
	tr, err := Build(def)
	require.NoError(t, err)

	boxes := tr.StaticColliders()
	mountain := boxes[len(boxes)-1]
	assert.Equal(t, vmath.Vec3{X: 20, Y: 30, Z: 20}, mountain.HalfExtents())
}
