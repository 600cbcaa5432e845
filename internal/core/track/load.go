package track

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Load reads a track definition from a YAML file and builds it.
func Load(path string) (*Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read track file %s", path)
	}
	var def Definition
	if err = yaml.Unmarshal(data, &def); err != nil {
		return nil, errors.Wrapf(err, "parse track file %s", path)
	}
	t, err := Build(def)
	if err != nil {
		return nil, errors.Wrapf(err, "build track %s", path)
	}
	return t, nil
}

// DefaultDefinition is a closed rectangular circuit with a ramp on the back
// straight, used when no track file is configured.
func DefaultDefinition() Definition {
	return Definition{
		Name:      "proving-grounds",
		TotalLaps: 3,
		Width:     12,
		Segments: []SegmentDef{
			{Kind: SegmentStraight, Length: 120},
			{Kind: SegmentCurve, Radius: 30, AngleDeg: 90},
			{Kind: SegmentStraight, Length: 80},
			{Kind: SegmentCurve, Radius: 30, AngleDeg: 90},
			{Kind: SegmentRamp, Length: 60, Rise: 4},
			{Kind: SegmentRamp, Length: 60, Rise: -4},
			{Kind: SegmentCurve, Radius: 30, AngleDeg: 90},
			{Kind: SegmentStraight, Length: 80},
			{Kind: SegmentCurve, Radius: 30, AngleDeg: 90},
		},
		Props: []PropDef{
			{Kind: PropTree, X: 30, Z: -20},
			{Kind: PropTree, X: 60, Z: -22},
			{Kind: PropRock, X: 90, Z: -18},
			{Kind: PropBuilding, X: -40, Z: 60},
			{Kind: PropMountain, X: 200, Z: 200},
		},
	}
}
