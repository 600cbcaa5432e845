package vehicle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadArchetypeOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sport.yaml")
	data := `
name: sport
max_speed_kmh: 240
mass_kg: 1050
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	arch, err := LoadArchetype(path)
	require.NoError(t, err)

	assert.Equal(t, "sport", arch.Name)
	assert.Equal(t, 240.0, arch.MaxSpeedKmh)
	assert.Equal(t, 1050.0, arch.MassKg)

	def := DefaultArchetype()
	assert.Equal(t, def.WheelBase, arch.WheelBase, "untouched keys keep defaults")
	assert.Equal(t, def.SuspensionStiffness, arch.SuspensionStiffness)
}

func TestLoadArchetypeMissingFile(t *testing.T) {
	_, err := LoadArchetype("no-such-archetype.yaml")
	assert.Error(t, err)
}

func TestLoadArchetypeMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: ["), 0o644))
	_, err := LoadArchetype(path)
	assert.Error(t, err)
}
