package vehicle

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// LoadArchetype reads one archetype from a YAML file. Missing keys keep the
// default street-car values, so a file only needs the fields it tunes.
func LoadArchetype(path string) (Archetype, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Archetype{}, errors.Wrapf(err, "read archetype file %s", path)
	}
	arch := DefaultArchetype()
	if err = yaml.Unmarshal(data, &arch); err != nil {
		return Archetype{}, errors.Wrapf(err, "parse archetype file %s", path)
	}
	return arch, nil
}
