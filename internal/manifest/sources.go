// Package manifest manages the source manifest and the append-only
// download log that records every fetch attempt.
package manifest

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/clearhealth/pricing-cli/internal/model"
)

// SourceManifest is the operator-maintained list of hospitals and their
// candidate file URLs. It is edited out-of-band when URLs go stale.
type SourceManifest struct {
	Sources []model.Source `yaml:"sources"`
}

// LoadSources reads a YAML source manifest from disk.
func LoadSources(path string) (*SourceManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "manifest: read %s", path)
	}

	var m SourceManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "manifest: parse %s", path)
	}

	seen := make(map[string]bool, len(m.Sources))
	for _, s := range m.Sources {
		if s.ID == "" {
			return nil, eris.Errorf("manifest: source %q missing id", s.Name)
		}
		if seen[s.ID] {
			return nil, eris.Errorf("manifest: duplicate source id %q", s.ID)
		}
		seen[s.ID] = true
	}

	return &m, nil
}

// Get returns the source with the given id, if present.
func (m *SourceManifest) Get(id string) (model.Source, bool) {
	for _, s := range m.Sources {
		if s.ID == id {
			return s, true
		}
	}
	return model.Source{}, false
}
