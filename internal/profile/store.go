package profile

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/clearhealth/pricing-cli/internal/model"
)

// Store persists profiles as one JSON file per source under
// <dir>/profiles. Profiles are derived artifacts; overwriting is always
// safe.
type Store struct {
	dir string
}

func NewStore(dataDir string) *Store {
	return &Store{dir: filepath.Join(dataDir, "profiles")}
}

func (s *Store) path(sourceID string) string {
	return filepath.Join(s.dir, sourceID+".json")
}

func (s *Store) Save(prof model.SchemaProfile) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return eris.Wrap(err, "profile: create store dir")
	}
	data, err := json.MarshalIndent(prof, "", "  ")
	if err != nil {
		return eris.Wrap(err, "profile: marshal")
	}
	if err := os.WriteFile(s.path(prof.SourceID), append(data, '\n'), 0o644); err != nil {
		return eris.Wrapf(err, "profile: write %s", prof.SourceID)
	}
	return nil
}

func (s *Store) Load(sourceID string) (model.SchemaProfile, error) {
	data, err := os.ReadFile(s.path(sourceID))
	if err != nil {
		return model.SchemaProfile{}, eris.Wrapf(err, "profile: read %s", sourceID)
	}
	var prof model.SchemaProfile
	if err := json.Unmarshal(data, &prof); err != nil {
		return model.SchemaProfile{}, eris.Wrapf(err, "profile: parse %s", sourceID)
	}
	return prof, nil
}
