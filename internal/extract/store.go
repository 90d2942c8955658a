package extract

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/clearhealth/pricing-cli/internal/model"
)

// Store persists one extraction config per source under <dir>/configs and
// reads optional operator overrides from <dir>/overrides. The configs
// directory is the sanctioned human-review seam: files there may be edited
// by hand between the profiling and ingestion steps.
type Store struct {
	configDir   string
	overrideDir string
}

func NewStore(dataDir string) *Store {
	return &Store{
		configDir:   filepath.Join(dataDir, "configs"),
		overrideDir: filepath.Join(dataDir, "overrides"),
	}
}

func (s *Store) Save(cfg model.ExtractionConfig) error {
	if err := os.MkdirAll(s.configDir, 0o755); err != nil {
		return eris.Wrap(err, "extract: create config dir")
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return eris.Wrap(err, "extract: marshal config")
	}
	path := filepath.Join(s.configDir, cfg.SourceID+".json")
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return eris.Wrapf(err, "extract: write config %s", cfg.SourceID)
	}
	return nil
}

func (s *Store) Load(sourceID string) (model.ExtractionConfig, error) {
	data, err := os.ReadFile(filepath.Join(s.configDir, sourceID+".json"))
	if err != nil {
		return model.ExtractionConfig{}, eris.Wrapf(err, "extract: read config %s", sourceID)
	}
	// Start from all-unbound so absent fields stay unbound instead of
	// defaulting to column zero.
	cfg := model.NewExtractionConfig(sourceID, model.LayoutUnknown)
	if err := json.Unmarshal(data, &cfg); err != nil {
		return model.ExtractionConfig{}, eris.Wrapf(err, "extract: parse config %s", sourceID)
	}
	return cfg, nil
}

// LoadOverrides returns the operator overrides for a source, or nil when
// none exist.
func (s *Store) LoadOverrides(sourceID string) (*Overrides, error) {
	data, err := os.ReadFile(filepath.Join(s.overrideDir, sourceID+".json"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "extract: read overrides %s", sourceID)
	}
	var ov Overrides
	if err := json.Unmarshal(data, &ov); err != nil {
		return nil, eris.Wrapf(err, "extract: parse overrides %s", sourceID)
	}
	return &ov, nil
}
