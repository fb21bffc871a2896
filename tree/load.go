package tree

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/iand/cctables/model"
)

func DefaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "cctables")
}

// CorrectionsFile returns the name of the corrections file for an instrument.
func CorrectionsFile(configDir string, id string) string {
	if configDir == "" || id == "" {
		return ""
	}
	return filepath.Join(configDir, "corrections", id+".json")
}

// ProfileFile returns the name of a named questionnaire profile.
func ProfileFile(configDir string, name string) string {
	if configDir == "" || name == "" {
		return ""
	}
	return filepath.Join(configDir, "profiles", name+".yaml")
}

// A Loader populates an instrument from a source document.
type Loader interface {
	Load(*model.Instrument) error
	Scope() string
}

// LoadInstrument reads an instrument using the loader then applies any
// corrections held in the config directory for the instrument id.
func LoadInstrument(id string, configDir string, loader Loader) (*model.Instrument, error) {
	a, err := LoadAnnotations(CorrectionsFile(configDir, id))
	if err != nil {
		return nil, fmt.Errorf("load corrections: %w", err)
	}

	in := new(model.Instrument)
	if err := loader.Load(in); err != nil {
		return nil, fmt.Errorf("load %s: %w", loader.Scope(), err)
	}

	if err := a.Apply(in); err != nil {
		return nil, fmt.Errorf("apply corrections: %w", err)
	}

	return in, nil
}
