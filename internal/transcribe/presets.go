package transcribe

import (
	_ "embed"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var presetsYAML []byte

// ModelPreset is one known WhisperX model and its recommended compute
// type, offered to callers that don't want to guess at WhisperX's
// model catalog.
type ModelPreset struct {
	Name        string `yaml:"name"`
	ComputeType string `yaml:"computeType"`
	Description string `yaml:"description"`
}

type presetCatalog struct {
	Models    []ModelPreset `yaml:"models"`
	Languages []string      `yaml:"languages"`
}

var (
	catalogOnce sync.Once
	catalog     presetCatalog
)

func loadCatalog() presetCatalog {
	catalogOnce.Do(func() {
		_ = yaml.Unmarshal(presetsYAML, &catalog)
	})
	return catalog
}

// KnownModels returns the bundled model preset catalog.
func KnownModels() []ModelPreset {
	return loadCatalog().Models
}

// KnownLanguages returns the bundled language code catalog, including
// "auto".
func KnownLanguages() []string {
	return loadCatalog().Languages
}
