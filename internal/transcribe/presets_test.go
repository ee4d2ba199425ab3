package transcribe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKnownModelsIncludesTurbo(t *testing.T) {
	models := KnownModels()
	assert.NotEmpty(t, models)

	var names []string
	for _, m := range models {
		names = append(names, m.Name)
		assert.NotEmpty(t, m.ComputeType)
	}
	assert.Contains(t, names, "turbo")
}

func TestKnownLanguagesIncludesAuto(t *testing.T) {
	assert.Contains(t, KnownLanguages(), "auto")
}

func TestKnownModelsIsStableAcrossCalls(t *testing.T) {
	first := KnownModels()
	second := KnownModels()
	assert.Equal(t, first, second)
}
