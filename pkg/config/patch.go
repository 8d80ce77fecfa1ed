package config

import (
	"fmt"

	"github.com/aretw0/callboard/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// DecodePatch converts loosely typed input (decoded JSON, MCP arguments) into a
// LineConfigPatch. Unknown keys are rejected; keys that are absent stay nil.
func DecodePatch(input map[string]any) (domain.LineConfigPatch, error) {
	var patch domain.LineConfigPatch
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &patch,
		ErrorUnused: true,
		TagName:     "mapstructure",
	})
	if err != nil {
		return patch, err
	}
	if err := decoder.Decode(input); err != nil {
		return patch, fmt.Errorf("invalid line config patch: %w", err)
	}
	if patch.AutoAnswerDelayMs != nil && *patch.AutoAnswerDelayMs < 0 {
		return patch, fmt.Errorf("invalid line config patch: auto_answer_delay_ms must be >= 0")
	}
	return patch, nil
}
