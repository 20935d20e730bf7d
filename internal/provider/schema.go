package provider

import (
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalidParameters marks a generation request whose free-form parameters
// fail the model variant's schema.
var ErrInvalidParameters = errors.New("invalid generation parameters")

// Parameter schemas per model shape. Unknown keys are allowed (the provider
// ignores them); known keys must have the right type and range. Width/height
// bounds follow the provider's documented limits.
const (
	dimensionSchema = `{
		"type": "object",
		"properties": {
			"width":  {"type": "integer", "minimum": 256, "maximum": 1440, "multipleOf": 32},
			"height": {"type": "integer", "minimum": 256, "maximum": 1440, "multipleOf": 32}
		}
	}`
	aspectRatioSchema = `{
		"type": "object",
		"properties": {
			"aspect_ratio": {"type": "string", "pattern": "^[0-9]+:[0-9]+$"},
			"raw":          {"type": "boolean"}
		}
	}`
)

var (
	dimensionParams   = jsonschema.MustCompileString("dimension_params.json", dimensionSchema)
	aspectRatioParams = jsonschema.MustCompileString("aspect_ratio_params.json", aspectRatioSchema)
)

// ValidateParameters checks the request parameters against the schema for
// the selected model variant.
func ValidateParameters(model string, params map[string]any) error {
	if params == nil {
		return nil
	}
	// Schemas validate plain decoded JSON values.
	doc := make(map[string]any, len(params))
	for k, v := range params {
		doc[k] = v
	}

	var sch *jsonschema.Schema
	if model == ModelFluxPro11 {
		sch = dimensionParams
	} else {
		sch = aspectRatioParams
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	return nil
}
