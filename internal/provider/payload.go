package provider

import (
	"github.com/fluxgate/backend/internal/models"
)

// Known model variants. Unrecognized model names fall back to kontext.
const (
	ModelFluxPro11      = "flux-pro-1.1-model"
	ModelFluxPro11Ultra = "flux-pro-1.1-ultra-model"
	ModelFluxKontextPro = "flux-kontext-pro-model"
)

// EndpointFor maps a model name to its submission path.
func EndpointFor(model string) string {
	switch model {
	case ModelFluxPro11:
		return "/v1/flux-pro-1.1"
	case ModelFluxPro11Ultra:
		return "/v1/flux-pro-1.1-ultra"
	default:
		return "/v1/flux-kontext-pro"
	}
}

// BuildPayload derives the provider payload from the request. Each model
// variant expects a different shape; this is a fixed lookup.
//
//   - flux-pro-1.1:       width/height, default 1024x1024
//   - everything else:    aspect_ratio, default "1:1"
//   - flux-pro-1.1-ultra: additionally "raw", default false
//
// safetyTolerance is always attached (0 = strictest moderation).
func BuildPayload(req models.GenerateRequest, safetyTolerance int) map[string]any {
	payload := map[string]any{"prompt": req.Input}
	params := req.Parameters

	if req.Model == ModelFluxPro11 {
		payload["width"] = intParam(params, "width", 1024)
		payload["height"] = intParam(params, "height", 1024)
	} else {
		payload["aspect_ratio"] = stringParam(params, "aspect_ratio", "1:1")
	}

	payload["safety_tolerance"] = safetyTolerance

	if req.Model == ModelFluxPro11Ultra {
		payload["raw"] = boolParam(params, "raw", false)
	}

	return payload
}

// intParam reads an integer parameter. JSON numbers arrive as float64.
func intParam(params map[string]any, key string, def int) int {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return def
	}
}

func stringParam(params map[string]any, key, def string) string {
	if s, ok := params[key].(string); ok && s != "" {
		return s
	}
	return def
}

func boolParam(params map[string]any, key string, def bool) bool {
	if b, ok := params[key].(bool); ok {
		return b
	}
	return def
}
