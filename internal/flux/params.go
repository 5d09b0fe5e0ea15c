package flux

import (
	"fmt"
	"strings"

	"fluxboom/internal/domain"
)

// Params is the flat key/value map a Replicate prediction expects as its
// "input" payload.
type Params map[string]any

// AssetURLs carries the hosted asset URLs resolved before building inpainting
// parameters.
type AssetURLs struct {
	Image string
	Mask  string
}

// Build translates a generation request into the wire parameter map for the
// selected model. It performs no I/O. Numeric ranges are validated here so an
// out-of-range value is a caller error, never a remote API error, and a
// missing required field aborts before anything is submitted.
func Build(req domain.GenerationRequest, assets AssetURLs) (Params, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", domain.ErrValidation)
	}
	switch req.Model {
	case domain.ModelFluxPro:
		return buildPro(req, prompt)
	case domain.ModelFluxSchnell:
		return buildSchnell(req, prompt)
	case domain.ModelFluxDevInpainting:
		return buildInpainting(req, prompt, assets)
	}
	return nil, fmt.Errorf("%w: unsupported model %q", domain.ErrValidation, req.Model)
}

func buildPro(req domain.GenerationRequest, prompt string) (Params, error) {
	if err := checkIntRange("steps", req.Steps, 1, 50); err != nil {
		return nil, err
	}
	if err := checkFloatRange("guidance", req.Guidance, 2, 5); err != nil {
		return nil, err
	}
	if err := checkFloatRange("interval", req.Interval, 1, 4); err != nil {
		return nil, err
	}
	if err := checkIntRange("safety_tolerance", req.SafetyTolerance, 1, 5); err != nil {
		return nil, err
	}
	params := Params{
		"prompt":           prompt,
		"steps":            req.Steps,
		"guidance":         req.Guidance,
		"interval":         req.Interval,
		"safety_tolerance": req.SafetyTolerance,
	}
	if aspect := strings.TrimSpace(req.AspectRatio); aspect != "" {
		params["aspect_ratio"] = aspect
	}
	return params, nil
}

func buildSchnell(req domain.GenerationRequest, prompt string) (Params, error) {
	params := Params{"prompt": prompt}
	if req.Seed != nil {
		params["seed"] = *req.Seed
	}
	format := strings.TrimSpace(req.OutputFormat)
	if format != "" {
		params["output_format"] = format
	}
	if err := applyOutputQuality(params, format, req.OutputQuality); err != nil {
		return nil, err
	}
	if req.DisableSafetyChecker {
		params["disable_safety_checker"] = true
	}
	return params, nil
}

func buildInpainting(req domain.GenerationRequest, prompt string, assets AssetURLs) (Params, error) {
	image := strings.TrimSpace(assets.Image)
	if image == "" {
		return nil, fmt.Errorf("%w: image url is required", domain.ErrValidation)
	}
	mask := strings.TrimSpace(assets.Mask)
	if mask == "" {
		return nil, fmt.Errorf("%w: mask url is required", domain.ErrValidation)
	}
	params := Params{
		"prompt": prompt,
		"image":  image,
		"mask":   mask,
	}
	if req.Seed != nil {
		params["seed"] = *req.Seed
	}
	if req.Strength > 0 {
		params["strength"] = req.Strength
	}
	// Zero means "not set" for these optional fields; anything else, negative
	// included, is validated against the wire ranges.
	if req.GuidanceScale != 0 {
		if err := checkFloatRange("guidance_scale", req.GuidanceScale, 0, 20); err != nil {
			return nil, err
		}
		params["guidance_scale"] = req.GuidanceScale
	}
	if req.NumInferenceSteps != 0 {
		if err := checkIntRange("num_inference_steps", req.NumInferenceSteps, 1, 50); err != nil {
			return nil, err
		}
		params["num_inference_steps"] = req.NumInferenceSteps
	}
	format := strings.TrimSpace(req.OutputFormat)
	if format != "" {
		params["output_format"] = format
	}
	if err := applyOutputQuality(params, format, req.OutputQuality); err != nil {
		return nil, err
	}
	// The remote model requires dimensions in multiples of 8; round down here
	// so callers never need to know the constraint.
	if req.Width > 0 {
		params["width"] = roundDownToMultiple(req.Width, 8)
	}
	if req.Height > 0 {
		params["height"] = roundDownToMultiple(req.Height, 8)
	}
	return params, nil
}

// applyOutputQuality emits output_quality unless the format is png: a
// lossless format has no quality knob, so the key is omitted entirely.
func applyOutputQuality(params Params, format string, quality int) error {
	if strings.EqualFold(format, "png") {
		return nil
	}
	if quality == 0 {
		return nil
	}
	if err := checkIntRange("output_quality", quality, 0, 100); err != nil {
		return err
	}
	params["output_quality"] = quality
	return nil
}

func roundDownToMultiple(v, multiple int) int {
	return (v / multiple) * multiple
}

func checkIntRange(field string, v, min, max int) error {
	if v < min || v > max {
		return fmt.Errorf("%w: %s must be between %d and %d, got %d", domain.ErrValidation, field, min, max, v)
	}
	return nil
}

func checkFloatRange(field string, v, min, max float64) error {
	if v < min || v > max {
		return fmt.Errorf("%w: %s must be between %g and %g, got %g", domain.ErrValidation, field, min, max, v)
	}
	return nil
}
