package domain

// Model enumerates the supported inference back-ends.
type Model string

const (
	ModelFluxPro           Model = "flux-pro"
	ModelFluxSchnell       Model = "flux-schnell"
	ModelFluxDevInpainting Model = "flux-dev-inpainting"
)

// Valid reports whether the model is one of the supported back-ends.
func (m Model) Valid() bool {
	switch m {
	case ModelFluxPro, ModelFluxSchnell, ModelFluxDevInpainting:
		return true
	}
	return false
}

// Inpainting reports whether the model edits an existing image.
func (m Model) Inpainting() bool {
	return m == ModelFluxDevInpainting
}

// DisplayName returns the human-facing model name.
func (m Model) DisplayName() string {
	switch m {
	case ModelFluxPro:
		return "Flux Pro"
	case ModelFluxSchnell:
		return "Flux Schnell"
	case ModelFluxDevInpainting:
		return "Flux Dev Inpainting"
	}
	return string(m)
}
