package domain

// GenerationRequest describes one generation attempt. It is constructed by
// the caller, consumed once by the orchestrator, and discarded after
// submission. Only the fields relevant to the selected model are read.
type GenerationRequest struct {
	Model  Model
	Prompt string

	// Flux Pro
	Steps           int
	Guidance        float64
	Interval        float64
	SafetyTolerance int
	AspectRatio     string

	// Flux Schnell and inpainting output shaping
	Seed                 *int
	OutputFormat         string
	OutputQuality        int
	DisableSafetyChecker bool

	// Flux Dev inpainting
	Strength          float64
	GuidanceScale     float64
	NumInferenceSteps int
	Width             int
	Height            int
	SourceImage       []byte
	SourceImageMIME   string
	MaskImage         []byte

	// BaseImageID, when set for an inpainting request, appends the result as
	// an edit to an existing generated image instead of creating a new record.
	BaseImageID string
}

// UploadedAsset is the result of a successful asset upload. It lives only for
// the duration of one generation attempt.
type UploadedAsset struct {
	URL string
}
