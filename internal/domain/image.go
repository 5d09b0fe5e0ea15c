package domain

import "time"

// GeneratedImage is a persisted generation result. The orchestrator only
// ever inserts new records or appends edits; deletion is a user action.
type GeneratedImage struct {
	ID            string
	Caption       string
	OriginalImage []byte
	StorageKey    string
	MIME          string
	CreatedAt     time.Time
}

// EditHistoryEntry records one inpainting edit applied to a generated image.
type EditHistoryEntry struct {
	ID                string
	ImageID           string
	Prompt            string
	MaskURL           string
	Width             int
	Height            int
	Strength          float64
	OutputFormat      string
	GuidanceScale     float64
	OutputQuality     int
	NumInferenceSteps int
	EditedImage       []byte
	CreatedAt         time.Time
}

// PromptHistoryEntry is an immutable snapshot of the parameters used for one
// generation attempt, kept for later replay and inspection.
type PromptHistoryEntry struct {
	ID                   string
	ImageID              string
	Model                Model
	Prompt               string
	Guidance             float64
	AspectRatio          string
	Steps                int
	Interval             float64
	SafetyTolerance      int
	Seed                 *int
	OutputFormat         string
	OutputQuality        int
	DisableSafetyChecker bool
	ImageURL             string
	MaskURL              string
	CreatedAt            time.Time
}
