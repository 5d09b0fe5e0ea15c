package handlers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fluxboom/internal/domain"
)

// defaultStrength matches the edit strength the client applied before it was
// configurable.
const defaultStrength = 0.85

type generationRequest struct {
	SessionID string `json:"session_id,omitempty"`

	Model  string `json:"model"`
	Prompt string `json:"prompt"`

	Guidance        float64 `json:"guidance,omitempty"`
	AspectRatio     string  `json:"aspect_ratio,omitempty"`
	Steps           int     `json:"steps,omitempty"`
	Interval        float64 `json:"interval,omitempty"`
	SafetyTolerance int     `json:"safety_tolerance,omitempty"`

	Seed                 *int   `json:"seed,omitempty"`
	OutputFormat         string `json:"output_format,omitempty"`
	OutputQuality        int    `json:"output_quality,omitempty"`
	DisableSafetyChecker bool   `json:"disable_safety_checker,omitempty"`

	Strength          *float64 `json:"strength,omitempty"`
	GuidanceScale     float64  `json:"guidance_scale,omitempty"`
	NumInferenceSteps int      `json:"num_inference_steps,omitempty"`
	Width             int      `json:"width,omitempty"`
	Height            int      `json:"height,omitempty"`

	SourceImage     string `json:"source_image,omitempty"`
	SourceImageMIME string `json:"source_image_mime,omitempty"`
	MaskImage       string `json:"mask_image,omitempty"`
	BaseImageID     string `json:"base_image_id,omitempty"`
}

type generationStarted struct {
	SessionID string `json:"session_id"`
}

type generationStatus struct {
	Stage   string `json:"stage"`
	Status  string `json:"status,omitempty"`
	JobID   string `json:"job_id,omitempty"`
	Warning string `json:"warning,omitempty"`
	Error   string `json:"error,omitempty"`
	ImageID string `json:"image_id,omitempty"`
}

func (a *App) StartGeneration(w http.ResponseWriter, r *http.Request) {
	var body generationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.fail(w, r, fmt.Errorf("%w: invalid request body", domain.ErrValidation))
		return
	}

	req, err := body.toDomain()
	if err != nil {
		a.fail(w, r, err)
		return
	}

	sessionID, err := a.Sessions.Start(req, body.SessionID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, generationStarted{SessionID: sessionID})
}

func (a *App) GetGeneration(w http.ResponseWriter, r *http.Request) {
	snapshot, err := a.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, generationStatus{
		Stage:   string(snapshot.Stage),
		Status:  string(snapshot.Status),
		JobID:   snapshot.JobID,
		Warning: snapshot.Warning,
		Error:   snapshot.Error,
		ImageID: snapshot.ImageID,
	})
}

func (a *App) CancelGeneration(w http.ResponseWriter, r *http.Request) {
	if err := a.Sessions.Cancel(chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, map[string]string{"status": "cancel requested"})
}

func (b generationRequest) toDomain() (domain.GenerationRequest, error) {
	req := domain.GenerationRequest{
		Model:                domain.Model(b.Model),
		Prompt:               b.Prompt,
		Guidance:             b.Guidance,
		AspectRatio:          b.AspectRatio,
		Steps:                b.Steps,
		Interval:             b.Interval,
		SafetyTolerance:      b.SafetyTolerance,
		Seed:                 b.Seed,
		OutputFormat:         b.OutputFormat,
		OutputQuality:        b.OutputQuality,
		DisableSafetyChecker: b.DisableSafetyChecker,
		GuidanceScale:        b.GuidanceScale,
		NumInferenceSteps:    b.NumInferenceSteps,
		Width:                b.Width,
		Height:               b.Height,
		SourceImageMIME:      b.SourceImageMIME,
		BaseImageID:          b.BaseImageID,
	}
	if b.Strength != nil {
		req.Strength = *b.Strength
	} else {
		req.Strength = defaultStrength
	}
	if b.SourceImage != "" {
		data, err := base64.StdEncoding.DecodeString(b.SourceImage)
		if err != nil {
			return domain.GenerationRequest{}, fmt.Errorf("%w: source image is not valid base64", domain.ErrValidation)
		}
		req.SourceImage = data
	}
	if b.MaskImage != "" {
		data, err := base64.StdEncoding.DecodeString(b.MaskImage)
		if err != nil {
			return domain.GenerationRequest{}, fmt.Errorf("%w: mask image is not valid base64", domain.ErrValidation)
		}
		req.MaskImage = data
	}
	return req, nil
}
