package handlers

import (
	"net/http"
	"time"

	"fluxboom/internal/domain"
)

type promptSummary struct {
	ID                   string       `json:"id"`
	ImageID              string       `json:"image_id,omitempty"`
	Model                domain.Model `json:"model"`
	Prompt               string       `json:"prompt"`
	Guidance             float64      `json:"guidance,omitempty"`
	AspectRatio          string       `json:"aspect_ratio,omitempty"`
	Steps                int          `json:"steps,omitempty"`
	Interval             float64      `json:"interval,omitempty"`
	SafetyTolerance      int          `json:"safety_tolerance,omitempty"`
	Seed                 *int         `json:"seed,omitempty"`
	OutputFormat         string       `json:"output_format,omitempty"`
	OutputQuality        int          `json:"output_quality,omitempty"`
	DisableSafetyChecker bool         `json:"disable_safety_checker,omitempty"`
	ImageURL             string       `json:"image_url,omitempty"`
	MaskURL              string       `json:"mask_url,omitempty"`
	CreatedAt            time.Time    `json:"created_at"`
}

func (a *App) ListPrompts(w http.ResponseWriter, r *http.Request) {
	var (
		entries []domain.PromptHistoryEntry
		err     error
	)
	if imageID := r.URL.Query().Get("image_id"); imageID != "" {
		entries, err = a.Prompts.ListByImage(r.Context(), imageID)
	} else {
		limit, offset := pagination(r)
		entries, err = a.Prompts.List(r.Context(), limit, offset)
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	summaries := make([]promptSummary, 0, len(entries))
	for _, entry := range entries {
		summaries = append(summaries, promptSummary{
			ID:                   entry.ID,
			ImageID:              entry.ImageID,
			Model:                entry.Model,
			Prompt:               entry.Prompt,
			Guidance:             entry.Guidance,
			AspectRatio:          entry.AspectRatio,
			Steps:                entry.Steps,
			Interval:             entry.Interval,
			SafetyTolerance:      entry.SafetyTolerance,
			Seed:                 entry.Seed,
			OutputFormat:         entry.OutputFormat,
			OutputQuality:        entry.OutputQuality,
			DisableSafetyChecker: entry.DisableSafetyChecker,
			ImageURL:             entry.ImageURL,
			MaskURL:              entry.MaskURL,
			CreatedAt:            entry.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"prompts": summaries})
}
