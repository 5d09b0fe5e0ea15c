package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"fluxboom/pkg/zip"
)

type imageSummary struct {
	ID        string    `json:"id"`
	Caption   string    `json:"caption"`
	MIME      string    `json:"mime"`
	SizeBytes int       `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

type editSummary struct {
	ID                string    `json:"id"`
	Prompt            string    `json:"prompt"`
	MaskURL           string    `json:"mask_url,omitempty"`
	Width             int       `json:"width,omitempty"`
	Height            int       `json:"height,omitempty"`
	Strength          float64   `json:"strength"`
	OutputFormat      string    `json:"output_format,omitempty"`
	GuidanceScale     float64   `json:"guidance_scale"`
	OutputQuality     int       `json:"output_quality,omitempty"`
	NumInferenceSteps int       `json:"num_inference_steps,omitempty"`
	SizeBytes         int       `json:"size_bytes"`
	CreatedAt         time.Time `json:"created_at"`
}

func (a *App) ListImages(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	images, err := a.Images.List(r.Context(), limit, offset)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	summaries := make([]imageSummary, 0, len(images))
	for _, image := range images {
		summaries = append(summaries, imageSummary{
			ID:        image.ID,
			Caption:   image.Caption,
			MIME:      image.MIME,
			SizeBytes: len(image.OriginalImage),
			CreatedAt: image.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"images": summaries})
}

func (a *App) GetImage(w http.ResponseWriter, r *http.Request) {
	image, err := a.Images.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, imageSummary{
		ID:        image.ID,
		Caption:   image.Caption,
		MIME:      image.MIME,
		SizeBytes: len(image.OriginalImage),
		CreatedAt: image.CreatedAt,
	})
}

func (a *App) DownloadImage(w http.ResponseWriter, r *http.Request) {
	image, err := a.Images.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	data := image.OriginalImage
	if len(data) == 0 && image.StorageKey != "" {
		stored, err := a.Store.Read(r.Context(), image.StorageKey)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		data = stored
	}
	mime := image.MIME
	if mime == "" {
		mime = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", image.ID+extensionFor(mime)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (a *App) DeleteImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	image, err := a.Images.GetByID(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.Images.Delete(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	if image.StorageKey != "" {
		if err := a.Store.Remove(r.Context(), image.StorageKey); err != nil {
			a.Logger.Warn().Err(err).Str("image_id", id).Msg("handler: remove mirrored artifact failed")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) ListImageEdits(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := a.Images.GetByID(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	edits, err := a.Images.ListEdits(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	summaries := make([]editSummary, 0, len(edits))
	for _, edit := range edits {
		summaries = append(summaries, editSummary{
			ID:                edit.ID,
			Prompt:            edit.Prompt,
			MaskURL:           edit.MaskURL,
			Width:             edit.Width,
			Height:            edit.Height,
			Strength:          edit.Strength,
			OutputFormat:      edit.OutputFormat,
			GuidanceScale:     edit.GuidanceScale,
			OutputQuality:     edit.OutputQuality,
			NumInferenceSteps: edit.NumInferenceSteps,
			SizeBytes:         len(edit.EditedImage),
			CreatedAt:         edit.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"edits": summaries})
}

func (a *App) ExportImages(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	images, err := a.Images.List(r.Context(), limit, offset)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	assets := make([]zip.Asset, 0, len(images))
	for _, image := range images {
		assets = append(assets, zip.Asset{
			Filename: image.ID + extensionFor(image.MIME),
			MIME:     image.MIME,
			Data:     image.OriginalImage,
		})
	}
	archive, err := zip.ArchiveAssets(assets)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="images.zip"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}

func extensionFor(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	}
	return ".bin"
}
