package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"fluxboom/internal/domain"
	"fluxboom/internal/infra"
	"fluxboom/internal/session"
	"fluxboom/internal/storage"
)

type App struct {
	Images   domain.ImageRepository
	Prompts  domain.PromptHistoryRepository
	Secrets  domain.SecretStore
	Sessions *session.Manager
	Store    *storage.FileStore
	Logger   infra.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// fail maps domain sentinel errors onto HTTP status codes.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, domain.ErrCredential):
		code = http.StatusPreconditionFailed
	case errors.Is(err, domain.ErrGenerationInFlight):
		code = http.StatusConflict
	}
	if code == http.StatusInternalServerError {
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("handler: internal error")
	}
	a.json(w, code, map[string]string{"error": err.Error()})
}
