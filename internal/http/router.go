package httpapi

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"fluxboom/internal/http/handlers"
	"fluxboom/internal/middleware"
)

func NewRouter(app *handlers.App, allowedOrigins []string) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.Logger(app.Logger))
	r.Use(middleware.CORS(allowedOrigins))

	// Health
	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/generations", func(r chi.Router) {
		r.Post("/", app.StartGeneration)
		r.Get("/{id}", app.GetGeneration)
		r.Post("/{id}/cancel", app.CancelGeneration)
	})

	r.Route("/v1/images", func(r chi.Router) {
		r.Get("/", app.ListImages)
		r.Get("/export", app.ExportImages)
		r.Get("/{id}", app.GetImage)
		r.Get("/{id}/download", app.DownloadImage)
		r.Delete("/{id}", app.DeleteImage)
		r.Get("/{id}/edits", app.ListImageEdits)
	})

	r.Get("/v1/prompts", app.ListPrompts)

	r.Route("/v1/keys", func(r chi.Router) {
		r.Put("/", app.PutKeys)
		r.Get("/", app.GetKeys)
	})

	return r
}
