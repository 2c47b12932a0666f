package handlers

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/jmaka/jmakabackend/config"
	"github.com/jmaka/jmakabackend/media"
	"github.com/jmaka/jmakabackend/services"
)

// EventStream serves the websocket change feed.
type EventStream interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// SweepReporter exposes the outcome of the background sweep.
type SweepReporter interface {
	Last() (services.SweepResult, int)
}

type HealthHandler struct {
	Sweeps SweepReporter
}

type healthResponse struct {
	Status    string                `json:"status"`
	Sweeps    int                   `json:"sweeps"`
	LastSweep *services.SweepResult `json:"lastSweep,omitempty"`
}

// Healthz reports liveness and, when a sweep worker runs, its latest result.
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if h != nil && h.Sweeps != nil {
		last, runs := h.Sweeps.Last()
		resp.Sweeps = runs
		if runs > 0 {
			resp.LastSweep = &last
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// NewRouter assembles the API, the read-only content mounts and the optional web UI.
// Everything is served under cfg.BasePath when it is set.
func NewRouter(cfg config.Config, uploads *UploadHandler, composites *CompositeHandler, health *HealthHandler, events EventStream, logger *slog.Logger) http.Handler {
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Requested-With"},
		MaxAge:         300,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(corsHandler.Handler)

	routes := func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(NoStore)

			r.Get("/history", uploads.ListHistory)
			r.Post("/upload", uploads.Upload)
			r.Post("/resize", uploads.Resize)
			r.Post("/crop", uploads.Crop)
			r.Post("/delete", uploads.Delete)

			r.Get("/composites", composites.ListComposites)
			r.Post("/split", composites.Split())
			r.Post("/split3", composites.Split3())
			r.Post("/trashimg", composites.TrashImg())
			r.Post("/oknoscale", composites.OknoScale())
			r.Post("/delete-composite", composites.DeleteComposite)
		})

		subDirs := media.DefaultSubDirs()
		for _, assetType := range media.AllAssetTypes {
			dir := subDirs[assetType]
			r.Get("/"+dir+"/*", AssetServer(cfg.StorageRoot, dir, logger))
		}

		r.Get("/healthz", health.Healthz)
		r.Handle("/metrics", promhttp.Handler())
		if events != nil {
			r.Get("/events", events.ServeWS)
		}

		if info, err := os.Stat(cfg.WebRoot); err == nil && info.IsDir() {
			r.Handle("/*", http.StripPrefix(cfg.BasePath, http.FileServer(http.Dir(cfg.WebRoot))))
		} else {
			logger.Info("web root not found, UI disabled", slog.String("path", cfg.WebRoot))
		}
	}

	if cfg.BasePath == "" {
		routes(r)
		return r
	}
	r.Route(cfg.BasePath, routes)
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, cfg.BasePath+"/", http.StatusFound)
	})
	return r
}
