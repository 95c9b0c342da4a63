package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/pypirun/pypirun/internal/pypi"
	"github.com/pypirun/pypirun/internal/runner"
)

const topPackages = 20

// RegisterAPIHandlers registers the public JSON API consumed by the
// front-end.
func RegisterAPIHandlers(app *App, mux *http.ServeMux) {
	mux.HandleFunc("GET /api/package/{package}", app.handlePackageMetadata)
	mux.HandleFunc("GET /api/stats", app.handleStats)
	mux.HandleFunc("GET /api/version", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": app.Version})
	})
}

// handlePackageMetadata proxies PyPI project metadata so the front-end can
// show name/version/summary without hitting PyPI cross-origin.
func (app *App) handlePackageMetadata(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("package")
	if !runner.ValidPackageName(name) {
		errorJSON(w, http.StatusBadRequest, "invalid package name")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	pkg, err := app.Index.Metadata(ctx, name)
	if errors.Is(err, pypi.ErrNotFound) {
		errorJSON(w, http.StatusNotFound, "package not found")
		return
	}
	if err != nil {
		slog.Warn("package metadata", "package", name, "err", err)
		errorJSON(w, http.StatusBadGateway, "index unavailable")
		return
	}

	writeJSON(w, http.StatusOK, pkg)
}

// handleStats returns the most-served packages and the grand total.
func (app *App) handleStats(w http.ResponseWriter, r *http.Request) {
	snap, err := app.Hits.Top(topPackages)
	if err != nil {
		slog.Warn("stats", "err", err)
		errorJSON(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
