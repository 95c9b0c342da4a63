package handlers

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/pypirun/pypirun/internal/pypi"
	"github.com/pypirun/pypirun/internal/runner"
)

// RegisterScriptHandlers registers the runner script routes. Single-segment
// paths run the package directly; two-segment paths select the module passed
// to `python -m`. Anything that names an existing front-end asset, or fails
// name validation, falls through to the SPA.
func RegisterScriptHandlers(app *App, mux *http.ServeMux) {
	mux.HandleFunc("GET /{package}", func(w http.ResponseWriter, r *http.Request) {
		app.serveScript(w, r, r.PathValue("package"), "")
	})
	mux.HandleFunc("GET /{package}/{module}", func(w http.ResponseWriter, r *http.Request) {
		app.serveScript(w, r, r.PathValue("package"), r.PathValue("module"))
	})
}

func (app *App) serveScript(w http.ResponseWriter, r *http.Request, pkg, module string) {
	// Real files shadow package names: /favicon.ico is an icon, not a
	// runner script for the "favicon.ico" package.
	if app.assetExists(r.URL.Path) {
		app.ServeFrontend(w, r)
		return
	}

	if !runner.ValidPackageName(pkg) || (module != "" && !runner.ValidModuleName(module)) {
		app.serveFallback(w, r)
		return
	}

	if app.VerifyPackages {
		ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
		defer cancel()

		ok, err := app.Index.Exists(ctx, pkg)
		if err != nil && !errors.Is(err, pypi.ErrNotFound) {
			// Index trouble shouldn't take the service down — serve the
			// script anyway, pip will give the user a proper error.
			slog.Warn("verify package", "package", pkg, "err", err)
		} else if !ok && err == nil {
			http.Error(w, "package not found on index", http.StatusNotFound)
			return
		}
	}

	script := app.Renderer.Render(pkg, module)

	if _, err := app.Hits.Increment(runner.NormalizeName(pkg)); err != nil {
		slog.Warn("hit counter", "package", pkg, "err", err)
	}
	app.TriggerStatsBroadcast()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(script))
}

// assetExists reports whether the request path names a file in the
// generated front-end.
func (app *App) assetExists(path string) bool {
	name := fsName(path)
	if name == "." {
		return false
	}
	f, err := app.Frontend.Open(name)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// ServeFrontend serves a front-end file, falling back to the SPA document
// when the path doesn't exist. Mounted at "/" by main.
func (app *App) ServeFrontend(w http.ResponseWriter, r *http.Request) {
	if app.assetExists(r.URL.Path) {
		http.FileServer(http.FS(app.Frontend)).ServeHTTP(w, r)
		return
	}
	app.serveFallback(w, r)
}

// serveFallback serves the SPA fallback document (200.html, the Nuxt
// generate convention) for client-side routed paths.
func (app *App) serveFallback(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(app.Frontend, "200.html")
	if err != nil {
		slog.Error("spa fallback missing", "err", err)
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// fsName converts a URL path to an fs.FS name ("/" → "index.html").
func fsName(path string) string {
	name := path
	for len(name) > 0 && name[0] == '/' {
		name = name[1:]
	}
	if name == "" {
		return "index.html"
	}
	return name
}
