package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/pypirun/pypirun/internal/models"
)

// RegisterAdminHandlers registers the authenticated admin surface. There is
// no interactive setup: the admin user is seeded from the environment on
// first run (see main).
func RegisterAdminHandlers(app *App, mux *http.ServeMux) {
	mux.HandleFunc("POST /api/admin/login", app.handleLogin)
	mux.HandleFunc("GET /api/admin/stats", app.handleAdminStats)
	mux.HandleFunc("POST /api/admin/stats/reset", app.handleStatsReset)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (app *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := app.Users.FindByUsername(req.Username)
	if err != nil {
		slog.Error("login lookup", "err", err)
		errorJSON(w, http.StatusInternalServerError, "login failed")
		return
	}
	if user == nil || !models.VerifyPassword(req.Password, user.Password) {
		errorJSON(w, http.StatusUnauthorized, "incorrect username or password")
		return
	}

	token, err := models.CreateJWT(user, app.JWTSecret)
	if err != nil {
		slog.Error("create jwt", "err", err)
		errorJSON(w, http.StatusInternalServerError, "login failed")
		return
	}

	slog.Info("admin login", "username", user.Username)
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// handleAdminStats returns the full counter dump (not just the top N).
func (app *App) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	if app.requireAdmin(w, r) == nil {
		return
	}

	snap, err := app.Hits.Snapshot()
	if err != nil {
		slog.Warn("admin stats", "err", err)
		errorJSON(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (app *App) handleStatsReset(w http.ResponseWriter, r *http.Request) {
	claims := app.requireAdmin(w, r)
	if claims == nil {
		return
	}

	if err := app.Hits.Reset(); err != nil {
		slog.Error("stats reset", "err", err)
		errorJSON(w, http.StatusInternalServerError, "reset failed")
		return
	}

	slog.Info("stats reset", "by", claims.Username)
	app.TriggerStatsBroadcast()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
