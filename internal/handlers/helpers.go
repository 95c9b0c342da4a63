package handlers

import (
	"encoding/json"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pypirun/pypirun/internal/models"
	"github.com/pypirun/pypirun/internal/pypi"
	"github.com/pypirun/pypirun/internal/runner"
	"github.com/pypirun/pypirun/internal/ws"
)

// App holds shared dependencies for all handlers.
type App struct {
	Users    *models.UserStore
	Settings *models.SettingStore
	Hits     *models.HitStore
	WS       *ws.Server
	Index    *pypi.Client
	Renderer *runner.Renderer

	// Frontend is the generated site (embedded dist/ in production). The
	// script routes consult it so real assets always win over package names.
	Frontend fs.FS

	JWTSecret      string
	Version        string
	VerifyPackages bool

	bcastState *broadcastState
	debouncer  *debouncer
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write json", "err", err)
	}
}

// errorJSON writes a JSON error body: {"error": "..."}.
func errorJSON(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// bearerToken extracts the token from an Authorization: Bearer header.
// Returns "" if the header is absent or malformed.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// requireAdmin validates the request's JWT. Returns the claims, or writes
// a 401 and returns nil.
func (app *App) requireAdmin(w http.ResponseWriter, r *http.Request) *models.JWTClaims {
	token := bearerToken(r)
	if token == "" {
		errorJSON(w, http.StatusUnauthorized, "missing bearer token")
		return nil
	}
	claims, err := models.VerifyJWT(token, app.JWTSecret)
	if err != nil {
		errorJSON(w, http.StatusUnauthorized, "invalid token")
		return nil
	}
	return claims
}

// parseArgs unmarshals the ws Args JSON array into a slice of json.RawMessage.
func parseArgs(msg *ws.ClientMessage) []json.RawMessage {
	if msg == nil || len(msg.Args) == 0 {
		return nil
	}
	var args []json.RawMessage
	if err := json.Unmarshal(msg.Args, &args); err != nil {
		slog.Warn("parse args", "err", err)
		return nil
	}
	return args
}

// argInt extracts an integer from ws args at the given index.
func argInt(args []json.RawMessage, index int) int {
	if index >= len(args) {
		return 0
	}
	var n float64 // JSON numbers decode as float64
	if err := json.Unmarshal(args[index], &n); err != nil {
		return 0
	}
	return int(n)
}
