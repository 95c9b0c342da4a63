// Package testutil wires a fully working test application: temp BoltDB,
// in-memory front-end, fake package index, and a real HTTP server.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/coder/websocket"

	"github.com/pypirun/pypirun/internal/db"
	"github.com/pypirun/pypirun/internal/handlers"
	"github.com/pypirun/pypirun/internal/models"
	"github.com/pypirun/pypirun/internal/pypi"
	"github.com/pypirun/pypirun/internal/runner"
	"github.com/pypirun/pypirun/internal/ws"
)

var msgIDCounter int64

// TestEnv holds a fully wired test application.
type TestEnv struct {
	App      *handlers.App
	Server   *httptest.Server
	WSServer *ws.Server
	Index    *FakeIndex
}

// FakeIndex is a stand-in for the PyPI JSON API.
type FakeIndex struct {
	Server   *httptest.Server
	Packages map[string]pypi.Package
	Requests atomic.Int64
}

// NewFakeIndex starts a fake index serving the given projects.
func NewFakeIndex(t testing.TB, packages map[string]pypi.Package) *FakeIndex {
	t.Helper()

	fi := &FakeIndex{Packages: packages}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /pypi/{name}/json", func(w http.ResponseWriter, r *http.Request) {
		fi.Requests.Add(1)
		pkg, ok := fi.Packages[r.PathValue("name")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"info": pkg})
	})
	fi.Server = httptest.NewServer(mux)
	t.Cleanup(fi.Server.Close)
	return fi
}

// Frontend returns the in-memory generated site used by tests.
func Frontend() fstest.MapFS {
	return fstest.MapFS{
		"index.html":    {Data: []byte("<html>index</html>")},
		"200.html":      {Data: []byte("<html>spa fallback</html>")},
		"favicon.ico":   {Data: []byte("icon-bytes")},
		"_nuxt/app.js":  {Data: []byte("console.log('app')")},
		"_nuxt/app.css": {Data: []byte("body{}")},
	}
}

// Setup creates a test environment with a real HTTP server, BoltDB, an
// embedded-template renderer, and a fake package index.
func Setup(t testing.TB) *TestEnv {
	t.Helper()

	database, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })

	users := models.NewUserStore(database)
	settings := models.NewSettingStore(database)
	hits := models.NewHitStore(database)

	jwtSecret, err := settings.EnsureJWTSecret()
	if err != nil {
		t.Fatal(err)
	}

	index := NewFakeIndex(t, map[string]pypi.Package{
		"cowsay": {Name: "cowsay", Version: "6.1", Summary: "The famous cowsay"},
		"httpx":  {Name: "httpx", Version: "0.27.0", Summary: "HTTP client"},
	})

	wss := ws.NewServer()

	app := &handlers.App{
		Users:     users,
		Settings:  settings,
		Hits:      hits,
		WS:        wss,
		Index:     pypi.NewClient(index.Server.URL),
		Renderer:  runner.New(),
		Frontend:  Frontend(),
		JWTSecret: jwtSecret,
		Version:   "test",
	}
	app.InitBroadcast()
	handlers.RegisterStatsHandlers(app)

	mux := http.NewServeMux()
	mux.Handle("/ws", wss.UpgradeHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	handlers.RegisterScriptHandlers(app, mux)
	handlers.RegisterAPIHandlers(app, mux)
	handlers.RegisterAdminHandlers(app, mux)
	mux.HandleFunc("/", app.ServeFrontend)

	server := httptest.NewServer(mux)
	t.Cleanup(func() {
		app.StopBroadcast()
		server.Close()
	})

	return &TestEnv{
		App:      app,
		Server:   server,
		WSServer: wss,
		Index:    index,
	}
}

// SeedAdmin creates the admin user for tests that need authentication.
func (e *TestEnv) SeedAdmin(t testing.TB) {
	t.Helper()
	if _, err := e.App.Users.Create("admin", "testpass123"); err != nil {
		t.Fatal("seed admin:", err)
	}
}

// Login posts admin credentials and returns the JWT.
func (e *TestEnv) Login(t testing.TB) string {
	t.Helper()

	body, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "testpass123",
	})
	resp, err := http.Post(e.Server.URL+"/api/admin/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal("login:", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal("decode login:", err)
	}
	if out.Token == "" {
		t.Fatal("empty token")
	}
	return out.Token
}

// DialWS opens a WebSocket connection to the test server.
func (e *TestEnv) DialWS(t testing.TB) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + e.Server.URL[4:] + "/ws" // http -> ws
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatal("dial ws:", err)
	}
	conn.SetReadLimit(1 << 20)

	t.Cleanup(func() {
		conn.Close(websocket.StatusNormalClosure, "")
	})

	return conn
}

// SendAndReceive sends a WS event with an ack ID and returns the parsed ack
// data, skipping any push messages in between.
func (e *TestEnv) SendAndReceive(t testing.TB, conn *websocket.Conn, event string, args ...interface{}) map[string]interface{} {
	t.Helper()

	id := atomic.AddInt64(&msgIDCounter, 1)

	argsJSON, err := json.Marshal(args)
	if err != nil {
		t.Fatal("marshal args:", err)
	}

	msg := map[string]interface{}{
		"id":    id,
		"event": event,
		"args":  json.RawMessage(argsJSON),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal("marshal msg:", err)
	}

	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatal("write:", err)
	}

	// Read messages until we find our ack
	for {
		_, respData, err := conn.Read(ctx)
		if err != nil {
			t.Fatal("read:", err)
		}

		var raw map[string]json.RawMessage
		if err := json.Unmarshal(respData, &raw); err != nil {
			t.Fatal("unmarshal response:", err)
		}

		if idRaw, ok := raw["id"]; ok {
			var ackID int64
			if err := json.Unmarshal(idRaw, &ackID); err == nil && ackID == id {
				var ack struct {
					Data map[string]interface{} `json:"data"`
				}
				if err := json.Unmarshal(respData, &ack); err != nil {
					t.Fatal("unmarshal ack:", err)
				}
				return ack.Data
			}
		}
		// Not our ack — it's a push message, skip it
	}
}

// ReadEvent reads push messages until one with the given event name arrives.
func (e *TestEnv) ReadEvent(t testing.TB, conn *websocket.Conn, event string) map[string]interface{} {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatal("read:", err)
		}

		var msg struct {
			Event string                 `json:"event"`
			Data  map[string]interface{} `json:"data"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatal("unmarshal event:", err)
		}
		if msg.Event == event {
			return msg.Data
		}
	}
}
