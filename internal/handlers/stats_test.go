package handlers_test

import (
	"testing"

	"github.com/pypirun/pypirun/internal/testutil"
)

func TestWSInitialStatsPush(t *testing.T) {
	t.Parallel()
	env := testutil.Setup(t)

	get(t, env.Server.URL+"/cowsay")

	conn := env.DialWS(t)

	// The server pushes current counters on connect
	data := env.ReadEvent(t, conn, "stats")
	if total, _ := data["total"].(float64); total != 1 {
		t.Errorf("total = %v, want 1", data["total"])
	}
}

func TestWSStatsRequest(t *testing.T) {
	t.Parallel()
	env := testutil.Setup(t)

	get(t, env.Server.URL+"/cowsay")
	get(t, env.Server.URL+"/httpx")

	conn := env.DialWS(t)

	resp := env.SendAndReceive(t, conn, "stats", 10)
	if total, _ := resp["total"].(float64); total != 2 {
		t.Errorf("total = %v, want 2", resp["total"])
	}
	pkgs, _ := resp["packages"].([]interface{})
	if len(pkgs) != 2 {
		t.Errorf("packages = %v", resp["packages"])
	}
}

func TestWSBroadcastOnHit(t *testing.T) {
	t.Parallel()
	env := testutil.Setup(t)

	conn := env.DialWS(t)
	env.ReadEvent(t, conn, "stats") // drain the connect push

	// A script serve schedules a debounced broadcast
	get(t, env.Server.URL+"/cowsay")

	data := env.ReadEvent(t, conn, "stats")
	if total, _ := data["total"].(float64); total != 1 {
		t.Errorf("broadcast total = %v, want 1", data["total"])
	}
}

func TestWSUnknownEvent(t *testing.T) {
	t.Parallel()
	env := testutil.Setup(t)

	conn := env.DialWS(t)

	resp := env.SendAndReceive(t, conn, "no-such-event")
	if ok, _ := resp["ok"].(bool); ok {
		t.Errorf("resp = %v, want ok=false", resp)
	}
}
