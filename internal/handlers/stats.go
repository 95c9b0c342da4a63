package handlers

import (
	"encoding/json"
	"hash"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/pypirun/pypirun/internal/ws"
)

// chanStats is the single broadcast channel: the live serve counters shown
// on the landing page.
const chanStats = "stats"

// debouncer coalesces broadcast triggers: the timer fires 200ms after the
// last trigger, so a burst of script serves produces one push.
type debouncer struct {
	mu    sync.Mutex
	timer *time.Timer
}

func newDebouncer() *debouncer {
	return &debouncer{}
}

// trigger resets the timer. When it fires, fn runs in a new goroutine.
func (d *debouncer) trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(200*time.Millisecond, fn)
}

// stop cancels the pending timer.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}

// broadcastState holds the last payload hash for deduplication.
type broadcastState struct {
	mu       sync.Mutex
	lastHash uint64
	hasher   hash.Hash64
}

func newBroadcastState() *broadcastState {
	return &broadcastState{hasher: fnv.New64a()}
}

// broadcastIfChanged marshals data, computes FNV-1a hash, and broadcasts
// only if the hash differs from the last broadcast. Returns true if a
// broadcast was sent.
func (bs *broadcastState) broadcastIfChanged(wss *ws.Server, data any) bool {
	// Marshal the full envelope once — used for both hashing and sending.
	msg, err := json.Marshal(ws.ServerMessage[any]{Event: chanStats, Data: data})
	if err != nil {
		slog.Error("broadcast marshal", "err", err)
		return false
	}

	bs.hasher.Reset()
	bs.hasher.Write(msg)
	sum := bs.hasher.Sum64()

	bs.mu.Lock()
	changed := sum != bs.lastHash
	if changed {
		bs.lastHash = sum
	}
	bs.mu.Unlock()

	if !changed {
		slog.Debug("broadcast skipped (unchanged)")
		return false
	}

	wss.BroadcastBytes(msg)
	slog.Debug("broadcast sent", "bytes", len(msg))
	return true
}

// InitBroadcast initializes the broadcast state. Must be called before
// TriggerStatsBroadcast.
func (app *App) InitBroadcast() {
	app.bcastState = newBroadcastState()
	app.debouncer = newDebouncer()
}

// StopBroadcast cancels any pending debounced broadcast.
func (app *App) StopBroadcast() {
	if app.debouncer != nil {
		app.debouncer.stop()
	}
}

// TriggerStatsBroadcast schedules a debounced stats push to all connected
// clients. Called after every counter change.
func (app *App) TriggerStatsBroadcast() {
	if app.debouncer == nil {
		return
	}
	app.debouncer.trigger(app.broadcastStats)
}

func (app *App) broadcastStats() {
	if !app.WS.HasConns() {
		return
	}
	snap, err := app.Hits.Top(topPackages)
	if err != nil {
		slog.Warn("broadcastStats", "err", err)
		return
	}
	app.bcastState.broadcastIfChanged(app.WS, snap)
}

// RegisterStatsHandlers wires the WebSocket side of the stats feed: clients
// get the current counters on connect and may re-request them with an ack.
func RegisterStatsHandlers(app *App) {
	app.WS.HandleConnect(func(c *ws.Conn) {
		snap, err := app.Hits.Top(topPackages)
		if err != nil {
			slog.Warn("stats on connect", "err", err)
			return
		}
		ws.SendEvent(c, chanStats, snap)
	})

	app.WS.Handle("stats", func(c *ws.Conn, msg *ws.ClientMessage) {
		args := parseArgs(msg)
		n := argInt(args, 0)
		if n <= 0 || n > 100 {
			n = topPackages
		}

		snap, err := app.Hits.Top(n)
		if err != nil {
			slog.Warn("stats request", "err", err)
			if msg.ID != nil {
				ws.SendAck(c, *msg.ID, ws.ErrorResponse{OK: false, Msg: "stats unavailable"})
			}
			return
		}
		if msg.ID != nil {
			ws.SendAck(c, *msg.ID, snap)
		}
	})
}
