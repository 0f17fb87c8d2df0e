/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Earwax
//
// Players take turns on one shared screen. Each round a rotating judge picks
// a prompt, everyone else answers it with a combo of two sounds, the combos
// are played back in a random order, and the judge awards the point to their
// favourite. First to three points wins.
//
// Features:
// - WebSockets per game ID: /earwax/:gameid and /earwax/:gameid/ws
// - The server owns every rule and timing decision; the browser renders state
//   and plays the clips and narration it is told to
// - First connection to a game becomes the speaker; any client can claim it
// - Clips are fetched once, cached, and handed to the speaker through
//   short-lived /clips/:handle URLs
// - Games auto-reaped after configurable idle timeout
// - Random 8-char game IDs via crypto/rand, with server-side collision check
// - In-browser QR button to share the current session, backed by go-qrcode

package main

import (
	"context"
	"crypto/rand"
	_ "embed"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/earwax/internal/catalog"
	"github.com/Seednode/earwax/internal/playback"
	"github.com/Seednode/earwax/internal/remote"
	"github.com/Seednode/earwax/internal/round"
	"github.com/Seednode/earwax/internal/sound"
)

const (
	gamePath       = "/earwax"
	sendBuffer     = 32
	maxMessageSize = 4096
)

var errDeviceBacklog = errors.New("speaker is not keeping up")

// Messages coming from clients. Device replies reuse Handle, Event and Detail.
type ClientMessage struct {
	Type   string     `json:"type"`
	Name   string     `json:"name,omitempty"`
	ID     catalog.ID `json:"id,omitempty"`
	Text   string     `json:"text,omitempty"`
	Index  *int       `json:"index,omitempty"`
	Handle string     `json:"handle,omitempty"`
	Event  string     `json:"event,omitempty"`
	Detail string     `json:"detail,omitempty"`
}

// NoticeMessage is sent to a single client when one of its actions is refused.
type NoticeMessage struct {
	Type    string `json:"type"` // "notice"
	Message string `json:"message"`
}

type PreloadState struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// OutcomeView reveals who won the last round, and with what.
type OutcomeView struct {
	Winner string   `json:"winner"`
	Score  int      `json:"score"`
	Sounds []string `json:"sounds"`
}

// StateMessage is broadcast after every change to a game.
type StateMessage struct {
	Type string `json:"type"` // "state"
	Game string `json:"game"`
	round.Snapshot
	Error      string           `json:"error,omitempty"`
	Playing    bool             `json:"playing"`
	NowPlaying []string         `json:"now_playing,omitempty"`
	Current    int              `json:"current"`
	Awarding   bool             `json:"awarding"`
	Speaker    bool             `json:"speaker"`
	HasSpeaker bool             `json:"has_speaker"`
	Preload    *PreloadState    `json:"preload,omitempty"`
	Outcome    *OutcomeView     `json:"outcome,omitempty"`
	Report     *playback.Report `json:"report,omitempty"`
}

type Client struct {
	conn   *websocket.Conn
	send   chan any
	detach func()
}

type actionRequest struct {
	client *Client
	msg    ClientMessage
}

type Hub struct {
	id  string
	cfg *Config
	svc *services

	clients map[*Client]bool
	speaker *Client

	register chan *Client
	unreg    chan *Client
	actions  chan actionRequest
	quit     chan struct{}
	stop     sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	remote *remote.Remote

	mu sync.RWMutex

	createdAt  time.Time
	lastActive time.Time

	loadErr      error
	registry     *catalog.Registry
	engine       *round.Engine
	player       *sound.Player
	orchestrator *playback.Orchestrator

	awarding bool
	preload  *PreloadState
	outcome  *OutcomeView
	report   *playback.Report
}

func newHub(cfg *Config, svc *services, gameID string) *Hub {
	now := time.Now()
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		id:         gameID,
		cfg:        cfg,
		svc:        svc,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		actions:    make(chan actionRequest),
		quit:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		remote:     remote.New(remote.WithLogger(cfg.logger())),
		createdAt:  now,
		lastActive: now,
	}

	h.mu.Lock()
	h.loadLocked()
	h.mu.Unlock()

	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.quit:
			return

		case c := <-h.register:
			h.mu.Lock()
			h.lastActive = time.Now()
			h.clients[c] = true

			// First connection becomes the speaker.
			if h.speaker == nil {
				h.attachLocked(c)
			}

			h.broadcastStateLocked()
			h.mu.Unlock()

		case c := <-h.unreg:
			h.mu.Lock()
			h.lastActive = time.Now()
			if _, ok := h.clients[c]; ok {
				h.dropLocked(c)
				h.broadcastStateLocked()
			}
			h.mu.Unlock()

		case a := <-h.actions:
			h.handleAction(a)
		}
	}
}

// attachLocked makes c the game's speaker.
func (h *Hub) attachLocked(c *Client) {
	c.detach = h.remote.Attach(h.sender(c))
	h.speaker = c
}

// dropLocked disconnects c, handing the speaker role to another client
// if c held it.
func (h *Hub) dropLocked(c *Client) {
	delete(h.clients, c)
	close(c.send)

	if c.detach != nil {
		c.detach()
		c.detach = nil
	}

	if h.speaker != c {
		return
	}
	h.speaker = nil

	for other := range h.clients {
		h.attachLocked(other)
		logf(h.cfg, "GAMES: Speaker for %s handed to another client", h.id)
		break
	}
}

// sender delivers device commands to c for as long as c is connected.
func (h *Hub) sender(c *Client) remote.Sender {
	return func(cmd remote.Command) error {
		h.mu.Lock()
		defer h.mu.Unlock()

		if !h.clients[c] {
			return sound.ErrNoDevice
		}

		select {
		case c.send <- cmd:
			return nil
		default:
			return errDeviceBacklog
		}
	}
}

func (h *Hub) sendLocked(c *Client, msg any) {
	select {
	case c.send <- msg:
	default:
		h.dropLocked(c)
	}
}

// closeAll disconnects all clients of this hub and stops its background work.
func (h *Hub) closeAll() {
	h.stop.Do(func() {
		close(h.quit)
		h.cancel()
	})

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		if c.detach != nil {
			c.detach()
		}
		close(c.send)
		_ = c.conn.Close()
		delete(h.clients, c)
	}
	h.speaker = nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// GameManager holds a set of hubs keyed by game ID, so each /earwax/:gameid
// is its own isolated session.
type GameManager struct {
	cfg *Config
	svc *services

	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration
}

func newGameManager(ctx context.Context, cfg *Config, svc *services) *GameManager {
	gm := &GameManager{
		cfg:         cfg,
		svc:         svc,
		hubs:        make(map[string]*Hub),
		idleTimeout: cfg.sessionTimeout,
	}

	if gm.idleTimeout > 0 {
		go gm.reaperLoop(ctx)
	}

	return gm
}

func (gm *GameManager) getHub(gameID string) *Hub {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if hub, ok := gm.hubs[gameID]; ok {
		return hub
	}

	hub := newHub(gm.cfg, gm.svc, gameID)
	gm.hubs[gameID] = hub
	go hub.run()

	return hub
}

// newGameID generates a crypto-random game ID and ensures it doesn't
// collide with existing games.
func (gm *GameManager) newGameID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}

		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		gm.mu.Lock()
		_, exists := gm.hubs[id]
		gm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// reap removes hubs that have been idle since before cutoff.
func (gm *GameManager) reap(cutoff time.Time) int {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	reaped := 0
	for id, hub := range gm.hubs {
		hub.mu.RLock()
		last := hub.lastActive
		hub.mu.RUnlock()

		if last.Before(cutoff) {
			delete(gm.hubs, id)
			go hub.closeAll()
			reaped++

			logf(gm.cfg, "GAMES: Reaped idle game %s", id)
		}
	}

	return reaped
}

// reaperLoop periodically removes hubs that have been idle longer than idleTimeout.
func (gm *GameManager) reaperLoop(ctx context.Context) {
	ticker := time.NewTicker(gm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			gm.closeAll()
			return
		case <-ticker.C:
			gm.reap(time.Now().Add(-gm.idleTimeout))
		}
	}
}

func (gm *GameManager) closeAll() {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	for id, hub := range gm.hubs {
		delete(gm.hubs, id)
		hub.closeAll()
	}
}

// WebSocket handler that picks the hub based on :gameid
func serveWSForManager(cfg *Config, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if gameID == "" {
			http.Error(w, "missing game id", http.StatusBadRequest)
			return
		}

		hub := gm.getHub(gameID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "GAMES: Upgrade for %s from %s failed: %v", gameID, realIP(r), err)
			return
		}

		client := &Client{
			conn: conn,
			send: make(chan any, sendBuffer),
		}

		select {
		case hub.register <- client:
		case <-hub.quit:
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.quit:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case remote.ReplyClip, remote.ReplySpeech:
			h.remote.Dispatch(remote.Reply{
				Type:   msg.Type,
				Handle: msg.Handle,
				Event:  msg.Event,
				Detail: msg.Detail,
			})
		default:
			select {
			case h.actions <- actionRequest{client: c, msg: msg}:
			case <-h.quit:
				return
			}
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code for the current game URL using go-qrcode.
func qrHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if gameID == "" {
			http.Error(w, "missing game id", http.StatusBadRequest)
			return
		}

		scheme := cfg.scheme()
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		// We are at /.../:gameid/qr; strip trailing "/qr" to get the game URL.
		url := scheme + "://" + r.Host + strings.TrimSuffix(r.URL.Path, "/qr")

		const qrSize = 320
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)
		_, _ = w.Write(png)
	}
}

// ---- Static file paths ----

//go:embed earwax/index.html
var indexHTML []byte

//go:embed earwax/app.css
var earwaxCSS []byte

//go:embed earwax/app.js
var earwaxJS []byte

func staticHandler(cfg *Config, contentType string, data []byte) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(data)
	}
}

// redirectNewGame handles GET /earwax by generating a new random game ID
// (with server-side collision detection) and redirecting to /earwax/:gameid.
func redirectNewGame(cfg *Config, path string, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		gameID := gm.newGameID()
		logf(cfg, "GAMES: Created game %s/%s", path, gameID)
		http.Redirect(w, r, path+"/"+gameID, http.StatusTemporaryRedirect)
	}
}

// registerEarwax sets up routes so that:
//   - /earwax                → redirects to new random game (8-char ID)
//   - /earwax/:gameid        → HTML client
//   - /earwax/:gameid/ws     → WebSocket for that game
//   - /earwax/:gameid/qr     → PNG QR code for that game URL
func registerEarwax(ctx context.Context, cfg *Config, svc *services, mux *httprouter.Router) *GameManager {
	gm := newGameManager(ctx, cfg, svc)
	path := cfg.prefix + gamePath

	mux.GET(path, redirectNewGame(cfg, path, gm))

	mux.GET(path+"/:gameid", staticHandler(cfg, "text/html; charset=utf-8", indexHTML))

	mux.GET(cfg.prefix+"/assets/earwax/app.css", staticHandler(cfg, "text/css; charset=utf-8", earwaxCSS))
	mux.GET(cfg.prefix+"/assets/earwax/app.js", staticHandler(cfg, "application/javascript; charset=utf-8", earwaxJS))

	mux.GET(path+"/:gameid/ws", serveWSForManager(cfg, gm))

	mux.GET(path+"/:gameid/qr", qrHandler(cfg))

	return gm
}
