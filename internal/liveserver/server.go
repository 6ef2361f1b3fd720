// Package liveserver is the full-duplex JSON websocket transport for
// rich UI clients: an on-connect state burst, a throttled dmx:state
// broadcast, and an inbound command table dispatched onto the
// coordinator.
package liveserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/lacylights/dmxengine/internal/coordinator"
	"github.com/lacylights/dmxengine/internal/fixture"
	"github.com/lacylights/dmxengine/internal/preset"
	"github.com/lacylights/dmxengine/internal/transmitter"
)

var startTime = time.Now()

// Config configures the live-client server.
type Config struct {
	Port             string
	CORSOrigin       string
	ThrottleInterval time.Duration
}

// Server serves the live-client websocket protocol.
type Server struct {
	cfg   Config
	coord *coordinator.Coordinator

	upgrader websocket.Upgrader
	http     *http.Server

	mu      sync.Mutex
	clients map[*client]bool

	pendingMu sync.Mutex
	pending   bool

	universeToken        int
	statusToken          int
	presetToken          int
	presetActivatedToken int
	fixturesToken        int
	conflictsToken       int

	stopThrottle chan struct{}
}

// New builds a Server around coord. Call Start to accept connections.
func New(cfg Config, coord *coordinator.Coordinator) *Server {
	if cfg.ThrottleInterval <= 0 {
		cfg.ThrottleInterval = 33 * time.Millisecond
	}

	s := &Server{
		cfg:     cfg,
		coord:   coord,
		clients: make(map[*client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		stopThrottle: make(chan struct{}),
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.CORSOrigin},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	router.Use(corsMiddleware.Handler)

	router.Get("/health", s.handleHealth)
	router.Get("/ws", s.handleWebsocket)

	s.http = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start subscribes to coordinator broadcasts and begins listening.
// Call in a goroutine; ListenAndServe blocks until Shutdown.
func (s *Server) Start() error {
	s.universeToken = s.coord.SubscribeUniverse(s.onUniverseChange)
	s.statusToken = s.coord.SubscribeStatus(s.onStatusChange)
	s.presetToken = s.coord.SubscribePresetsChanged(s.onPresetsChanged)
	s.presetActivatedToken = s.coord.SubscribePresetActivated(s.onPresetActivated)
	s.fixturesToken = s.coord.SubscribeFixturesChanged(s.onFixturesChanged)
	s.conflictsToken = s.coord.SubscribeConflicts(s.onConflicts)

	go s.throttleLoop()

	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("liveserver: %w", err)
	}
	return nil
}

// Shutdown unsubscribes, stops the throttle loop, and closes the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.coord.UnsubscribeUniverse(s.universeToken)
	s.coord.UnsubscribeStatus(s.statusToken)
	s.coord.UnsubscribePresetsChanged(s.presetToken)
	s.coord.UnsubscribePresetActivated(s.presetActivatedToken)
	s.coord.UnsubscribeFixturesChanged(s.fixturesToken)
	s.coord.UnsubscribeConflicts(s.conflictsToken)
	close(s.stopThrottle)
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","uptime":"%s","connected":%v}`,
		time.Since(startTime).Round(time.Second), s.coord.CurrentStatus().Connected)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := newClient(s, conn)
	s.register(c)

	go c.writePump()
	s.sendConnectBurst(c)
	c.readPump()
}

func (s *Server) register(c *client) {
	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
	s.mu.Unlock()
}

func (s *Server) broadcast(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.enqueue(data)
	}
}

// sendConnectBurst sends the fixed on-connect sequence to c alone:
// dmx:state, dmx:status, presets:list, fixtures:list, fixtures:profiles,
// and fixtures:conflicts if non-empty.
func (s *Server) sendConnectBurst(c *client) {
	ctx := context.Background()

	c.enqueue(dmxStateEvent(s.coord.CurrentUniverseState()))

	status := s.coord.CurrentStatus()
	c.enqueue(dmxStatusEvent(status.Connected, status.Port))

	if presets, err := s.coord.ListPresets(ctx); err == nil {
		c.enqueue(presetsListEvent(summarizePresets(presets)))
	}

	if fixtures, err := s.coord.ListFixtures(ctx); err == nil {
		c.enqueue(fixturesListEvent(fixtures))
	}

	c.enqueue(fixturesProfilesEvent(s.coord.ListProfiles()))

	if conflicts, err := s.coord.ValidateConflicts(ctx); err == nil && len(conflicts) > 0 {
		c.enqueue(fixturesConflictsEvent(conflicts))
	}
}

func summarizePresets(presets []*preset.Preset) []presetSummary {
	out := make([]presetSummary, len(presets))
	for i, p := range presets {
		out[i] = presetSummary{ID: p.ID, Name: p.Name, FadeTime: p.FadeTime, Color: p.Color}
	}
	return out
}

// --- coordinator broker callbacks: not throttled, except universe ---

func (s *Server) onUniverseChange(coordinator.UniverseState) {
	s.pendingMu.Lock()
	s.pending = true
	s.pendingMu.Unlock()
}

func (s *Server) onStatusChange(status transmitter.Status) {
	s.broadcast(dmxStatusEvent(status.Connected, status.Port))
}

func (s *Server) onPresetsChanged(presets []*preset.Preset) {
	s.broadcast(presetsListEvent(summarizePresets(presets)))
}

func (s *Server) onPresetActivated(p coordinator.PresetActivated) {
	s.broadcast(presetActivatedEvent(p.ID, p.Name))
}

func (s *Server) onFixturesChanged(fixtures []*fixture.Fixture) {
	s.broadcast(fixturesListEvent(fixtures))
}

func (s *Server) onConflicts(conflicts []string) {
	s.broadcast(fixturesConflictsEvent(conflicts))
}

// throttleLoop broadcasts dmx:state at most once per ThrottleInterval,
// coalescing any number of changes arriving inside one tick into a
// single frame sent on the next tick — never immediately.
func (s *Server) throttleLoop() {
	ticker := time.NewTicker(s.cfg.ThrottleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.pendingMu.Lock()
			due := s.pending
			s.pending = false
			s.pendingMu.Unlock()
			if due {
				s.broadcast(dmxStateEvent(s.coord.CurrentUniverseState()))
			}
		case <-s.stopThrottle:
			return
		}
	}
}

func (s *Server) dispatch(c *client, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.enqueue(errorEvent("malformed message"))
		return
	}
	s.handleCommand(c, env.Type, data)
}
