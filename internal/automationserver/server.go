// Package automationserver is the raw TCP control surface for show
// control systems: newline-delimited JSON requests in, a matching
// response plus unsolicited broadcast events out.
package automationserver

import (
	"bufio"
	"encoding/json"
	"log"
	"net"
	"sync"

	"github.com/lacylights/dmxengine/internal/coordinator"
	"github.com/lacylights/dmxengine/internal/preset"
	"github.com/lacylights/dmxengine/internal/transmitter"
)

// Config configures the automation server.
type Config struct {
	Port string
}

// Server accepts plain TCP connections speaking one JSON object per line.
type Server struct {
	cfg   Config
	coord *coordinator.Coordinator

	listener net.Listener

	mu      sync.Mutex
	clients map[*conn]bool

	statusToken          int
	presetActivatedToken int
	presetsToken         int

	stopChan chan struct{}
	doneChan chan struct{}
}

// conn is one accepted connection: a line reader plus a single writer
// goroutine so broadcasts and replies never interleave their bytes.
type conn struct {
	server *Server
	raw    net.Conn
	out    chan []byte
}

// New builds a Server around coord. Call Start to accept connections.
func New(cfg Config, coord *coordinator.Coordinator) *Server {
	return &Server{
		cfg:      cfg,
		coord:    coord,
		clients:  make(map[*conn]bool),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start subscribes to coordinator broadcasts and accepts connections
// until Shutdown is called. Blocks; run it in a goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", ":"+s.cfg.Port)
	if err != nil {
		return err
	}
	s.listener = ln

	s.statusToken = s.coord.SubscribeStatus(s.onStatusChange)
	s.presetActivatedToken = s.coord.SubscribePresetActivated(s.onPresetActivated)
	s.presetsToken = s.coord.SubscribePresetsChanged(s.onPresetsChanged)

	go func() {
		<-s.stopChan
		ln.Close()
	}()

	for {
		raw, err := ln.Accept()
		if err != nil {
			select {
			case <-s.stopChan:
				close(s.doneChan)
				return nil
			default:
				log.Printf("⚠️  automationserver: accept: %v", err)
				close(s.doneChan)
				return err
			}
		}
		c := &conn{server: s, raw: raw, out: make(chan []byte, 32)}
		s.register(c)
		go c.writeLoop()
		go c.readLoop()
	}
}

// Shutdown unsubscribes and stops accepting/serving connections.
func (s *Server) Shutdown() {
	s.coord.UnsubscribeStatus(s.statusToken)
	s.coord.UnsubscribePresetActivated(s.presetActivatedToken)
	s.coord.UnsubscribePresetsChanged(s.presetsToken)
	close(s.stopChan)
	<-s.doneChan

	s.mu.Lock()
	for c := range s.clients {
		c.raw.Close()
	}
	s.mu.Unlock()
}

func (s *Server) register(c *conn) {
	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()
}

func (s *Server) unregister(c *conn) {
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.out)
	}
	s.mu.Unlock()
}

func (s *Server) broadcast(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("⚠️  automationserver: marshaling broadcast: %v", err)
		return
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.enqueue(data)
	}
}

func (c *conn) enqueue(data []byte) {
	select {
	case c.out <- data:
	default:
		log.Printf("⚠️  automationserver: client send buffer full, dropping frame")
	}
}

func (c *conn) writeLoop() {
	defer c.raw.Close()
	for data := range c.out {
		if _, err := c.raw.Write(data); err != nil {
			return
		}
	}
}

func (c *conn) readLoop() {
	defer c.server.unregister(c)
	defer c.raw.Close()

	scanner := bufio.NewScanner(c.raw)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		resp := c.server.handle(line)
		data, err := json.Marshal(resp)
		if err != nil {
			log.Printf("⚠️  automationserver: marshaling response: %v", err)
			continue
		}
		data = append(data, '\n')
		c.enqueue(data)
	}
}

// --- coordinator broker callbacks ---

func (s *Server) onStatusChange(status transmitter.Status) {
	s.broadcast(statusEvent{Event: "dmx_status", Connected: status.Connected})
}

func (s *Server) onPresetActivated(p coordinator.PresetActivated) {
	s.broadcast(presetActivatedEvent{Event: "preset_activated", ID: p.ID, Name: p.Name})
}

func (s *Server) onPresetsChanged(presets []*preset.Preset) {
	s.broadcast(presetsUpdatedEvent{Event: "presets_updated", Presets: summarizePresets(presets)})
}

func summarizePresets(presets []*preset.Preset) []presetSummary {
	out := make([]presetSummary, len(presets))
	for i, p := range presets {
		out[i] = presetSummary{ID: p.ID, Name: p.Name, FadeTime: p.FadeTime, Color: p.Color}
	}
	return out
}
