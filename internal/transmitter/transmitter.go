// Package transmitter owns the USB-serial DMX adapter: device
// discovery, Enttec frame encoding, the 40 Hz refresh loop, and the
// reconnect state machine with exponential backoff.
package transmitter

import (
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/lacylights/dmxengine/internal/universe"
	"github.com/lacylights/dmxengine/pkg/enttec"
)

// State is a connection state of the reconnect state machine.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateOpening
	StateConnected
	StateDisconnected
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateOpening:
		return "opening"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

var errNoDeviceFound = errors.New("transmitter: no matching serial device found")

// logWarnf logs a warning-level message with the package's emoji
// convention. A dedicated helper keeps call sites in discovery.go
// from repeating the prefix.
func logWarnf(format string, args ...interface{}) {
	log.Printf("⚠️  "+format, args...)
}

// Status is published to subscribers on every transition into or out
// of StateConnected.
type Status struct {
	Connected bool
	Port      string // empty when not connected
}

// StatusListener receives transmitter status transitions.
type StatusListener func(Status)

// port is the subset of go.bug.st/serial.Port this package depends
// on, so tests can substitute a fake without opening a real device.
type port interface {
	io.ReadWriteCloser
}

// Config configures the transmitter.
type Config struct {
	VendorID     uint16
	ProductID    uint16
	BaudRate     int
	RefreshRate  time.Duration // frame period, default 25ms (40Hz)
	ReconnectMin time.Duration
	ReconnectMax time.Duration

	// discoverFunc and openFunc are overridable for testing; nil means
	// use the real go.bug.st/serial-backed implementations.
	discoverFunc func(vendorID, productID uint16) (string, error)
	openFunc     func(path string, baud int) (port, error)
}

// DefaultConfig returns a Config with the Enttec DMX USB Pro defaults.
func DefaultConfig() Config {
	return Config{
		VendorID:     0x0403,
		ProductID:    0x6001,
		BaudRate:     250000,
		RefreshRate:  25 * time.Millisecond,
		ReconnectMin: 1000 * time.Millisecond,
		ReconnectMax: 30000 * time.Millisecond,
	}
}

// Transmitter drives a connected serial port with a 40Hz refresh loop
// and manages reconnection on failure.
type Transmitter struct {
	cfg      Config
	universe *universe.Universe

	mu         sync.Mutex
	state      State
	conn       port
	portPath   string
	backoff    time.Duration
	reconnectT *time.Timer

	listeners map[int]StatusListener
	nextID    int

	stopChan chan struct{}
	doneChan chan struct{}
}

// New creates a Transmitter bound to u. Call Initialize to start it.
func New(cfg Config, u *universe.Universe) *Transmitter {
	if cfg.RefreshRate <= 0 {
		cfg.RefreshRate = 25 * time.Millisecond
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = 1000 * time.Millisecond
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 30000 * time.Millisecond
	}
	if cfg.discoverFunc == nil {
		cfg.discoverFunc = discoverPort
	}
	if cfg.openFunc == nil {
		cfg.openFunc = openRealPort
	}
	return &Transmitter{
		cfg:       cfg,
		universe:  u,
		state:     StateIdle,
		backoff:   cfg.ReconnectMin,
		listeners: make(map[int]StatusListener),
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

func openRealPort(path string, baud int) (port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.TwoStopBits,
	}
	p, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Subscribe registers a status listener and returns a token for Unsubscribe.
func (t *Transmitter) Subscribe(l StatusListener) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	t.listeners[id] = l
	return id
}

// Unsubscribe removes a previously registered status listener.
func (t *Transmitter) Unsubscribe(token int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.listeners, token)
}

// Initialize starts device scanning and the refresh loop. It is safe
// to call once; subsequent calls are no-ops.
func (t *Transmitter) Initialize() {
	t.mu.Lock()
	if t.state != StateIdle {
		t.mu.Unlock()
		return
	}
	t.state = StateScanning
	t.mu.Unlock()

	go t.refreshLoop()
	go t.scan()
}

// Shutdown terminates the transmitter: cancels any pending reconnect,
// closes the port, and stops the refresh loop permanently.
func (t *Transmitter) Shutdown() {
	t.mu.Lock()
	if t.state == StateTerminated {
		t.mu.Unlock()
		return
	}
	t.cancelReconnectLocked()
	wasConnected := t.state == StateConnected
	t.closeConnLocked()
	t.state = StateTerminated
	t.mu.Unlock()

	close(t.stopChan)
	<-t.doneChan

	if wasConnected {
		t.publishStatus(Status{Connected: false})
	}
}

// Restart force-closes any connection and re-enters Scanning with
// backoff reset.
func (t *Transmitter) Restart() {
	t.mu.Lock()
	if t.state == StateTerminated {
		t.mu.Unlock()
		return
	}
	t.cancelReconnectLocked()
	wasConnected := t.state == StateConnected
	t.closeConnLocked()
	t.backoff = t.cfg.ReconnectMin
	t.state = StateScanning
	t.mu.Unlock()

	if wasConnected {
		t.publishStatus(Status{Connected: false})
	}
	go t.scan()
}

// State returns the current connection state.
func (t *Transmitter) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// PortPath returns the currently connected port path, or "" if not connected.
func (t *Transmitter) PortPath() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.portPath
}

func (t *Transmitter) scan() {
	path, err := t.cfg.discoverFunc(t.cfg.VendorID, t.cfg.ProductID)
	if err != nil {
		log.Printf("🔌 transmitter: %v", err)
		t.transitionToDisconnected()
		return
	}

	t.mu.Lock()
	if t.state != StateScanning {
		t.mu.Unlock()
		return
	}
	t.state = StateOpening
	t.mu.Unlock()

	conn, err := t.cfg.openFunc(path, t.cfg.BaudRate)
	if err != nil {
		log.Printf("🔌 transmitter: failed to open %s: %v", path, err)
		t.transitionToDisconnected()
		return
	}

	t.mu.Lock()
	if t.state != StateOpening {
		t.mu.Unlock()
		_ = conn.Close()
		return
	}
	t.conn = conn
	t.portPath = path
	t.state = StateConnected
	t.backoff = t.cfg.ReconnectMin
	t.mu.Unlock()

	log.Printf("✅ transmitter: connected on %s", path)
	t.publishStatus(Status{Connected: true, Port: path})
}

// transitionToDisconnected moves to Disconnected (unless terminated)
// and schedules the next reconnect attempt with exponential backoff.
func (t *Transmitter) transitionToDisconnected() {
	t.mu.Lock()
	if t.state == StateTerminated {
		t.mu.Unlock()
		return
	}
	wasConnected := t.state == StateConnected
	prevPort := t.portPath
	t.closeConnLocked()
	t.state = StateDisconnected

	delay := t.backoff
	t.backoff *= 2
	if t.backoff > t.cfg.ReconnectMax {
		t.backoff = t.cfg.ReconnectMax
	}
	t.reconnectT = time.AfterFunc(delay, t.onReconnectTimer)
	t.mu.Unlock()

	if wasConnected {
		log.Printf("🔌 transmitter: lost connection to %s, reconnecting in %v", prevPort, delay)
		t.publishStatus(Status{Connected: false})
	}
}

func (t *Transmitter) onReconnectTimer() {
	t.mu.Lock()
	if t.state != StateDisconnected {
		t.mu.Unlock()
		return
	}
	t.state = StateScanning
	t.mu.Unlock()

	t.scan()
}

// closeConnLocked closes the current connection, if any. Caller must hold t.mu.
func (t *Transmitter) closeConnLocked() {
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
	t.portPath = ""
}

// cancelReconnectLocked stops a pending reconnect timer. Caller must hold t.mu.
func (t *Transmitter) cancelReconnectLocked() {
	if t.reconnectT != nil {
		t.reconnectT.Stop()
		t.reconnectT = nil
	}
}

func (t *Transmitter) publishStatus(s Status) {
	t.mu.Lock()
	listeners := make([]StatusListener, 0, len(t.listeners))
	for _, l := range t.listeners {
		listeners = append(listeners, l)
	}
	t.mu.Unlock()
	for _, l := range listeners {
		l(s)
	}
}

// refreshLoop writes one frame every RefreshRate, regardless of
// connection state (disconnected ticks are no-ops). A write error is
// logged and treated as the port having closed: tick tears the
// connection down and schedules a reconnect, because go.bug.st/serial
// does not expose a separate close event.
func (t *Transmitter) refreshLoop() {
	defer close(t.doneChan)

	ticker := time.NewTicker(t.cfg.RefreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopChan:
			return
		case <-ticker.C:
			t.tick()
		}
	}
}

func (t *Transmitter) tick() {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return
	}

	effective := t.universe.GetEffective()
	frame := enttec.BuildFrame(effective[:])

	if _, err := conn.Write(frame); err != nil {
		log.Printf("⚠️  transmitter: write failed: %v", err)
		t.transitionToDisconnected()
	}
}
