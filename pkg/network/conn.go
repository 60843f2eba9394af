package network

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/nimbusim/nimbus-node/pkg/protocol"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrClosed       = errors.New("connection manager closed")
	ErrConnection   = errors.New("connection failed")
	ErrMaxReconnect = errors.New("max reconnect attempts exceeded")
	ErrNoEndpoints  = errors.New("no endpoints configured")
)

// State represents the connection lifecycle state
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "invalid"
	}
}

// Endpoint is one (host, port) pair from the configured server list
type Endpoint struct {
	Host string
	Port int
}

// Addr returns the endpoint as a dialable address
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Config holds connection manager configuration
type Config struct {
	// Endpoints is the ordered server list. Index 0 is primary; the rest
	// are fallbacks tried in order on every attempt. No load balancing.
	Endpoints []Endpoint

	// InsecureSkipVerify skips server certificate validation. The default
	// matches the emulated service's self-signed deployment; production
	// forks should set this false.
	InsecureSkipVerify bool

	DialTimeout       time.Duration
	HeartbeatInterval time.Duration

	// Reconnection backoff: delay = BaseDelay * 2^(attempt-1), capped by
	// MaxAttempts failures before giving up.
	BaseDelay   time.Duration
	MaxAttempts int

	// EventBuffer is the capacity of the event channel
	EventBuffer int
}

// DefaultConfig returns the default connection configuration
func DefaultConfig(endpoints ...Endpoint) *Config {
	return &Config{
		Endpoints:          endpoints,
		InsecureSkipVerify: true,
		DialTimeout:        30 * time.Second,
		HeartbeatInterval:  30 * time.Second,
		BaseDelay:          time.Second,
		MaxAttempts:        5,
		EventBuffer:        64,
	}
}

// DialFunc opens a stream to addr. Overridable for tests.
type DialFunc func(ctx context.Context, addr string) (net.Conn, error)

// Conn owns one physical link to the service: the socket, its read loop,
// the heartbeat timer, and the reconnection state machine. All socket
// writes are serialized through a single writer lock so concurrent Send
// calls never interleave frame bytes.
type Conn struct {
	cfg  *Config
	dial DialFunc

	mu             sync.Mutex
	state          State
	sock           net.Conn
	generation     uint64
	attempts       int
	reconnectTimer *time.Timer
	heartbeatStop  chan struct{}

	writeMu sync.Mutex

	events chan Event
	done   chan struct{}
}

// NewConn creates a connection manager. It starts in StateDisconnected;
// nothing happens until Connect.
func NewConn(cfg *Config) *Conn {
	c := &Conn{
		cfg:    cfg,
		events: make(chan Event, cfg.EventBuffer),
		done:   make(chan struct{}),
	}
	c.dial = c.dialTLS
	return c
}

func (c *Conn) dialTLS(ctx context.Context, addr string) (net.Conn, error) {
	dialer := &tls.Dialer{
		Config: &tls.Config{InsecureSkipVerify: c.cfg.InsecureSkipVerify},
	}
	return dialer.DialContext(ctx, "tcp", addr)
}

// Connect opens a stream to the first reachable endpoint, primary first.
// On success the read loop and heartbeat start and the reconnect-attempt
// counter resets to 0. Call again manually after ErrMaxReconnect.
func (c *Conn) Connect() error {
	if len(c.cfg.Endpoints) == 0 {
		return ErrNoEndpoints
	}

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	sock, err := c.dialEndpoints()
	if err != nil {
		c.mu.Lock()
		if c.state == StateConnecting {
			c.state = StateDisconnected
		}
		c.mu.Unlock()
		return err
	}

	c.establish(sock)
	return nil
}

// dialEndpoints tries each configured endpoint in order
func (c *Conn) dialEndpoints() (net.Conn, error) {
	var lastErr error
	for _, ep := range c.cfg.Endpoints {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DialTimeout)
		sock, err := c.dial(ctx, ep.Addr())
		cancel()
		if err == nil {
			return sock, nil
		}
		lastErr = err
		log.Printf("dial %s failed: %v", ep.Addr(), err)
	}
	return nil, fmt.Errorf("%w: %v", ErrConnection, lastErr)
}

// establish installs a fresh socket and starts the per-generation loops
func (c *Conn) establish(sock net.Conn) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		sock.Close()
		return
	}
	c.sock = sock
	c.state = StateConnected
	c.attempts = 0
	c.generation++
	gen := c.generation
	c.heartbeatStop = make(chan struct{})
	hbStop := c.heartbeatStop
	c.mu.Unlock()

	log.Printf("connected to %s (generation %d)", sock.RemoteAddr(), gen)
	c.emit(Event{Kind: EventConnected, Generation: gen})

	go c.readLoop(gen, sock)
	go c.heartbeatLoop(gen, hbStop)
}

// Send frames a payload and writes it to the stream with a random frame id.
// Fire-and-forget: no delivery confirmation is tracked by this layer.
func (c *Conn) Send(frameType uint8, payload []byte) (uint32, error) {
	return c.SendWithID(frameType, payload, protocol.GenerateFrameID())
}

// SendWithID is Send with a caller-chosen frame id
func (c *Conn) SendWithID(frameType uint8, payload []byte, id uint32) (uint32, error) {
	if len(payload) > protocol.MaxPayloadSize {
		return 0, protocol.ErrPayloadTooLarge
	}

	c.mu.Lock()
	if c.state != StateConnected {
		state := c.state
		c.mu.Unlock()
		if state == StateClosed {
			return 0, ErrClosed
		}
		return 0, ErrNotConnected
	}
	sock := c.sock
	gen := c.generation
	c.mu.Unlock()

	frame := &protocol.Frame{
		Type:      frameType,
		ID:        id,
		Timestamp: protocol.NowUnix(),
		Payload:   payload,
	}
	encoded, err := protocol.EncodeFrame(frame)
	if err != nil {
		return 0, err
	}

	c.writeMu.Lock()
	_, err = sock.Write(encoded)
	c.writeMu.Unlock()

	if err != nil {
		c.handleFailure(gen, fmt.Errorf("write: %w", err))
		return 0, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	return id, nil
}

// State returns the current connection state
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Generation returns the current connection generation. It increments on
// every successful (re)connect and invalidates work from prior sockets.
func (c *Conn) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Attempts returns the current reconnect-attempt counter
func (c *Conn) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Endpoints returns the configured server list
func (c *Conn) Endpoints() []Endpoint {
	return c.cfg.Endpoints
}

// Events returns the event channel. A single consumer should drain it.
func (c *Conn) Events() <-chan Event {
	return c.events
}

// Done is closed when the connection manager shuts down
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close shuts the connection manager down: the socket, heartbeat timer,
// read loop, and any scheduled reconnection attempt. Idempotent and safe
// to call from error paths.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
	sock := c.sock
	c.sock = nil
	c.mu.Unlock()

	close(c.done)
	if sock != nil {
		sock.Close()
	}
	log.Println("connection manager closed")
	return nil
}

// emit delivers an event unless the manager is shutting down
func (c *Conn) emit(e Event) {
	select {
	case c.events <- e:
	case <-c.done:
	}
}
