package router

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/nimbusim/nimbus-node/pkg/network"
	"github.com/nimbusim/nimbus-node/pkg/protocol"
	"github.com/nimbusim/nimbus-node/pkg/session"
)

// defaultBuffer is the capacity of each outbound event channel
const defaultBuffer = 64

// Source is the stream of connection events the router consumes.
// *network.Conn satisfies it.
type Source interface {
	Events() <-chan network.Event
	Done() <-chan struct{}
}

// Decrypted is the result of processing one encrypted-envelope frame.
// Err is set when decryption was rejected; the frame is dropped but the
// connection stays up.
type Decrypted struct {
	Peer      string
	FrameID   uint32
	Plaintext []byte
	Err       error
}

// Raw carries frames whose payloads the router does not interpret
// (media, group, sync, device notifications).
type Raw struct {
	Frame *protocol.Frame
}

// Stats are cumulative dispatch counters
type Stats struct {
	Frames     uint64
	Heartbeats uint64
	Unknown    uint64
	Dropped    uint64
}

// Router dispatches decoded frames from a connection to per-type
// channels. It runs a single dispatch goroutine so consumers observe
// frames in arrival order. Encrypted-envelope frames are decrypted
// through the session store before being republished; a failed
// decryption is reported on the Decrypted channel with Err set and
// never tears the connection down.
type Router struct {
	source   Source
	sessions *session.Store

	texts        chan *protocol.TextMessage
	presence     chan *protocol.Presence
	typing       chan *protocol.TypingIndicator
	receipts     chan *protocol.Receipt
	decrypted    chan Decrypted
	raw          chan Raw
	connectivity chan network.Event

	frames     atomic.Uint64
	heartbeats atomic.Uint64
	unknown    atomic.Uint64
	dropped    atomic.Uint64

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a router over a connection event source and session store.
// Call Run to start dispatching.
func New(source Source, sessions *session.Store) *Router {
	return &Router{
		source:       source,
		sessions:     sessions,
		texts:        make(chan *protocol.TextMessage, defaultBuffer),
		presence:     make(chan *protocol.Presence, defaultBuffer),
		typing:       make(chan *protocol.TypingIndicator, defaultBuffer),
		receipts:     make(chan *protocol.Receipt, defaultBuffer),
		decrypted:    make(chan Decrypted, defaultBuffer),
		raw:          make(chan Raw, defaultBuffer),
		connectivity: make(chan network.Event, defaultBuffer),
		stop:         make(chan struct{}),
	}
}

// Run starts the dispatch goroutine
func (r *Router) Run() {
	go r.loop()
}

// Stop terminates the dispatch loop. Idempotent.
func (r *Router) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Texts delivers decoded plaintext text messages
func (r *Router) Texts() <-chan *protocol.TextMessage { return r.texts }

// Presence delivers presence updates
func (r *Router) Presence() <-chan *protocol.Presence { return r.presence }

// Typing delivers typing indicators
func (r *Router) Typing() <-chan *protocol.TypingIndicator { return r.typing }

// Receipts delivers read and delivery receipts
func (r *Router) Receipts() <-chan *protocol.Receipt { return r.receipts }

// Decrypted delivers envelope decryption results, failures included
func (r *Router) Decrypted() <-chan Decrypted { return r.decrypted }

// Raw delivers frames the router does not interpret
func (r *Router) Raw() <-chan Raw { return r.raw }

// Connectivity forwards connection lifecycle events (connected,
// disconnected, max-reconnect) to the application
func (r *Router) Connectivity() <-chan network.Event { return r.connectivity }

// Stats returns a snapshot of the dispatch counters
func (r *Router) Stats() Stats {
	return Stats{
		Frames:     r.frames.Load(),
		Heartbeats: r.heartbeats.Load(),
		Unknown:    r.unknown.Load(),
		Dropped:    r.dropped.Load(),
	}
}

func (r *Router) loop() {
	for {
		select {
		case <-r.stop:
			return
		case <-r.source.Done():
			return
		case e := <-r.source.Events():
			if e.Kind == network.EventFrame {
				r.dispatch(e.Frame)
				continue
			}
			forward(r, r.connectivity, e)
		}
	}
}

// dispatch routes one frame by type. Unknown type codes are logged and
// dropped, never fatal.
func (r *Router) dispatch(frame *protocol.Frame) {
	r.frames.Add(1)

	switch frame.Type {
	case protocol.TypeText:
		msg := new(protocol.TextMessage)
		if err := msg.Decode(frame.Payload); err != nil {
			log.Printf("dropping text frame %d: %v", frame.ID, err)
			r.dropped.Add(1)
			return
		}
		forward(r, r.texts, msg)

	case protocol.TypePresence:
		p := new(protocol.Presence)
		if err := p.Decode(frame.Payload); err != nil {
			log.Printf("dropping presence frame %d: %v", frame.ID, err)
			r.dropped.Add(1)
			return
		}
		forward(r, r.presence, p)

	case protocol.TypeTyping:
		ind := new(protocol.TypingIndicator)
		if err := ind.Decode(frame.Payload); err != nil {
			log.Printf("dropping typing frame %d: %v", frame.ID, err)
			r.dropped.Add(1)
			return
		}
		forward(r, r.typing, ind)

	case protocol.TypeReadReceipt, protocol.TypeDeliveryReceipt:
		rc := new(protocol.Receipt)
		if err := rc.Decode(frame.Payload); err != nil {
			log.Printf("dropping receipt frame %d: %v", frame.ID, err)
			r.dropped.Add(1)
			return
		}
		forward(r, r.receipts, rc)

	case protocol.TypeEncrypted:
		r.dispatchEncrypted(frame)

	case protocol.TypeHeartbeat:
		r.heartbeats.Add(1)

	case protocol.TypeMedia, protocol.TypeGroup, protocol.TypeSync, protocol.TypeDeviceNotify:
		forward(r, r.raw, Raw{Frame: frame})

	default:
		log.Printf("dropping frame %d with unknown type 0x%02x", frame.ID, frame.Type)
		r.unknown.Add(1)
	}
}

// dispatchEncrypted decodes the envelope, decrypts it against the
// sender's session, and republishes the outcome either way
func (r *Router) dispatchEncrypted(frame *protocol.Frame) {
	env := new(protocol.Envelope)
	if err := env.Decode(frame.Payload); err != nil {
		log.Printf("dropping envelope frame %d: %v", frame.ID, err)
		r.dropped.Add(1)
		return
	}

	plaintext, err := r.sessions.Decrypt(env.Peer, env)
	if err != nil {
		log.Printf("decryption failed for peer %s (frame %d): %v", env.Peer, frame.ID, err)
		forward(r, r.decrypted, Decrypted{Peer: env.Peer, FrameID: frame.ID, Err: err})
		return
	}

	forward(r, r.decrypted, Decrypted{Peer: env.Peer, FrameID: frame.ID, Plaintext: plaintext})
}

// forward delivers to a consumer channel without ever blocking the
// dispatch loop. A full channel drops the event.
func forward[T any](r *Router, ch chan T, v T) {
	select {
	case ch <- v:
	default:
		r.dropped.Add(1)
		log.Printf("consumer channel full, dropping event")
	}
}
