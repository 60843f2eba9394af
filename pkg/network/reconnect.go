package network

import (
	"log"
	"time"

	"github.com/nimbusim/nimbus-node/pkg/protocol"
)

// backoffDelay computes the reconnection delay for the given attempt:
// baseDelay * 2^(attempt-1), no jitter
func backoffDelay(base time.Duration, attempt int) time.Duration {
	return base << (attempt - 1)
}

// handleFailure reacts to a transport failure on the given generation.
// Stale reports from a previous generation's loops are ignored. The first
// report for the live generation tears the socket down, moves to
// StateReconnecting, and schedules the next attempt.
func (c *Conn) handleFailure(gen uint64, cause error) {
	c.mu.Lock()
	if c.state != StateConnected || gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.state = StateReconnecting
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
	if c.sock != nil {
		c.sock.Close()
		c.sock = nil
	}
	c.mu.Unlock()

	c.emit(Event{Kind: EventDisconnected, Generation: gen, Err: cause})
	c.scheduleReconnect()
}

// scheduleReconnect counts one more failure and either schedules the next
// attempt or gives up with EventMaxReconnect
func (c *Conn) scheduleReconnect() {
	c.mu.Lock()
	if c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}

	c.attempts++
	if c.attempts > c.cfg.MaxAttempts {
		c.state = StateDisconnected
		attempts := c.attempts
		c.mu.Unlock()
		log.Printf("giving up after %d reconnect attempts", attempts-1)
		c.emit(Event{Kind: EventMaxReconnect, Err: ErrMaxReconnect})
		return
	}

	delay := backoffDelay(c.cfg.BaseDelay, c.attempts)
	log.Printf("reconnecting in %v (attempt %d/%d)", delay, c.attempts, c.cfg.MaxAttempts)
	c.reconnectTimer = time.AfterFunc(delay, c.tryReconnect)
	c.mu.Unlock()
}

// tryReconnect runs when a scheduled reconnection delay elapses
func (c *Conn) tryReconnect() {
	c.mu.Lock()
	if c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.reconnectTimer = nil
	c.mu.Unlock()

	sock, err := c.dialEndpoints()
	if err != nil {
		log.Printf("reconnect failed: %v", err)
		c.mu.Lock()
		if c.state == StateConnecting {
			c.state = StateReconnecting
		}
		c.mu.Unlock()
		c.scheduleReconnect()
		return
	}

	c.establish(sock)
}

// heartbeatLoop sends a heartbeat frame every HeartbeatInterval while the
// generation it belongs to stays connected. A missing heartbeat reply does
// not trigger reconnection; only transport-level errors do.
func (c *Conn) heartbeatLoop(gen uint64, stop chan struct{}) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-stop:
			return
		case <-ticker.C:
			if _, err := c.Send(protocol.TypeHeartbeat, nil); err != nil {
				log.Printf("heartbeat failed: %v", err)
				return
			}
		}
	}
}
