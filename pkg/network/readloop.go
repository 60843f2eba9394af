package network

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"

	"github.com/nimbusim/nimbus-node/pkg/protocol"
)

// readBufferSize is the per-read chunk size
const readBufferSize = 32 * 1024

// readLoop reads from sock until it fails, extracting complete frames as
// they arrive. Partial frames persist in the buffer across reads. The loop
// belongs to one connection generation; once the socket dies the loop
// reports the failure for that generation and exits.
func (c *Conn) readLoop(gen uint64, sock net.Conn) {
	buf := make([]byte, 0, readBufferSize)
	chunk := make([]byte, readBufferSize)

	for {
		n, err := sock.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)

			for {
				frame, consumed, derr := protocol.DecodeFrame(buf)
				if derr != nil {
					// Corrupted stream: the position cannot be
					// trusted, so drop the connection instead of
					// trying to resynchronize.
					log.Printf("malformed frame on generation %d: %v", gen, derr)
					sock.Close()
					c.handleFailure(gen, derr)
					return
				}
				if frame == nil {
					break
				}
				buf = buf[consumed:]
				c.emit(Event{Kind: EventFrame, Generation: gen, Frame: frame})
			}
		}

		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Printf("read error on generation %d: %v", gen, err)
			}
			c.handleFailure(gen, fmt.Errorf("read: %w", err))
			return
		}
	}
}
