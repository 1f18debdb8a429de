package dht

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/jroosing/pkarr/internal/pool"
)

// maxIncomingMessageSize bounds a single KRPC reply datagram.
const maxIncomingMessageSize = 2048

// recvBuffers recycles reply buffers across queries.
var recvBuffers = pool.New(func() *[]byte {
	buf := make([]byte, maxIncomingMessageSize)
	return &buf
})

// queryNode sends one datagram to node ("host:port", names allowed) and
// waits for a single reply, bounded by timeout and any earlier ctx
// deadline. Every failure is wrapped in ErrDHT; callers treat it as a dead
// end for that node only.
func queryNode(ctx context.Context, node string, payload []byte, timeout time.Duration) ([]byte, error) {
	conn, err := net.Dial("udp", node)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %v", ErrDHT, node, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write(payload); err != nil {
		return nil, fmt.Errorf("%w: sending to %s: %v", ErrDHT, node, err)
	}

	bufPtr := recvBuffers.Get()
	defer recvBuffers.Put(bufPtr)

	n, err := conn.Read(*bufPtr)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, fmt.Errorf("%w: timeout waiting for %s", ErrDHT, node)
		}
		return nil, fmt.Errorf("%w: reading from %s: %v", ErrDHT, node, err)
	}

	// Copy data out of the pooled buffer.
	data := make([]byte, n)
	copy(data, (*bufPtr)[:n])
	return data, nil
}
