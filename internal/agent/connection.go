package agent

import (
	"net"
	"sync"

	"firestige.xyz/mrcpd/internal/message"
	"firestige.xyz/mrcpd/internal/resource"
	"firestige.xyz/mrcpd/internal/stream"
)

// readChunk is the buffer size each inbound Read call fills before
// feeding the connection's parser (§4.8: "read one buffer; feed it to
// that connection's parser in a loop while further whole messages are
// available").
const readChunk = 8192

// connection is per-socket state: the net.Conn, its parser (touched
// only by the reactor goroutine, per §5's single-threaded-parser
// rule), and the reference count of channels sharing it (§4.8's reuse
// policy).
type connection struct {
	conn       net.Conn
	remoteAddr string

	parser  *message.Parser
	pending []byte // unconsumed bytes left by the previous feed call

	refCount int
	channels map[string]struct{} // channel ids notified on disconnect

	writeMu sync.Mutex
	closed  bool
}

func newConnection(conn net.Conn, cat *resource.Catalogue) *connection {
	return &connection{
		conn:       conn,
		remoteAddr: conn.RemoteAddr().String(),
		parser:     message.NewParser(cat),
		channels:   make(map[string]struct{}),
	}
}

// feed concatenates b onto whatever the previous call left unconsumed
// and drains as many whole messages as are available, invoking
// onMessage for each. It retains the parser's trailing remainder for
// the connection's next Read, matching §4.2's restartability law: an
// arbitrarily segmented byte stream yields the same message sequence
// as one delivered whole.
func (c *connection) feed(b []byte, onMessage func(*message.Message), onInvalid func(error)) {
	combined := append(c.pending, b...)
	text := stream.New(combined)

	for {
		res, msg, err := c.parser.Run(text)
		switch res {
		case message.Complete:
			onMessage(msg)
		case message.Invalid:
			if onInvalid != nil {
				onInvalid(err)
			}
			c.pending = nil
			return
		default: // Incomplete
			remaining := text.Remaining()
			c.pending = append([]byte(nil), remaining...)
			return
		}
	}
}
