// Package agent implements the MRCPv2 connection agent (§4.8): a
// reactor multiplexing a control channel, a listening or
// outbound-connected socket set, and per-connection parser state.
package agent

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/net/netutil"

	"firestige.xyz/mrcpd/internal/capture"
	"firestige.xyz/mrcpd/internal/message"
	"firestige.xyz/mrcpd/internal/metrics"
	"firestige.xyz/mrcpd/internal/resource"
	"firestige.xyz/mrcpd/internal/task"
)

// Role is the agent's connection-establishment role.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

// RequestKind discriminates the agent's public-API request queue.
// These mirror §4.8's named control datagrams (ModifyChannel,
// RemoveChannel, SendMessage); Terminate is handled by the task's own
// inbox sentinel rather than a request variant.
type RequestKind int

const (
	ModifyChannel RequestKind = iota
	RemoveChannel
	SendMessage
)

// ConnectionType selects §4.8's reuse policy for ModifyChannel.
type ConnectionType int

const (
	ConnectionExisting ConnectionType = iota
	ConnectionNew
)

// Request is one entry in the agent's public-API queue.
type Request struct {
	Kind           RequestKind
	ChannelID      string
	RemoteAddr     string
	ConnectionType ConnectionType
	Message        *message.Message
	ReplyTo        *task.Base
}

// Response is posted back to a request's ReplyTo task after the
// reactor applies it.
type Response struct {
	Request Request
	Err     error
}

// Config configures an Agent.
type Config struct {
	Role           Role
	Listen         string // server role: bind address
	MaxConnections int
	Catalogue      *resource.Catalogue

	// Capture, if set, mirrors every inbound and outbound TCP segment
	// to a pcap file for offline debugging. Optional and off the hot
	// path: Observe never blocks the reactor.
	Capture *capture.Tap

	// OnMessage is invoked (from the reactor goroutine) for every
	// message parsed off any connection, including locally-synthesized
	// MethodFailed responses on a send failure.
	OnMessage func(remoteAddr string, msg *message.Message)
	// OnDisconnect is invoked once per channel sharing a connection
	// that closes, preserving the channel objects until explicitly
	// removed (§4.8).
	OnDisconnect func(channelID string)
}

type newConnEvent struct {
	conn net.Conn
}

type inboundChunk struct {
	conn *connection
	data []byte
	err  error
}

// Agent is the reactor task: a single goroutine owns every
// connection's socket and parser state, reached only through its
// inbox and the inboundCh fed by per-connection reader goroutines.
// This is the Go-idiomatic substitution for the source's manual
// pollset: blocking per-connection reads in their own goroutines
// stand in for readiness events, while every state mutation is
// funnelled back onto the single reactor goroutine exactly as the
// pollset loop would have applied it inline.
type Agent struct {
	cfg Config
	base *task.Base

	listener net.Listener
	inboundCh chan inboundChunk

	mu    sync.Mutex
	conns map[string]*connection // keyed by remote address, the (ip,port) reuse key
}

// New builds an agent with the given config. Call Start to begin
// accepting (server role) or to become ready to dial (client role).
func New(cfg Config) *Agent {
	a := &Agent{
		cfg:       cfg,
		inboundCh: make(chan inboundChunk, 256),
		conns:     make(map[string]*connection),
	}
	a.base = task.NewBase("connection-agent", task.Hooks{Run: a.run}, 256)
	return a
}

func (a *Agent) Base() *task.Base           { return a.base }
func (a *Agent) Start() error                { return a.base.Start() }
func (a *Agent) Terminate(wait bool) error   { return a.base.Terminate(wait) }

// Submit enqueues a request for the reactor goroutine. Safe from any
// goroutine.
func (a *Agent) Submit(req Request) bool {
	return a.base.Post(task.Msg{Kind: task.MsgUser, Data: req})
}

func (a *Agent) run(t *task.Base) error {
	if a.cfg.Role == RoleServer {
		ln, err := net.Listen("tcp", a.cfg.Listen)
		if err != nil {
			return fmt.Errorf("mrcpd: agent: listen %s: %w", a.cfg.Listen, err)
		}
		max := a.cfg.MaxConnections
		if max <= 0 {
			max = 1024
		}
		a.listener = netutil.LimitListener(ln, max)
		go a.acceptLoop(t)
	}

	for {
		select {
		case m := <-t.Inbox():
			if m.Kind == task.MsgTerminate {
				a.shutdown()
				return nil
			}
			switch v := m.Data.(type) {
			case Request:
				a.handleRequest(t, v)
			case newConnEvent:
				a.register(v.conn)
			}

		case chunk := <-a.inboundCh:
			a.handleChunk(chunk)
		}
	}
}

func (a *Agent) acceptLoop(t *task.Base) {
	for {
		conn, err := a.listener.Accept()
		if err != nil {
			slog.Info("connection agent listener stopped", "error", err)
			return
		}
		t.Post(task.Msg{Kind: task.MsgUser, Data: newConnEvent{conn: conn}})
	}
}

func (a *Agent) register(conn net.Conn) *connection {
	c := newConnection(conn, a.cfg.Catalogue)
	a.mu.Lock()
	a.conns[c.remoteAddr] = c
	a.mu.Unlock()
	metrics.ConnectionsActive.WithLabelValues(roleLabel(a.cfg.Role)).Inc()
	go a.readLoop(c)
	return c
}

func (a *Agent) readLoop(c *connection) {
	buf := make([]byte, readChunk)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if a.cfg.Capture != nil {
				a.cfg.Capture.Observe(capture.Segment{Src: c.conn.RemoteAddr(), Dst: c.conn.LocalAddr(), Payload: chunk})
			}
			a.inboundCh <- inboundChunk{conn: c, data: chunk}
		}
		if err != nil {
			a.inboundCh <- inboundChunk{conn: c, err: err}
			return
		}
	}
}

// handleChunk runs only on the reactor goroutine: it is the sole
// caller of connection.feed, preserving the single-threaded-parser
// invariant even though reads happen concurrently across connections.
func (a *Agent) handleChunk(chunk inboundChunk) {
	c := chunk.conn
	if chunk.err != nil {
		a.closeConnection(c)
		return
	}
	c.feed(chunk.data,
		func(msg *message.Message) {
			metrics.MessagesParsedTotal.WithLabelValues(msg.Kind.String()).Inc()
			if a.cfg.OnMessage != nil {
				a.cfg.OnMessage(c.remoteAddr, msg)
			}
		},
		func(err error) {
			metrics.MessagesInvalidTotal.WithLabelValues("parse-error").Inc()
			slog.Warn("connection agent: invalid message, closing connection", "remote", c.remoteAddr, "error", err)
			a.closeConnection(c)
		},
	)
}

func (a *Agent) closeConnection(c *connection) {
	a.mu.Lock()
	_, tracked := a.conns[c.remoteAddr]
	delete(a.conns, c.remoteAddr)
	a.mu.Unlock()
	if !tracked {
		return
	}

	c.writeMu.Lock()
	c.closed = true
	c.conn.Close()
	c.writeMu.Unlock()

	metrics.ConnectionsActive.WithLabelValues(roleLabel(a.cfg.Role)).Dec()
	if a.cfg.OnDisconnect != nil {
		for ch := range c.channels {
			a.cfg.OnDisconnect(ch)
		}
	}
}

func (a *Agent) handleRequest(t *task.Base, req Request) {
	var err error
	switch req.Kind {
	case ModifyChannel:
		err = a.modifyChannel(req)
	case RemoveChannel:
		err = a.removeChannel(req)
	case SendMessage:
		err = a.sendMessage(req)
	default:
		err = fmt.Errorf("mrcpd: agent: unknown request kind %d", req.Kind)
	}
	if req.ReplyTo != nil {
		req.ReplyTo.Post(task.Msg{Kind: task.MsgUser, Data: Response{Request: req, Err: err}})
	}
}

// modifyChannel implements §4.8's reuse policy: ConnectionExisting
// looks an existing connection up by (ip,port) address equality,
// incrementing its reference count on a hit; otherwise (or on
// ConnectionNew) a new outbound connection is dialed.
func (a *Agent) modifyChannel(req Request) error {
	a.mu.Lock()
	c, ok := a.conns[req.RemoteAddr]
	a.mu.Unlock()

	if req.ConnectionType == ConnectionExisting && ok {
		a.mu.Lock()
		c.refCount++
		c.channels[req.ChannelID] = struct{}{}
		a.mu.Unlock()
		metrics.ConnectionRefCount.WithLabelValues(roleLabel(a.cfg.Role)).Observe(float64(c.refCount))
		return nil
	}

	conn, err := net.Dial("tcp", req.RemoteAddr)
	if err != nil {
		return fmt.Errorf("mrcpd: agent: dial %s: %w", req.RemoteAddr, err)
	}
	c = a.register(conn)
	c.refCount = 1
	c.channels[req.ChannelID] = struct{}{}
	metrics.ConnectionRefCount.WithLabelValues(roleLabel(a.cfg.Role)).Observe(1)
	return nil
}

// removeChannel decrements the owning connection's reference count;
// on reaching zero the connection is physically closed and removed.
func (a *Agent) removeChannel(req Request) error {
	a.mu.Lock()
	c, ok := a.conns[req.RemoteAddr]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("mrcpd: agent: remove channel: unknown connection %s", req.RemoteAddr)
	}

	a.mu.Lock()
	delete(c.channels, req.ChannelID)
	c.refCount--
	done := c.refCount <= 0
	a.mu.Unlock()

	if done {
		a.closeConnection(c)
	}
	return nil
}

// sendMessage generates req.Message and writes it to the owning
// connection. On send failure, a locally-originated MethodFailed
// (401) response is synthesized and dispatched through the normal
// receive path so application callbacks see a uniform error (§4.8).
func (a *Agent) sendMessage(req Request) error {
	a.mu.Lock()
	c, ok := a.conns[req.RemoteAddr]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("mrcpd: agent: send message: unknown connection %s", req.RemoteAddr)
	}

	gen, err := message.NewGenerator(req.Message)
	if err != nil {
		return fmt.Errorf("mrcpd: agent: generate message: %w", err)
	}

	payload := gen.Bytes()
	c.writeMu.Lock()
	_, werr := c.conn.Write(payload)
	c.writeMu.Unlock()

	if werr == nil && a.cfg.Capture != nil {
		a.cfg.Capture.Observe(capture.Segment{Src: c.conn.LocalAddr(), Dst: c.conn.RemoteAddr(), Payload: payload, Outbound: true})
	}

	if werr != nil {
		metrics.SendFailuresTotal.Inc()
		slog.Warn("connection agent: send failed, synthesizing MethodFailed", "remote", req.RemoteAddr, "error", werr)
		failure := message.New(message.KindResponse, req.Message.Version)
		failure.RequestID = req.Message.RequestID
		failure.StatusCode = 401
		failure.RequestState = message.StateComplete
		if a.cfg.OnMessage != nil {
			a.cfg.OnMessage(req.RemoteAddr, failure)
		}
		return werr
	}
	return nil
}

func (a *Agent) shutdown() {
	a.mu.Lock()
	conns := make([]*connection, 0, len(a.conns))
	for _, c := range a.conns {
		conns = append(conns, c)
	}
	a.mu.Unlock()
	for _, c := range conns {
		a.closeConnection(c)
	}
	if a.listener != nil {
		a.listener.Close()
	}
}

func roleLabel(r Role) string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}
