package agent

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// queryTimeout bounds how long QueryStatus waits for a reply, so the
// status CLI command fails fast instead of hanging when no mrcpd is
// listening on the configured control socket.
const queryTimeout = 2 * time.Second

// ControlSocket answers out-of-process status queries about a running
// Agent. It is distinct from the intra-process Submit/task.Base
// channel path: that path exists for in-process callers (the session
// coordinator), this one exists for the CLI's "status" subcommand
// running as a separate OS process, which is why it is a real
// loopback socket rather than a Go channel (§254's wake-mechanism
// redesign only covers the in-process pollset replacement).
type ControlSocket struct {
	conn *net.UDPConn
	stat func() uint64 // returns the current status payload, e.g. active connection count

	mu      sync.Mutex
	closed  bool
	wg      sync.WaitGroup
}

// ListenControlSocket binds a UDP socket at addr (use "127.0.0.1:0" for
// an ephemeral port) and starts answering CtlStatusQuery datagrams.
func ListenControlSocket(addr string, stat func() uint64) (*ControlSocket, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("mrcpd: agent: resolve control socket addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("mrcpd: agent: listen control socket: %w", err)
	}
	cs := &ControlSocket{conn: conn, stat: stat}
	cs.wg.Add(1)
	go cs.serve()
	return cs, nil
}

// Addr returns the bound local address, useful when Listen was given
// an ephemeral port.
func (cs *ControlSocket) Addr() net.Addr { return cs.conn.LocalAddr() }

func (cs *ControlSocket) serve() {
	defer cs.wg.Done()
	buf := make([]byte, 64)
	for {
		n, peer, err := cs.conn.ReadFromUDP(buf)
		if err != nil {
			cs.mu.Lock()
			closed := cs.closed
			cs.mu.Unlock()
			if closed {
				return
			}
			slog.Warn("mrcpd: agent: control socket read error", "error", err)
			continue
		}

		req, err := DecodeControlDatagram(buf[:n])
		if err != nil {
			slog.Warn("mrcpd: agent: control socket: malformed datagram", "error", err)
			continue
		}
		if req.Discriminant != CtlStatusQuery {
			continue
		}

		reply := ControlDatagram{Discriminant: CtlStatusReply, Correlation: req.Correlation, Argument: cs.stat()}
		if _, err := cs.conn.WriteToUDP(reply.Encode(), peer); err != nil {
			slog.Warn("mrcpd: agent: control socket: reply write failed", "error", err)
		}
	}
}

// Close stops answering queries and releases the socket.
func (cs *ControlSocket) Close() error {
	cs.mu.Lock()
	cs.closed = true
	cs.mu.Unlock()
	err := cs.conn.Close()
	cs.wg.Wait()
	return err
}

// QueryStatus is the client side: send a CtlStatusQuery to addr and
// wait for its CtlStatusReply.
func QueryStatus(addr string) (uint64, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return 0, fmt.Errorf("mrcpd: agent: dial control socket: %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(queryTimeout)); err != nil {
		return 0, fmt.Errorf("mrcpd: agent: set control socket deadline: %w", err)
	}

	req := ControlDatagram{Discriminant: CtlStatusQuery, Correlation: 1}
	if _, err := conn.Write(req.Encode()); err != nil {
		return 0, fmt.Errorf("mrcpd: agent: send status query: %w", err)
	}

	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("mrcpd: agent: read status reply: %w", err)
	}
	resp, err := DecodeControlDatagram(buf[:n])
	if err != nil {
		return 0, err
	}
	if resp.Discriminant != CtlStatusReply {
		return 0, fmt.Errorf("mrcpd: agent: unexpected reply discriminant %d", resp.Discriminant)
	}
	return resp.Argument, nil
}
