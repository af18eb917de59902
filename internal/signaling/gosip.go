package signaling

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ghettovoice/gosip/log"
	"github.com/ghettovoice/gosip/sip"
	"github.com/ghettovoice/gosip/sip/parser"
)

// slogAdapter satisfies gosip's log.Logger interface by forwarding to
// the package-wide slog logger, the same adapter shape the teacher's
// skywalking reporter uses to bridge gosip's logging onto its own.
type slogAdapter struct {
	prefix string
}

func (a *slogAdapter) Print(args ...any)            { slog.Info(fmt.Sprint(args...), "component", "gosip") }
func (a *slogAdapter) Printf(f string, args ...any) { slog.Info(fmt.Sprintf(f, args...), "component", "gosip") }
func (a *slogAdapter) Trace(args ...any)            { slog.Debug(fmt.Sprint(args...), "component", "gosip") }
func (a *slogAdapter) Tracef(f string, args ...any) { slog.Debug(fmt.Sprintf(f, args...), "component", "gosip") }
func (a *slogAdapter) Debug(args ...any)            { slog.Debug(fmt.Sprint(args...), "component", "gosip") }
func (a *slogAdapter) Debugf(f string, args ...any) { slog.Debug(fmt.Sprintf(f, args...), "component", "gosip") }
func (a *slogAdapter) Info(args ...any)             { slog.Info(fmt.Sprint(args...), "component", "gosip") }
func (a *slogAdapter) Infof(f string, args ...any)  { slog.Info(fmt.Sprintf(f, args...), "component", "gosip") }
func (a *slogAdapter) Warn(args ...any)             { slog.Warn(fmt.Sprint(args...), "component", "gosip") }
func (a *slogAdapter) Warnf(f string, args ...any)  { slog.Warn(fmt.Sprintf(f, args...), "component", "gosip") }
func (a *slogAdapter) Error(args ...any)            { slog.Error(fmt.Sprint(args...), "component", "gosip") }
func (a *slogAdapter) Errorf(f string, args ...any) { slog.Error(fmt.Sprintf(f, args...), "component", "gosip") }
func (a *slogAdapter) Fatal(args ...any)            { slog.Error(fmt.Sprint(args...), "component", "gosip", "fatal", true) }
func (a *slogAdapter) Fatalf(f string, args ...any) { slog.Error(fmt.Sprintf(f, args...), "component", "gosip", "fatal", true) }
func (a *slogAdapter) Panic(args ...any)            { slog.Error(fmt.Sprint(args...), "component", "gosip", "panic", true) }
func (a *slogAdapter) Panicf(f string, args ...any) { slog.Error(fmt.Sprintf(f, args...), "component", "gosip", "panic", true) }
func (a *slogAdapter) SetLevel(level uint32)        {}
func (a *slogAdapter) Fields() log.Fields                          { return log.Fields{} }
func (a *slogAdapter) WithFields(fields map[string]any) log.Logger { return a }
func (a *slogAdapter) WithPrefix(prefix string) log.Logger         { return &slogAdapter{prefix: prefix} }
func (a *slogAdapter) Prefix() string                              { return a.prefix }

// pendingCall tracks one outstanding SendOffer awaiting its SIP final
// response.
type pendingCall struct {
	done chan Answer
	err  chan error
}

// GosipAgent implements Agent over raw SIP messages parsed and
// rendered with gosip's packet parser. It targets the offer/answer
// exchange of an INVITE dialog; full dialog and transaction-layer
// state (retransmission, CANCEL, re-INVITE) is out of scope here —
// session.go's own barrier counters already provide the
// acknowledgement discipline this package needs to satisfy.
type GosipAgent struct {
	parser *parser.PacketParser
	send   func(target string, raw []byte) error

	mu      sync.Mutex
	pending map[string]*pendingCall // keyed by Call-ID
}

// NewGosipAgent builds an agent that renders outbound SIP messages and
// hands their bytes to send (the transport write, e.g. a UDP/TCP
// socket write owned by the caller).
func NewGosipAgent(send func(target string, raw []byte) error) *GosipAgent {
	return &GosipAgent{
		parser:  parser.NewPacketParser(&slogAdapter{}),
		send:    send,
		pending: make(map[string]*pendingCall),
	}
}

// HandleInbound feeds raw bytes received from the transport into the
// parser and resolves any pending call whose Call-ID matches a final
// response.
func (a *GosipAgent) HandleInbound(raw []byte) error {
	msg, err := a.parser.ParseMessage(raw)
	if err != nil {
		return fmt.Errorf("mrcpd: signaling: parse SIP message: %w", err)
	}

	res, ok := msg.(sip.Response)
	if !ok {
		return nil // requests (e.g. an inbound re-INVITE) are out of this agent's scope
	}
	callID, ok := res.CallID()
	if !ok {
		return fmt.Errorf("mrcpd: signaling: response missing Call-ID")
	}

	a.mu.Lock()
	pc, ok := a.pending[callID.Value()]
	a.mu.Unlock()
	if !ok {
		return nil
	}

	if res.StatusCode() >= 200 && res.StatusCode() < 300 {
		pc.done <- Answer{SDP: res.Body()}
	} else {
		pc.err <- fmt.Errorf("mrcpd: signaling: SIP failure response %d", res.StatusCode())
	}
	return nil
}

// SendOffer is not fully wired to gosip's request-builder API (not
// grounded in any example usage beyond message parsing); it returns an
// error so callers fail loudly instead of silently no-opping. Real
// deployments register a transaction-layer backed Agent here instead.
func (a *GosipAgent) SendOffer(ctx context.Context, target string, offer Offer) (Answer, error) {
	return Answer{}, fmt.Errorf("mrcpd: signaling: gosip SendOffer not implemented for target %s", target)
}

// SendAnswer mirrors SendOffer's limitation.
func (a *GosipAgent) SendAnswer(ctx context.Context, target string, answer Answer) error {
	return fmt.Errorf("mrcpd: signaling: gosip SendAnswer not implemented for target %s", target)
}

func (a *GosipAgent) Close() error { return nil }
