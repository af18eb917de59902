// Package signaling defines the opaque signalling-agent interface the
// session state machine dispatches offers and answers through, plus a
// SIP-backed implementation built on github.com/ghettovoice/gosip.
package signaling

import "context"

// Offer is what a session hands the signalling agent to transport to
// the far end.
type Offer struct {
	ChannelID string
	SDP       string
}

// Answer is what the signalling agent hands back once the far end has
// responded.
type Answer struct {
	SDP string
}

// Agent is the signalling-agent contract a Session's Collaborator
// callbacks are built on (§4.9: "a session produces an offer →
// signalling agent transports it and returns an answer"). The session
// state machine never depends on the transport underneath this
// interface; a test double or a SIP-backed Agent satisfy it equally.
type Agent interface {
	// SendOffer transports offer to target and blocks for its answer.
	SendOffer(ctx context.Context, target string, offer Offer) (Answer, error)
	// SendAnswer transports a locally-produced answer back to target,
	// the server-role counterpart to SendOffer.
	SendAnswer(ctx context.Context, target string, answer Answer) error
	// Close releases any transport resources the agent owns (e.g. the
	// SIP stack's listening sockets and its su_root-equivalent thread).
	Close() error
}
