package session

import "sync"

// Descriptor is an in-progress offer or answer payload exchanged with
// the signalling agent — an SDP body, in signalling terms (§3).
type Descriptor struct {
	SDP string
}

// Channel is one MRCP channel within a session (§3): a (session-id,
// resource-name) pair, created inside the session, bound to a
// connection-agent channel and a media-engine termination via an
// offer/answer round, and removed via a symmetric teardown. A channel
// is only destroyed once both waiting flags have cleared — it is never
// torn down while either the connection or the media side still has
// work outstanding.
type Channel struct {
	ID           string
	ResourceID   int
	ResourceName string

	// ControlChannel/Termination record what the channel is bound to
	// once its offer round succeeds: the connection agent's reuse key
	// (a remote address) and the media engine's termination name. Both
	// are empty until bound.
	ControlChannel string
	Termination    string
	slot           int // media context slot backing Termination, once bound

	// WaitingForChannel/WaitingForTermination are set when the channel
	// is created and cleared independently as each side's round
	// resolves; BeginTeardown sets both again so RemoveChannel can tell
	// "freshly created, still binding" apart from "tearing down, still
	// unwinding".
	WaitingForChannel     bool
	WaitingForTermination bool
	tearingDown           bool

	mu            sync.Mutex
	activeRequest *ChannelRequest
	requestQueue  []*ChannelRequest
}

// newChannel creates a channel pending its first offer round.
func newChannel(id string, resourceID int, resourceName string) *Channel {
	return &Channel{
		ID:                    id,
		ResourceID:            resourceID,
		ResourceName:          resourceName,
		WaitingForChannel:     true,
		WaitingForTermination: true,
	}
}

// BindChannel records the connection-agent side of a successful offer
// round and clears WaitingForChannel.
func (ch *Channel) BindChannel(controlChannel string) {
	ch.mu.Lock()
	ch.ControlChannel = controlChannel
	ch.WaitingForChannel = false
	ch.mu.Unlock()
}

// BindTermination records the media-engine side of a successful offer
// round and clears WaitingForTermination.
func (ch *Channel) BindTermination(name string, slot int) {
	ch.mu.Lock()
	ch.Termination = name
	ch.slot = slot
	ch.WaitingForTermination = false
	ch.mu.Unlock()
}

// Slot returns the media context slot BindTermination last recorded.
func (ch *Channel) Slot() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.slot
}

// BeginTeardown marks the channel as undergoing symmetric teardown:
// both waiting flags are set again so Destroyed only reports true once
// both sides have independently unbound.
func (ch *Channel) BeginTeardown() {
	ch.mu.Lock()
	ch.tearingDown = true
	ch.WaitingForChannel = true
	ch.WaitingForTermination = true
	ch.mu.Unlock()
}

// UnbindChannel clears WaitingForChannel, acknowledging the
// connection-agent side of a teardown.
func (ch *Channel) UnbindChannel() {
	ch.mu.Lock()
	ch.WaitingForChannel = false
	ch.mu.Unlock()
}

// UnbindTermination clears WaitingForTermination, acknowledging the
// media-engine side of a teardown.
func (ch *Channel) UnbindTermination() {
	ch.mu.Lock()
	ch.WaitingForTermination = false
	ch.mu.Unlock()
}

// Destroyed reports whether the channel's teardown has been both
// requested and fully acknowledged by both sides (§3).
func (ch *Channel) Destroyed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.tearingDown && !ch.WaitingForChannel && !ch.WaitingForTermination
}

// ChannelRequest is one application request queued for serialised
// dispatch on a channel (§5: "per MRCP channel, application requests
// are serialised" — at most one is active at a time, further submits
// join the FIFO).
type ChannelRequest struct {
	RequestID uint64
	Payload   any
	Done      chan error
}

// Submit serialises req onto the channel: if nothing is currently
// active, req is dispatched immediately via dispatch; otherwise it
// joins the FIFO and runs once the active request completes (Complete).
func (ch *Channel) Submit(req *ChannelRequest, dispatch func(*ChannelRequest)) {
	ch.mu.Lock()
	if ch.activeRequest != nil {
		ch.requestQueue = append(ch.requestQueue, req)
		ch.mu.Unlock()
		return
	}
	ch.activeRequest = req
	ch.mu.Unlock()
	dispatch(req)
}

// Complete clears the channel's active request and, if another is
// queued, dispatches it next — requests are never reordered and none
// is ever dropped.
func (ch *Channel) Complete(dispatch func(*ChannelRequest)) {
	ch.mu.Lock()
	ch.activeRequest = nil
	if len(ch.requestQueue) == 0 {
		ch.mu.Unlock()
		return
	}
	next := ch.requestQueue[0]
	ch.requestQueue = ch.requestQueue[1:]
	ch.activeRequest = next
	ch.mu.Unlock()
	dispatch(next)
}

// ActiveRequest returns the channel's currently dispatched request, or
// nil if idle.
func (ch *Channel) ActiveRequest() *ChannelRequest {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.activeRequest
}

// QueueDepth returns the number of requests waiting behind the active
// one.
func (ch *Channel) QueueDepth() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.requestQueue)
}
