// Package session implements the client and server session state
// machines (§4.9): offer/answer barriers over the signalling agent,
// connection agent and media engine, with the project's core
// partial-failure discipline of never abandoning an in-flight
// acknowledgement.
package session

import (
	"errors"
	"fmt"
	"sync"

	uuid "github.com/satori/go.uuid"
	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"

	"firestige.xyz/mrcpd/internal/metrics"
)

// NewSessionID generates a server-assigned session-id (§3's channel
// identifier is "<session-id>@<resource-name>"), the same UUID
// generator gosip's own dialog/branch/tag identifiers are built with.
func NewSessionID() string {
	return uuid.NewV4().String()
}

// State is a session's coarse lifecycle stage. The fine-grained offer
// and terminate progress lives in the barrier counters, not in State
// itself — State only names the transitions §4.9 lists as observable.
type State int

const (
	Idle State = iota
	OfferInProgress
	Active
	Terminating
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case OfferInProgress:
		return "offer-in-progress"
	case Active:
		return "active"
	case Terminating:
		return "terminating"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrWrongState is returned when an operation is attempted from a
// state that does not permit it.
var ErrWrongState = errors.New("mrcpd: session: operation not valid in current state")

// Work describes one offer or terminate round: which collaborators
// must acknowledge before the session can advance.
type Work struct {
	NeedsSignaling  bool
	NeedsConnection bool
	NeedsMedia      bool
	Payload         any
}

// Collaborator is one of the three parties a session coordinates with.
// Ack is called once per round that names it in Work and must report
// any failure without the session abandoning the others.
type Collaborator func(Work) error

// Session is a sub-machine of both client and server roles (§4.9). Its
// mutable state is owned by the coordinator goroutine that calls Offer
// and Terminate; multiple concurrent calls on the same Session are not
// supported, matching §5's "each session is pinned to one coordinator
// thread" rule.
//
// Beyond the offer/terminate barrier, a Session carries §3's data
// model: an ordered set of channels, an ordered set of terminations
// shared across them, and the in-progress offer/answer descriptor pair
// (mutually exclusive — BeginOffer rejects a second one).
type Session struct {
	ID string

	mu    sync.Mutex
	state State

	channels     []*Channel
	byChannel    map[string]*Channel
	terminations []string

	offer  *Descriptor
	answer *Descriptor

	Signaling  Collaborator
	Connection Collaborator
	Media      Collaborator
}

// New creates an idle session identified by id. An empty id is
// replaced with a freshly generated session-id.
func New(id string) *Session {
	if id == "" {
		id = NewSessionID()
	}
	return &Session{ID: id, state: Idle, byChannel: make(map[string]*Channel)}
}

// ErrOfferPending is returned by BeginOffer when another offer is
// already in flight: offer and answer are mutually exclusive (§3).
var ErrOfferPending = errors.New("mrcpd: session: offer already pending")

// AddChannel creates a channel for (resourceID, resourceName), appends
// it to the session's ordered channel set, and returns it. The new
// channel starts waiting on both the connection-agent and media-engine
// sides of its first offer round.
func (s *Session) AddChannel(resourceID int, resourceName string) *Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := newChannel(s.ID+"@"+resourceName, resourceID, resourceName)
	s.channels = append(s.channels, ch)
	s.byChannel[ch.ID] = ch
	return ch
}

// Channel returns the channel with the given id, or nil.
func (s *Session) Channel(id string) *Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byChannel[id]
}

// Channels returns a snapshot of the session's ordered channel set.
func (s *Session) Channels() []*Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Channel, len(s.channels))
	copy(out, s.channels)
	return out
}

// RemoveChannel prunes a destroyed channel from the ordered set (§3:
// "destroyed only after both booleans clear"). It is a no-op, and
// returns false, for a channel that is unknown or not yet destroyed.
func (s *Session) RemoveChannel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.byChannel[id]
	if !ok || !ch.Destroyed() {
		return false
	}
	delete(s.byChannel, id)
	for i, c := range s.channels {
		if c.ID == id {
			s.channels = append(s.channels[:i], s.channels[i+1:]...)
			break
		}
	}
	return true
}

// AddTermination appends name to the session's ordered termination
// set — the terminations a session's channels share on one media
// context.
func (s *Session) AddTermination(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminations = append(s.terminations, name)
}

// Terminations returns a snapshot of the session's ordered termination
// set.
func (s *Session) Terminations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.terminations))
	copy(out, s.terminations)
	return out
}

// BeginOffer records o as the session's in-progress offer, failing if
// one is already pending.
func (s *Session) BeginOffer(o Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offer != nil {
		return fmt.Errorf("mrcpd: session %s: %w", s.ID, ErrOfferPending)
	}
	s.offer = &o
	return nil
}

// SetAnswer records the answer to the session's in-progress offer.
func (s *Session) SetAnswer(a Descriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answer = &a
}

// PendingOffer returns the session's in-progress offer, or nil.
func (s *Session) PendingOffer() *Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offer
}

// PendingAnswer returns the session's in-progress answer, or nil.
func (s *Session) PendingAnswer() *Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answer
}

// clearOfferAnswer resets the in-progress offer/answer pair once a
// round resolves (successfully or not), so the next Offer call may
// begin a new one.
func (s *Session) clearOfferAnswer() {
	s.mu.Lock()
	s.offer = nil
	s.answer = nil
	s.mu.Unlock()
}

// State returns the session's current coarse state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Offer drives the Idle/Active → OfferInProgress → Active transition
// (or Active → OfferInProgress back-edge for a mid-call update). It
// partitions work across the named collaborators, dispatches them
// concurrently, and does not advance until every one of them has
// acknowledged — failures are aggregated, never short-circuited, so
// a failing connection-agent ack does not stop the signalling-agent
// or media-engine acks from being awaited and reported too.
func (s *Session) Offer(w Work) error {
	s.mu.Lock()
	from := s.state
	if from != Idle && from != Active {
		s.mu.Unlock()
		return fmt.Errorf("mrcpd: session %s: offer: %w (in %s)", s.ID, ErrWrongState, from)
	}
	s.state = OfferInProgress
	s.mu.Unlock()
	metrics.SessionStateTransitionsTotal.WithLabelValues(from.String(), OfferInProgress.String()).Inc()

	if rc, ok := w.Payload.(*RoundContext); ok && rc.Channel != nil {
		defer s.clearOfferAnswer()
	}

	err := s.dispatch(w)

	s.mu.Lock()
	if err != nil {
		s.state = from
	} else {
		s.state = Active
	}
	to := s.state
	s.mu.Unlock()
	metrics.SessionStateTransitionsTotal.WithLabelValues(OfferInProgress.String(), to.String()).Inc()

	return err
}

// Terminate drives Active → Terminating → Closed, with the same
// composite-failure discipline as Offer. When w.Payload is a
// *RoundContext naming a Channel, the channel's symmetric teardown is
// started before dispatch and the channel is pruned from the
// session's ordered set afterward once both sides have unbound (§3).
func (s *Session) Terminate(w Work) error {
	s.mu.Lock()
	from := s.state
	if from != Active {
		s.mu.Unlock()
		return fmt.Errorf("mrcpd: session %s: terminate: %w (in %s)", s.ID, ErrWrongState, from)
	}
	s.state = Terminating
	s.mu.Unlock()
	metrics.SessionStateTransitionsTotal.WithLabelValues(from.String(), Terminating.String()).Inc()

	rc, hasChannel := w.Payload.(*RoundContext)
	hasChannel = hasChannel && rc.Channel != nil
	if hasChannel {
		rc.Channel.BeginTeardown()
	}

	err := s.dispatch(w)

	if hasChannel && rc.Channel.Destroyed() {
		s.RemoveChannel(rc.Channel.ID)
	}

	s.mu.Lock()
	s.state = Closed
	s.mu.Unlock()
	metrics.SessionStateTransitionsTotal.WithLabelValues(Terminating.String(), Closed.String()).Inc()

	return err
}

// dispatch fans w out to every collaborator it names, using
// sourcegraph/conc's panic-safe WaitGroup so one collaborator's panic
// cannot silently abort the others' acknowledgements, and aggregates
// every failure with multierr instead of stopping at the first.
func (s *Session) dispatch(w Work) error {
	var wg conc.WaitGroup
	var mu sync.Mutex
	var errs error

	ack := func(name string, fn Collaborator) {
		if fn == nil {
			return
		}
		wg.Go(func() {
			if err := fn(w); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
				metrics.SessionOfferFailuresTotal.WithLabelValues(name).Inc()
			}
		})
	}

	if w.NeedsSignaling {
		ack("signaling", s.Signaling)
	}
	if w.NeedsConnection {
		ack("connection", s.Connection)
	}
	if w.NeedsMedia {
		ack("media", s.Media)
	}
	wg.Wait()

	return errs
}
