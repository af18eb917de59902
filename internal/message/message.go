// Package message implements the MRCP message model, and the streaming,
// segmentation-tolerant parser and generator built on internal/stream and
// internal/resource (spec §3, §4.2, §4.3).
package message

import (
	"errors"
	"fmt"
	"strings"

	"firestige.xyz/mrcpd/internal/resource"
	"firestige.xyz/mrcpd/internal/stream"
)

// Kind is the MRCP message's start-line variant.
type Kind int

const (
	KindRequest Kind = iota
	KindResponse
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// RequestState is carried by Response and Event messages.
type RequestState int

const (
	StatePending RequestState = iota
	StateInProgress
	StateComplete
)

func (s RequestState) wire() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateInProgress:
		return "IN-PROGRESS"
	default:
		return "COMPLETE"
	}
}

func parseRequestState(tok string) (RequestState, bool) {
	switch tok {
	case "PENDING":
		return StatePending, true
	case "IN-PROGRESS":
		return StateInProgress, true
	case "COMPLETE":
		return StateComplete, true
	default:
		return 0, false
	}
}

// ChannelID is a (session-id, resource-name) pair; its canonical wire
// form is "<session-id>@<resource-name>".
type ChannelID struct {
	SessionID    string
	ResourceName string
}

func (c ChannelID) String() string {
	return c.SessionID + "@" + c.ResourceName
}

// ErrMalformedChannelID is returned for a Channel-Identifier value with
// no '@' separator (or an empty side). §9's "two header definitions"
// open question is resolved here to the stricter variant: drop and
// resynchronise rather than tolerate a malformed value.
var ErrMalformedChannelID = errors.New("mrcpd: message: malformed channel identifier")

// ParseChannelID parses the canonical "session@resource" wire form.
func ParseChannelID(s string) (ChannelID, error) {
	at := strings.IndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return ChannelID{}, ErrMalformedChannelID
	}
	return ChannelID{SessionID: s[:at], ResourceName: s[at+1:]}, nil
}

// Message is a tagged MRCP request, response, or event.
type Message struct {
	Kind    Kind
	Version int // 1 or 2

	// MethodName/MethodID hold the request method (KindRequest) or event
	// name (KindEvent); both fields are always kept consistent once a
	// resource has been associated (§3).
	MethodName string
	MethodID   int

	RequestID uint64

	// Response-only.
	StatusCode int

	// Response and Event.
	RequestState RequestState

	Channel  ChannelID
	Resource *resource.Entry

	Headers *stream.Section
	Body    []byte
}

// New creates an empty message of the given kind and version, with an
// initialised (empty) header section.
func New(kind Kind, version int) *Message {
	return &Message{Kind: kind, Version: version, MethodID: -1, Headers: stream.NewSection()}
}

// AssociateByID resolves MethodName from e and id, for messages
// constructed programmatically (not parsed off the wire). §4.4: "A
// newly constructed message is associated either by id... or by name."
func (m *Message) AssociateByID(e *resource.Entry, id int) error {
	var name string
	switch m.Kind {
	case KindRequest:
		name = e.MethodName(id)
	case KindEvent:
		name = e.EventName(id)
	default:
		return fmt.Errorf("mrcpd: message: AssociateByID not applicable to %s", m.Kind)
	}
	if name == "" {
		return fmt.Errorf("mrcpd: message: resource %q has no method/event id %d", e.Name, id)
	}
	m.Resource = e
	m.MethodID = id
	m.MethodName = name
	return nil
}

// AssociateByName resolves MethodID from e and name.
func (m *Message) AssociateByName(e *resource.Entry, name string) error {
	var id int
	switch m.Kind {
	case KindRequest:
		id = e.MethodID(name)
	case KindEvent:
		id = e.EventID(name)
	default:
		return fmt.Errorf("mrcpd: message: AssociateByName not applicable to %s", m.Kind)
	}
	if id < 0 {
		return fmt.Errorf("mrcpd: message: resource %q has no method/event %q", e.Name, name)
	}
	m.Resource = e
	m.MethodID = id
	m.MethodName = name
	return nil
}

// SetHeader adds or overwrites a header field. Content-Length (id
// resource.HeaderContentLength) is managed automatically by SetBody and
// should not normally be set directly.
func (m *Message) SetHeader(id int, name, value string) {
	m.Headers.Set(stream.Field{ID: id, Name: name, Value: value})
}

// SetBody sets the message body and keeps Content-Length consistent,
// satisfying the §8 universal invariant.
func (m *Message) SetBody(body []byte) {
	m.Body = body
	if len(body) > 0 {
		m.SetHeader(resource.HeaderContentLength, resource.GenericNameByID(resource.HeaderContentLength), fmt.Sprintf("%d", len(body)))
	} else {
		m.Headers.Remove(resource.HeaderContentLength)
	}
}

// Validate checks the §8 universal invariant that a non-empty body is
// always matched by an equal Content-Length.
func (m *Message) Validate() error {
	f, ok := m.Headers.Get(resource.HeaderContentLength)
	if len(m.Body) > 0 {
		if !ok {
			return errors.New("mrcpd: message: body present without Content-Length")
		}
		if f.Value != fmt.Sprintf("%d", len(m.Body)) {
			return fmt.Errorf("mrcpd: message: Content-Length %q does not match body length %d", f.Value, len(m.Body))
		}
	}
	return nil
}
