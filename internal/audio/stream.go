package audio

import "fmt"

// Direction is the set of transfer directions a stream declares or
// negotiates.
type Direction uint8

const (
	DirNone Direction = 0
	DirSend Direction = 1 << iota
	DirReceive
)

func (d Direction) String() string {
	switch d {
	case DirSend:
		return "send"
	case DirReceive:
		return "receive"
	case DirSend | DirReceive:
		return "sendrecv"
	default:
		return "none"
	}
}

func (d Direction) Has(bit Direction) bool { return d&bit != 0 }

// Descriptor is a negotiated codec parameter set.
type Descriptor struct {
	PayloadType  int
	Name         string
	SampleRate   int
	Channels     int
	FrameMS      int // native frame duration, milliseconds
	NamedEvents  bool
}

// Equal reports whether two descriptors match byte-for-byte on every
// field the null-bridge selection rule (§4.6) cares about.
func (d Descriptor) Equal(o Descriptor) bool {
	return d.PayloadType == o.PayloadType &&
		d.Name == o.Name &&
		d.SampleRate == o.SampleRate &&
		d.Channels == o.Channels &&
		d.FrameMS == o.FrameMS
}

func (d Descriptor) IsLPCM() bool { return d.Name == "L16" || d.Name == "PCM" }

func (d Descriptor) String() string {
	return fmt.Sprintf("%s/%d/%d/%dms", d.Name, d.SampleRate, d.Channels, d.FrameMS)
}

// Capabilities is the set of descriptors a stream is willing to
// negotiate, plus whether it supports named telephone events.
type Capabilities struct {
	Descriptors []Descriptor
	NamedEvents bool
}

// Intersect returns the first descriptor in c that also appears
// (matched on name/rate/channels) in offered, or false if none match.
func (c Capabilities) Intersect(offered []Descriptor) (Descriptor, bool) {
	for _, want := range c.Descriptors {
		for _, have := range offered {
			if want.Name == have.Name && want.SampleRate == have.SampleRate && want.Channels == have.Channels {
				d := want
				if have.FrameMS != 0 {
					d.FrameMS = have.FrameMS
				}
				return d, true
			}
		}
	}
	return Descriptor{}, false
}

// Vtable is the rx/tx open/close/read/write contract §4.6 requires of
// every stream implementation (RTP endpoint, file termination, or a
// plugin-backed resource engine source/sink).
type Vtable interface {
	RxOpen(codec Descriptor) error
	RxClose() error
	TxOpen(codec Descriptor) error
	TxClose() error
	// ReadFrame fills frame with one tick of audio on the receive side.
	ReadFrame(frame *Frame) error
	// WriteFrame consumes one tick of audio on the send side.
	WriteFrame(frame *Frame) error
}

// Stream is a negotiated audio endpoint: its direction, the
// capabilities it was constructed with, the descriptors settled on for
// each direction, and the vtable performing the actual I/O.
type Stream struct {
	Direction    Direction
	Capabilities Capabilities
	RxDescriptor Descriptor
	TxDescriptor Descriptor
	Vtable       Vtable

	rxValid bool
	txValid bool
}

// RxValidate intersects offered against the stream's capabilities and,
// on first success, fixes RxDescriptor. Once it is fixed, later calls
// return true without examining offered.
func (s *Stream) RxValidate(offered []Descriptor, event bool) bool {
	if s.rxValid {
		return true
	}
	d, ok := s.Capabilities.Intersect(offered)
	if !ok {
		return false
	}
	if event && !s.Capabilities.NamedEvents {
		return false
	}
	s.RxDescriptor = d
	s.rxValid = true
	return true
}

// TxValidate is RxValidate's symmetric counterpart for the send side.
func (s *Stream) TxValidate(offered []Descriptor, event bool) bool {
	if s.txValid {
		return true
	}
	d, ok := s.Capabilities.Intersect(offered)
	if !ok {
		return false
	}
	if event && !s.Capabilities.NamedEvents {
		return false
	}
	s.TxDescriptor = d
	s.txValid = true
	return true
}

// DiscardVtable is a transport-less Vtable: reads produce silence,
// writes are dropped. It lets a channel's termination exist and tick
// on a media context before a real transport is negotiated onto it,
// the same placeholder role io.Discard plays for a sink nobody reads.
type DiscardVtable struct{}

func (DiscardVtable) RxOpen(Descriptor) error { return nil }
func (DiscardVtable) RxClose() error          { return nil }
func (DiscardVtable) TxOpen(Descriptor) error { return nil }
func (DiscardVtable) TxClose() error          { return nil }

func (DiscardVtable) ReadFrame(f *Frame) error {
	for i := range f.Buffer {
		f.Buffer[i] = 0
	}
	f.Size = len(f.Buffer)
	f.Type = TypeAudio
	return nil
}

func (DiscardVtable) WriteFrame(*Frame) error { return nil }
