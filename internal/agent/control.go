package agent

import (
	"encoding/binary"
	"fmt"
)

// Discriminant identifies a control datagram's kind. The connection
// agent's external control socket (used by the CLI's "status" command
// to query a running agent from another process) carries these over a
// loopback UDP datagram, literally encoding the fixed layout with
// encoding/binary rather than a schema-compiled format: the control
// channel in spec terms is fixed, small, and entirely internal, so
// hand-rolled framing is the more faithful choice (see DESIGN.md).
type Discriminant uint8

const (
	CtlModifyChannel Discriminant = iota
	CtlRemoveChannel
	CtlSendMessage
	CtlTerminate
	CtlStatusQuery
	CtlStatusReply
)

// controlHeaderSize is the fixed, pointer-sized payload every control
// datagram carries: a 1-byte discriminant followed by a 4-byte
// correlation id and an 8-byte argument (a channel slot, ref count, or
// status code depending on discriminant).
const controlHeaderSize = 1 + 4 + 8

// ControlDatagram is one control-socket message.
type ControlDatagram struct {
	Discriminant Discriminant
	Correlation  uint32
	Argument     uint64
}

// Encode renders d into its fixed 13-byte wire form.
func (d ControlDatagram) Encode() []byte {
	buf := make([]byte, controlHeaderSize)
	buf[0] = byte(d.Discriminant)
	binary.BigEndian.PutUint32(buf[1:5], d.Correlation)
	binary.BigEndian.PutUint64(buf[5:13], d.Argument)
	return buf
}

// DecodeControlDatagram parses a wire-form control datagram.
func DecodeControlDatagram(b []byte) (ControlDatagram, error) {
	if len(b) < controlHeaderSize {
		return ControlDatagram{}, fmt.Errorf("mrcpd: agent: control datagram too short: %d bytes", len(b))
	}
	return ControlDatagram{
		Discriminant: Discriminant(b[0]),
		Correlation:  binary.BigEndian.Uint32(b[1:5]),
		Argument:     binary.BigEndian.Uint64(b[5:13]),
	}, nil
}
