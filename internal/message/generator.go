package message

import (
	"bytes"
	"fmt"

	"firestige.xyz/mrcpd/internal/resource"
)

// Generator renders a Message to its MRCP wire form. It is resumable:
// Write may be called repeatedly with buffers of any size, and the
// caller is free to hand it a fresh, shorter buffer on the next call
// when the previous one ran out of room (§4.3).
type Generator struct {
	out []byte
	pos int
}

// NewGenerator renders msg completely into an internal buffer. Because
// Message-Length must be computed from the header section and body
// before the start line can be emitted, rendering happens in two passes
// internally: first the header section and body (whose total byte count
// becomes known), then the start line is "finalized" with that count
// back-patched in, exactly mirroring §4.3's finalize callback — the
// pass order is simply inverted relative to on-wire order because Go
// renders to an in-memory buffer rather than a fixed-size stack buffer.
func NewGenerator(msg *Message) (*Generator, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	var tail bytes.Buffer
	for _, f := range msg.Headers.Fields() {
		name := f.Name
		if f.ID < resource.GenericCount {
			if canonical := resource.GenericNameByID(f.ID); canonical != "" {
				name = canonical
			}
		}
		tail.WriteString(name)
		tail.WriteString(": ")
		tail.WriteString(f.Value)
		tail.WriteString("\r\n")
	}
	tail.WriteString("\r\n")
	tail.Write(msg.Body)

	startLine, err := renderStartLine(msg, tail.Len())
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	out.WriteString(startLine)
	out.Write(tail.Bytes())

	return &Generator{out: out.Bytes()}, nil
}

// renderStartLine renders the start line including its own byte count in
// message-length, per §6: "the total byte count of the message
// including the start-line itself".
func renderStartLine(msg *Message, tailLen int) (string, error) {
	if msg.Version == 1 {
		if msg.Kind != KindRequest {
			return "", fmt.Errorf("mrcpd: message: MRCPv1 generation only supports requests")
		}
		return fmt.Sprintf("MRCP/1.0 %d %s\r\n", msg.RequestID, msg.MethodName), nil
	}

	// message-length is self-referential: guess a length, render, and
	// if the decimal width changes (crossing a power of ten) re-render.
	// The second pass settles unless the first guess crossed a power of
	// ten (e.g. a 95-byte tail: 116, then 117); the third pass then
	// settles, since the start line adds far fewer bytes than it takes
	// to cross another power of ten.
	length := tailLen
	for i := 0; i < 3; i++ {
		var line string
		var err error
		switch msg.Kind {
		case KindRequest:
			line = fmt.Sprintf("MRCP/2.0 %d %s %d\r\n", length, msg.MethodName, msg.RequestID)
		case KindResponse:
			line = fmt.Sprintf("MRCP/2.0 %d %d %d %s\r\n", length, msg.RequestID, msg.StatusCode, msg.RequestState.wire())
		case KindEvent:
			line = fmt.Sprintf("MRCP/2.0 %d %s %d %s\r\n", length, msg.MethodName, msg.RequestID, msg.RequestState.wire())
		default:
			err = fmt.Errorf("mrcpd: message: unknown kind %v", msg.Kind)
		}
		if err != nil {
			return "", err
		}
		total := len(line) + tailLen
		if total == length {
			return line, nil
		}
		length = total
	}
	return "", fmt.Errorf("mrcpd: message: message-length did not converge")
}

// Write copies as much of the rendered message as fits in dst, returning
// the number of bytes written and whether generation is complete. The
// caller resumes with a fresh buffer when done is false (§4.3).
func (g *Generator) Write(dst []byte) (n int, done bool) {
	n = copy(dst, g.out[g.pos:])
	g.pos += n
	return n, g.pos == len(g.out)
}

// Bytes returns the complete rendered message. Convenience for callers
// that do not need the resumable, bounded-buffer path.
func (g *Generator) Bytes() []byte { return g.out }

// Len returns the total rendered length, equal to the message-length
// field on MRCPv2.
func (g *Generator) Len() int { return len(g.out) }
