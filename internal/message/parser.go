package message

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"firestige.xyz/mrcpd/internal/resource"
	"firestige.xyz/mrcpd/internal/stream"
)

// Result is the outcome of one Parser.Run call.
type Result int

const (
	Incomplete Result = iota
	Complete
	Invalid
)

func (r Result) String() string {
	switch r {
	case Complete:
		return "complete"
	case Invalid:
		return "invalid"
	default:
		return "incomplete"
	}
}

type parserStage int

const (
	stageStartLine parserStage = iota
	stageHeader
	stageBody
)

// Parser is a resumable three-stage state machine (§4.2): StartLine →
// Header → Body → StartLine… Its state survives across Run calls so an
// arbitrarily segmented byte stream produces the same message sequence
// as one delivered whole (the restartability law, §8).
type Parser struct {
	cat   *resource.Catalogue
	stage parserStage

	msg         *Message
	bodyWant    int
	bodyWritten int
}

// NewParser creates a parser that resolves resources against cat.
func NewParser(cat *resource.Catalogue) *Parser {
	return &Parser{cat: cat, stage: stageStartLine}
}

// Run advances the parser over s as far as possible. On Complete, msg is
// the fully parsed message and the stream cursor sits just past it
// (ready for the next pipelined message). On Incomplete, the parser
// keeps what it has already consumed (start line, complete header
// fields, body bytes) and the cursor sits at the first unconsumed byte;
// the caller resumes with the unconsumed remainder followed by more
// bytes. A remainder that is only a bare CR is also carried by the
// stream's skip-LF state, so a Reset onto the next segment alone
// resumes correctly in that case. On
// Invalid, the message is malformed and the caller must drop the
// connection or resynchronise (§7 ParseError).
func (p *Parser) Run(s *stream.TextStream) (Result, *Message, error) {
	for {
		switch p.stage {
		case stageStartLine:
			res, err := p.runStartLine(s)
			if res != Complete {
				return res, nil, err
			}
			p.stage = stageHeader

		case stageHeader:
			res, err := p.runHeader(s)
			if res != Complete {
				return res, nil, err
			}
			if p.bodyWant > 0 {
				p.stage = stageBody
			} else {
				return p.finish()
			}

		case stageBody:
			res, err := p.runBody(s)
			if res != Complete {
				return res, nil, err
			}
			return p.finish()
		}
	}
}

func (p *Parser) finish() (Result, *Message, error) {
	msg := p.msg
	p.msg = nil
	p.bodyWant = 0
	p.bodyWritten = 0
	p.stage = stageStartLine
	return Complete, msg, nil
}

var errMalformedStartLine = errors.New("mrcpd: message: malformed start line")

func (p *Parser) runStartLine(s *stream.TextStream) (Result, error) {
	line, err := s.ReadLine()
	if err != nil {
		return Incomplete, nil
	}
	fields := strings.Fields(string(line))
	if len(fields) < 3 {
		return Invalid, errMalformedStartLine
	}

	version := 0
	switch fields[0] {
	case "MRCP/2.0":
		version = 2
	case "MRCP/1.0":
		version = 1
	default:
		return Invalid, errMalformedStartLine
	}

	if version == 1 {
		// MRCPv1 start line carries no message-length: "MRCP/1.0 SP
		// <request-id> SP <method-name>" for requests (§6). Responses
		// and events are out of this codec's MRCPv1 compatibility
		// scope (signalling-agent responsibility, §9 open question).
		reqID, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return Invalid, errMalformedStartLine
		}
		m := New(KindRequest, 1)
		m.RequestID = reqID
		m.MethodName = fields[2]
		p.msg = m
		return Complete, nil
	}

	// MRCPv2: fields[1] is always message-length (ignored on parse; the
	// generator back-patches it, the parser only needs Content-Length).
	switch len(fields) {
	case 4:
		// Request: version length method-name request-id
		reqID, err := strconv.ParseUint(fields[3], 10, 64)
		if err != nil {
			return Invalid, errMalformedStartLine
		}
		m := New(KindRequest, 2)
		m.MethodName = fields[2]
		m.RequestID = reqID
		p.msg = m
		return Complete, nil

	case 5:
		// Response: version length request-id status-code state
		// Event:    version length event-name request-id state
		if reqID, err := strconv.ParseUint(fields[2], 10, 64); err == nil {
			status, err := strconv.Atoi(fields[3])
			if err != nil {
				return Invalid, errMalformedStartLine
			}
			st, ok := parseRequestState(fields[4])
			if !ok {
				return Invalid, errMalformedStartLine
			}
			m := New(KindResponse, 2)
			m.RequestID = reqID
			m.StatusCode = status
			m.RequestState = st
			p.msg = m
			return Complete, nil
		}

		reqID, err := strconv.ParseUint(fields[3], 10, 64)
		if err != nil {
			return Invalid, errMalformedStartLine
		}
		st, ok := parseRequestState(fields[4])
		if !ok {
			return Invalid, errMalformedStartLine
		}
		m := New(KindEvent, 2)
		m.MethodName = fields[2]
		m.RequestID = reqID
		m.RequestState = st
		p.msg = m
		return Complete, nil

	default:
		return Invalid, errMalformedStartLine
	}
}

func (p *Parser) runHeader(s *stream.TextStream) (Result, error) {
	for {
		raw, err := s.ReadHeaderField()
		if err != nil {
			if errors.Is(err, stream.ErrIncomplete) {
				return Incomplete, nil
			}
			return Invalid, err
		}
		if raw == nil {
			// Empty line: header section done.
			return p.finishHeaders()
		}
		if err := p.dispatchField(*raw); err != nil {
			return Invalid, err
		}
	}
}

func (p *Parser) dispatchField(raw stream.HeaderField) error {
	m := p.msg

	if m.Resource != nil {
		if f, ok := m.Resource.Header.ParseField(raw); ok {
			m.Headers.Set(f)
			return nil
		}
	}

	if f, ok := resource.ParseGenericField(raw); ok {
		m.Headers.Set(f)
		if f.ID == resource.HeaderChannelIdentifier {
			return p.associateFromChannelID(f.Value)
		}
		return nil
	}

	slog.Warn("mrcpd: message: dropping unrecognised header field", "name", raw.Name)
	return nil
}

func (p *Parser) associateFromChannelID(value string) error {
	ch, err := ParseChannelID(value)
	if err != nil {
		return err
	}
	p.msg.Channel = ch

	if p.cat == nil {
		return nil
	}
	entry := p.cat.ByName(ch.ResourceName)
	if entry == nil {
		return fmt.Errorf("mrcpd: message: unknown resource %q", ch.ResourceName)
	}

	switch p.msg.Kind {
	case KindRequest:
		return p.msg.AssociateByName(entry, p.msg.MethodName)
	case KindEvent:
		return p.msg.AssociateByName(entry, p.msg.MethodName)
	default:
		p.msg.Resource = entry
		return nil
	}
}

func (p *Parser) finishHeaders() (Result, error) {
	m := p.msg

	// MRCPv1 carries its channel identifier in the enclosing RTSP
	// Session header, not as an MRCP header field (§6, §9): resource
	// association there is the signalling agent's responsibility, not
	// this codec's.
	if m.Version == 2 && (m.Kind == KindRequest || m.Kind == KindEvent) && m.Resource == nil {
		return Invalid, fmt.Errorf("mrcpd: message: missing Channel-Identifier header")
	}

	length := 0
	if f, ok := m.Headers.Get(resource.HeaderContentLength); ok {
		n, err := strconv.Atoi(f.Value)
		if err != nil || n < 0 {
			return Invalid, fmt.Errorf("mrcpd: message: invalid Content-Length %q", f.Value)
		}
		length = n
	}
	p.bodyWant = length
	if length > 0 {
		m.Body = make([]byte, length)
	}
	return Complete, nil
}

func (p *Parser) runBody(s *stream.TextStream) (Result, error) {
	avail := s.Remaining()
	need := p.bodyWant - p.bodyWritten
	n := len(avail)
	if n > need {
		n = need
	}
	copy(p.msg.Body[p.bodyWritten:], avail[:n])
	p.bodyWritten += n
	s.Advance(n)
	if p.bodyWritten < p.bodyWant {
		return Incomplete, nil
	}
	return Complete, nil
}
