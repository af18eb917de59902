// Package stream implements the byte/line primitives MRCP parsing and
// generation are built on: a cursor over a caller-owned buffer that reads
// CRLF-terminated lines, delimited tokens, and RFC-5322-folded header
// fields.
package stream

import "errors"

// ErrIncomplete signals the stream does not yet contain enough bytes to
// satisfy the read; the cursor is left at the start of the unfinished
// read so a caller can retry once more data has been appended.
var ErrIncomplete = errors.New("mrcpd: stream: incomplete")

// TextStream is a cursor over a contiguous buffer.
type TextStream struct {
	buf []byte
	pos int

	// skipLF is set when a previous ReadLine stopped at a bare CR at the
	// end of the buffer and must swallow a leading LF on the next call
	// before resuming normal line scanning. This is the mechanism that
	// lets a segmentation boundary fall between the CR and LF of the
	// empty header terminator without losing synchronisation.
	skipLF bool
	// emptyLinePending records that the CR behind skipLF was the whole
	// line: once its LF is swallowed, ReadLine returns that empty line.
	emptyLinePending bool
}

// New wraps buf in a TextStream positioned at the start.
func New(buf []byte) *TextStream {
	return &TextStream{buf: buf}
}

// Reset rebinds the stream to a new buffer, preserving the skipLF flag
// (set by a previous segment) but resetting the position.
func (s *TextStream) Reset(buf []byte) {
	s.buf = buf
	s.pos = 0
}

// Pos returns the current cursor offset.
func (s *TextStream) Pos() int { return s.pos }

// Len returns the number of unread bytes.
func (s *TextStream) Len() int { return len(s.buf) - s.pos }

// Remaining returns the unread tail of the buffer without advancing.
func (s *TextStream) Remaining() []byte { return s.buf[s.pos:] }

// Advance moves the cursor forward n bytes.
func (s *TextStream) Advance(n int) { s.pos += n }

// SkipLFPending reports whether the previous line ended in a bare CR
// awaiting its LF.
func (s *TextStream) SkipLFPending() bool { return s.skipLF }

// ReadLine reads one CRLF-terminated line, excluding the terminator, and
// advances past it. It returns ErrIncomplete (leaving the cursor at the
// start of the unfinished line) if no full line is available yet.
func (s *TextStream) ReadLine() (line []byte, err error) {
	start := s.pos
	buf := s.buf

	if s.skipLF {
		if start >= len(buf) {
			return nil, ErrIncomplete
		}
		emptyLine := s.emptyLinePending
		s.skipLF = false
		s.emptyLinePending = false
		if buf[start] == '\n' {
			start++
			if emptyLine {
				s.pos = start
				return buf[start:start], nil
			}
		}
		s.pos = start
	}

	for i := start; i < len(buf); i++ {
		if buf[i] == '\r' {
			if i+1 < len(buf) {
				if buf[i+1] == '\n' {
					line = buf[start:i]
					s.pos = i + 2
					return line, nil
				}
				// CR not followed by LF mid-buffer: malformed line.
				continue
			}
			// Buffer ends exactly on the CR: the LF may arrive in the
			// next segment. Leave the cursor at the line's start and
			// remember to swallow the LF first on resumption.
			s.skipLF = true
			s.emptyLinePending = i == start
			s.pos = start
			return nil, ErrIncomplete
		}
		if buf[i] == '\n' {
			// Bare LF with no CR: accept it as a line terminator, the
			// common tolerant-parser behaviour for segmented peers.
			line = buf[start:i]
			s.pos = i + 1
			return line, nil
		}
	}
	return nil, ErrIncomplete
}

// isSP reports whether b is an MRCP SP (space) delimiter.
func isSP(b byte) bool { return b == ' ' }

func isWSP(b byte) bool { return b == ' ' || b == '\t' }

// ReadToken reads bytes up to the next unescaped SP or line end,
// skipping any leading whitespace first. It does not consume the
// delimiter. Returns ErrIncomplete if the stream ends before a
// non-whitespace byte is found (the token might still be growing).
func (s *TextStream) ReadToken() ([]byte, error) {
	buf := s.buf
	i := s.pos
	for i < len(buf) && isWSP(buf[i]) {
		i++
	}
	start := i
	for i < len(buf) && !isSP(buf[i]) && buf[i] != '\r' && buf[i] != '\n' {
		i++
	}
	if i == len(buf) {
		return nil, ErrIncomplete
	}
	s.pos = i
	return buf[start:i], nil
}

// SkipSP advances past a single run of SP characters.
func (s *TextStream) SkipSP() {
	for s.pos < len(s.buf) && isSP(s.buf[s.pos]) {
		s.pos++
	}
}

// HeaderField is a raw, unfolded name/value pair as read off the wire.
type HeaderField struct {
	Name  string
	Value string
}

// ReadHeaderField reads one `name : value` pair, applying RFC-5322
// folding: any immediately-following line that begins with whitespace is
// a continuation whose trimmed content is appended (separated by a
// single space) to the value. Returns (nil, nil, nil) when the line read
// is the empty line terminating the header section. Returns
// ErrIncomplete when a continuation line might still be arriving.
func (s *TextStream) ReadHeaderField() (*HeaderField, error) {
	mark := *s
	line, err := s.ReadLine()
	if err != nil {
		// Rewind to retry the whole field from scratch once more bytes
		// arrive, but keep whatever skipLF state this ReadLine call
		// just set: a bare CR at the end of the buffer still sits at
		// the same spot in the next segment's buffer (after Reset),
		// and losing skipLF here would make the parser emit a spurious
		// leading blank line instead of swallowing the LF.
		skipLF, emptyLine := s.skipLF, s.emptyLinePending
		*s = mark
		s.skipLF, s.emptyLinePending = skipLF, emptyLine
		return nil, err
	}
	if len(line) == 0 {
		return nil, nil
	}

	colon := indexByte(line, ':')
	if colon < 0 {
		return nil, errMalformedField
	}
	name := trimSpace(line[:colon])
	value := string(trimSpace(line[colon+1:]))

	for {
		contMark := *s
		cont, err := s.ReadLine()
		if err != nil {
			if rest := contMark.Remaining(); len(rest) > 0 && !isWSP(rest[0]) {
				// The next line has begun without leading whitespace,
				// so it is no continuation: the field is complete even
				// though that line is not.
				*s = contMark
				break
			}
			// Not enough data yet to know if a continuation follows;
			// the caller must retry the whole field read once more
			// bytes arrive. Preserve skipLF for the same reason as
			// above.
			skipLF, emptyLine := s.skipLF, s.emptyLinePending
			*s = mark
			s.skipLF, s.emptyLinePending = skipLF, emptyLine
			return nil, ErrIncomplete
		}
		if len(cont) == 0 || !isWSP(firstByte(cont)) {
			// Not a continuation: rewind to before this line so the
			// base parser re-reads it as the next field (or the
			// section terminator).
			*s = contMark
			break
		}
		value = value + " " + string(trimSpace(cont))
	}

	return &HeaderField{Name: string(name), Value: value}, nil
}

var errMalformedField = errors.New("mrcpd: stream: malformed header field")

func firstByte(b []byte) byte {
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

func trimSpace(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isWSP(b[start]) {
		start++
	}
	for end > start && isWSP(b[end-1]) {
		end--
	}
	return b[start:end]
}
