package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLineComplete(t *testing.T) {
	s := New([]byte("SPEAK 1\r\nrest"))
	line, err := s.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "SPEAK 1", string(line))
	assert.Equal(t, 9, s.Pos())
}

func TestReadLineIncomplete(t *testing.T) {
	s := New([]byte("SPEAK 1"))
	_, err := s.ReadLine()
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, 0, s.Pos())
}

func TestReadLineSplitAcrossCRLF(t *testing.T) {
	// Buffer ends right on the CR of the empty header terminator.
	s := New([]byte("\r"))
	_, err := s.ReadLine()
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.True(t, s.SkipLFPending())

	s.Reset([]byte("\nbody"))
	line, err := s.ReadLine()
	require.NoError(t, err)
	assert.Empty(t, line)
	assert.False(t, s.SkipLFPending())
	assert.Equal(t, "body", string(s.Remaining()))
}

func TestReadToken(t *testing.T) {
	s := New([]byte("MRCP/2.0 273 SPEAK 1\r\n"))
	tok, err := s.ReadToken()
	require.NoError(t, err)
	assert.Equal(t, "MRCP/2.0", string(tok))
	s.SkipSP()
	tok, err = s.ReadToken()
	require.NoError(t, err)
	assert.Equal(t, "273", string(tok))
}

func TestReadHeaderFieldFolding(t *testing.T) {
	s := New([]byte("Content-Type: application/ssml+xml\r\n  ;charset=utf-8\r\n\r\nbody"))
	f, err := s.ReadHeaderField()
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "Content-Type", f.Name)
	assert.Equal(t, "application/ssml+xml ;charset=utf-8", f.Value)

	empty, err := s.ReadHeaderField()
	require.NoError(t, err)
	assert.Nil(t, empty)
	assert.Equal(t, "body", string(s.Remaining()))
}

func TestReadHeaderFieldWaitsForContinuation(t *testing.T) {
	// Ends right after a field's line; the next chunk might still be a
	// folded continuation, so the caller must retry.
	s := New([]byte("Content-Length: 94\r\n"))
	_, err := s.ReadHeaderField()
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, 0, s.Pos())
}

func TestReadHeaderFieldSplitAcrossBareCRPreservesSkipLF(t *testing.T) {
	// The field's own terminator, not the blank section-terminator
	// line, lands right on a bare CR at the end of the segment.
	s := New([]byte("X-Foo: bar\r"))
	_, err := s.ReadHeaderField()
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.True(t, s.SkipLFPending(), "skipLF must survive the retry rewind")

	s.Reset([]byte("\nContent-Length: 94\r\n\r\n"))

	// The dangling CR's LF must be swallowed, not read as a bare-LF
	// terminated empty line: losing skipLF here would make this call
	// see an empty line and report end-of-headers, silently dropping
	// Content-Length along with the field that never finished parsing.
	f, err := s.ReadHeaderField()
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "Content-Length", f.Name)
	assert.Equal(t, "94", f.Value)

	empty, err := s.ReadHeaderField()
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestReadHeaderFieldContinuationSplitAcrossBareCRPreservesSkipLF(t *testing.T) {
	// The bare CR falls inside the continuation-candidate line, after
	// the field's own name/value have already parsed once within this
	// (discarded) attempt.
	s := New([]byte("X-Foo: bar\r\n  cont\r"))
	_, err := s.ReadHeaderField()
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.True(t, s.SkipLFPending(), "skipLF must survive the retry rewind")

	s.Reset([]byte("\nContent-Length: 94\r\n\r\n"))

	f, err := s.ReadHeaderField()
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "Content-Length", f.Name)
	assert.Equal(t, "94", f.Value)
}

func TestHeaderSectionAddCheckRemove(t *testing.T) {
	sec := NewSection()
	assert.True(t, sec.Add(Field{ID: 0, Name: "Content-Length", Value: "94"}))
	assert.False(t, sec.Add(Field{ID: 0, Name: "Content-Length", Value: "1"}))
	assert.True(t, sec.Check(0))
	assert.False(t, sec.Check(1))

	f, ok := sec.Get(0)
	require.True(t, ok)
	assert.Equal(t, "94", f.Value)

	assert.True(t, sec.Remove(0))
	assert.False(t, sec.Check(0))
	assert.False(t, sec.Remove(0))
}

func TestHeaderSectionOrderPreserved(t *testing.T) {
	sec := NewSection()
	sec.Add(Field{ID: 2, Name: "Content-Id", Value: "a"})
	sec.Add(Field{ID: 0, Name: "Content-Length", Value: "1"})
	sec.Add(Field{ID: 5, Name: "Channel-Identifier", Value: "x@y"})
	sec.Remove(0)

	var ids []int
	for _, f := range sec.Fields() {
		ids = append(ids, f.ID)
	}
	assert.Equal(t, []int{2, 5}, ids)
}
