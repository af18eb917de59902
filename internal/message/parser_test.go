package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/mrcpd/internal/resource"
	"firestige.xyz/mrcpd/internal/stream"
)

func testCatalogue(t *testing.T) *resource.Catalogue {
	t.Helper()
	c := resource.NewCatalogue()
	require.NoError(t, resource.RegisterBuiltins(c))
	return c
}

// speakBody is exactly 94 bytes, matching its declared Content-Length.
const speakBody = "<?xml version=\"1.0\"?>\r\n<speak><p>Hello world, this is a synthesizer test!!</p></speak>xxxxxxxx"

const speakRequest = "MRCP/2.0 212 SPEAK 1\r\n" +
	"Channel-Identifier: abcd@speechsynth\r\n" +
	"Content-Type: application/ssml+xml\r\n" +
	"Content-Length: 94\r\n" +
	"\r\n" +
	speakBody

// Scenario 1: round-trip of a SYNTHESIZER SPEAK request.
func TestRoundTripSpeakRequest(t *testing.T) {
	cat := testCatalogue(t)
	p := NewParser(cat)
	s := stream.New([]byte(speakRequest))

	res, msg, err := p.Run(s)
	require.NoError(t, err)
	require.Equal(t, Complete, res)

	assert.Equal(t, "SPEAK", msg.MethodName)
	assert.EqualValues(t, 1, msg.RequestID)
	assert.Equal(t, "abcd", msg.Channel.SessionID)
	assert.Equal(t, "speechsynth", msg.Channel.ResourceName)
	assert.Len(t, msg.Body, 94)

	gen, err := NewGenerator(msg)
	require.NoError(t, err)
	assert.Equal(t, 212, gen.Len())

	// Re-parse the generated bytes and expect a structurally equal
	// message (header ordering and id bitmap preserved).
	p2 := NewParser(cat)
	s2 := stream.New(gen.Bytes())
	res2, msg2, err := p2.Run(s2)
	require.NoError(t, err)
	require.Equal(t, Complete, res2)
	assert.Equal(t, msg.MethodName, msg2.MethodName)
	assert.Equal(t, msg.RequestID, msg2.RequestID)
	assert.Equal(t, msg.Channel, msg2.Channel)
	assert.Equal(t, msg.Body, msg2.Body)
	for _, f := range msg.Headers.Fields() {
		assert.True(t, msg2.Headers.Check(f.ID))
	}
}

// Scenario 2: segmentation across the CR/LF of the empty header line.
func TestSegmentationAcrossHeaderTerminator(t *testing.T) {
	// splitAt lands right after the "\r" of the empty header line's
	// "\r\n" terminator, before its "\n" — the exact boundary §4.2's
	// skip-lf-on-next-call rule exists to handle.
	splitAt := len(speakRequest) - len(speakBody) - 1
	first := speakRequest[:splitAt]
	second := speakRequest[splitAt:]
	require.True(t, len(first) > 0 && first[len(first)-1] == '\r')
	require.Equal(t, byte('\n'), second[0])

	cat := testCatalogue(t)
	p := NewParser(cat)
	s := stream.New([]byte(first))

	res, _, err := p.Run(s)
	require.NoError(t, err)
	require.Equal(t, Incomplete, res)

	s.Reset([]byte(second))
	res, msg, err := p.Run(s)
	require.NoError(t, err)
	require.Equal(t, Complete, res)
	assert.Len(t, msg.Body, 94)
}

// Scenario 3: pipelined messages in one buffer.
func TestPipeliningTwoMessages(t *testing.T) {
	one := speakRequest
	two := "MRCP/2.0 60 STOP 2\r\nChannel-Identifier: abcd@speechsynth\r\n\r\n"
	buf := []byte(one + two)

	cat := testCatalogue(t)
	p := NewParser(cat)
	s := stream.New(buf)

	res, msg1, err := p.Run(s)
	require.NoError(t, err)
	require.Equal(t, Complete, res)
	assert.Equal(t, "SPEAK", msg1.MethodName)

	res, msg2, err := p.Run(s)
	require.NoError(t, err)
	require.Equal(t, Complete, res)
	assert.Equal(t, "STOP", msg2.MethodName)
	assert.EqualValues(t, 2, msg2.RequestID)

	assert.Equal(t, len(buf), s.Pos())
}

func TestParseResponseAndEventStartLines(t *testing.T) {
	cat := testCatalogue(t)

	resp := "MRCP/2.0 45 1 200 COMPLETE\r\nChannel-Identifier: abcd@speechsynth\r\n\r\n"
	p := NewParser(cat)
	res, msg, err := p.Run(stream.New([]byte(resp)))
	require.NoError(t, err)
	require.Equal(t, Complete, res)
	assert.Equal(t, KindResponse, msg.Kind)
	assert.Equal(t, 200, msg.StatusCode)
	assert.Equal(t, StateComplete, msg.RequestState)

	ev := "MRCP/2.0 60 SPEAK-COMPLETE 1 COMPLETE\r\nChannel-Identifier: abcd@speechsynth\r\n\r\n"
	p2 := NewParser(cat)
	res2, msg2, err := p2.Run(stream.New([]byte(ev)))
	require.NoError(t, err)
	require.Equal(t, Complete, res2)
	assert.Equal(t, KindEvent, msg2.Kind)
	assert.Equal(t, "SPEAK-COMPLETE", msg2.MethodName)
}

func TestMissingChannelIdentifierIsInvalid(t *testing.T) {
	cat := testCatalogue(t)
	p := NewParser(cat)
	res, _, err := p.Run(stream.New([]byte("MRCP/2.0 20 SPEAK 1\r\n\r\n")))
	assert.Equal(t, Invalid, res)
	assert.Error(t, err)
}

func TestUnknownResourceIsInvalid(t *testing.T) {
	cat := testCatalogue(t)
	p := NewParser(cat)
	msg := "MRCP/2.0 40 SPEAK 1\r\nChannel-Identifier: abcd@bogus\r\n\r\n"
	res, _, err := p.Run(stream.New([]byte(msg)))
	assert.Equal(t, Invalid, res)
	assert.Error(t, err)
}

func TestMRCPv1RequestStartLine(t *testing.T) {
	p := NewParser(nil)
	res, msg, err := p.Run(stream.New([]byte("MRCP/1.0 1 SPEAK\r\n\r\n")))
	require.NoError(t, err)
	require.Equal(t, Complete, res)
	assert.Equal(t, 1, msg.Version)
	assert.Equal(t, "SPEAK", msg.MethodName)
}
