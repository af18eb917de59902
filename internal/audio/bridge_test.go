package audio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectBridgeNullOnExactMatch(t *testing.T) {
	m := NewCodecManager()
	d := Descriptor{Name: "PCMU", SampleRate: 8000, Channels: 1, FrameMS: 20}

	b, err := SelectBridge(m, d, d)
	require.NoError(t, err)

	_, isNull := b.(*NullBridge)
	assert.True(t, isNull, "expected a NullBridge for identical descriptors")
	assert.Equal(t, 20, b.FrameDuration())
}

func TestSelectBridgeLinearOnFrameDurationMismatch(t *testing.T) {
	m := NewCodecManager()
	src := Descriptor{Name: "PCMU", SampleRate: 8000, Channels: 1, FrameMS: 20}
	sink := Descriptor{Name: "PCMU", SampleRate: 8000, Channels: 1, FrameMS: 30}

	b, err := SelectBridge(m, src, sink)
	require.NoError(t, err)

	lb, isLinear := b.(*LinearBridge)
	require.True(t, isLinear, "expected a LinearBridge when frame durations differ")
	assert.Equal(t, 30, lb.FrameDuration(), "bridge frame duration must be the max of the two")
}

func TestSelectBridgeLinearOnCodecMismatch(t *testing.T) {
	m := NewCodecManager()
	src := Descriptor{Name: "PCMU", SampleRate: 8000, Channels: 1, FrameMS: 20}
	sink := Descriptor{Name: "PCMA", SampleRate: 8000, Channels: 1, FrameMS: 20}

	b, err := SelectBridge(m, src, sink)
	require.NoError(t, err)
	_, isLinear := b.(*LinearBridge)
	assert.True(t, isLinear)
}

func TestNullBridgeCopiesFrameUnchanged(t *testing.T) {
	d := Descriptor{Name: "PCMU", SampleRate: 8000, Channels: 1, FrameMS: 20}
	b := &NullBridge{descriptor: d}

	src := &Frame{Buffer: []byte{1, 2, 3, 4}, Size: 4, Type: TypeAudio}
	dst := &Frame{Buffer: make([]byte, 4)}

	require.NoError(t, b.Process(dst, src))
	assert.Equal(t, 4, dst.Size)
	assert.Equal(t, src.Buffer, dst.Buffer)
	assert.Equal(t, TypeAudio, dst.Type)
}

func TestLinearBridgePCMUToPCMARoundTripsThroughLPCM(t *testing.T) {
	m := NewCodecManager()
	src := Descriptor{Name: "PCMU", SampleRate: 8000, Channels: 1, FrameMS: 20}
	sink := Descriptor{Name: "PCMA", SampleRate: 8000, Channels: 1, FrameMS: 20}

	lb, err := NewLinearBridge(m, src, sink)
	require.NoError(t, err)

	ulaw, _ := m.Lookup(src)
	frameBytes := ulaw.FrameSize(20)
	samples := make([]byte, frameBytes)
	for i := range samples {
		samples[i] = byte(0x80 ^ i) // arbitrary but deterministic mu-law payload
	}

	in := &Frame{Buffer: samples, Size: len(samples), Type: TypeAudio}
	out := &Frame{Buffer: make([]byte, frameBytes)}

	require.NoError(t, lb.Process(out, in))
	assert.Equal(t, frameBytes, out.Size)
	assert.Equal(t, TypeAudio, out.Type)
}

func TestLinearBridgeResamplesOnSampleRateMismatch(t *testing.T) {
	m := NewCodecManager()
	src := Descriptor{Name: "L16", SampleRate: 8000, Channels: 1, FrameMS: 20}
	sink := Descriptor{Name: "L16", SampleRate: 16000, Channels: 1, FrameMS: 20}

	lb, err := NewLinearBridge(m, src, sink)
	require.NoError(t, err)
	assert.Equal(t, 20, lb.FrameDuration())

	srcSamples := 20 * 8000 / 1000 // 160 frames at 8kHz
	in := &Frame{Buffer: make([]byte, srcSamples*2), Size: srcSamples * 2, Type: TypeAudio}
	for i := 0; i < srcSamples; i++ {
		v := int16(1000 + i)
		in.Buffer[i*2] = byte(v)
		in.Buffer[i*2+1] = byte(v >> 8)
	}

	sinkSamples := 20 * 16000 / 1000 // 320 frames at 16kHz
	out := &Frame{Buffer: make([]byte, sinkSamples*2)}

	require.NoError(t, lb.Process(out, in))
	assert.Equal(t, sinkSamples*2, out.Size, "upsampling 8kHz to 16kHz must double the frame's sample count")
}

func TestResamplePCMDownmixesStereoToMono(t *testing.T) {
	// Two stereo frames: (100, 300) and (200, 400); mono average
	// should be 200 and 300.
	src := make([]byte, 8)
	binary.LittleEndian.PutUint16(src[0:2], uint16(int16(100)))
	binary.LittleEndian.PutUint16(src[2:4], uint16(int16(300)))
	binary.LittleEndian.PutUint16(src[4:6], uint16(int16(200)))
	binary.LittleEndian.PutUint16(src[6:8], uint16(int16(400)))

	dst := make([]byte, 4)
	n := resamplePCM(dst, src, 8000, 8000, 2, 1)
	require.Equal(t, 4, n)
	assert.Equal(t, int16(200), int16(binary.LittleEndian.Uint16(dst[0:2])))
	assert.Equal(t, int16(300), int16(binary.LittleEndian.Uint16(dst[2:4])))
}

func TestSelectBridgeUnsupportedCodecErrors(t *testing.T) {
	m := NewCodecManager()
	src := Descriptor{Name: "G729", SampleRate: 8000, Channels: 1, FrameMS: 20}
	sink := Descriptor{Name: "PCMU", SampleRate: 8000, Channels: 1, FrameMS: 20}

	_, err := SelectBridge(m, src, sink)
	require.Error(t, err)
}
