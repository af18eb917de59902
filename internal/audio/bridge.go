package audio

import (
	"encoding/binary"
	"fmt"
)

// Bridge moves frames from a source stream to a sink stream every
// tick. §4.6 names two implementations: a null bridge that copies
// frames untouched when source and sink descriptors match exactly, and
// a linear bridge that decodes to LPCM, resamples/re-channels if
// needed, and re-encodes when they don't.
type Bridge interface {
	// FrameDuration is the duration, in milliseconds, a tick of this
	// bridge consumes.
	FrameDuration() int
	// Process reads one frame from src and writes the transcoded
	// equivalent to dst.
	Process(dst, src *Frame) error
}

// SelectBridge implements the §4.6 selection rule: a NullBridge when
// the source and sink descriptors are identical, otherwise a
// LinearBridge built from the codec manager.
func SelectBridge(m *CodecManager, src, sink Descriptor) (Bridge, error) {
	if src.Equal(sink) {
		return &NullBridge{descriptor: src}, nil
	}
	return NewLinearBridge(m, src, sink)
}

// NullBridge passes frames through unchanged. Selected when no format
// conversion is needed, avoiding the decode/encode round trip.
type NullBridge struct {
	descriptor Descriptor
}

func (b *NullBridge) FrameDuration() int { return b.descriptor.FrameMS }

func (b *NullBridge) Process(dst, src *Frame) error {
	dst.Size = copy(dst.Buffer, src.Buffer[:src.Size])
	dst.Type = src.Type
	dst.Marker = src.Marker
	dst.Event = src.Event
	return nil
}

// LinearBridge decodes the source codec to LPCM, resamples/re-channels
// it if the two descriptors' sample rate or channel count differ, and
// re-encodes to the sink codec. Its frame duration is the larger of
// the two native frame durations (§4.6). Process converts exactly one
// source frame per call; source frames are not buffered across calls.
type LinearBridge struct {
	decoder   Coder
	encoder   Coder
	src, sink Descriptor
	frameMS   int

	pcmScratch       []byte // decoded source LPCM, at src's rate/channels
	resampledScratch []byte // LPCM at sink's rate/channels, fed to encoder
}

// NewLinearBridge resolves coders for both descriptors from m and
// computes the bridged frame duration.
func NewLinearBridge(m *CodecManager, src, sink Descriptor) (*LinearBridge, error) {
	dec, err := m.Lookup(src)
	if err != nil {
		return nil, fmt.Errorf("mrcpd: audio: linear bridge source: %w", err)
	}
	enc, err := m.Lookup(sink)
	if err != nil {
		return nil, fmt.Errorf("mrcpd: audio: linear bridge sink: %w", err)
	}
	frameMS := src.FrameMS
	if sink.FrameMS > frameMS {
		frameMS = sink.FrameMS
	}
	srcSamples := frameMS * src.SampleRate / 1000
	sinkSamples := frameMS * sink.SampleRate / 1000
	return &LinearBridge{
		decoder:          dec,
		encoder:          enc,
		src:              src,
		sink:             sink,
		frameMS:          frameMS,
		pcmScratch:       make([]byte, srcSamples*2*maxInt(src.Channels, 1)),
		resampledScratch: make([]byte, sinkSamples*2*maxInt(sink.Channels, 1)),
	}, nil
}

func (b *LinearBridge) FrameDuration() int { return b.frameMS }

func (b *LinearBridge) Process(dst, src *Frame) error {
	n, err := b.decoder.Decode(b.pcmScratch, src.Buffer[:src.Size])
	if err != nil {
		return fmt.Errorf("mrcpd: audio: linear bridge decode: %w", err)
	}
	pcm := b.pcmScratch[:n]

	if b.src.SampleRate != b.sink.SampleRate || b.src.Channels != b.sink.Channels {
		converted := resamplePCM(b.resampledScratch, pcm, b.src.SampleRate, b.sink.SampleRate, maxInt(b.src.Channels, 1), maxInt(b.sink.Channels, 1))
		pcm = b.resampledScratch[:converted]
	}

	written, err := b.encoder.Encode(dst.Buffer, pcm)
	if err != nil {
		return fmt.Errorf("mrcpd: audio: linear bridge encode: %w", err)
	}
	dst.Size = written
	dst.Type = src.Type
	dst.Marker = src.Marker
	dst.Event = src.Event
	return nil
}

// resamplePCM converts 16-bit signed little-endian LPCM from srcRate
// to dstRate and from srcChannels to dstChannels, returning the number
// of bytes written to dst. Rate conversion uses linear interpolation
// between adjacent source frames (§4.6's resampler stage; the
// project's Non-goals exclude codec DSP precision, not the stage
// itself). Channel conversion duplicates the mono source across every
// destination channel when upmixing, and averages every source
// channel into one when downmixing to mono — the same simple mapping
// UniMRCP-derived bridges use since MRCP media contexts are not
// expected to carry true multichannel audio.
func resamplePCM(dst, src []byte, srcRate, dstRate, srcChannels, dstChannels int) int {
	const sampleBytes = 2
	srcFrameBytes := sampleBytes * srcChannels
	srcFrames := len(src) / srcFrameBytes
	if srcFrames == 0 {
		return 0
	}

	dstFrames := srcFrames
	if srcRate != dstRate {
		dstFrames = srcFrames * dstRate / srcRate
	}
	if maxFrames := len(dst) / (sampleBytes * dstChannels); dstFrames > maxFrames {
		dstFrames = maxFrames
	}
	if dstFrames == 0 {
		return 0
	}

	readSample := func(frame, channel int) int16 {
		if channel >= srcChannels {
			channel = srcChannels - 1
		}
		off := frame*srcFrameBytes + channel*sampleBytes
		return int16(binary.LittleEndian.Uint16(src[off : off+sampleBytes]))
	}

	readMixedDown := func(frame int) int16 {
		var sum int32
		for ch := 0; ch < srcChannels; ch++ {
			sum += int32(readSample(frame, ch))
		}
		return int16(sum / int32(srcChannels))
	}

	for i := 0; i < dstFrames; i++ {
		pos := float64(i)
		if srcRate != dstRate {
			pos = float64(i) * float64(srcRate) / float64(dstRate)
		}
		lo := int(pos)
		hi := lo + 1
		if hi >= srcFrames {
			hi = srcFrames - 1
		}
		frac := pos - float64(lo)

		for ch := 0; ch < dstChannels; ch++ {
			var a, bVal float64
			if dstChannels == 1 && srcChannels > 1 {
				a = float64(readMixedDown(lo))
				bVal = float64(readMixedDown(hi))
			} else {
				a = float64(readSample(lo, ch))
				bVal = float64(readSample(hi, ch))
			}
			v := int16(a + (bVal-a)*frac)
			off := i*sampleBytes*dstChannels + ch*sampleBytes
			binary.LittleEndian.PutUint16(dst[off:off+sampleBytes], uint16(v))
		}
	}
	return dstFrames * sampleBytes * dstChannels
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
