package media

import (
	"fmt"

	"firestige.xyz/mrcpd/internal/audio"
)

// frameBufferBytes is generous enough for one tick of any codec this
// package's bridges produce (20ms of 16-bit stereo at 48kHz is 3840
// bytes); codecs never need more than a tick's worth per object.
const frameBufferBytes = 4096

// Object is one directional adapter between two terminations: it
// reads one frame from src, runs it through the bridge selected for
// the pair's descriptors, and writes the result to sink (§4.6, §4.7).
type Object struct {
	Src, Sink *Termination
	Bridge    audio.Bridge

	srcFrame audio.Frame
	dstFrame audio.Frame
}

// newObject selects a bridge for src's rx-descriptor and sink's
// tx-descriptor and allocates the per-tick scratch frames.
func newObject(codecs *audio.CodecManager, src, sink *Termination) (*Object, error) {
	bridge, err := audio.SelectBridge(codecs, src.Stream.RxDescriptor, sink.Stream.TxDescriptor)
	if err != nil {
		return nil, fmt.Errorf("mrcpd: media: object %s->%s: %w", src.Name, sink.Name, err)
	}
	return &Object{
		Src:      src,
		Sink:     sink,
		Bridge:   bridge,
		srcFrame: audio.Frame{Buffer: make([]byte, frameBufferBytes)},
		dstFrame: audio.Frame{Buffer: make([]byte, frameBufferBytes)},
	}, nil
}

// process runs one tick: read from the source stream, transcode
// through the bridge, write to the sink stream.
func (o *Object) process() error {
	o.srcFrame.Reset()
	if err := o.Src.Stream.Vtable.ReadFrame(&o.srcFrame); err != nil {
		return fmt.Errorf("mrcpd: media: read %s: %w", o.Src.Name, err)
	}
	o.dstFrame.Reset()
	if err := o.Bridge.Process(&o.dstFrame, &o.srcFrame); err != nil {
		return fmt.Errorf("mrcpd: media: bridge %s->%s: %w", o.Src.Name, o.Sink.Name, err)
	}
	if err := o.Sink.Stream.Vtable.WriteFrame(&o.dstFrame); err != nil {
		return fmt.Errorf("mrcpd: media: write %s: %w", o.Sink.Name, err)
	}
	return nil
}
