package media

import (
	"testing"

	"firestige.xyz/mrcpd/internal/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVtable is a no-op audio.Vtable recording frame counts, enough to
// exercise the topology and tick plumbing without real I/O.
type fakeVtable struct {
	reads, writes int
}

func (f *fakeVtable) RxOpen(audio.Descriptor) error  { return nil }
func (f *fakeVtable) RxClose() error                 { return nil }
func (f *fakeVtable) TxOpen(audio.Descriptor) error  { return nil }
func (f *fakeVtable) TxClose() error                 { return nil }
func (f *fakeVtable) ReadFrame(fr *audio.Frame) error {
	f.reads++
	fr.Size = copy(fr.Buffer, []byte{0xFF, 0xFF, 0xFF, 0xFF})
	fr.Type = audio.TypeAudio
	return nil
}
func (f *fakeVtable) WriteFrame(fr *audio.Frame) error {
	f.writes++
	return nil
}

func newTermination(name string, dir audio.Direction, d audio.Descriptor) (*Termination, *fakeVtable) {
	vt := &fakeVtable{}
	s := &audio.Stream{
		Direction:    dir,
		Capabilities: audio.Capabilities{Descriptors: []audio.Descriptor{d}},
		RxDescriptor: d,
		TxDescriptor: d,
		Vtable:       vt,
	}
	return &Termination{Name: name, Stream: s}, vt
}

var pcmu20 = audio.Descriptor{Name: "PCMU", SampleRate: 8000, Channels: 1, FrameMS: 20}

func TestContextAddFillsLowestFreeSlot(t *testing.T) {
	ctx := NewContext(audio.NewCodecManager())
	a, _ := newTermination("a", audio.DirSend|audio.DirReceive, pcmu20)
	b, _ := newTermination("b", audio.DirSend|audio.DirReceive, pcmu20)

	slotA, err := ctx.Add(a)
	require.NoError(t, err)
	assert.Equal(t, 0, slotA)

	slotB, err := ctx.Add(b)
	require.NoError(t, err)
	assert.Equal(t, 1, slotB)
}

func TestContextFullReturnsError(t *testing.T) {
	ctx := NewContext(audio.NewCodecManager())
	for i := 0; i < MaxTerminations; i++ {
		term, _ := newTermination("t", audio.DirSend, pcmu20)
		_, err := ctx.Add(term)
		require.NoError(t, err)
	}
	extra, _ := newTermination("overflow", audio.DirSend, pcmu20)
	_, err := ctx.Add(extra)
	assert.ErrorIs(t, err, ErrContextFull)
}

// TestTopologyBuildsBothDirectionsForSendReceivePair exercises the §8
// invariant: when both terminations declare SendReceive, exactly two
// directional objects exist, one per ordered pair.
func TestTopologyBuildsBothDirectionsForSendReceivePair(t *testing.T) {
	ctx := NewContext(audio.NewCodecManager())
	a, _ := newTermination("a", audio.DirSend|audio.DirReceive, pcmu20)
	b, _ := newTermination("b", audio.DirSend|audio.DirReceive, pcmu20)
	ctx.Add(a)
	ctx.Add(b)

	objs := ctx.Objects()
	require.Len(t, objs, 2)
	assert.Equal(t, "a", objs[0].Src.Name)
	assert.Equal(t, "b", objs[0].Sink.Name)
	assert.Equal(t, "b", objs[1].Src.Name)
	assert.Equal(t, "a", objs[1].Sink.Name)
}

// TestTopologyOmitsDirectionWhenModeDoesNotAllowIt covers the §4.7
// rule: an object is only instantiated when source declares Receive
// and sink declares Send.
func TestTopologyOmitsDirectionWhenModeDoesNotAllowIt(t *testing.T) {
	ctx := NewContext(audio.NewCodecManager())
	// a can only receive, so it can only be a source; b can only send,
	// so it can only be a sink.
	a, _ := newTermination("recorder", audio.DirReceive, pcmu20)
	b, _ := newTermination("player", audio.DirSend, pcmu20)
	ctx.Add(a)
	ctx.Add(b)

	objs := ctx.Objects()
	require.Len(t, objs, 1)
	assert.Equal(t, "recorder", objs[0].Src.Name)
	assert.Equal(t, "player", objs[0].Sink.Name)
}

func TestSubtractDestroysTopologyBeforeClearingSlot(t *testing.T) {
	ctx := NewContext(audio.NewCodecManager())
	a, _ := newTermination("a", audio.DirSend|audio.DirReceive, pcmu20)
	b, _ := newTermination("b", audio.DirSend|audio.DirReceive, pcmu20)
	ctx.Add(a)
	slotB, _ := ctx.Add(b)
	require.Len(t, ctx.Objects(), 2)

	require.NoError(t, ctx.Subtract(slotB))
	assert.Empty(t, ctx.Objects())
	assert.Equal(t, 1, ctx.Occupied())
}

func TestSubtractUnknownSlotErrors(t *testing.T) {
	ctx := NewContext(audio.NewCodecManager())
	err := ctx.Subtract(3)
	assert.ErrorIs(t, err, ErrSlotEmpty)
}

func TestContextTickCallsProcessOnEveryObject(t *testing.T) {
	ctx := NewContext(audio.NewCodecManager())
	a, vtA := newTermination("a", audio.DirSend|audio.DirReceive, pcmu20)
	b, vtB := newTermination("b", audio.DirSend|audio.DirReceive, pcmu20)
	ctx.Add(a)
	ctx.Add(b)

	require.NoError(t, ctx.Tick())

	assert.Equal(t, 1, vtA.reads)
	assert.Equal(t, 1, vtB.writes)
	assert.Equal(t, 1, vtB.reads)
	assert.Equal(t, 1, vtA.writes)
}
