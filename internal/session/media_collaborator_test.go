package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/mrcpd/internal/audio"
	"firestige.xyz/mrcpd/internal/media"
)

var pcmu20 = audio.Descriptor{Name: "PCMU", SampleRate: 8000, Channels: 1, FrameMS: 20}

func newMediaTermination(name string) *media.Termination {
	return &media.Termination{
		Name: name,
		Stream: &audio.Stream{
			Direction:    audio.DirSend | audio.DirReceive,
			Capabilities: audio.Capabilities{Descriptors: []audio.Descriptor{pcmu20}},
			RxDescriptor: pcmu20,
			TxDescriptor: pcmu20,
			Vtable:       noopVtable{},
		},
	}
}

type noopVtable struct{}

func (noopVtable) RxOpen(audio.Descriptor) error { return nil }
func (noopVtable) RxClose() error                { return nil }
func (noopVtable) TxOpen(audio.Descriptor) error { return nil }
func (noopVtable) TxClose() error                { return nil }
func (noopVtable) ReadFrame(fr *audio.Frame) error {
	fr.Size = 0
	return nil
}
func (noopVtable) WriteFrame(fr *audio.Frame) error { return nil }

func TestMediaCollaboratorCreatesContextAndBindsTermination(t *testing.T) {
	engine := media.NewEngine(5*time.Millisecond, audio.NewCodecManager())
	require.NoError(t, engine.Start())
	defer engine.Terminate(true)

	collab := NewMediaCollaborator(engine)

	s := New("sess-1")
	ch := s.AddChannel(1, "speechsynth")
	rc := &RoundContext{
		Session: s, Channel: ch,
		Media: &MediaOffer{ContextID: "sess-1", Termination: newMediaTermination("leg-a"), Slot: -1},
	}

	require.NoError(t, collab(Work{Payload: rc}))
	assert.False(t, ch.WaitingForTermination)
	assert.Equal(t, "leg-a", ch.Termination)
	assert.Equal(t, 0, ch.Slot())
	assert.NotNil(t, engine.Context("sess-1"))
}

func TestMediaCollaboratorReusesExistingContext(t *testing.T) {
	engine := media.NewEngine(5*time.Millisecond, audio.NewCodecManager())
	require.NoError(t, engine.Start())
	defer engine.Terminate(true)

	s := New("sess-1")

	chA := s.AddChannel(1, "speechsynth")
	require.NoError(t, NewMediaCollaborator(engine)(Work{Payload: &RoundContext{
		Session: s, Channel: chA,
		Media: &MediaOffer{ContextID: "sess-1", Termination: newMediaTermination("leg-a"), Slot: -1},
	}}))

	chB := s.AddChannel(2, "recorder")
	require.NoError(t, NewMediaCollaborator(engine)(Work{Payload: &RoundContext{
		Session: s, Channel: chB,
		Media: &MediaOffer{ContextID: "sess-1", Termination: newMediaTermination("leg-b"), Slot: -1},
	}}))

	assert.Equal(t, 0, chA.Slot())
	assert.Equal(t, 1, chB.Slot())
}

func TestMediaTeardownCollaboratorUnbindsChannel(t *testing.T) {
	engine := media.NewEngine(5*time.Millisecond, audio.NewCodecManager())
	require.NoError(t, engine.Start())
	defer engine.Terminate(true)

	s := New("sess-1")
	ch := s.AddChannel(1, "speechsynth")
	rc := &RoundContext{
		Session: s, Channel: ch,
		Media: &MediaOffer{ContextID: "sess-1", Termination: newMediaTermination("leg-a"), Slot: -1},
	}
	require.NoError(t, NewMediaCollaborator(engine)(Work{Payload: rc}))

	require.NoError(t, NewMediaTeardownCollaborator(engine)(Work{Payload: rc}))
	assert.False(t, ch.WaitingForTermination)
}
