package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeMaskHas(t *testing.T) {
	m := TypeAudio | TypeEvent
	assert.True(t, m.Has(TypeAudio))
	assert.True(t, m.Has(TypeEvent))
	assert.False(t, TypeNone.Has(TypeAudio))
}

func TestFrameResetClearsMetadataKeepsBuffer(t *testing.T) {
	buf := make([]byte, 160)
	f := &Frame{
		Buffer: buf,
		Size:   160,
		Type:   TypeAudio | TypeEvent,
		Marker: MarkerStartOfEvent,
		Event:  &EventFrame{ID: 9, Duration: 800},
	}

	f.Reset()

	assert.Equal(t, 0, f.Size)
	assert.Equal(t, TypeNone, f.Type)
	assert.Equal(t, MarkerNone, f.Marker)
	assert.Nil(t, f.Event)
	assert.Same(t, &buf[0], &f.Buffer[0], "Reset must not reallocate the buffer")
}
