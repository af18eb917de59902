package session

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGeneratesSessionIDWhenEmpty(t *testing.T) {
	s := New("")
	assert.NotEmpty(t, s.ID)

	other := New("")
	assert.NotEqual(t, s.ID, other.ID)
}

func TestNewKeepsCallerSuppliedID(t *testing.T) {
	s := New("explicit-id")
	assert.Equal(t, "explicit-id", s.ID)
}

func TestOfferAdvancesToActiveWhenAllAcksSucceed(t *testing.T) {
	s := New("sess-1")
	var sigCalled, connCalled, mediaCalled atomic.Bool
	s.Signaling = func(Work) error { sigCalled.Store(true); return nil }
	s.Connection = func(Work) error { connCalled.Store(true); return nil }
	s.Media = func(Work) error { mediaCalled.Store(true); return nil }

	err := s.Offer(Work{NeedsSignaling: true, NeedsConnection: true, NeedsMedia: true})
	require.NoError(t, err)
	assert.Equal(t, Active, s.State())
	assert.True(t, sigCalled.Load())
	assert.True(t, connCalled.Load())
	assert.True(t, mediaCalled.Load())
}

func TestOfferOnlyDispatchesNamedCollaborators(t *testing.T) {
	s := New("sess-1")
	var connCalled atomic.Bool
	s.Signaling = func(Work) error { t.Fatal("signaling should not be dispatched"); return nil }
	s.Connection = func(Work) error { connCalled.Store(true); return nil }

	err := s.Offer(Work{NeedsConnection: true})
	require.NoError(t, err)
	assert.True(t, connCalled.Load())
}

// TestOfferNeverAbandonsInFlightAcks is the core partial-failure
// discipline §4.9 names: a failing collaborator must not stop the
// session from waiting on (and reporting) the others.
func TestOfferNeverAbandonsInFlightAcks(t *testing.T) {
	s := New("sess-1")
	var connCalled, mediaCalled atomic.Bool
	failure := errors.New("connection refused")
	s.Connection = func(Work) error { connCalled.Store(true); return failure }
	s.Media = func(Work) error { mediaCalled.Store(true); return nil }

	err := s.Offer(Work{NeedsConnection: true, NeedsMedia: true})
	require.Error(t, err)
	assert.True(t, connCalled.Load())
	assert.True(t, mediaCalled.Load(), "media ack must still run despite connection failure")
	assert.ErrorIs(t, err, failure)
	// A failed offer must not advance to Active.
	assert.Equal(t, Idle, s.State())
}

func TestOfferFromWrongStateRejected(t *testing.T) {
	s := New("sess-1")
	s.state = Terminating
	err := s.Offer(Work{})
	assert.ErrorIs(t, err, ErrWrongState)
}

func TestActiveOfferBackEdgeReturnsToActiveOnSuccess(t *testing.T) {
	s := New("sess-1")
	require.NoError(t, s.Offer(Work{}))
	require.Equal(t, Active, s.State())

	require.NoError(t, s.Offer(Work{NeedsMedia: true, Payload: "update"}))
	assert.Equal(t, Active, s.State())
}

func TestTerminateRequiresActiveState(t *testing.T) {
	s := New("sess-1")
	err := s.Terminate(Work{})
	assert.ErrorIs(t, err, ErrWrongState)
}

func TestTerminateClosesAfterAllAcks(t *testing.T) {
	s := New("sess-1")
	require.NoError(t, s.Offer(Work{}))

	var connCalled atomic.Bool
	s.Connection = func(Work) error { connCalled.Store(true); return nil }

	err := s.Terminate(Work{NeedsConnection: true})
	require.NoError(t, err)
	assert.Equal(t, Closed, s.State())
	assert.True(t, connCalled.Load())
}
